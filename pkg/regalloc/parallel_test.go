package regalloc

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

func TestAllocateAll(t *testing.T) {
	var units []*Unit
	for _, name := range []string{"u0", "u1", "u2", "u3"} {
		u := pressureUnit()
		u.Name = name
		units = append(units, u)
	}
	want := Allocate(pressureUnit(), Options{Verify: true})

	var trace bytes.Buffer
	results, err := AllocateAll(context.Background(), units, Options{Verify: true, Trace: &trace, TraceLevel: TracePhase}, 2)
	if err != nil {
		t.Fatalf("AllocateAll: %v", err)
	}
	if len(results) != len(units) {
		t.Fatalf("got %d results, want %d", len(results), len(units))
	}
	for i, res := range results {
		if res.Unit != units[i].Name {
			t.Errorf("result %d is for %s", i, res.Unit)
		}
		if res.Stats != want.Stats {
			t.Errorf("%s stats = %+v, want %+v", res.Unit, res.Stats, want.Stats)
		}
	}

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	if len(lines) != 2*len(units) {
		t.Fatalf("trace has %d lines:\n%s", len(lines), trace.String())
	}
	for i, u := range units {
		if !strings.HasPrefix(lines[2*i], "[phase] allocate "+u.Name+" ") ||
			!strings.HasPrefix(lines[2*i+1], "[phase] done "+u.Name+":") {
			t.Errorf("trace for %s out of order:\n%s", u.Name, trace.String())
		}
	}
}

func TestAllocateAllReturnsInvariantError(t *testing.T) {
	good := pressureUnit()
	bad := NewUnit("unsorted", target.Tiny2)
	x := bad.NewTemp("x", target.ClassInt)
	bad.Def(4, x)
	bad.Use(2, x)

	_, err := AllocateAll(context.Background(), []*Unit{good, bad}, Options{}, 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("error %v does not wrap *InvariantError", err)
	}
	if inv.Unit != "unsorted" || !strings.HasPrefix(err.Error(), "allocate unsorted: ") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAllocateAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AllocateAll(ctx, []*Unit{pressureUnit()}, Options{}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("AllocateAll on a canceled context = %v", err)
	}
}

func TestAllocateAllEmpty(t *testing.T) {
	results, err := AllocateAll(context.Background(), nil, Options{}, 4)
	if err != nil || len(results) != 0 {
		t.Errorf("AllocateAll(nil) = %v, %v", results, err)
	}
}
