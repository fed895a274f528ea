package unitfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raymyers/ralph-lsra/pkg/regalloc"
	"github.com/raymyers/ralph-lsra/pkg/target"
)

const spillYAML = `
target: tiny2
units:
  - name: spill
    intervals:
      - name: A
      - name: B
      - name: C
    refs:
      - {loc: 0, type: def, interval: A}
      - {loc: 2, type: def, interval: B}
      - {loc: 4, type: def, interval: C}
      - {loc: 6, type: use, interval: C, lastUse: true}
      - {loc: 8, type: use, interval: B, lastUse: true}
      - {loc: 10, type: use, interval: A, lastUse: true}
  - name: args
    blocks:
      - {id: 0, eh: true}
    autoLastUse: true
    intervals:
      - {name: p, arg: R1}
      - {name: t, var: 3}
    refs:
      - {loc: 0, type: paramDef, interval: p}
      - {loc: 1, type: fixedReg, reg: R0}
      - {loc: 1, type: def, interval: t, reg: R0}
      - {loc: 2, type: kill, reg: R1}
      - {loc: 4, type: use, interval: p}
      - {loc: 6, type: killGCRefs, regs: [R0, R1]}
      - {loc: 8, type: use, interval: t, optional: true, weight: 4}
`

func decodeString(t *testing.T, s string) *File {
	t.Helper()
	f, err := Decode(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return f
}

func TestBuild(t *testing.T) {
	units, err := decodeString(t, spillYAML).Build("arm64")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}

	spill := units[0]
	if spill.Name != "spill" || spill.Machine != target.Tiny2 {
		t.Errorf("unit %s on %s", spill.Name, spill.Machine.Name)
	}
	if len(spill.Intervals) != 3 || len(spill.Refs) != 6 {
		t.Fatalf("%d intervals, %d refs", len(spill.Intervals), len(spill.Refs))
	}
	if a := spill.Interval(0); a.FirstRef != 0 || a.LastRef != 5 {
		t.Errorf("A spans refs %d..%d", a.FirstRef, a.LastRef)
	}

	args := units[1]
	if !args.EHBlocks[0] {
		t.Error("block 0 should be an exception-handling block")
	}
	p := args.Interval(0)
	if !p.IsArg || p.ArgReg != 1 || p.Class != target.ClassInt {
		t.Errorf("p: arg=%v reg=%d class=%s", p.IsArg, p.ArgReg, p.Class)
	}
	if tv := args.Interval(1); tv.VarNum != 3 {
		t.Errorf("t var = %d, want 3", tv.VarNum)
	}
	if p.VarNum != -1 {
		t.Errorf("p var = %d, want -1", p.VarNum)
	}

	def := args.Ref(2)
	if r, ok := def.FixedReg(); !ok || r != 0 {
		t.Errorf("reg on a def should fix it to R0, got %d, %v", r, ok)
	}
	kill := args.Ref(3)
	if !kill.IsPhysReg || kill.Reg != 1 || kill.Type != regalloc.RefTypeKill {
		t.Errorf("kill = %+v", *kill)
	}
	gc := args.Ref(5)
	if !gc.Candidates.Equal(regalloc.RegSetOf(0, 1)) {
		t.Errorf("killGCRefs regs = %v", gc.Candidates.Slice())
	}
	last := args.Ref(6)
	if !last.LastUse || !last.RegOptional || last.Weight != 4 {
		t.Errorf("last use of t = %+v", *last)
	}
	if !args.Ref(4).LastUse {
		t.Error("autoLastUse should mark p's final use")
	}
}

func TestBuildDefaultTarget(t *testing.T) {
	f := decodeString(t, `
units:
  - name: f
    intervals: [{name: x, class: float}]
    refs:
      - {loc: 0, type: def, interval: x, reg: D3}
      - {loc: 2, type: use, interval: x, lastUse: true}
`)
	units, err := f.Build("arm64")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if units[0].Machine != target.ARM64 {
		t.Errorf("machine = %s, want arm64", units[0].Machine.Name)
	}
	if units[0].Interval(0).Class != target.ClassFloat {
		t.Error("x should be a float interval")
	}
}

func TestBuildArgIndex(t *testing.T) {
	f := decodeString(t, `
target: arm64
units:
  - name: params
    autoLastUse: true
    intervals:
      - {name: a, arg: "1"}
      - {name: d, class: float, arg: "0"}
      - {name: s, arg: "8"}
    refs:
      - {loc: 0, type: paramDef, interval: a}
      - {loc: 0, type: paramDef, interval: d}
      - {loc: 0, type: paramDef, interval: s}
      - {loc: 2, type: use, interval: a}
      - {loc: 2, type: use, interval: d}
      - {loc: 2, type: use, interval: s}
`)
	units, err := f.Build("")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	u := units[0]
	tests := []struct {
		iv    regalloc.IntervalID
		reg   string
		stack bool
	}{
		{0, "X1", false},
		{1, "D0", false},
		{2, "", true},
	}
	for _, tt := range tests {
		in := u.Interval(tt.iv)
		if !in.IsArg || in.IsStackArg != tt.stack {
			t.Errorf("%s: arg=%v stack=%v", in.Name, in.IsArg, in.IsStackArg)
		}
		if tt.stack {
			if in.ArgReg.Valid() {
				t.Errorf("%s: stack argument in %s", in.Name, u.Machine.RegName(in.ArgReg))
			}
			continue
		}
		if got := u.Machine.RegName(in.ArgReg); got != tt.reg {
			t.Errorf("%s arrives in %s, want %s", in.Name, got, tt.reg)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown target",
			yaml:    "target: vax\nunits: [{name: f}]",
			wantErr: target.ErrUnknownTarget,
		},
		{
			name:    "unknown register",
			yaml:    "units: [{name: f, intervals: [{name: x}], refs: [{loc: 0, type: def, interval: x, reg: R9}]}]",
			wantErr: target.ErrUnknownRegister,
		},
		{
			name:    "unknown interval",
			yaml:    "units: [{name: f, refs: [{loc: 0, type: use, interval: y}]}]",
			wantMsg: `unknown interval "y"`,
		},
		{
			name:    "duplicate interval",
			yaml:    "units: [{name: f, intervals: [{name: x}, {name: x}]}]",
			wantMsg: `duplicate interval "x"`,
		},
		{
			name:    "kill without register",
			yaml:    "units: [{name: f, refs: [{loc: 0, type: kill}]}]",
			wantMsg: "kill needs a register",
		},
		{
			name:    "unknown ref type",
			yaml:    "units: [{name: f, refs: [{loc: 0, type: spill}]}]",
			wantMsg: `unknown ref type "spill"`,
		},
		{
			name:    "negative location",
			yaml:    "units: [{name: f, intervals: [{name: x}], refs: [{loc: -1, type: def, interval: x}]}]",
			wantMsg: "location -1",
		},
		{
			name:    "unsorted",
			yaml:    "units: [{name: f, intervals: [{name: x}], refs: [{loc: 4, type: def, interval: x}, {loc: 2, type: use, interval: x}]}]",
			wantErr: regalloc.ErrUnsorted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeString(t, tt.yaml).Build("tiny2")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(strings.NewReader("")); !errors.Is(err, ErrNoUnits) {
		t.Errorf("empty input: %v", err)
	}
	if _, err := Decode(strings.NewReader("target: tiny2\nunits: []\n")); !errors.Is(err, ErrNoUnits) {
		t.Errorf("no units: %v", err)
	}
	_, err := Decode(strings.NewReader("units: [{name: f, colour: red}]"))
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("unknown field: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spill.yaml")
	if err := os.WriteFile(path, []byte(spillYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	units, err := Load(path, "arm64")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(units) != 2 {
		t.Errorf("got %d units", len(units))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "arm64"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}
