package regalloc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AllocateAll allocates every unit, up to jobs at a time. Units share no
// state, so each run is independent. Trace output is buffered per unit and
// written in unit order once all runs finish. An invariant violation in one
// unit is returned as an error wrapping *InvariantError.
func AllocateAll(ctx context.Context, units []*Unit, opts Options, jobs int) ([]*Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]*Result, len(units))
	traces := make([]bytes.Buffer, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(units))))
	for i, u := range units {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			unitOpts := opts
			if opts.Trace != nil {
				unitOpts.Trace = &traces[i]
			}
			res, err := allocateRecover(u, unitOpts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()

	if opts.Trace != nil {
		for i := range traces {
			if _, werr := traces[i].WriteTo(opts.Trace); werr != nil && err == nil {
				err = werr
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func allocateRecover(u *Unit, opts Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			var inv *InvariantError
			if e, ok := r.(error); ok && errors.As(e, &inv) {
				err = fmt.Errorf("allocate %s: %w", u.Name, inv)
				return
			}
			panic(r)
		}
	}()
	return Allocate(u, opts), nil
}
