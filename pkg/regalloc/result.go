package regalloc

import "github.com/raymyers/ralph-lsra/pkg/target"

// InVarReg is the register a variable occupies on entry to a block, recorded
// at the block's DummyDef event.
type InVarReg struct {
	Block    int
	VarNum   int
	Interval IntervalID
	Reg      target.Reg
}

// Stats summarizes an allocation run.
type Stats struct {
	Refs        int `yaml:"refs" msgpack:"refs"`
	Spills      int `yaml:"spills" msgpack:"spills"`
	SpillAfters int `yaml:"spillAfters" msgpack:"spillAfters"`
	Reloads     int `yaml:"reloads" msgpack:"reloads"`
	Copies      int `yaml:"copies" msgpack:"copies"`
}

// Result is the allocator's output for one unit, in the form code generation
// consumes it. Register names are resolved through the unit's machine.
type Result struct {
	Unit      string           `yaml:"unit" msgpack:"unit"`
	Target    string           `yaml:"target" msgpack:"target"`
	Refs      []RefResult      `yaml:"refs" msgpack:"refs"`
	Intervals []IntervalResult `yaml:"intervals" msgpack:"intervals"`
	InVarRegs []InVarRegResult `yaml:"inVarRegs,omitempty" msgpack:"inVarRegs,omitempty"`
	Stats     Stats            `yaml:"stats" msgpack:"stats"`
}

// RefResult is the outcome of one event.
type RefResult struct {
	ID         RefID    `yaml:"id" msgpack:"id"`
	Location   Location `yaml:"loc" msgpack:"loc"`
	Type       string   `yaml:"type" msgpack:"type"`
	Interval   string   `yaml:"interval,omitempty" msgpack:"interval,omitempty"`
	Reg        string   `yaml:"reg,omitempty" msgpack:"reg,omitempty"`
	Reload     bool     `yaml:"reload,omitempty" msgpack:"reload,omitempty"`
	SpillAfter bool     `yaml:"spillAfter,omitempty" msgpack:"spillAfter,omitempty"`
	CopyReg    bool     `yaml:"copyReg,omitempty" msgpack:"copyReg,omitempty"`
}

// IntervalResult is the final state of one interval.
type IntervalResult struct {
	Name    string `yaml:"name" msgpack:"name"`
	Spilled bool   `yaml:"spilled,omitempty" msgpack:"spilled,omitempty"`
	// LastReg is the last register the interval was bound to.
	LastReg string `yaml:"lastReg,omitempty" msgpack:"lastReg,omitempty"`
}

// InVarRegResult is InVarReg with names resolved.
type InVarRegResult struct {
	Block    int    `yaml:"block" msgpack:"block"`
	VarNum   int    `yaml:"var" msgpack:"var"`
	Interval string `yaml:"interval" msgpack:"interval"`
	Reg      string `yaml:"reg" msgpack:"reg"`
}

// InVarRegs returns the incoming registers recorded during the run.
func (a *Allocator) InVarRegs() []InVarReg {
	return a.inVarRegs
}

func (a *Allocator) buildResult() *Result {
	res := &Result{
		Unit:      a.u.Name,
		Target:    a.m.Name,
		Refs:      make([]RefResult, len(a.u.Refs)),
		Intervals: make([]IntervalResult, len(a.u.Intervals)),
		Stats:     a.stats,
	}
	res.Stats.Refs = len(a.u.Refs)

	for i := range a.u.Refs {
		ref := &a.u.Refs[i]
		rr := RefResult{
			ID:         ref.ID,
			Location:   ref.Location,
			Type:       ref.Type.String(),
			Reload:     ref.Reload,
			SpillAfter: ref.SpillAfter,
			CopyReg:    ref.CopyReg,
		}
		switch {
		case ref.IsPhysReg:
			rr.Reg = a.m.RegName(ref.Reg)
		case ref.AssignedReg.Valid():
			rr.Reg = a.m.RegName(ref.AssignedReg)
		}
		if ref.Interval != NoInterval {
			rr.Interval = a.u.Intervals[ref.Interval].String()
		}
		if ref.Reload {
			res.Stats.Reloads++
		}
		if ref.SpillAfter {
			res.Stats.SpillAfters++
		}
		res.Refs[i] = rr
	}

	for i := range a.u.Intervals {
		in := &a.u.Intervals[i]
		ir := IntervalResult{Name: in.String(), Spilled: in.IsSpilled}
		if in.AssignedReg.Valid() {
			ir.LastReg = a.m.RegName(in.AssignedReg)
		}
		res.Intervals[i] = ir
	}

	for _, iv := range a.inVarRegs {
		res.InVarRegs = append(res.InVarRegs, InVarRegResult{
			Block:    iv.Block,
			VarNum:   iv.VarNum,
			Interval: a.u.Intervals[iv.Interval].String(),
			Reg:      a.m.RegName(iv.Reg),
		})
	}
	return res
}

func (a *Allocator) regNames(s RegSet) []string {
	names := make([]string, 0, s.Len())
	for _, r := range s.Slice() {
		names = append(names, a.m.RegName(r))
	}
	return names
}
