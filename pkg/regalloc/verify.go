package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// InvariantError reports an inconsistent register/interval state. It means a
// bug in the allocator or a malformed stream that slipped past Validate, and
// is raised with panic: continuing would produce wrong code.
type InvariantError struct {
	Unit     string
	Location Location
	Ref      RefID
	Msg      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: ref %d @%s: invariant violated: %s", e.Unit, e.Ref, e.Location, e.Msg)
}

func (a *Allocator) fail(ref *RefPosition, format string, args ...any) {
	err := &InvariantError{Unit: a.u.Name, Location: a.curLoc, Ref: NoRef, Msg: fmt.Sprintf(format, args...)}
	if ref != nil {
		err.Location = ref.Location
		err.Ref = ref.ID
	}
	a.tr.errorf("%v", err)
	panic(err)
}

// checkInvariants verifies single occupancy after ref: an interval holding a
// register is active and that register's record points back at it, and no
// interval is claimed by two records.
func (a *Allocator) checkInvariants(ref *RefPosition) {
	for i := range a.u.Intervals {
		in := &a.u.Intervals[i]
		if !in.HasReg() {
			continue
		}
		if int(in.PhysReg) >= len(a.u.Regs) {
			a.fail(ref, "%s holds unknown register %d", in, in.PhysReg)
		}
		if occ := a.u.Regs[in.PhysReg].AssignedInterval; occ != in.ID {
			a.fail(ref, "%s holds %s but the register records %s", in, a.m.RegName(in.PhysReg), a.intervalName(occ))
		}
		if !in.IsActive {
			a.fail(ref, "inactive %s still holds %s", in, a.m.RegName(in.PhysReg))
		}
	}

	claimed := make(map[IntervalID]target.Reg, len(a.u.Regs))
	for i := range a.u.Regs {
		rec := &a.u.Regs[i]
		if rec.AssignedInterval == NoInterval {
			continue
		}
		if other, ok := claimed[rec.AssignedInterval]; ok {
			a.fail(ref, "%s is claimed by %s and %s", a.intervalName(rec.AssignedInterval), a.m.RegName(other), a.m.RegName(rec.Reg))
		}
		claimed[rec.AssignedInterval] = rec.Reg
		if a.u.Intervals[rec.AssignedInterval].Class != rec.Class {
			a.fail(ref, "%s holds %s value %s", a.m.RegName(rec.Reg), a.u.Intervals[rec.AssignedInterval].Class, a.intervalName(rec.AssignedInterval))
		}
	}
}

func (a *Allocator) intervalName(id IntervalID) string {
	if id == NoInterval {
		return "nothing"
	}
	return a.u.Intervals[id].String()
}
