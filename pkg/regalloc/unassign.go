package regalloc

import "github.com/raymyers/ralph-lsra/pkg/target"

// assignPhysReg binds in to reg at ref.
func (a *Allocator) assignPhysReg(in *Interval, reg target.Reg, ref *RefPosition) {
	rec := &a.u.Regs[reg]

	// A register still remembering in as a hint must forget it, so that at
	// most one record claims the interval.
	if old := in.AssignedReg; old.Valid() && old != reg {
		if a.u.Regs[old].AssignedInterval == in.ID {
			a.u.Regs[old].AssignedInterval = NoInterval
		}
		if a.u.Regs[old].PreviousInterval == in.ID {
			a.u.Regs[old].PreviousInterval = NoInterval
		}
	}

	if occ := rec.AssignedInterval; occ != NoInterval && occ != in.ID {
		if a.u.Intervals[occ].PhysReg == reg {
			a.fail(ref, "%s is still held by %s", a.m.RegName(reg), &a.u.Intervals[occ])
		}
		if ref.LastUse && ref.NextRef == NoRef && rec.PreviousInterval == NoInterval {
			// Borrowed for one location: give the register back afterwards.
			rec.PreviousInterval = occ
		}
	}

	rec.AssignedInterval = in.ID
	rec.SpillCost = ref.weight()
	in.PhysReg = reg
	in.AssignedReg = reg
	in.IsActive = true
	a.nextIntervalRef[reg] = a.locationOf(ref.NextRef)
}

// unassignPhysReg frees reg and spills its occupant at spillRef, which must
// be one of the occupant's events (or NoRef when the occupant has not been
// reached yet, as for an argument killed before its first event).
func (a *Allocator) unassignPhysReg(reg target.Reg, spillRef RefID) {
	rec := &a.u.Regs[reg]
	occID := rec.AssignedInterval
	if occID == NoInterval {
		return
	}
	occ := &a.u.Intervals[occID]
	var spill *RefPosition
	if spillRef != NoRef {
		spill = &a.u.Refs[spillRef]
		if spill.Interval != occID {
			a.fail(spill, "unassigning %s from %s, which holds %s", spillIntervalName(a, spill), a.m.RegName(reg), occ)
		}
	}

	a.regsToFree.Remove(reg)
	rec.SpillCost = 0
	a.nextIntervalRef[reg] = MaxLocation

	if occ.PhysReg != reg {
		// Only a hint; the value is elsewhere already.
		rec.AssignedInterval = NoInterval
		return
	}

	occ.PhysReg = target.RegInvalid
	occ.AssignedReg = reg
	rec.AssignedInterval = rec.PreviousInterval
	rec.PreviousInterval = NoInterval

	hasMore := occ.FirstRef != NoRef
	if spill != nil {
		hasMore = spill.NextRef != NoRef
	}
	if occ.IsActive && hasMore {
		if spill != nil && !spill.LastUse {
			spill.SpillAfter = true
		}
		occ.IsActive = false
		occ.IsSpilled = true
		a.stats.Spills++
		a.tr.detailf("spill %s from %s", occ, a.m.RegName(reg))
	}
}

// releaseReg takes reg away from in without spilling: the value in it is
// dead or has never been produced.
func (a *Allocator) releaseReg(in *Interval) {
	reg := in.PhysReg
	rec := &a.u.Regs[reg]
	rec.AssignedInterval = rec.PreviousInterval
	rec.PreviousInterval = NoInterval
	rec.SpillCost = 0
	a.nextIntervalRef[reg] = MaxLocation
	a.regsToFree.Remove(reg)
	in.PhysReg = target.RegInvalid
	in.AssignedReg = reg
}

// freeRegisters releases every register queued in regsToFree.
func (a *Allocator) freeRegisters() {
	if a.regsToFree.IsEmpty() {
		return
	}
	for _, reg := range a.regsToFree.Slice() {
		a.freeRegister(reg)
	}
	a.regsToFree = 0
}

// freeRegister ends the occupant's lifetime in reg. The occupant stays on
// the record as an inactive hint unless a displaced interval is restored.
func (a *Allocator) freeRegister(reg target.Reg) {
	rec := &a.u.Regs[reg]
	rec.SpillCost = 0
	a.nextIntervalRef[reg] = MaxLocation
	occID := rec.AssignedInterval
	if occID == NoInterval {
		return
	}
	occ := &a.u.Intervals[occID]
	if occ.PhysReg == reg {
		occ.IsActive = false
		occ.PhysReg = target.RegInvalid
		occ.AssignedReg = reg
		a.tr.detailf("free %s from %s", a.m.RegName(reg), occ)
	}
	if rec.PreviousInterval != NoInterval {
		rec.AssignedInterval = rec.PreviousInterval
		rec.PreviousInterval = NoInterval
	}
}

func spillIntervalName(a *Allocator, ref *RefPosition) string {
	if ref.Interval == NoInterval {
		return "<none>"
	}
	return a.u.Intervals[ref.Interval].String()
}
