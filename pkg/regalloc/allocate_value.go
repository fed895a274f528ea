package regalloc

import "github.com/raymyers/ralph-lsra/pkg/target"

// valueState is threaded through the steps of allocateValue.
type valueState struct {
	ref            *RefPosition
	in             *Interval
	shouldAllocate bool
	assigned       target.Reg
	// done ends processing of the event after the current step.
	done bool
}

// allocateValue decides the register of an interval-bound event.
func (a *Allocator) allocateValue(ref *RefPosition) {
	in := &a.u.Intervals[ref.Interval]
	in.RecentRef = ref.ID
	st := valueState{
		ref:            ref,
		in:             in,
		shouldAllocate: true,
		assigned:       in.PhysReg,
	}

	steps := []func(*valueState){
		a.decideAllocation,
		a.detectReload,
		a.activateOnDef,
		a.checkArgLifetime,
		a.resolveHeldReg,
		a.allocateFresh,
		a.commit,
	}
	for _, step := range steps {
		step(&st)
		if st.done {
			return
		}
	}
}

// decideAllocation suppresses allocation for parameters and zero-inits that
// live on the stack, and for partially spilled upper-vector restores.
func (a *Allocator) decideAllocation(st *valueState) {
	ref, in := st.ref, st.in
	switch ref.Type {
	case RefTypeParamDef, RefTypeZeroInit:
		if a.u.EHBlocks[ref.Block] {
			st.shouldAllocate = false
		}
		if ref.Type == RefTypeParamDef && (in.IsStackArg || (in.LowRefCount && ref.LastUse)) {
			st.shouldAllocate = false
		}
		if in.OnStack {
			st.shouldAllocate = false
		}
		if ref.Type == RefTypeZeroInit && in.IsWriteThru {
			st.shouldAllocate = false
		}
	case RefTypeUpperVectorRestore:
		if in.IsUpperVector && in.IsPartiallySpilled {
			st.shouldAllocate = false
		}
	}
	if st.shouldAllocate {
		return
	}

	a.tr.detailf("@%s %s %s stays in memory", ref.Location, ref.Type, in)
	if st.assigned.Valid() {
		a.unassignPhysReg(st.assigned, ref.ID)
	}
	st.done = true
}

// detectReload marks uses of values that are not in a register.
func (a *Allocator) detectReload(st *valueState) {
	if st.ref.Type == RefTypeUse && !st.assigned.Valid() {
		st.ref.Reload = true
	}
}

// activateOnDef makes a redefinition live again in the register it holds.
func (a *Allocator) activateOnDef(st *valueState) {
	if st.assigned.Valid() && !st.in.IsActive && st.ref.Type == RefTypeDef {
		st.in.IsActive = true
	}
}

// checkArgLifetime runs at the first event of an argument that arrived in a
// register. The argument keeps that register only if no register-directed
// event claims it before the argument's next event, and either the register
// stays unclaimed for the whole lifetime or it matches this event's
// preference.
func (a *Allocator) checkArgLifetime(st *valueState) {
	ref, in := st.ref, st.in
	if !st.assigned.Valid() || ref.ID != in.FirstRef {
		return
	}
	nextFixed := a.nextFixedRef[st.assigned]
	if nextFixed > a.locationOf(in.LastRef) {
		return
	}
	if nextFixed <= a.locationOf(ref.NextRef) || !matchesPreference(st.assigned, ref) {
		a.tr.detailf("@%s arg %s gives up %s (claimed at %s)", ref.Location, in, a.m.RegName(st.assigned), nextFixed)
		a.releaseReg(in)
		// The register is claimed soon; do not keep preferring it.
		in.AssignedReg = target.RegInvalid
		st.assigned = target.RegInvalid
		if ref.Type == RefTypeUse {
			// The argument is read from its incoming stack slot here.
			in.IsSpilled = true
			ref.Reload = true
		}
	}
}

// resolveHeldReg reconciles a register the interval already holds with the
// requirement of this event. A register targeted by a FixedReg or Kill at
// this location is off limits unless this event is the one fixed to it.
func (a *Allocator) resolveHeldReg(st *valueState) {
	ref, in := st.ref, st.in
	if !st.assigned.Valid() {
		return
	}
	claimed := a.claimedByOther(st.assigned, ref)
	if matchesPreference(st.assigned, ref) && !claimed {
		return
	}
	if ref.Type == RefTypeDef {
		// The old value dies here, so the definition can go anywhere.
		a.tr.detailf("@%s def %s leaves %s", ref.Location, in, a.m.RegName(st.assigned))
		a.releaseReg(in)
		if claimed {
			in.AssignedReg = target.RegInvalid
		}
		st.assigned = target.RegInvalid
		return
	}
	if !ref.Fixed && !claimed {
		// A soft preference is not worth a copy.
		return
	}
	a.assignCopyReg(st, claimed)
	st.done = true
}

// claimedByOther reports whether reg is targeted by a register-directed event
// at the current location that ref does not own.
func (a *Allocator) claimedByOther(reg target.Reg, ref *RefPosition) bool {
	if !a.regsClaimed.Contains(reg) {
		return false
	}
	r, ok := ref.FixedReg()
	return !ok || r != reg
}

// allocateFresh obtains a register for an interval that holds none.
func (a *Allocator) allocateFresh(st *valueState) {
	ref, in := st.ref, st.in
	if st.assigned.Valid() {
		return
	}
	if ref.RegOptional && a.skipOptional(ref, in) {
		st.shouldAllocate = false
	}
	if st.shouldAllocate {
		st.assigned = a.selectReg(in, ref)
	}

	if !st.assigned.Valid() {
		in.IsSpilled = true
		a.tr.detailf("@%s %s %s in memory", ref.Location, ref.Type, in)
		return
	}
	if ref.Type == RefTypeDummyDef {
		a.inVarRegs = append(a.inVarRegs, InVarReg{
			Block:    ref.Block,
			VarNum:   in.VarNum,
			Interval: in.ID,
			Reg:      st.assigned,
		})
	}
}

// skipOptional reports whether a register-optional event is better served
// from memory.
func (a *Allocator) skipOptional(ref *RefPosition, in *Interval) bool {
	switch {
	case ref.LastUse && ref.Reload:
		return true
	case in.IsWriteThru && ref.NextRef != NoRef && a.u.Refs[ref.NextRef].Block != ref.Block:
		return true
	case ref.Type == RefTypeUpperVectorRestore && in.IsSpilled:
		return true
	}
	return false
}

// commit records the register on the event and the interval, and queues it
// for release when the value is not needed past this event.
func (a *Allocator) commit(st *valueState) {
	ref, in := st.ref, st.in
	if !st.assigned.Valid() {
		return
	}
	reg := st.assigned
	ref.AssignedReg = reg
	a.assignPhysReg(in, reg, ref)
	a.regsInUse.Add(reg)
	a.tr.detailf("@%s %s %s -> %s%s", ref.Location, ref.Type, in, a.m.RegName(reg), refFlags(ref))

	release := false
	if in.IsWriteThru && !ref.LastUse && ref.SpillAfter {
		release = true
	}
	if ref.LastUse && ref.NextRef == NoRef && ref.Type != RefTypeExpUse {
		release = true
	}
	if release {
		a.regsToFree.Add(reg)
	}
}

// assignCopyReg gives a non-defining event a second register because the
// one the interval holds violates the event's fixed requirement or is
// claimed at this location. The interval stays in its home register; a
// claimed home stays available to the claimant.
func (a *Allocator) assignCopyReg(st *valueState, claimed bool) {
	ref, in := st.ref, st.in
	home := st.assigned
	homeInUse := a.regsInUse.Contains(home)
	a.regsInUse.Add(home)

	copyReg := a.selectReg(in, ref)
	if !copyReg.Valid() {
		a.fail(ref, "no copy register for %s", in)
	}
	if claimed && !homeInUse {
		a.regsInUse.Remove(home)
	}
	ref.AssignedReg = copyReg
	ref.CopyReg = true
	a.regsInUse.Add(copyReg)
	a.regsToFree.Add(copyReg)
	a.stats.Copies++
	a.tr.detailf("@%s copy %s %s -> %s", ref.Location, in, a.m.RegName(home), a.m.RegName(copyReg))

	if ref.LastUse && ref.NextRef == NoRef {
		a.regsToFree.Add(home)
	} else {
		a.nextIntervalRef[home] = a.locationOf(ref.NextRef)
	}
}

func matchesPreference(reg target.Reg, ref *RefPosition) bool {
	return ref.Candidates.IsEmpty() || ref.Candidates.Contains(reg)
}

func refFlags(ref *RefPosition) string {
	s := ""
	if ref.Reload {
		s += " reload"
	}
	if ref.SpillAfter {
		s += " spillAfter"
	}
	if ref.LastUse {
		s += " last"
	}
	return s
}
