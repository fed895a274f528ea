package regalloc

import "github.com/raymyers/ralph-lsra/pkg/target"

// selectReg finds a register for in at ref. It returns a free register when
// one is allowed, preferring the interval's previous register, then the
// event's candidates, then registers no fixed event will claim soon.
// Registers claimed at this location by a FixedReg or Kill are withheld
// from events not fixed to them.
// Otherwise it evicts the occupant whose next use is farthest away, breaking
// ties by the lower spill cost. RegInvalid means the value stays in memory.
func (a *Allocator) selectReg(in *Interval, ref *RefPosition) target.Reg {
	allowed := a.classRegs[in.Class]
	if allowed.IsEmpty() {
		return target.RegInvalid
	}
	if r, ok := ref.FixedReg(); ok {
		allowed = allowed.Intersect(RegSetOf(r))
	}
	preferred := allowed
	if p := allowed.Intersect(ref.Candidates); !p.IsEmpty() {
		preferred = p
	}
	available := allowed.Minus(a.regsInUse)
	if _, ok := ref.FixedReg(); !ok {
		available = available.Minus(a.regsClaimed)
	}

	if h := in.AssignedReg; preferred.Contains(h) && available.Contains(h) && a.isFree(h) {
		return h
	}
	for _, set := range []RegSet{preferred, allowed} {
		if r := a.bestFree(set.Intersect(available), in); r.Valid() {
			return r
		}
	}

	victim := a.spillCandidate(available)
	if !victim.Valid() {
		if ref.Fixed {
			a.fail(ref, "fixed register %s is already used at this location", a.m.RegName(allowed.Slice()[0]))
		}
		return target.RegInvalid
	}
	occ := &a.u.Intervals[a.u.Regs[victim].AssignedInterval]
	a.tr.detailf("@%s evict %s from %s (next use %s)", ref.Location, occ, a.m.RegName(victim), a.nextIntervalRef[victim])
	a.unassignPhysReg(victim, occ.RecentRef)
	return victim
}

// bestFree picks a free register from set. Registers without fixed events
// come first; among the rest the one claimed latest wins, so the value is
// less likely to be pushed out before its last use.
func (a *Allocator) bestFree(set RegSet, in *Interval) target.Reg {
	best := target.RegInvalid
	lastLoc := a.locationOf(in.LastRef)
	for _, r := range set.Intersect(a.nonFixedRegs).Slice() {
		if a.isFree(r) {
			return r
		}
	}
	for _, r := range set.Intersect(a.fixedRegs).Slice() {
		if !a.isFree(r) {
			continue
		}
		if a.nextFixedRef[r] > lastLoc {
			return r
		}
		if !best.Valid() || a.nextFixedRef[r] > a.nextFixedRef[best] {
			best = r
		}
	}
	return best
}

// spillCandidate chooses the register to evict among the occupied ones.
func (a *Allocator) spillCandidate(available RegSet) target.Reg {
	victim := target.RegInvalid
	for _, r := range available.Slice() {
		if a.isFree(r) {
			continue
		}
		if !victim.Valid() {
			victim = r
			continue
		}
		next, best := a.nextIntervalRef[r], a.nextIntervalRef[victim]
		if next > best || (next == best && a.u.Regs[r].SpillCost < a.u.Regs[victim].SpillCost) {
			victim = r
		}
	}
	return victim
}

// isFree reports whether no interval currently holds r. An inactive occupant
// is only a hint and does not make the register busy.
func (a *Allocator) isFree(r target.Reg) bool {
	occ := a.u.Regs[r].AssignedInterval
	return occ == NoInterval || a.u.Intervals[occ].PhysReg != r
}
