package regalloc

import "github.com/raymyers/ralph-lsra/pkg/target"

// RegRecord is the allocation state of one physical register.
type RegRecord struct {
	Reg   target.Reg
	Class target.Class

	// AssignedInterval is the interval occupying the register. An inactive
	// occupant is only a hint: the register is free, but the interval still
	// prefers it.
	AssignedInterval IntervalID
	// PreviousInterval is an occupant displaced by a single-location value,
	// restored when that value's register is freed.
	PreviousInterval IntervalID
	// FirstRef is the earliest register-directed event on this register.
	FirstRef RefID
	// SpillCost is the cost of evicting the current occupant.
	SpillCost uint32
}

func newRegRecord(r target.Reg, c target.Class) RegRecord {
	return RegRecord{
		Reg:              r,
		Class:            c,
		AssignedInterval: NoInterval,
		PreviousInterval: NoInterval,
		FirstRef:         NoRef,
	}
}
