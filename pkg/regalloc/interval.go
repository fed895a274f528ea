package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// IntervalID indexes Unit.Intervals.
type IntervalID int32

// NoInterval marks an absent interval reference.
const NoInterval IntervalID = -1

// Interval is the lifetime of one value (a virtual register).
type Interval struct {
	ID    IntervalID
	Name  string
	Class target.Class
	// VarNum is the source variable the interval belongs to, or -1. It keys
	// the per-block incoming registers recorded at DummyDef events.
	VarNum int

	// Kind flags, set by the builder of the unit.
	IsArg              bool
	IsWriteThru        bool
	IsUpperVector      bool
	IsPartiallySpilled bool
	// ArgReg is the calling-convention register of an argument interval.
	ArgReg target.Reg
	// IsStackArg marks a parameter passed on the stack.
	IsStackArg bool
	// LowRefCount marks a parameter whose weighted reference count is too
	// low to be worth a register at entry.
	LowRefCount bool
	// OnStack marks a value already materialized on the stack through a
	// bit reinterpretation.
	OnStack bool

	// Allocation state.
	IsActive    bool
	IsSpilled   bool
	PhysReg     target.Reg
	AssignedReg target.Reg

	FirstRef  RefID
	LastRef   RefID
	RecentRef RefID
}

// HasReg returns true while the interval occupies a register.
func (in *Interval) HasReg() bool {
	return in.PhysReg.Valid()
}

func (in *Interval) String() string {
	if in.Name != "" {
		return in.Name
	}
	return fmt.Sprintf("v%d", in.ID)
}

// resetState restores the allocation state to what the builder produced.
func (in *Interval) resetState() {
	in.IsActive = false
	in.IsSpilled = false
	in.PhysReg = target.RegInvalid
	in.AssignedReg = target.RegInvalid
	in.RecentRef = NoRef
}
