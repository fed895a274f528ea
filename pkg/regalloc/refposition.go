package regalloc

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// RefType is the kind of a RefPosition.
type RefType uint8

const (
	RefTypeInvalid RefType = iota
	RefTypeDef
	RefTypeUse
	RefTypeFixedReg
	RefTypeKill
	RefTypeKillGCRefs
	RefTypeBB
	RefTypeDummyDef
	RefTypeZeroInit
	RefTypeParamDef
	RefTypeExpUse
	RefTypeUpperVectorRestore
)

var refTypeNames = [...]string{
	RefTypeInvalid:            "invalid",
	RefTypeDef:                "def",
	RefTypeUse:                "use",
	RefTypeFixedReg:           "fixedReg",
	RefTypeKill:               "kill",
	RefTypeKillGCRefs:         "killGCRefs",
	RefTypeBB:                 "bb",
	RefTypeDummyDef:           "dummyDef",
	RefTypeZeroInit:           "zeroInit",
	RefTypeParamDef:           "paramDef",
	RefTypeExpUse:             "expUse",
	RefTypeUpperVectorRestore: "upperVectorRestore",
}

func (t RefType) String() string {
	if int(t) < len(refTypeNames) {
		return refTypeNames[t]
	}
	return fmt.Sprintf("reftype(%d)", t)
}

// ParseRefType converts a name as printed by RefType.String.
func ParseRefType(s string) (RefType, error) {
	for i, name := range refTypeNames {
		if i != int(RefTypeInvalid) && strings.EqualFold(name, s) {
			return RefType(i), nil
		}
	}
	return RefTypeInvalid, fmt.Errorf("unknown ref type %q", s)
}

// IsPhysRegType reports whether events of type t target a register directly
// instead of an interval.
func (t RefType) IsPhysRegType() bool {
	return t == RefTypeFixedReg || t == RefTypeKill
}

// needsInterval reports whether events of type t must be bound to an interval.
func (t RefType) needsInterval() bool {
	switch t {
	case RefTypeDef, RefTypeUse, RefTypeDummyDef, RefTypeZeroInit, RefTypeParamDef,
		RefTypeExpUse, RefTypeUpperVectorRestore:
		return true
	}
	return false
}

// RefID indexes Unit.Refs, which is the global event order.
type RefID int32

// NoRef marks an absent RefPosition reference.
const NoRef RefID = -1

// RefPosition is one def/use/kill event at a Location.
type RefPosition struct {
	ID       RefID
	Location Location
	Type     RefType
	// Interval is NoInterval for register-directed events.
	Interval IntervalID
	// IsPhysReg marks events that target Reg directly.
	IsPhysReg bool
	Reg       target.Reg
	Block     int
	// Weight scales the cost of keeping the value out of a register at this
	// event. Zero means 1.
	Weight uint32

	// Candidates is the register requirement of the event: the registers it
	// may use (empty means any register of the class), or the registers a
	// KillGCRefs event spills.
	Candidates RegSet
	// Fixed turns Candidates into a hard requirement.
	Fixed bool

	LastUse     bool
	RegOptional bool

	// Allocation results.
	AssignedReg target.Reg
	Reload      bool
	SpillAfter  bool
	CopyReg     bool

	// NextRef links the events of the same interval, or the register-directed
	// events of the same register.
	NextRef RefID
}

// FixedReg returns the single register a fixed event requires.
func (r *RefPosition) FixedReg() (target.Reg, bool) {
	if !r.Fixed {
		return target.RegInvalid, false
	}
	return r.Candidates.Single()
}

func (r *RefPosition) weight() uint32 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}
