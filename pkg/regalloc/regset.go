package regalloc

import (
	"math/bits"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// RegSet is a set of physical registers.
type RegSet uint64

// RegSetOf builds a set from the given registers.
func RegSetOf(regs ...target.Reg) RegSet {
	var s RegSet
	for _, r := range regs {
		s.Add(r)
	}
	return s
}

// Add adds r to the set. Invalid registers are ignored.
func (s *RegSet) Add(r target.Reg) {
	if r.Valid() {
		*s |= 1 << r
	}
}

// Remove removes r from the set.
func (s *RegSet) Remove(r target.Reg) {
	if r.Valid() {
		*s &^= 1 << r
	}
}

// Contains returns true if r is in the set.
func (s RegSet) Contains(r target.Reg) bool {
	return r.Valid() && s&(1<<r) != 0
}

// Union returns s ∪ other.
func (s RegSet) Union(other RegSet) RegSet {
	return s | other
}

// Intersect returns s ∩ other.
func (s RegSet) Intersect(other RegSet) RegSet {
	return s & other
}

// Minus returns s - other.
func (s RegSet) Minus(other RegSet) RegSet {
	return s &^ other
}

// Equal returns true if both sets hold the same registers.
func (s RegSet) Equal(other RegSet) bool {
	return s == other
}

// IsEmpty returns true for the empty set.
func (s RegSet) IsEmpty() bool {
	return s == 0
}

// Len returns the number of registers in the set.
func (s RegSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Single returns the only register of a one-element set.
func (s RegSet) Single() (target.Reg, bool) {
	if s.Len() != 1 {
		return target.RegInvalid, false
	}
	return target.Reg(bits.TrailingZeros64(uint64(s))), true
}

// Slice returns the registers in ascending order.
func (s RegSet) Slice() []target.Reg {
	result := make([]target.Reg, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		result = append(result, target.Reg(bits.TrailingZeros64(v)))
	}
	return result
}
