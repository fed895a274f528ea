package regalloc

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"fortio.org/safecast"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// Errors reported by Unit.Validate.
var (
	ErrUnsorted  = errors.New("ref positions out of location order")
	ErrBadChain  = errors.New("inconsistent ref position chain")
	ErrBadRef    = errors.New("malformed ref position")
	ErrBadArg    = errors.New("malformed argument interval")
	ErrTooLarge  = errors.New("unit too large")
	ErrNoMachine = errors.New("unit has no target machine")
)

// Unit is one allocation run's worth of input: a register table, the
// intervals and the globally ordered event stream. All cross references are
// indices into the slices owned by the unit.
type Unit struct {
	Name      string
	Machine   *target.Machine
	Intervals []Interval
	Regs      []RegRecord
	Refs      []RefPosition
	// EHBlocks holds the blocks with an exception-handling boundary.
	EHBlocks map[int]bool

	lastPhysRef []RefID
}

// NewUnit returns an empty unit over the registers of m.
func NewUnit(name string, m *target.Machine) *Unit {
	u := &Unit{
		Name:     name,
		Machine:  m,
		EHBlocks: make(map[int]bool),
	}
	if m != nil {
		u.Regs = make([]RegRecord, m.NumRegs())
		u.lastPhysRef = make([]RefID, m.NumRegs())
		for i, info := range m.Regs {
			u.Regs[i] = newRegRecord(target.Reg(i), info.Class)
			u.lastPhysRef[i] = NoRef
		}
	}
	return u
}

// AddInterval appends an interval. Only the identity and kind fields of in
// are used; allocation state starts empty.
func (u *Unit) AddInterval(in Interval) IntervalID {
	id, err := safecast.Conv[IntervalID](len(u.Intervals))
	if err != nil {
		panic(fmt.Errorf("%w: %d intervals: %w", ErrTooLarge, len(u.Intervals), err))
	}
	in.ID = id
	in.FirstRef = NoRef
	in.LastRef = NoRef
	if !in.IsArg {
		in.ArgReg = target.RegInvalid
	}
	in.resetState()
	u.Intervals = append(u.Intervals, in)
	return id
}

// NewTemp appends a plain interval of class c.
func (u *Unit) NewTemp(name string, c target.Class) IntervalID {
	return u.AddInterval(Interval{Name: name, Class: c, VarNum: -1})
}

// NewArg appends an argument interval arriving in reg.
func (u *Unit) NewArg(name string, reg target.Reg) IntervalID {
	return u.AddInterval(Interval{
		Name:   name,
		Class:  u.Machine.ClassOf(reg),
		VarNum: -1,
		IsArg:  true,
		ArgReg: reg,
	})
}

// AddRef appends an event to the global stream and links it into the chain
// of its interval, or of its register for register-directed events.
func (u *Unit) AddRef(ref RefPosition) RefID {
	id, err := safecast.Conv[RefID](len(u.Refs))
	if err != nil {
		panic(fmt.Errorf("%w: %d refs: %w", ErrTooLarge, len(u.Refs), err))
	}
	ref.ID = id
	ref.NextRef = NoRef
	ref.AssignedReg = target.RegInvalid
	if ref.Type.IsPhysRegType() {
		ref.IsPhysReg = true
		ref.Interval = NoInterval
	} else if !ref.Type.needsInterval() {
		ref.Interval = NoInterval
	}
	if !ref.IsPhysReg {
		ref.Reg = target.RegInvalid
	}
	u.Refs = append(u.Refs, ref)

	switch {
	case ref.IsPhysReg && int(ref.Reg) < len(u.Regs):
		if prev := u.lastPhysRef[ref.Reg]; prev != NoRef {
			u.Refs[prev].NextRef = id
		} else {
			u.Regs[ref.Reg].FirstRef = id
		}
		u.lastPhysRef[ref.Reg] = id
	case ref.Interval >= 0 && int(ref.Interval) < len(u.Intervals):
		in := &u.Intervals[ref.Interval]
		if in.LastRef != NoRef {
			u.Refs[in.LastRef].NextRef = id
		} else {
			in.FirstRef = id
		}
		in.LastRef = id
	}
	return id
}

// Ref returns the event with the given id.
func (u *Unit) Ref(id RefID) *RefPosition {
	return &u.Refs[id]
}

// Interval returns the interval with the given id.
func (u *Unit) Interval(id IntervalID) *Interval {
	return &u.Intervals[id]
}

// Def appends a definition of iv.
func (u *Unit) Def(loc Location, iv IntervalID) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeDef, Interval: iv})
}

// Use appends a use of iv.
func (u *Unit) Use(loc Location, iv IntervalID) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeUse, Interval: iv})
}

// LastUse appends a use of iv that ends its lifetime.
func (u *Unit) LastUse(loc Location, iv IntervalID) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeUse, Interval: iv, LastUse: true})
}

// FixedUse appends the FixedReg event for reg followed by a use of iv that
// requires reg.
func (u *Unit) FixedUse(loc Location, iv IntervalID, reg target.Reg, lastUse bool) RefID {
	u.FixedReg(loc, reg)
	return u.AddRef(RefPosition{
		Location:   loc,
		Type:       RefTypeUse,
		Interval:   iv,
		Candidates: RegSetOf(reg),
		Fixed:      true,
		LastUse:    lastUse,
	})
}

// FixedDef appends the FixedReg event for reg followed by a definition of iv
// into reg.
func (u *Unit) FixedDef(loc Location, iv IntervalID, reg target.Reg) RefID {
	u.FixedReg(loc, reg)
	return u.AddRef(RefPosition{
		Location:   loc,
		Type:       RefTypeDef,
		Interval:   iv,
		Candidates: RegSetOf(reg),
		Fixed:      true,
	})
}

// FixedReg appends a FixedReg event on reg.
func (u *Unit) FixedReg(loc Location, reg target.Reg) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeFixedReg, Reg: reg})
}

// Kill appends a Kill event on reg.
func (u *Unit) Kill(loc Location, reg target.Reg) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeKill, Reg: reg})
}

// BlockBoundary appends the boundary event that starts block.
func (u *Unit) BlockBoundary(loc Location, block int) RefID {
	return u.AddRef(RefPosition{Location: loc, Type: RefTypeBB, Block: block})
}

// MarkLastUses flags the final event of every interval as its last use when
// the builder has not flagged any.
func (u *Unit) MarkLastUses() {
	for i := range u.Intervals {
		in := &u.Intervals[i]
		if in.LastRef == NoRef {
			continue
		}
		flagged := false
		for id := in.FirstRef; id != NoRef; id = u.Refs[id].NextRef {
			flagged = flagged || u.Refs[id].LastUse
		}
		if !flagged && u.Refs[in.LastRef].Type != RefTypeDef {
			u.Refs[in.LastRef].LastUse = true
		}
	}
}

// Clone returns a deep copy of the unit, so the same input can be allocated
// more than once.
func (u *Unit) Clone() *Unit {
	return &Unit{
		Name:        u.Name,
		Machine:     u.Machine,
		Intervals:   slices.Clone(u.Intervals),
		Regs:        slices.Clone(u.Regs),
		Refs:        slices.Clone(u.Refs),
		EHBlocks:    maps.Clone(u.EHBlocks),
		lastPhysRef: slices.Clone(u.lastPhysRef),
	}
}

// Validate checks that the unit is internally consistent: the stream is
// sorted, every event is well formed and every chain follows global order.
func (u *Unit) Validate() error {
	if u.Machine == nil {
		return ErrNoMachine
	}
	if err := u.Machine.Validate(); err != nil {
		return err
	}
	if len(u.Regs) != u.Machine.NumRegs() {
		return fmt.Errorf("%w: register table has %d entries, machine has %d", ErrBadRef, len(u.Regs), u.Machine.NumRegs())
	}
	allRegs := RegSet(0)
	for r := range u.Regs {
		allRegs.Add(target.Reg(r))
	}

	for i := range u.Refs {
		ref := &u.Refs[i]
		if ref.ID != RefID(i) {
			return fmt.Errorf("%w: ref %d has id %d", ErrBadRef, i, ref.ID)
		}
		if i > 0 && ref.Location < u.Refs[i-1].Location {
			return fmt.Errorf("%w: ref %d at %s follows %s", ErrUnsorted, i, ref.Location, u.Refs[i-1].Location)
		}
		if err := u.validateRef(ref, allRegs); err != nil {
			return err
		}
	}

	argRegs := RegSet(0)
	for i := range u.Intervals {
		in := &u.Intervals[i]
		if err := u.validateChain(in); err != nil {
			return err
		}
		if !in.IsArg || in.IsStackArg {
			continue
		}
		if int(in.ArgReg) >= len(u.Regs) {
			return fmt.Errorf("%w: %s has no argument register", ErrBadArg, in)
		}
		if u.Machine.ClassOf(in.ArgReg) != in.Class {
			return fmt.Errorf("%w: %s is %s but arrives in %s", ErrBadArg, in, in.Class, u.Machine.RegName(in.ArgReg))
		}
		if !u.Machine.IsArgReg(in.ArgReg) {
			return fmt.Errorf("%w: %s arrives in %s, which carries no arguments", ErrBadArg, in, u.Machine.RegName(in.ArgReg))
		}
		if argRegs.Contains(in.ArgReg) {
			return fmt.Errorf("%w: two arguments arrive in %s", ErrBadArg, u.Machine.RegName(in.ArgReg))
		}
		argRegs.Add(in.ArgReg)
	}
	return nil
}

func (u *Unit) validateRef(ref *RefPosition, allRegs RegSet) error {
	if ref.Type == RefTypeInvalid || int(ref.Type) >= len(refTypeNames) {
		return fmt.Errorf("%w: ref %d has type %s", ErrBadRef, ref.ID, ref.Type)
	}
	if !ref.Candidates.Minus(allRegs).IsEmpty() {
		return fmt.Errorf("%w: ref %d names registers outside the machine", ErrBadRef, ref.ID)
	}
	if ref.IsPhysReg != ref.Type.IsPhysRegType() {
		return fmt.Errorf("%w: ref %d: %s events cannot be register-directed", ErrBadRef, ref.ID, ref.Type)
	}
	if ref.IsPhysReg {
		if int(ref.Reg) >= len(u.Regs) {
			return fmt.Errorf("%w: ref %d targets unknown register %d", ErrBadRef, ref.ID, ref.Reg)
		}
		return nil
	}
	if !ref.Type.needsInterval() {
		return nil
	}
	if ref.Interval < 0 || int(ref.Interval) >= len(u.Intervals) {
		return fmt.Errorf("%w: %s ref %d has no interval", ErrBadRef, ref.Type, ref.ID)
	}
	in := &u.Intervals[ref.Interval]
	if ref.Fixed {
		r, ok := ref.Candidates.Single()
		if !ok {
			return fmt.Errorf("%w: fixed ref %d must name exactly one register", ErrBadRef, ref.ID)
		}
		if u.Regs[r].Class != in.Class {
			return fmt.Errorf("%w: ref %d fixes %s value %s to %s", ErrBadRef, ref.ID, in.Class, in, u.Machine.RegName(r))
		}
	}
	return nil
}

func (u *Unit) validateChain(in *Interval) error {
	prev := NoRef
	for id := in.FirstRef; id != NoRef; id = u.Refs[id].NextRef {
		if id < 0 || int(id) >= len(u.Refs) || id <= prev {
			return fmt.Errorf("%w: %s links ref %d after %d", ErrBadChain, in, id, prev)
		}
		if u.Refs[id].Interval != in.ID {
			return fmt.Errorf("%w: ref %d in the chain of %s belongs to another interval", ErrBadChain, id, in)
		}
		prev = id
	}
	if prev != in.LastRef {
		return fmt.Errorf("%w: %s ends at ref %d, last ref is %d", ErrBadChain, in, prev, in.LastRef)
	}
	return nil
}
