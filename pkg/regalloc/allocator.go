// Package regalloc performs linear-scan register allocation over a sorted
// stream of def/use/kill events.
//
// The allocator walks the stream once. At every event it decides which
// physical register holds each value, when a value is spilled, when it must
// be reloaded and when a copy to another register satisfies a fixed
// requirement. It only annotates the events; emitting the spill, reload and
// copy instructions is left to code generation.
package regalloc

import (
	"io"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

// Options controls an allocation run.
type Options struct {
	// Verify checks the register/interval invariants after every event.
	Verify bool
	// Trace receives the decision trace. Nil disables tracing.
	Trace      io.Writer
	TraceLevel TraceLevel
}

// Allocator holds the state of one allocation run over one Unit.
type Allocator struct {
	u    *Unit
	m    *target.Machine
	opts Options
	tr   tracer

	classRegs [target.NumClasses]RegSet
	// fixedRegs holds registers with at least one register-directed event.
	fixedRegs    RegSet
	nonFixedRegs RegSet
	// nextFixedRef is the location of the next register-directed event of
	// each register.
	nextFixedRef []Location
	// nextIntervalRef is the location of the next event of each register's
	// occupant.
	nextIntervalRef []Location

	// regsToFree are released at the next location change or boundary.
	regsToFree RegSet
	// regsInUse were committed at the current location and cannot be handed
	// to another value before it advances.
	regsInUse RegSet
	// regsClaimed are targeted by a FixedReg or Kill at the current location.
	regsClaimed RegSet

	curLoc  Location
	started bool

	inVarRegs []InVarReg
	stats     Stats
}

// New prepares an allocation run over u. The unit should have passed
// Validate; the walker itself only asserts ordering.
func New(u *Unit, opts Options) *Allocator {
	a := &Allocator{
		u:               u,
		m:               u.Machine,
		opts:            opts,
		tr:              newTracer(opts.Trace, opts.TraceLevel),
		nextFixedRef:    make([]Location, len(u.Regs)),
		nextIntervalRef: make([]Location, len(u.Regs)),
	}
	for c := range a.classRegs {
		a.classRegs[c] = RegSetOf(a.m.RegsOfClass(target.Class(c))...)
	}
	return a
}

// Allocate runs the allocator over u and returns the annotated result.
// Invariant violations panic with *InvariantError.
func Allocate(u *Unit, opts Options) *Result {
	return New(u, opts).Run()
}

// Run performs the single pass over the event stream.
func (a *Allocator) Run() *Result {
	a.tr.phasef("allocate %s on %s: %d intervals, %d refs", a.u.Name, a.m.Name, len(a.u.Intervals), len(a.u.Refs))

	a.seedArgs()
	a.initFixedRegs()

	for i := range a.u.Refs {
		ref := &a.u.Refs[i]
		a.processRef(ref)
		if a.opts.Verify {
			a.checkInvariants(ref)
		}
		a.tr.table(a)
	}
	a.freeRegisters()

	res := a.buildResult()
	a.tr.phasef("done %s: %d spills, %d reloads, %d copies", a.u.Name, res.Stats.Spills, res.Stats.Reloads, res.Stats.Copies)
	return res
}

// seedArgs binds every register-passed argument to its calling-convention
// register and makes it active, so the walk starts from the incoming state.
func (a *Allocator) seedArgs() {
	for i := range a.u.Intervals {
		in := &a.u.Intervals[i]
		if !in.IsArg || in.IsStackArg || !in.ArgReg.Valid() {
			continue
		}
		rec := &a.u.Regs[in.ArgReg]
		in.AssignedReg = in.ArgReg
		in.PhysReg = in.ArgReg
		rec.AssignedInterval = in.ID
		a.tr.detailf("arg %s in %s", in, a.m.RegName(in.ArgReg))
	}
	for i := range a.u.Intervals {
		if in := &a.u.Intervals[i]; in.IsArg && in.HasReg() {
			in.IsActive = true
		}
	}
}

func (a *Allocator) initFixedRegs() {
	for i := range a.u.Regs {
		reg := target.Reg(i)
		rec := &a.u.Regs[i]
		if rec.FirstRef != NoRef {
			a.nextFixedRef[reg] = a.u.Refs[rec.FirstRef].Location
			a.fixedRegs.Add(reg)
		} else {
			a.nextFixedRef[reg] = MaxLocation
			a.nonFixedRegs.Add(reg)
		}

		a.nextIntervalRef[reg] = MaxLocation
		if rec.AssignedInterval != NoInterval {
			// Only incoming argument registers are occupied before the walk.
			in := &a.u.Intervals[rec.AssignedInterval]
			a.nextIntervalRef[reg] = a.locationOf(in.FirstRef)
		}
	}
}

func (a *Allocator) processRef(ref *RefPosition) {
	if a.started && ref.Location < a.curLoc {
		a.fail(ref, "location %s follows %s", ref.Location, a.curLoc)
	}
	if !a.started || ref.Location > a.curLoc {
		a.freeRegisters()
		a.regsInUse = 0
		a.regsClaimed = 0
	}
	a.started = true
	a.curLoc = ref.Location

	switch ref.Type {
	case RefTypeBB:
		a.flushAtBoundary()
		a.tr.detailf("@%s bb %d", ref.Location, ref.Block)
		return
	case RefTypeDummyDef:
		a.flushAtBoundary()
	case RefTypeKillGCRefs:
		a.killGCRefs(ref)
		return
	}

	if ref.IsPhysReg {
		a.processPhysRegRef(ref)
		return
	}

	switch ref.Type {
	case RefTypeExpUse:
		return
	case RefTypeDef, RefTypeUse, RefTypeDummyDef, RefTypeZeroInit, RefTypeParamDef, RefTypeUpperVectorRestore:
		a.allocateValue(ref)
	default:
		a.fail(ref, "unexpected %s event", ref.Type)
	}
}

func (a *Allocator) flushAtBoundary() {
	a.freeRegisters()
	a.regsInUse = 0
	a.regsClaimed = 0
}

func (a *Allocator) processPhysRegRef(ref *RefPosition) {
	reg := ref.Reg
	rec := &a.u.Regs[reg]
	a.nextFixedRef[reg] = a.locationOf(ref.NextRef)
	a.regsClaimed.Add(reg)

	switch ref.Type {
	case RefTypeFixedReg:
		// An inactive occupant is only a preference; drop it before the
		// register is clobbered.
		if rec.AssignedInterval != NoInterval && !a.u.Intervals[rec.AssignedInterval].IsActive {
			a.tr.detailf("@%s fixed %s drops hint %s", ref.Location, a.m.RegName(reg), &a.u.Intervals[rec.AssignedInterval])
			rec.AssignedInterval = NoInterval
			rec.SpillCost = 0
		}
	case RefTypeKill:
		if rec.AssignedInterval != NoInterval {
			occ := &a.u.Intervals[rec.AssignedInterval]
			a.tr.detailf("@%s kill %s holding %s", ref.Location, a.m.RegName(reg), occ)
			a.unassignPhysReg(reg, occ.RecentRef)
		}
	default:
		a.fail(ref, "%s event cannot target a register", ref.Type)
	}
}

func (a *Allocator) killGCRefs(ref *RefPosition) {
	for _, reg := range ref.Candidates.Slice() {
		rec := &a.u.Regs[reg]
		if rec.AssignedInterval == NoInterval {
			continue
		}
		occ := &a.u.Intervals[rec.AssignedInterval]
		a.tr.detailf("@%s killGCRefs %s holding %s", ref.Location, a.m.RegName(reg), occ)
		a.unassignPhysReg(reg, occ.RecentRef)
	}
}

// locationOf returns the location of id, or MaxLocation for NoRef.
func (a *Allocator) locationOf(id RefID) Location {
	if id == NoRef {
		return MaxLocation
	}
	return a.u.Refs[id].Location
}
