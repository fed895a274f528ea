package regalloc

import (
	"fmt"
	"io"
	"strings"
)

// TraceLevel controls the verbosity of the decision trace.
type TraceLevel uint8

const (
	TraceOff    TraceLevel = iota // no tracing
	TraceError                    // invariant violations only
	TracePhase                    // one line per run
	TraceDetail                   // every allocation decision
	TraceDebug                    // register table after every event
)

func (l TraceLevel) String() string {
	switch l {
	case TraceOff:
		return "off"
	case TraceError:
		return "error"
	case TracePhase:
		return "phase"
	case TraceDetail:
		return "detail"
	case TraceDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseTraceLevel converts a level name to a TraceLevel.
func ParseTraceLevel(s string) (TraceLevel, error) {
	switch strings.ToLower(s) {
	case "", "off":
		return TraceOff, nil
	case "error":
		return TraceError, nil
	case "phase":
		return TracePhase, nil
	case "detail":
		return TraceDetail, nil
	case "debug":
		return TraceDebug, nil
	}
	return TraceOff, fmt.Errorf("invalid trace level: %q (expected: off|error|phase|detail|debug)", s)
}

type tracer struct {
	w     io.Writer
	level TraceLevel
}

func newTracer(w io.Writer, level TraceLevel) tracer {
	if w == nil {
		level = TraceOff
	}
	return tracer{w: w, level: level}
}

func (t tracer) emit(level TraceLevel, format string, args ...any) {
	if t.level < level {
		return
	}
	fmt.Fprintf(t.w, "[%s] %s\n", level, fmt.Sprintf(format, args...))
}

func (t tracer) errorf(format string, args ...any)  { t.emit(TraceError, format, args...) }
func (t tracer) phasef(format string, args ...any)  { t.emit(TracePhase, format, args...) }
func (t tracer) detailf(format string, args ...any) { t.emit(TraceDetail, format, args...) }

// table dumps the occupied registers.
func (t tracer) table(a *Allocator) {
	if t.level < TraceDebug {
		return
	}
	var sb strings.Builder
	for i := range a.u.Regs {
		rec := &a.u.Regs[i]
		if rec.AssignedInterval == NoInterval {
			continue
		}
		in := &a.u.Intervals[rec.AssignedInterval]
		state := "hint"
		if in.PhysReg == rec.Reg {
			state = "live"
		}
		fmt.Fprintf(&sb, " %s=%s(%s,next %s)", a.m.RegName(rec.Reg), in, state, a.nextIntervalRef[i])
	}
	if sb.Len() == 0 {
		sb.WriteString(" (empty)")
	}
	t.emit(TraceDebug, "@%s regs:%s free-pending=%v", a.curLoc, sb.String(), a.regNames(a.regsToFree))
}
