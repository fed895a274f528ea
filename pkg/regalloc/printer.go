package regalloc

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes allocation results in a readable listing, one event per
// line.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new result printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintResults prints several results separated by blank lines
func (p *Printer) PrintResults(results []*Result) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintResult(res)
	}
}

// PrintResult prints the annotated stream of one unit
func (p *Printer) PrintResult(res *Result) {
	fmt.Fprintf(p.w, "%s() on %s {\n", res.Unit, res.Target)
	for _, ref := range res.Refs {
		p.printRef(ref)
	}

	var spilled []string
	for _, in := range res.Intervals {
		if in.Spilled {
			spilled = append(spilled, in.Name)
		}
	}
	if len(spilled) > 0 {
		fmt.Fprintf(p.w, "  ; spilled: %s\n", strings.Join(spilled, ", "))
	}
	for _, iv := range res.InVarRegs {
		fmt.Fprintf(p.w, "  ; block %d: %s in %s\n", iv.Block, iv.Interval, iv.Reg)
	}
	fmt.Fprintf(p.w, "  ; %d refs, %d spills, %d reloads, %d copies\n",
		res.Stats.Refs, res.Stats.Spills, res.Stats.Reloads, res.Stats.Copies)
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printRef(ref RefResult) {
	if ref.Type == RefTypeBB.String() {
		fmt.Fprintf(p.w, "  @%-4d bb\n", ref.Location)
		return
	}
	fmt.Fprintf(p.w, "  @%-4d %-18s", ref.Location, ref.Type)
	if ref.Interval != "" {
		fmt.Fprintf(p.w, " %-8s", ref.Interval)
	}
	reg := ref.Reg
	if reg == "" {
		reg = "mem"
	}
	fmt.Fprintf(p.w, " %s", reg)

	var flags []string
	if ref.Reload {
		flags = append(flags, "reload")
	}
	if ref.SpillAfter {
		flags = append(flags, "spillAfter")
	}
	if ref.CopyReg {
		flags = append(flags, "copy")
	}
	if len(flags) > 0 {
		fmt.Fprintf(p.w, " [%s]", strings.Join(flags, " "))
	}
	fmt.Fprintln(p.w)
}
