// Package unitfile reads allocation units from YAML descriptions and writes
// allocation results as text, YAML or MessagePack.
package unitfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"fortio.org/safecast"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-lsra/pkg/regalloc"
	"github.com/raymyers/ralph-lsra/pkg/target"
)

// File is the top-level structure of a unit description.
type File struct {
	Target string     `yaml:"target,omitempty"`
	Units  []UnitSpec `yaml:"units"`
}

// UnitSpec describes one compilation unit.
type UnitSpec struct {
	Name        string         `yaml:"name"`
	Blocks      []BlockSpec    `yaml:"blocks,omitempty"`
	Intervals   []IntervalSpec `yaml:"intervals"`
	Refs        []RefSpec      `yaml:"refs"`
	AutoLastUse bool           `yaml:"autoLastUse,omitempty"`
}

// BlockSpec describes a basic block.
type BlockSpec struct {
	ID int  `yaml:"id"`
	EH bool `yaml:"eh,omitempty"`
}

// IntervalSpec describes one virtual register.
type IntervalSpec struct {
	Name             string `yaml:"name"`
	Class            string `yaml:"class,omitempty"`
	Var              *int   `yaml:"var,omitempty"`
	Arg              string `yaml:"arg,omitempty"`
	StackArg         bool   `yaml:"stackArg,omitempty"`
	WriteThru        bool   `yaml:"writeThru,omitempty"`
	UpperVector      bool   `yaml:"upperVector,omitempty"`
	PartiallySpilled bool   `yaml:"partiallySpilled,omitempty"`
	LowRefCount      bool   `yaml:"lowRefCount,omitempty"`
	OnStack          bool   `yaml:"onStack,omitempty"`
}

// RefSpec describes one event.
type RefSpec struct {
	Loc        int      `yaml:"loc"`
	Type       string   `yaml:"type"`
	Interval   string   `yaml:"interval,omitempty"`
	Reg        string   `yaml:"reg,omitempty"`
	Regs       []string `yaml:"regs,omitempty"`
	Fixed      bool     `yaml:"fixed,omitempty"`
	LastUse    bool     `yaml:"lastUse,omitempty"`
	Optional   bool     `yaml:"optional,omitempty"`
	SpillAfter bool     `yaml:"spillAfter,omitempty"`
	Block      int      `yaml:"block,omitempty"`
	Weight     uint32   `yaml:"weight,omitempty"`
}

// ErrNoUnits is returned for a description without units.
var ErrNoUnits = errors.New("no units")

// Decode reads a unit description from r.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoUnits
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(f.Units) == 0 {
		return nil, ErrNoUnits
	}
	return &f, nil
}

// Load reads and builds every unit of the description at path. The machine
// named in the file wins over defaultTarget.
func Load(path, defaultTarget string) ([]*regalloc.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	units, err := f.Build(defaultTarget)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// Build resolves names and constructs validated units.
func (f *File) Build(defaultTarget string) ([]*regalloc.Unit, error) {
	name := f.Target
	if name == "" {
		name = defaultTarget
	}
	m, err := target.Lookup(name)
	if err != nil {
		return nil, err
	}
	units := make([]*regalloc.Unit, 0, len(f.Units))
	for i := range f.Units {
		u, err := f.Units[i].build(m)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", f.Units[i].Name, err)
		}
		units = append(units, u)
	}
	return units, nil
}

func (s *UnitSpec) build(m *target.Machine) (*regalloc.Unit, error) {
	u := regalloc.NewUnit(s.Name, m)
	for _, b := range s.Blocks {
		if b.EH {
			u.EHBlocks[b.ID] = true
		}
	}

	byName := make(map[string]regalloc.IntervalID, len(s.Intervals))
	for _, is := range s.Intervals {
		if is.Name == "" {
			return nil, errors.New("interval without a name")
		}
		if _, dup := byName[is.Name]; dup {
			return nil, fmt.Errorf("duplicate interval %q", is.Name)
		}
		in, err := is.interval(m)
		if err != nil {
			return nil, fmt.Errorf("interval %q: %w", is.Name, err)
		}
		byName[is.Name] = u.AddInterval(in)
	}

	for i, rs := range s.Refs {
		ref, err := rs.ref(m, byName)
		if err != nil {
			return nil, fmt.Errorf("ref %d: %w", i, err)
		}
		u.AddRef(ref)
	}
	if s.AutoLastUse {
		u.MarkLastUses()
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (is *IntervalSpec) interval(m *target.Machine) (regalloc.Interval, error) {
	class, err := target.ParseClass(is.Class)
	if err != nil {
		return regalloc.Interval{}, err
	}
	in := regalloc.Interval{
		Name:               is.Name,
		Class:              class,
		VarNum:             -1,
		IsWriteThru:        is.WriteThru,
		IsUpperVector:      is.UpperVector,
		IsPartiallySpilled: is.PartiallySpilled,
		IsStackArg:         is.StackArg,
		LowRefCount:        is.LowRefCount,
		OnStack:            is.OnStack,
		ArgReg:             target.RegInvalid,
	}
	if is.Var != nil {
		in.VarNum = *is.Var
	}
	if is.StackArg {
		in.IsArg = true
	}
	if is.Arg == "" {
		return in, nil
	}
	in.IsArg = true
	if i, err := strconv.Atoi(is.Arg); err == nil {
		// A parameter index follows the calling convention of m.
		in.ArgReg = m.ArgLocation(i, class)
		if !in.ArgReg.Valid() {
			in.IsStackArg = true
		}
		return in, nil
	}
	r, err := m.RegByName(is.Arg)
	if err != nil {
		return regalloc.Interval{}, err
	}
	in.ArgReg = r
	if is.Class == "" {
		in.Class = m.ClassOf(r)
	}
	return in, nil
}

func (rs *RefSpec) ref(m *target.Machine, byName map[string]regalloc.IntervalID) (regalloc.RefPosition, error) {
	t, err := regalloc.ParseRefType(rs.Type)
	if err != nil {
		return regalloc.RefPosition{}, err
	}
	loc, err := safecast.Conv[regalloc.Location](rs.Loc)
	if err != nil {
		return regalloc.RefPosition{}, fmt.Errorf("location %d: %w", rs.Loc, err)
	}
	ref := regalloc.RefPosition{
		Location:    loc,
		Type:        t,
		Interval:    regalloc.NoInterval,
		Reg:         target.RegInvalid,
		Block:       rs.Block,
		Weight:      rs.Weight,
		Fixed:       rs.Fixed,
		LastUse:     rs.LastUse,
		RegOptional: rs.Optional,
		SpillAfter:  rs.SpillAfter,
	}

	for _, name := range rs.Regs {
		r, err := m.RegByName(name)
		if err != nil {
			return regalloc.RefPosition{}, err
		}
		ref.Candidates.Add(r)
	}

	if t.IsPhysRegType() {
		if rs.Reg == "" {
			return regalloc.RefPosition{}, fmt.Errorf("%s needs a register", t)
		}
		ref.Reg, err = m.RegByName(rs.Reg)
		if err != nil {
			return regalloc.RefPosition{}, err
		}
		return ref, nil
	}
	if rs.Reg != "" {
		// Shorthand for a single fixed register.
		r, err := m.RegByName(rs.Reg)
		if err != nil {
			return regalloc.RefPosition{}, err
		}
		ref.Candidates.Add(r)
		ref.Fixed = true
	}
	if rs.Interval != "" {
		id, ok := byName[rs.Interval]
		if !ok {
			return regalloc.RefPosition{}, fmt.Errorf("unknown interval %q", rs.Interval)
		}
		ref.Interval = id
	}
	return ref, nil
}
