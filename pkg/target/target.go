// Package target describes the physical register inventory of a machine:
// register identities, register classes and the calling-convention argument
// registers. The allocator only needs this boundary view of a machine.
package target

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reg identifies a physical register. It is an index into Machine.Regs.
type Reg uint8

// RegInvalid marks "no register".
const RegInvalid Reg = 0xFF

// MaxRegs is the largest register file a Machine may describe.
const MaxRegs = 64

// Valid reports whether r names a register.
func (r Reg) Valid() bool {
	return r != RegInvalid
}

// Class is a register class. Values only ever live in registers of their class.
type Class uint8

const (
	ClassInt Class = iota
	ClassFloat
	NumClasses
)

func (c Class) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	default:
		return fmt.Sprintf("class(%d)", c)
	}
}

// ParseClass converts a class name ("int", "float") to a Class.
// The empty string is ClassInt.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(s) {
	case "", "int", "integer":
		return ClassInt, nil
	case "float", "fp", "vector":
		return ClassFloat, nil
	}
	return 0, fmt.Errorf("unknown register class %q", s)
}

// RegInfo is the static description of one register.
type RegInfo struct {
	Name  string
	Class Class
}

// Machine is a register inventory.
type Machine struct {
	Name string
	// Regs is indexed by Reg.
	Regs []RegInfo
	// ArgRegs lists the argument registers of each class in parameter order.
	ArgRegs [NumClasses][]Reg
}

// ErrUnknownTarget is returned by Lookup for an unregistered machine name.
var ErrUnknownTarget = errors.New("unknown target")

// ErrUnknownRegister is returned by RegByName for a name the machine does not have.
var ErrUnknownRegister = errors.New("unknown register")

// NumRegs returns the size of the register file.
func (m *Machine) NumRegs() int {
	return len(m.Regs)
}

// RegName returns the name of r for printing.
func (m *Machine) RegName(r Reg) string {
	if !r.Valid() {
		return "none"
	}
	if int(r) >= len(m.Regs) {
		return fmt.Sprintf("r%d?", r)
	}
	return m.Regs[r].Name
}

// RegByName resolves a register name (case-insensitive).
func (m *Machine) RegByName(name string) (Reg, error) {
	for i, info := range m.Regs {
		if strings.EqualFold(info.Name, name) {
			return Reg(i), nil
		}
	}
	return RegInvalid, fmt.Errorf("%w %q on %s", ErrUnknownRegister, name, m.Name)
}

// ClassOf returns the class of r.
func (m *Machine) ClassOf(r Reg) Class {
	return m.Regs[r].Class
}

// RegsOfClass returns every register of class c in ascending order.
func (m *Machine) RegsOfClass(c Class) []Reg {
	var regs []Reg
	for i, info := range m.Regs {
		if info.Class == c {
			regs = append(regs, Reg(i))
		}
	}
	return regs
}

// ArgLocation returns the register carrying parameter i of class c, or
// RegInvalid when that parameter is passed on the stack.
func (m *Machine) ArgLocation(i int, c Class) Reg {
	args := m.ArgRegs[c]
	if i < 0 || i >= len(args) {
		return RegInvalid
	}
	return args[i]
}

// IsArgReg reports whether r carries an incoming parameter.
func (m *Machine) IsArgReg(r Reg) bool {
	for _, args := range m.ArgRegs {
		for _, a := range args {
			if a == r {
				return true
			}
		}
	}
	return false
}

// Validate checks the inventory is usable by the allocator.
func (m *Machine) Validate() error {
	if len(m.Regs) == 0 {
		return fmt.Errorf("target %s: no registers", m.Name)
	}
	if len(m.Regs) > MaxRegs {
		return fmt.Errorf("target %s: %d registers exceeds limit of %d", m.Name, len(m.Regs), MaxRegs)
	}
	seen := make(map[string]bool, len(m.Regs))
	for _, info := range m.Regs {
		key := strings.ToLower(info.Name)
		if seen[key] {
			return fmt.Errorf("target %s: duplicate register %s", m.Name, info.Name)
		}
		seen[key] = true
		if info.Class >= NumClasses {
			return fmt.Errorf("target %s: register %s has invalid class", m.Name, info.Name)
		}
	}
	for c, args := range m.ArgRegs {
		for _, a := range args {
			if int(a) >= len(m.Regs) || m.Regs[a].Class != Class(c) {
				return fmt.Errorf("target %s: bad %s argument register %d", m.Name, Class(c), a)
			}
		}
	}
	return nil
}

var machines = map[string]*Machine{}

// Register adds m to the set of machines returned by Lookup.
func Register(m *Machine) {
	machines[strings.ToLower(m.Name)] = m
}

// Lookup returns the machine registered under name.
func Lookup(name string) (*Machine, error) {
	m, ok := machines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownTarget, name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names returns the registered machine names, sorted.
func Names() []string {
	names := make([]string, 0, len(machines))
	for name := range machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
