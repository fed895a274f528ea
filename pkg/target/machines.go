package target

import "fmt"

// ARM64 follows AAPCS64: X0-X7 and D0-D7 carry arguments. X16-X18 and
// X29-X31 are reserved and not allocatable.
var ARM64 = func() *Machine {
	m := &Machine{Name: "arm64"}
	for i := 0; i <= 15; i++ {
		m.Regs = append(m.Regs, RegInfo{Name: fmt.Sprintf("X%d", i), Class: ClassInt})
	}
	for i := 19; i <= 28; i++ {
		m.Regs = append(m.Regs, RegInfo{Name: fmt.Sprintf("X%d", i), Class: ClassInt})
	}
	firstFloat := len(m.Regs)
	for i := 0; i <= 15; i++ {
		m.Regs = append(m.Regs, RegInfo{Name: fmt.Sprintf("D%d", i), Class: ClassFloat})
	}
	for i := 0; i < 8; i++ {
		m.ArgRegs[ClassInt] = append(m.ArgRegs[ClassInt], Reg(i))
		m.ArgRegs[ClassFloat] = append(m.ArgRegs[ClassFloat], Reg(firstFloat+i))
	}
	return m
}()

// X64 follows the System V AMD64 ABI. RSP and RBP are not allocatable.
var X64 = func() *Machine {
	m := &Machine{Name: "x64"}
	ints := []string{"RAX", "RCX", "RDX", "RBX", "RSI", "RDI", "R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}
	for _, name := range ints {
		m.Regs = append(m.Regs, RegInfo{Name: name, Class: ClassInt})
	}
	firstFloat := len(m.Regs)
	for i := 0; i < 16; i++ {
		m.Regs = append(m.Regs, RegInfo{Name: fmt.Sprintf("XMM%d", i), Class: ClassFloat})
	}
	// RDI, RSI, RDX, RCX, R8, R9
	m.ArgRegs[ClassInt] = []Reg{5, 4, 2, 1, 6, 7}
	for i := 0; i < 8; i++ {
		m.ArgRegs[ClassFloat] = append(m.ArgRegs[ClassFloat], Reg(firstFloat+i))
	}
	return m
}()

// Tiny2 has two integer registers, R0 and R1, both argument registers.
// Small enough to force spills in examples and tests.
var Tiny2 = &Machine{
	Name: "tiny2",
	Regs: []RegInfo{
		{Name: "R0", Class: ClassInt},
		{Name: "R1", Class: ClassInt},
	},
	ArgRegs: [NumClasses][]Reg{ClassInt: {0, 1}},
}

func init() {
	Register(ARM64)
	Register(X64)
	Register(Tiny2)
}
