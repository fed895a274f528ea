package regalloc

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-lsra/pkg/target"
)

func TestUnitValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Unit
		want  error
	}{
		{
			name: "valid",
			build: func() *Unit {
				u := NewUnit("ok", target.Tiny2)
				x := u.NewTemp("x", target.ClassInt)
				u.Def(0, x)
				u.FixedUse(2, x, 1, true)
				return u
			},
		},
		{
			name:  "no machine",
			build: func() *Unit { return NewUnit("nil", nil) },
			want:  ErrNoMachine,
		},
		{
			name: "unsorted",
			build: func() *Unit {
				u := NewUnit("unsorted", target.Tiny2)
				x := u.NewTemp("x", target.ClassInt)
				u.Def(4, x)
				u.Use(2, x)
				return u
			},
			want: ErrUnsorted,
		},
		{
			name: "fixed ref with two registers",
			build: func() *Unit {
				u := NewUnit("fixed2", target.Tiny2)
				x := u.NewTemp("x", target.ClassInt)
				u.AddRef(RefPosition{Location: 0, Type: RefTypeDef, Interval: x, Candidates: RegSetOf(0, 1), Fixed: true})
				return u
			},
			want: ErrBadRef,
		},
		{
			name: "fixed ref of the wrong class",
			build: func() *Unit {
				u := NewUnit("class", target.ARM64)
				f := u.NewTemp("f", target.ClassFloat)
				u.AddRef(RefPosition{Location: 0, Type: RefTypeDef, Interval: f, Candidates: RegSetOf(0), Fixed: true})
				return u
			},
			want: ErrBadRef,
		},
		{
			name: "candidate outside the machine",
			build: func() *Unit {
				u := NewUnit("outside", target.Tiny2)
				x := u.NewTemp("x", target.ClassInt)
				u.AddRef(RefPosition{Location: 0, Type: RefTypeDef, Interval: x, Candidates: RegSetOf(5)})
				return u
			},
			want: ErrBadRef,
		},
		{
			name: "use without interval",
			build: func() *Unit {
				u := NewUnit("orphan", target.Tiny2)
				u.AddRef(RefPosition{Location: 0, Type: RefTypeUse, Interval: NoInterval})
				return u
			},
			want: ErrBadRef,
		},
		{
			name: "broken chain",
			build: func() *Unit {
				u := NewUnit("chain", target.Tiny2)
				x := u.NewTemp("x", target.ClassInt)
				u.Def(0, x)
				u.LastUse(2, x)
				u.Refs[0].NextRef = 7
				return u
			},
			want: ErrBadChain,
		},
		{
			name: "two arguments in one register",
			build: func() *Unit {
				u := NewUnit("dupargs", target.Tiny2)
				u.NewArg("a", 0)
				u.NewArg("b", 0)
				return u
			},
			want: ErrBadArg,
		},
		{
			name: "argument register of the wrong class",
			build: func() *Unit {
				u := NewUnit("argclass", target.ARM64)
				u.AddInterval(Interval{Name: "f", Class: target.ClassFloat, IsArg: true, ArgReg: 0})
				return u
			},
			want: ErrBadArg,
		},
		{
			name: "argument in a callee-saved register",
			build: func() *Unit {
				u := NewUnit("argsaved", target.ARM64)
				x20, err := target.ARM64.RegByName("X20")
				if err != nil {
					panic(err)
				}
				u.NewArg("p", x20)
				return u
			},
			want: ErrBadArg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddRefLinksChains(t *testing.T) {
	u := NewUnit("chains", target.Tiny2)
	x := u.NewTemp("x", target.ClassInt)
	def := u.Def(0, x)
	k1 := u.Kill(1, 1)
	use := u.Use(2, x)
	k2 := u.Kill(3, 1)
	last := u.LastUse(4, x)

	in := u.Interval(x)
	if in.FirstRef != def || in.LastRef != last {
		t.Errorf("interval chain %d..%d, want %d..%d", in.FirstRef, in.LastRef, def, last)
	}
	if u.Ref(def).NextRef != use || u.Ref(use).NextRef != last || u.Ref(last).NextRef != NoRef {
		t.Error("interval refs are not linked in order")
	}
	if u.Regs[1].FirstRef != k1 || u.Ref(k1).NextRef != k2 || u.Ref(k2).NextRef != NoRef {
		t.Error("register refs are not linked in order")
	}
	if u.Regs[0].FirstRef != NoRef {
		t.Error("R0 has no register-directed events")
	}
	if !u.Ref(k1).IsPhysReg || u.Ref(k1).Interval != NoInterval {
		t.Error("kill must be register-directed")
	}
}

func TestMarkLastUses(t *testing.T) {
	u := NewUnit("last", target.Tiny2)
	x := u.NewTemp("x", target.ClassInt)
	y := u.NewTemp("y", target.ClassInt)
	z := u.NewTemp("z", target.ClassInt)
	u.Def(0, x)
	xUse := u.Use(2, x)
	yDef := u.Def(2, y)
	u.Def(4, z)
	zFirst := u.LastUse(6, z)
	zSecond := u.Use(8, z)

	u.MarkLastUses()

	if !u.Ref(xUse).LastUse {
		t.Error("x's final use should be marked")
	}
	if u.Ref(yDef).LastUse {
		t.Error("a definition is never a last use")
	}
	if !u.Ref(zFirst).LastUse || u.Ref(zSecond).LastUse {
		t.Error("intervals with flagged last uses are left alone")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	u := NewUnit("clone", target.Tiny2)
	x := u.NewTemp("x", target.ClassInt)
	def := u.Def(0, x)
	u.LastUse(2, x)
	u.EHBlocks[3] = true

	c := u.Clone()
	Allocate(u, Options{})

	if c.Ref(def).AssignedReg.Valid() {
		t.Error("allocating the original changed the clone")
	}
	if c.Interval(x).IsActive || c.Interval(x).AssignedReg.Valid() {
		t.Error("clone interval state changed")
	}
	c.EHBlocks[4] = true
	if u.EHBlocks[4] {
		t.Error("clone shares its block map")
	}
}
