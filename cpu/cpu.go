// Package cpu implements the single-step interpreter described in
// spec.md §4.4: given one organism, the soup, and a PRNG, it executes
// the instruction at the organism's ip and advances state accordingly.
//
// The big switch-over-opcode shape, with panics never expected to escape
// a single Step call, follows db47h/ngaro's vm.Instance.Run (vm/core.go);
// unlike ngaro's Run loop (which runs to completion), cpu.Step executes
// exactly one instruction so the scheduler can enforce time slices.
package cpu

import (
	"math/rand"

	"github.com/maccam912/tierra-rs/isa"
	"github.com/maccam912/tierra-rs/organism"
	"github.com/maccam912/tierra-rs/soup"
	"github.com/maccam912/tierra-rs/tlog"
)

// Logger traces instruction execution. Defaults to a no-op.
var Logger = tlog.Null()

// MaxTemplateLen bounds how many contiguous Nop cells are read as one
// template, preventing a pathological all-Nop genome from making a
// single Step scan the entire soup.
const MaxTemplateLen = 10

// Config holds the tunables cpu.Step needs that are not organism- or
// soup-local state: the template search radius, the copy-mutation rate,
// and the genome-size bounds MallocA enforces (spec.md §4.4).
type Config struct {
	SearchRadius     int     // R in spec.md §4.1, default 200
	CopyMutationRate float64 // default 2.5e-4
	MinGenome        int     // default 12
	MaxGenomeCap     int     // absolute cap applied to 2x current size, e.g. N/4
}

// DefaultConfig returns the defaults named in spec.md §4.4.
func DefaultConfig(soupSize int) Config {
	return Config{
		SearchRadius:     200,
		CopyMutationRate: 2.5e-4,
		MinGenome:        12,
		MaxGenomeCap:     soupSize / 4,
	}
}

// PendingLookup lets cpu.Step consult other live organisms' pending-child
// reservations, so MovIAB can enforce the one write restriction spec.md
// §4.4 names: writes into another organism's pending_child region fault
// instead of landing.
type PendingLookup interface {
	PendingRegion(ownerID int64) (addr, size int, ok bool)
}

// Result reports the externally-visible effect of one Step call beyond
// the organism's own register/stack mutation: a completed Divide. The
// scheduler/simulator (not cpu) owns organism-id assignment and queue
// registration, so Step only reports the committed region; it is the
// caller's job to mint the child Organism and reassign soup ownership.
type Result struct {
	Divided   bool
	ChildAddr int
	ChildSize int

	// Faulted and CopyMutated report observable events of this one Step,
	// letting the scheduler drive statistics.Counter updates without
	// diffing organism state before and after the call itself.
	Faulted     bool
	CopyMutated bool
}

// Step executes the instruction at o.IP against soup s, using rng for
// copy-mutation draws, and advances o.IP. It never
// kills the organism directly — that is the reaper's job — it only ever
// increments o.Errors.
func Step(o *organism.Organism, s *soup.Soup, rng *rand.Rand, lookup PendingLookup, cfg Config) Result {
	n := s.Len()
	op := s.Read(o.IP)
	Logger.Printf("organism %d: ip=%d op=%s\n", o.ID, o.IP, op)

	mod := func(v int) int {
		v %= n
		if v < 0 {
			v += n
		}
		return v
	}
	modU := func(v uint) uint {
		return uint(mod(int(v)))
	}

	advance := 1
	var result Result
	errorsBefore := o.Errors

	switch op {
	case isa.Nop0, isa.Nop1:
		// no-op, just a template byte encountered as code

	case isa.ZeroAX:
		o.AX = 0

	case isa.IncA:
		o.AX = modU(o.AX + 1)

	case isa.IncB:
		o.BX = modU(o.BX + 1)

	case isa.DecC:
		if o.CX > 0 {
			o.CX--
		} else {
			o.CX = uint(n - 1)
		}

	case isa.MovCD:
		o.CX = modU(o.DX)

	case isa.MovAB:
		o.AX = modU(o.BX)

	case isa.MovIAB:
		advance, result.CopyMutated = stepMovIAB(o, s, rng, lookup, cfg)

	// SubAB/SubAC are pure modular subtraction. original_source carries no
	// division-capable opcode at all, so a zero second operand here is
	// just an ordinary value, not a fault condition — "CX <- AX - 0" is
	// the standard idiom for copying AX into CX and must not fault.
	case isa.SubAB:
		o.CX = modU(o.AX - o.BX)

	case isa.SubAC:
		o.AX = modU(o.AX - o.CX)

	case isa.Shl:
		o.CX = modU(o.CX << 1)

	case isa.JmpF, isa.JmpB:
		advance = stepJump(o, s, cfg, op == isa.JmpF)

	case isa.Call:
		advance = stepCall(o, s, cfg)

	case isa.Ret:
		if addr, ok := o.CallStack.Pop(); ok {
			o.IP = mod(addr)
			advance = 0
		} else {
			o.Fault("ret with empty call stack")
		}

	case isa.IfCz:
		if o.CX != 0 {
			advance = 2
		}

	case isa.Adrf, isa.Adrb:
		advance = stepAdr(o, s, cfg, op == isa.Adrf)

	case isa.PushA:
		o.ValueStack.Push(int(o.AX))

	case isa.PopB:
		if v, ok := o.ValueStack.Pop(); ok {
			o.BX = modU(uint(v))
		} else {
			o.BX = 0
		}

	case isa.PushC:
		o.ValueStack.Push(int(o.CX))

	case isa.MallocA:
		stepMalloc(o, s, cfg)

	case isa.Divide:
		result = stepDivide(o, s)

	case isa.FreeA:
		stepFree(o, s)

	case isa.Search:
		advance = stepSearch(o, s, cfg, true)

	case isa.NopSearch:
		advance = stepSearch(o, s, cfg, false)

	default:
		// A cosmic ray or mutation can never produce a byte outside the
		// 27-opcode space (both draw with rng.Intn(isa.NumOpcodes)), so
		// this can only be reached if the soup cell itself is corrupt.
		o.Fault("invalid opcode")
	}

	o.IP = mod(o.IP + advance)
	o.Cycles++
	result.Faulted = o.Errors > errorsBefore
	return result
}

// readTemplate reads the template immediately following the opcode at
// o.IP (i.e. starting at o.IP+1), without mutating o.IP.
func readTemplate(o *organism.Organism, s *soup.Soup) soup.Template {
	return s.ReadTemplate(o.IP+1, MaxTemplateLen)
}

// anchor is the search origin used for every template-targeted
// instruction: one past the opcode itself, i.e. the start of the
// template. Scanning begins one cell beyond anchor (FindForward/
// FindBackward both treat their start argument as exclusive), which
// naturally skips over the organism's own template bits without any
// special-casing, since those bits cannot match their own complement.
func anchor(o *organism.Organism) int {
	return o.IP + 1
}

func stepJump(o *organism.Organism, s *soup.Soup, cfg Config, forward bool) int {
	tmpl := readTemplate(o, s)
	a := anchor(o)
	var addr int
	var ok bool
	if forward {
		addr, ok = s.FindForward(a, tmpl, cfg.SearchRadius)
	} else {
		addr, ok = s.FindBackward(a, tmpl, cfg.SearchRadius)
	}
	if !ok {
		o.Fault("template miss")
		return 1 + len(tmpl)
	}
	// JmpF/JmpB must not touch AX: the copy-loop idiom keeps the source
	// pointer live in AX across the JmpB that closes the loop, and a
	// jump that clobbered it would make that loop impossible to write.
	o.IP = addr
	return 0
}

func stepCall(o *organism.Organism, s *soup.Soup, cfg Config) int {
	tmpl := readTemplate(o, s)
	a := anchor(o)
	addr, ok := s.FindForward(a, tmpl, cfg.SearchRadius)
	if !ok {
		o.Fault("template miss")
		return 1 + len(tmpl)
	}
	// Same reasoning as stepJump: Call must not clobber AX.
	o.CallStack.Push(o.IP + 1 + len(tmpl))
	o.IP = addr
	return 0
}

func stepAdr(o *organism.Organism, s *soup.Soup, cfg Config, forward bool) int {
	tmpl := readTemplate(o, s)
	a := anchor(o)
	var addr int
	var ok bool
	if forward {
		addr, ok = s.FindForward(a, tmpl, cfg.SearchRadius)
	} else {
		addr, ok = s.FindBackward(a, tmpl, cfg.SearchRadius)
	}
	if !ok {
		o.Fault("template miss")
	} else {
		o.AX = uint(addr)
	}
	return 1 + len(tmpl)
}

func stepSearch(o *organism.Organism, s *soup.Soup, cfg Config, commit bool) int {
	tmpl := readTemplate(o, s)
	a := anchor(o)
	addr, ok := s.FindForward(a, tmpl, cfg.SearchRadius)
	if !ok {
		o.Fault("template miss")
		return 1 + len(tmpl)
	}
	if commit {
		o.AX = uint(addr)
		o.BX = uint(len(tmpl))
	}
	return 1 + len(tmpl)
}

func regionContains(addr, start, size, n int) bool {
	d := addr - start
	d %= n
	if d < 0 {
		d += n
	}
	return d < size
}

func stepMovIAB(o *organism.Organism, s *soup.Soup, rng *rand.Rand, lookup PendingLookup, cfg Config) (advance int, mutated bool) {
	n := s.Len()
	src := int(o.AX) % n
	dst := int(o.BX) % n

	if owner, ok := s.OwnerOf(dst); ok && owner != o.ID && lookup != nil {
		if pendAddr, pendSize, has := lookup.PendingRegion(owner); has && regionContains(dst, pendAddr, pendSize, n) {
			o.Fault("write into foreign pending child")
			return 1, false
		}
	}

	val := s.Read(src)
	if rng.Float64() < cfg.CopyMutationRate {
		val = isa.Opcode(rng.Intn(isa.NumOpcodes))
		mutated = true
	}
	s.Write(dst, val)
	return 1, mutated
}

func stepMalloc(o *organism.Organism, s *soup.Soup, cfg Config) {
	if o.PendingChild != nil {
		o.Fault("malloc overwrites pending child")
		return
	}
	size := int(o.CX)
	maxGenome := 2 * o.GenomeSize
	if cfg.MaxGenomeCap > 0 && maxGenome > cfg.MaxGenomeCap {
		maxGenome = cfg.MaxGenomeCap
	}
	if size < cfg.MinGenome || size > maxGenome {
		o.Fault("malloc size out of bounds")
		return
	}
	addr, ok := s.Reserve(size, o.ID)
	if !ok {
		o.Fault("malloc: soup exhausted")
		return
	}
	o.AX = uint(addr)
	o.PendingChild = &organism.PendingChild{Addr: addr, Size: size}
}

func stepDivide(o *organism.Organism, s *soup.Soup) Result {
	if o.PendingChild == nil {
		o.Fault("divide without pending child")
		return Result{}
	}
	pc := o.PendingChild
	if !validChildProgram(s, pc.Addr, pc.Size) {
		o.Fault("divide: invalid child program")
		return Result{}
	}
	o.PendingChild = nil
	return Result{Divided: true, ChildAddr: pc.Addr, ChildSize: pc.Size}
}

// validChildProgram requires at least one non-Nop instruction and at
// least one MallocA and one Divide opcode in the candidate region, per
// spec.md §4.4.
func validChildProgram(s *soup.Soup, addr, size int) bool {
	var sawCode, sawMalloc, sawDivide bool
	for i := 0; i < size; i++ {
		op := s.Read(addr + i)
		if !op.IsTemplate() {
			sawCode = true
		}
		if op == isa.MallocA {
			sawMalloc = true
		}
		if op == isa.Divide {
			sawDivide = true
		}
	}
	return sawCode && sawMalloc && sawDivide
}

func stepFree(o *organism.Organism, s *soup.Soup) {
	addr := int(o.AX) % s.Len()
	size := int(o.CX)
	if size <= 0 {
		o.Fault("free: invalid size")
		return
	}
	if owner, ok := s.OwnerOf(addr); !ok || owner != o.ID {
		o.Fault("free: not owner")
		return
	}
	s.Free(addr, size, o.ID)
}
