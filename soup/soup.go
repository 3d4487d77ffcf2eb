// Package soup implements the fixed-size circular memory ("the soup")
// that organisms live in, per spec.md §3 and §4.2.
package soup

import (
	"math/rand"

	"github.com/maccam912/tierra-rs/isa"
	"github.com/maccam912/tierra-rs/tlog"
)

// Logger traces soup mutations. Defaults to a no-op, following the
// teacher's goalife/log convention.
var Logger = tlog.Null()

// free is the sentinel owner value for an unowned cell.
const free = -1

// Soup is a fixed-size, circularly-addressed array of instructions with
// an allocation map recording, per cell, Free or Owned(organism id).
//
// A pending reservation made by MallocA is already reflected as Owned in
// the allocation map the instant Reserve succeeds — organism.PendingChild
// is what distinguishes "my own committed genome" from "my reserved but
// not yet divided child region"; Soup itself only needs one map.
type Soup struct {
	cells  []isa.Opcode
	owner  []int64
	cursor int // rotating first-fit search start, advanced by Reserve
}

// New creates a soup of n cells, all free and initialized to Nop0.
func New(n int) *Soup {
	s := &Soup{
		cells: make([]isa.Opcode, n),
		owner: make([]int64, n),
	}
	for i := range s.owner {
		s.owner[i] = free
	}
	return s
}

// Len returns the number of cells in the soup (N).
func (s *Soup) Len() int {
	return len(s.cells)
}

// norm reduces addr modulo N, always returning a value in [0, N).
func (s *Soup) norm(addr int) int {
	n := len(s.cells)
	addr %= n
	if addr < 0 {
		addr += n
	}
	return addr
}

// Read returns the instruction at addr (mod N).
func (s *Soup) Read(addr int) isa.Opcode {
	return s.cells[s.norm(addr)]
}

// Write stores i at addr (mod N), without any ownership check. Callers
// that need to enforce write protection (cpu.Step for MovIAB) must check
// OwnerOf themselves first; Soup is the mechanism, not the policy.
func (s *Soup) Write(addr int, i isa.Opcode) {
	s.cells[s.norm(addr)] = i
}

// OwnerOf returns the organism id owning addr, and false if the cell is free.
func (s *Soup) OwnerOf(addr int) (int64, bool) {
	o := s.owner[s.norm(addr)]
	if o == free {
		return 0, false
	}
	return o, true
}

// setOwner marks the run of `size` cells starting at addr (mod N) as
// owned by id (or free, when id == free).
func (s *Soup) setOwner(addr, size int, id int64) {
	for i := 0; i < size; i++ {
		s.owner[s.norm(addr+i)] = id
	}
}

func (s *Soup) isFreeRun(addr, size int) bool {
	for i := 0; i < size; i++ {
		if s.owner[s.norm(addr+i)] != free {
			return false
		}
	}
	return true
}

// Reserve performs a first-fit search, starting from a rotating cursor,
// for a contiguous run of `size` free cells. On success it marks the run
// Owned(requester) and returns its start address. It fails (ok == false)
// if no sufficient gap exists anywhere in the soup.
func (s *Soup) Reserve(size int, requester int64) (addr int, ok bool) {
	n := len(s.cells)
	if size <= 0 || size > n {
		return 0, false
	}
	start := s.norm(s.cursor)
	for i := 0; i < n; i++ {
		candidate := s.norm(start + i)
		if s.isFreeRun(candidate, size) {
			s.setOwner(candidate, size, requester)
			s.cursor = s.norm(candidate + size)
			Logger.Printf("soup: reserve size=%d owner=%d addr=%d\n", size, requester, candidate)
			return candidate, true
		}
	}
	return 0, false
}

// Free marks the run of `size` cells starting at addr as Free, asserting
// that owner currently owns every cell in the run. It is a no-op (aside
// from logging) if the assertion fails, since the reaper must never be
// able to corrupt the allocation map of a live organism by racing a free.
func (s *Soup) Free(addr, size int, owner int64) {
	for i := 0; i < size; i++ {
		a := s.norm(addr + i)
		if s.owner[a] != owner {
			Logger.Printf("soup: free rejected, addr=%d not owned by %d\n", a, owner)
			return
		}
	}
	s.setOwner(addr, size, free)
	Logger.Printf("soup: free size=%d owner=%d addr=%d\n", size, owner, addr)
}

// Reown reassigns the run of `size` cells starting at addr from oldOwner
// to newOwner, asserting that oldOwner currently owns every cell in the
// run. It is a no-op (aside from logging) if the assertion fails, for the
// same reason Free is: a mismatched owner means the caller's view of the
// allocation map is stale and must not be trusted to mutate it. Used on a
// committed Divide, to hand a parent's pending_child region over to the
// newly-registered child organism's id.
func (s *Soup) Reown(addr, size int, oldOwner, newOwner int64) {
	for i := 0; i < size; i++ {
		a := s.norm(addr + i)
		if s.owner[a] != oldOwner {
			Logger.Printf("soup: reown rejected, addr=%d not owned by %d\n", a, oldOwner)
			return
		}
	}
	s.setOwner(addr, size, newOwner)
	Logger.Printf("soup: reown size=%d from=%d to=%d addr=%d\n", size, oldOwner, newOwner, addr)
}

// CountFree returns the number of cells currently marked Free.
func (s *Soup) CountFree() int {
	n := 0
	for _, o := range s.owner {
		if o == free {
			n++
		}
	}
	return n
}

// Template is a maximal run of Nop0/Nop1 opcodes, used as an addressable
// label.
type Template []isa.Opcode

// ReadTemplate collects the maximal run of template opcodes starting at
// addr, bounded to maxLen cells.
func (s *Soup) ReadTemplate(addr, maxLen int) Template {
	var t Template
	for i := 0; i < maxLen; i++ {
		op := s.Read(addr + i)
		if !op.IsTemplate() {
			break
		}
		t = append(t, op)
	}
	return t
}

// Complement returns the bitwise-complemented template (the search target).
func (t Template) Complement() Template {
	c := make(Template, len(t))
	for i, op := range t {
		comp, _ := op.Complement()
		c[i] = comp
	}
	return c
}

func (s *Soup) matchesAt(addr int, want Template) bool {
	for i, op := range want {
		if s.Read(addr+i) != op {
			return false
		}
	}
	return true
}

// FindForward searches forward from start (exclusive), bounded to radius
// cells, for the complement of template. It returns the address of the
// first cell following the match.
func (s *Soup) FindForward(start int, template Template, radius int) (addr int, ok bool) {
	if len(template) == 0 {
		return 0, false
	}
	want := template.Complement()
	for off := 1; off <= radius; off++ {
		candidate := s.norm(start + off)
		if s.matchesAt(candidate, want) {
			return s.norm(candidate + len(want)), true
		}
	}
	return 0, false
}

// FindBackward searches backward from start (exclusive), bounded to
// radius cells, for the complement of template. It returns the address of
// the first cell following the match (i.e. same convention as FindForward).
func (s *Soup) FindBackward(start int, template Template, radius int) (addr int, ok bool) {
	if len(template) == 0 {
		return 0, false
	}
	want := template.Complement()
	for off := 1; off <= radius; off++ {
		candidate := s.norm(start - off)
		if s.matchesAt(candidate, want) {
			return s.norm(candidate + len(want)), true
		}
	}
	return 0, false
}

// CosmicRay flips a single, uniformly-chosen cell to a uniformly-chosen
// opcode, modelling background radiation damage (spec.md §4.4).
func (s *Soup) CosmicRay(rng *rand.Rand) {
	addr := rng.Intn(len(s.cells))
	s.cells[addr] = isa.Opcode(rng.Intn(isa.NumOpcodes))
	Logger.Printf("soup: cosmic ray at addr=%d\n", addr)
}

// Cells returns a copy of the full cell array, for snapshotting.
func (s *Soup) Cells() []isa.Opcode {
	out := make([]isa.Opcode, len(s.cells))
	copy(out, s.cells)
	return out
}

// Ownership returns a copy of the full ownership array (free as -1), for
// snapshotting.
func (s *Soup) Ownership() []int64 {
	out := make([]int64, len(s.owner))
	copy(out, s.owner)
	return out
}
