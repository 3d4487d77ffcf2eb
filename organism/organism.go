// Package organism implements the per-creature state described in
// spec.md §3: registers, bounded stacks, flags, genome bounds and stats.
package organism

import (
	"fmt"

	"github.com/maccam912/tierra-rs/tlog"
)

// Logger traces organism-level operations (pushes, pops, faults).
var Logger = tlog.Null()

// StackCapacity is the fixed depth of both the value stack and the
// call/return stack (spec.md §3).
const StackCapacity = 10

// Stack is a bounded LIFO where a push onto a full stack silently drops
// the oldest entry, per spec.md §4.3's bounded-stack policy.
type Stack struct {
	data []int
}

// Push adds v to the top of the stack, discarding the oldest entry first
// if the stack is already at capacity.
func (s *Stack) Push(v int) {
	if len(s.data) >= StackCapacity {
		s.data = s.data[1:]
	}
	s.data = append(s.data, v)
}

// Pop removes and returns the top entry. ok is false on an empty stack.
func (s *Stack) Pop() (v int, ok bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	last := len(s.data) - 1
	v = s.data[last]
	s.data = s.data[:last]
	return v, true
}

// Len reports the current stack depth.
func (s *Stack) Len() int {
	return len(s.data)
}

// Snapshot returns a copy of the stack contents, bottom first.
func (s *Stack) Snapshot() []int {
	out := make([]int, len(s.data))
	copy(out, s.data)
	return out
}

// PendingChild is a reservation made by MallocA awaiting a Divide, per
// spec.md §3/§4.4. It is conceptually a private sub-region of the
// organism's own allocation, not yet a separate organism.
type PendingChild struct {
	Addr int
	Size int
}

// Organism is a single living creature in the soup.
type Organism struct {
	ID int64

	GenomeStart int
	GenomeSize  int

	IP int

	AX, BX, CX, DX uint
	Flag           bool

	ValueStack Stack
	CallStack  Stack

	Cycles     int64
	Errors     int
	Generation int

	PendingChild *PendingChild

	AgeTicks int64
}

// New creates a freshly-born organism occupying [start, start+size) with
// all registers zeroed and empty stacks, per spec.md §4.4's Divide rules.
func New(id int64, start, size, generation int) *Organism {
	return &Organism{
		ID:          id,
		GenomeStart: start,
		GenomeSize:  size,
		IP:          start,
		Generation:  generation,
	}
}

// Fault increments the error counter, used for every non-fatal execution
// error the CPU raises (invalid template match, Ret/empty stack, bad
// MallocA, bad Divide, bad FreeA, a write into another organism's
// pending child). Pushing onto a full stack never faults: Push drops the
// oldest entry instead.
func (o *Organism) Fault(reason string) {
	o.Errors++
	Logger.Printf("organism %d: fault (%s), errors=%d\n", o.ID, reason, o.Errors)
}

// String renders a short debugging summary, in the style of the teacher's
// Organism.String (goalife/org/org.go).
func (o *Organism) String() string {
	return fmt.Sprintf("[org %d gen=%d ip=%d ax=%d bx=%d cx=%d dx=%d errs=%d]",
		o.ID, o.Generation, o.IP, o.AX, o.BX, o.CX, o.DX, o.Errors)
}
