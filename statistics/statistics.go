// Package statistics accumulates the population-level counters and
// rolling history spec.md §4.7 describes, in the style of the teacher's
// goalife/stats package (atomic Counter, container/ring-backed history).
package statistics

import (
	"container/ring"
	"sync/atomic"
)

// Counter is a concurrency-safe accumulating int64, identical in shape to
// goalife/stats.Counter.
type Counter struct {
	v int64
}

// Add atomically adds delta to the counter.
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.v, delta) }

// Value atomically reads the counter.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.v) }

// Set atomically overwrites the counter.
func (c *Counter) Set(v int64) { atomic.StoreInt64(&c.v, v) }

// SetMax atomically raises the counter to v if v is larger than the
// current value.
func (c *Counter) SetMax(v int64) {
	for {
		cur := atomic.LoadInt64(&c.v)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&c.v, cur, v) {
			return
		}
	}
}

// Sample is one tick's worth of population-level state, kept in History.
type Sample struct {
	Tick          int64
	Population    int
	MaxGeneration int
}

// defaultHistoryCapacity is the default ring size named in spec.md §4.7.
const defaultHistoryCapacity = 1024

// History is a fixed-capacity ring buffer of Sample, oldest entries
// evicted automatically once full, grounded in goalife/stats.MovingAvg's
// use of container/ring.
type History struct {
	r   *ring.Ring // nil until the first sample; points at the oldest entry
	len int
	cap int
}

// NewHistory creates a History with the given capacity. A capacity of 0
// uses the spec.md §4.7 default of 1024.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{cap: capacity}
}

// Push appends a new sample, evicting the oldest one if the ring is full.
func (h *History) Push(s Sample) {
	n := ring.New(1)
	n.Value = s
	if h.r == nil {
		h.r = n
		h.len = 1
		return
	}
	if h.len < h.cap {
		h.r.Prev().Link(n)
		h.len++
		return
	}
	// Full: overwrite the oldest slot in place and advance it, so the
	// ring never grows past cap.
	h.r.Value = s
	h.r = h.r.Next()
}

// Samples returns every retained sample, oldest first.
func (h *History) Samples() []Sample {
	if h.r == nil {
		return nil
	}
	out := make([]Sample, 0, h.len)
	h.r.Do(func(v interface{}) {
		out = append(out, v.(Sample))
	})
	return out
}

// Len reports how many samples are currently retained.
func (h *History) Len() int {
	return h.len
}

// Counters bundles every cumulative metric spec.md §4.7 names. Births,
// Deaths and MutationsCosmic/Copy are running totals; MaxGeneration is a
// high-water mark.
type Counters struct {
	Births               Counter
	Deaths               Counter
	InstructionsExecuted Counter
	MutationsCopy        Counter
	MutationsCosmic      Counter
	Faults               Counter
	MaxGeneration        Counter
}

// Snapshot is the read-only view of Counters exposed to callers, so a
// caller can't mutate a live counter through a returned struct.
type Snapshot struct {
	Births               int64
	Deaths               int64
	InstructionsExecuted int64
	MutationsCopy        int64
	MutationsCosmic      int64
	Faults               int64
	MaxGeneration         int64
	Population            int
}

// Snapshot reads every counter at once. population is supplied by the
// caller (the scheduler, not statistics, owns the live set).
func (c *Counters) Snapshot(population int) Snapshot {
	return Snapshot{
		Births:               c.Births.Value(),
		Deaths:               c.Deaths.Value(),
		InstructionsExecuted: c.InstructionsExecuted.Value(),
		MutationsCopy:        c.MutationsCopy.Value(),
		MutationsCosmic:      c.MutationsCosmic.Value(),
		Faults:               c.Faults.Value(),
		MaxGeneration:        c.MaxGeneration.Value(),
		Population:           population,
	}
}
