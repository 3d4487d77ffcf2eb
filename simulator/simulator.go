// Package simulator wires together the soup, scheduler, cpu interpreter
// and statistics into the headless engine spec.md §6 describes: New,
// Reset, Step/StepN, SetConfig, Snapshot, Organism(id). Its functional-
// options shape for New is grounded in db47h/ngaro's vm.Option/SetOptions
// (vm/vm.go).
package simulator

import (
	"math/rand"

	"github.com/maccam912/tierra-rs/ancestor"
	"github.com/maccam912/tierra-rs/cpu"
	"github.com/maccam912/tierra-rs/organism"
	"github.com/maccam912/tierra-rs/scheduler"
	"github.com/maccam912/tierra-rs/simerr"
	"github.com/maccam912/tierra-rs/soup"
	"github.com/maccam912/tierra-rs/statistics"
	"github.com/maccam912/tierra-rs/tlog"
)

// Logger traces simulator-level lifecycle events (reset, config changes).
var Logger = tlog.Null()

// Config is the full tunable surface spec.md §6's set_config names, plus
// the construction-time parameters New needs (soup size, seed).
type Config struct {
	SoupSize      int
	Seed          int64
	TimeSlice     int     // instructions per organism turn, default 10
	MaxPopulation int     // reaper target ceiling, range [10, 500]
	MutationRate  float64 // copy_mutation_rate, range [0, 0.1]
	CosmicPeriod  int      // average steps between cosmic-ray hits, default 10000
	SearchRadius  int
	MinGenome     int
}

// DefaultConfig returns the defaults named across spec.md §4.4/§4.5/§6.
//
// spec.md §4.4 also names a FAULT_LIMIT (default 3): an organism with
// errors > FAULT_LIMIT is moved to the front of the reaper queue. That
// behavior doesn't need a threshold value of its own to enforce — see
// scheduler.reaperVictim's doc comment — so there is no corresponding
// Config field here.
func DefaultConfig() Config {
	return Config{
		SoupSize:      60000,
		Seed:          1,
		TimeSlice:     10,
		MaxPopulation: 500,
		MutationRate:  2.5e-4,
		CosmicPeriod:  10000,
		SearchRadius:  200,
		MinGenome:     12,
	}
}

// ConfigPatch is the subset of Config that SetConfig may mutate after
// construction, per spec.md §6's set_config(patch) contract. A nil field
// leaves the corresponding setting unchanged.
type ConfigPatch struct {
	TimeSlice     *int
	MaxPopulation *int
	MutationRate  *float64
}

// Option configures a Simulator at construction time, in the style of
// db47h/ngaro's vm.Option.
type Option func(*Simulator) error

// WithSoupSize overrides the default soup size.
func WithSoupSize(n int) Option {
	return func(sim *Simulator) error {
		sim.cfg.SoupSize = n
		return nil
	}
}

// WithSeed overrides the default PRNG seed.
func WithSeed(seed int64) Option {
	return func(sim *Simulator) error {
		sim.cfg.Seed = seed
		return nil
	}
}

// WithMaxPopulation overrides the default reaper ceiling.
func WithMaxPopulation(n int) Option {
	return func(sim *Simulator) error {
		sim.cfg.MaxPopulation = n
		return nil
	}
}

// WithMutationRate overrides the default copy-mutation rate.
func WithMutationRate(r float64) Option {
	return func(sim *Simulator) error {
		sim.cfg.MutationRate = r
		return nil
	}
}

// WithTimeSlice overrides the default per-turn instruction count.
func WithTimeSlice(n int) Option {
	return func(sim *Simulator) error {
		sim.cfg.TimeSlice = n
		return nil
	}
}

// WithCosmicPeriod overrides the average number of steps between cosmic
// rays. 0 disables cosmic mutation entirely.
func WithCosmicPeriod(n int) Option {
	return func(sim *Simulator) error {
		sim.cfg.CosmicPeriod = n
		return nil
	}
}

// Simulator is the single-threaded, deterministic engine described in
// spec.md §5: no parallelism within a step, no suspension inside the CPU
// loop, every mutation routed through this type's API.
type Simulator struct {
	cfg   Config
	rng   *rand.Rand
	soup  *soup.Soup
	sched *scheduler.Scheduler
	stats statistics.Counters
	hist  *statistics.History
	tick  int64

	initialized bool
}

// New builds a Simulator from defaults plus any Options, and resets it
// once so it's immediately steppable.
func New(opts ...Option) (*Simulator, error) {
	sim := &Simulator{cfg: DefaultConfig()}
	for _, opt := range opts {
		if err := opt(sim); err != nil {
			return nil, err
		}
	}
	if err := sim.Reset(); err != nil {
		return nil, err
	}
	return sim, nil
}

// schedulerConfig derives a scheduler.Config from the simulator's own.
func (sim *Simulator) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		TimeSlice:     sim.cfg.TimeSlice,
		MaxPopulation: sim.cfg.MaxPopulation,
		CosmicPeriod:  sim.cfg.CosmicPeriod,
	}
}

// cpuConfig derives a cpu.Config from the simulator's own.
func (sim *Simulator) cpuConfig() cpu.Config {
	c := cpu.DefaultConfig(sim.cfg.SoupSize)
	c.CopyMutationRate = sim.cfg.MutationRate
	if sim.cfg.SearchRadius > 0 {
		c.SearchRadius = sim.cfg.SearchRadius
	}
	if sim.cfg.MinGenome > 0 {
		c.MinGenome = sim.cfg.MinGenome
	}
	return c
}

// Reset clears the soup and reseeds the ancestor as organism #0,
// generation 0, per spec.md §4.6.
func (sim *Simulator) Reset() error {
	genome := ancestor.Build()
	if sim.cfg.SoupSize < len(genome) {
		return simerr.Wrap(simerr.ErrSoupTooSmall, "soup size %d smaller than ancestor genome %d", sim.cfg.SoupSize, len(genome))
	}

	sim.soup = soup.New(sim.cfg.SoupSize)
	sim.sched = scheduler.New(sim.soup, sim.schedulerConfig())
	sim.rng = rand.New(rand.NewSource(sim.cfg.Seed))
	sim.stats = statistics.Counters{}
	sim.hist = statistics.NewHistory(0)
	sim.tick = 0

	addr, ok := sim.soup.Reserve(len(genome), 0)
	if !ok {
		return simerr.Wrap(simerr.ErrSoupTooSmall, "could not place ancestor genome of size %d", len(genome))
	}
	for i, op := range genome {
		sim.soup.Write(addr+i, op)
	}
	anc := organism.New(0, addr, len(genome), 0)
	sim.sched.Register(anc)
	sim.stats.MaxGeneration.SetMax(0)

	sim.initialized = true
	Logger.Printf("simulator: reset, ancestor at addr=%d size=%d\n", addr, len(genome))
	return nil
}

// SetConfig validates and applies a patch, per spec.md §6's bounds:
// mutation_rate in [0, 0.1], max_population in [10, 500], time_slice in
// [1, 100]. Changes take effect on the next Turn; no partial state is
// visible on a rejected patch.
func (sim *Simulator) SetConfig(patch ConfigPatch) error {
	next := sim.cfg
	if patch.MutationRate != nil {
		if *patch.MutationRate < 0 || *patch.MutationRate > 0.1 {
			return simerr.Wrap(simerr.ErrConfigOutOfRange, "mutation_rate %v out of [0, 0.1]", *patch.MutationRate)
		}
		next.MutationRate = *patch.MutationRate
	}
	if patch.MaxPopulation != nil {
		if *patch.MaxPopulation < 10 || *patch.MaxPopulation > 500 {
			return simerr.Wrap(simerr.ErrConfigOutOfRange, "max_population %d out of [10, 500]", *patch.MaxPopulation)
		}
		next.MaxPopulation = *patch.MaxPopulation
	}
	if patch.TimeSlice != nil {
		if *patch.TimeSlice < 1 || *patch.TimeSlice > 100 {
			return simerr.Wrap(simerr.ErrConfigOutOfRange, "time_slice %d out of [1, 100]", *patch.TimeSlice)
		}
		next.TimeSlice = *patch.TimeSlice
	}
	sim.cfg = next
	if sim.sched != nil {
		sim.sched.SetConfig(sim.schedulerConfig())
	}
	return nil
}

// Step performs one scheduler turn and folds its report into the
// running statistics.
func (sim *Simulator) Step() error {
	if !sim.initialized {
		return simerr.ErrNotInitialized
	}
	report := sim.sched.Turn(sim.rng, sim.cpuConfig())

	sim.stats.InstructionsExecuted.Add(int64(report.InstructionsExecuted))
	sim.stats.Faults.Add(int64(report.Faults))
	sim.stats.MutationsCopy.Add(int64(report.CopyMutations))
	sim.stats.MutationsCosmic.Add(int64(report.CosmicMutations))
	sim.stats.Births.Add(int64(len(report.Births)))
	sim.stats.Deaths.Add(int64(len(report.Deaths)))
	for _, child := range report.Births {
		sim.stats.MaxGeneration.SetMax(int64(child.Generation))
	}

	sim.tick++
	sim.hist.Push(statistics.Sample{
		Tick:          sim.tick,
		Population:    sim.sched.Population(),
		MaxGeneration: int(sim.stats.MaxGeneration.Value()),
	})
	return nil
}

// StepN performs k turns, stopping early (and returning the first error)
// if Step ever fails.
func (sim *Simulator) StepN(k int) error {
	for i := 0; i < k; i++ {
		if err := sim.Step(); err != nil {
			return err
		}
	}
	return nil
}

// OrganismView is the read-only inspector view spec.md §6's organism(id)
// exposes: a snapshot, not a live pointer into engine state.
type OrganismView struct {
	ID           int64
	GenomeStart  int
	GenomeSize   int
	IP           int
	AX, BX, CX, DX uint
	Flag         bool
	ValueStack   []int
	CallStack    []int
	Cycles       int64
	Errors       int
	Generation   int
	AgeTicks     int64
	HasPending   bool
	PendingAddr  int
	PendingSize  int
}

func viewOf(o *organism.Organism) OrganismView {
	v := OrganismView{
		ID:          o.ID,
		GenomeStart: o.GenomeStart,
		GenomeSize:  o.GenomeSize,
		IP:          o.IP,
		AX:          o.AX,
		BX:          o.BX,
		CX:          o.CX,
		DX:          o.DX,
		Flag:        o.Flag,
		ValueStack:  o.ValueStack.Snapshot(),
		CallStack:   o.CallStack.Snapshot(),
		Cycles:      o.Cycles,
		Errors:      o.Errors,
		Generation:  o.Generation,
		AgeTicks:    o.AgeTicks,
	}
	if o.PendingChild != nil {
		v.HasPending = true
		v.PendingAddr = o.PendingChild.Addr
		v.PendingSize = o.PendingChild.Size
	}
	return v
}

// Organism returns the inspector view for a single live organism.
func (sim *Simulator) Organism(id int64) (OrganismView, error) {
	if !sim.initialized {
		return OrganismView{}, simerr.ErrNotInitialized
	}
	o, ok := sim.sched.Organism(id)
	if !ok {
		return OrganismView{}, simerr.Wrap(simerr.ErrNotInitialized, "no such organism %d", id)
	}
	return viewOf(o), nil
}

// Snapshot is the full external view spec.md §6 names: soup cells,
// ownership, every live organism, and the current statistics.
type Snapshot struct {
	SoupCells []isaCellView
	Ownership []int64
	Organisms []OrganismView
	Stats     statistics.Snapshot
	History   []statistics.Sample
}

// isaCellView avoids exposing the isa package's Opcode type directly in
// the snapshot, so callers across a serialization boundary (a UI host)
// see a plain byte.
type isaCellView = uint8

// Snapshot returns a deep copy of the engine's full external state.
func (sim *Simulator) Snapshot() (Snapshot, error) {
	if !sim.initialized {
		return Snapshot{}, simerr.ErrNotInitialized
	}
	cells := sim.soup.Cells()
	cellBytes := make([]isaCellView, len(cells))
	for i, c := range cells {
		cellBytes[i] = uint8(c)
	}

	orgs := sim.sched.Organisms()
	views := make([]OrganismView, len(orgs))
	for i, o := range orgs {
		views[i] = viewOf(o)
	}

	return Snapshot{
		SoupCells: cellBytes,
		Ownership: sim.soup.Ownership(),
		Organisms: views,
		Stats:     sim.stats.Snapshot(sim.sched.Population()),
		History:   sim.hist.Samples(),
	}, nil
}

// Population returns the current number of live organisms.
func (sim *Simulator) Population() int {
	if sim.sched == nil {
		return 0
	}
	return sim.sched.Population()
}
