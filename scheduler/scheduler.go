// Package scheduler implements the round-robin run queue and reaper
// described in spec.md §4.5: a FIFO turn order over live organisms, a
// fixed instruction time slice per turn, and population culling ordered
// by (errors, age_ticks) descending.
package scheduler

import (
	"math/rand"

	"github.com/maccam912/tierra-rs/cpu"
	"github.com/maccam912/tierra-rs/organism"
	"github.com/maccam912/tierra-rs/soup"
	"github.com/maccam912/tierra-rs/tlog"
)

// Logger traces births, deaths and culls.
var Logger = tlog.Null()

// Config holds the population and turn-shape tunables spec.md §6 exposes
// through Simulator.SetConfig.
type Config struct {
	TimeSlice     int // instructions run per organism per turn, default 10
	MaxPopulation int // reaper culls down to this whenever exceeded
	CosmicPeriod  int // average number of Turn calls (steps) between cosmic-ray hits; 0 disables
}

// TurnReport summarizes the observable events of one Scheduler.Turn call,
// for the simulator's statistics.Counter updates.
type TurnReport struct {
	InstructionsExecuted int
	Faults                int
	CopyMutations         int
	CosmicMutations       int
	Births                []*organism.Organism
	Deaths                []*organism.Organism
}

// Scheduler owns the live organism population, the run-queue turn order,
// and reaper-driven culling. It does not own the soup or the PRNG — both
// are supplied by the simulator, which also owns the ancestor-seeding
// policy.
type Scheduler struct {
	soup      *soup.Soup
	organisms map[int64]*organism.Organism
	queue     []int64
	nextID    int64
	cfg       Config
}

// New creates an empty scheduler over s. Register must be called at
// least once (by the simulator, to seed the ancestor) before Turn does
// anything useful.
func New(s *soup.Soup, cfg Config) *Scheduler {
	return &Scheduler{
		soup:      s,
		organisms: make(map[int64]*organism.Organism),
		cfg:       cfg,
	}
}

// SetConfig replaces the turn-shape tunables, taking effect on the next Turn.
func (sch *Scheduler) SetConfig(cfg Config) {
	sch.cfg = cfg
}

// Population returns the current number of live organisms.
func (sch *Scheduler) Population() int {
	return len(sch.organisms)
}

// Organism returns the live organism with the given id, if any.
func (sch *Scheduler) Organism(id int64) (*organism.Organism, bool) {
	o, ok := sch.organisms[id]
	return o, ok
}

// Organisms returns a snapshot slice of every live organism, in no
// particular order.
func (sch *Scheduler) Organisms() []*organism.Organism {
	out := make([]*organism.Organism, 0, len(sch.organisms))
	for _, o := range sch.organisms {
		out = append(out, o)
	}
	return out
}

// Register adds a freshly-minted organism to the population and to the
// tail of the run queue, minting a fresh id if id < 0.
func (sch *Scheduler) Register(o *organism.Organism) {
	if o.ID < 0 {
		o.ID = sch.mintID()
	}
	if o.ID >= sch.nextID {
		sch.nextID = o.ID + 1
	}
	sch.organisms[o.ID] = o
	sch.queue = append(sch.queue, o.ID)
}

// mintID returns the next unused organism id.
func (sch *Scheduler) mintID() int64 {
	id := sch.nextID
	sch.nextID++
	return id
}

// PendingRegion implements cpu.PendingLookup by looking up another live
// organism's pending-child reservation.
func (sch *Scheduler) PendingRegion(ownerID int64) (addr, size int, ok bool) {
	o, found := sch.organisms[ownerID]
	if !found || o.PendingChild == nil {
		return 0, 0, false
	}
	return o.PendingChild.Addr, o.PendingChild.Size, true
}

// kill removes an organism from the population, frees its genome region,
// and drops it from the run queue.
func (sch *Scheduler) kill(o *organism.Organism) {
	sch.soup.Free(o.GenomeStart, o.GenomeSize, o.ID)
	delete(sch.organisms, o.ID)
	for i, id := range sch.queue {
		if id == o.ID {
			sch.queue = append(sch.queue[:i], sch.queue[i+1:]...)
			break
		}
	}
	Logger.Printf("scheduler: killed %s\n", o)
}

// reaperVictim picks the organism the reaper would cull next: highest
// errors first, ties broken by oldest age_ticks first. This ordering is
// computed on demand from live organism state rather than maintained as
// a standing priority queue, since spec.md only constrains the
// observable kill order, not the data structure that produces it, and a
// fresh O(population) scan is cheap at the population sizes max_population
// bounds.
//
// This same comparator already implements spec.md §4.4's fault budget
// ("an organism with errors > FAULT_LIMIT is moved to the front of the
// reaper queue") without needing FAULT_LIMIT as an input: any organism
// over the limit has, by definition, strictly more errors than any
// organism under it, so plain errors-descending ordering always places
// it ahead. No separate threshold check can change the resulting order.
func (sch *Scheduler) reaperVictim() *organism.Organism {
	var worst *organism.Organism
	for _, o := range sch.organisms {
		if worst == nil || betterKillCandidate(o, worst) {
			worst = o
		}
	}
	return worst
}

// betterKillCandidate reports whether a is a higher-priority kill target
// than b: more errors wins, and on a tie, the older organism (larger
// AgeTicks) wins, per spec.md §9's tie-break resolution.
func betterKillCandidate(a, b *organism.Organism) bool {
	if a.Errors != b.Errors {
		return a.Errors > b.Errors
	}
	return a.AgeTicks > b.AgeTicks
}

// enforceCap kills organisms, worst-first, until population <=
// MaxPopulation. It appends every organism it killed to report.Deaths,
// and returns whether protect was among them.
func (sch *Scheduler) enforceCap(report *TurnReport, protect *organism.Organism) (protectKilled bool) {
	if sch.cfg.MaxPopulation <= 0 {
		return false
	}
	for len(sch.organisms) > sch.cfg.MaxPopulation {
		victim := sch.reaperVictim()
		if victim == nil {
			break
		}
		sch.kill(victim)
		report.Deaths = append(report.Deaths, victim)
		if protect != nil && victim.ID == protect.ID {
			protectKilled = true
		}
	}
	return protectKilled
}

// Turn runs one round-robin turn: it pops the head of the run queue, runs
// it for up to TimeSlice instructions (stopping early if a birth this
// turn causes the reaper to cull the running organism itself), then
// pushes survivors to the tail. Newborns become visible in the run queue
// only once the whole turn completes, per spec.md §5's ordering
// guarantee. Every live organism's AgeTicks is incremented by one,
// whether or not the queue was empty.
func (sch *Scheduler) Turn(rng *rand.Rand, cfg cpu.Config) TurnReport {
	var report TurnReport

	// Cosmic rays roll once per Turn (one "step" of the world clock), not
	// once per instruction executed within the turn's time slice — spec.md
	// §4.4 names cosmic_period in units of steps, and TimeSlice instructions
	// all belong to the same step.
	if sch.cfg.CosmicPeriod > 0 && rng.Intn(sch.cfg.CosmicPeriod) == 0 {
		sch.soup.CosmicRay(rng)
		report.CosmicMutations++
	}

	if len(sch.queue) > 0 {
		id := sch.queue[0]
		sch.queue = sch.queue[1:]

		if o, ok := sch.organisms[id]; ok {
			var pendingBirths []*organism.Organism
			selfKilled := false

			for i := 0; i < sch.cfg.TimeSlice; i++ {
				result := cpu.Step(o, sch.soup, rng, sch, cfg)
				report.InstructionsExecuted++
				if result.Faulted {
					report.Faults++
				}
				if result.CopyMutated {
					report.CopyMutations++
				}

				if result.Divided {
					child := organism.New(sch.mintID(), result.ChildAddr, result.ChildSize, o.Generation+1)
					sch.soup.Reown(result.ChildAddr, result.ChildSize, o.ID, child.ID)
					sch.organisms[child.ID] = child
					pendingBirths = append(pendingBirths, child)
					report.Births = append(report.Births, child)
					Logger.Printf("scheduler: born %s from %s\n", child, o)

					if sch.enforceCap(&report, o) {
						selfKilled = true
						break
					}
				}
			}

			if !selfKilled {
				sch.queue = append(sch.queue, o.ID)
			}
			for _, child := range pendingBirths {
				if _, alive := sch.organisms[child.ID]; alive {
					sch.queue = append(sch.queue, child.ID)
				}
			}
		}
	}

	for _, o := range sch.organisms {
		o.AgeTicks++
	}

	return report
}
