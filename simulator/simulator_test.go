package simulator

import "testing"

func TestNewSeedsAncestorAsOrganismZero(t *testing.T) {
	sim, err := New(WithSoupSize(2000), WithSeed(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := sim.Population(); got != 1 {
		t.Fatalf("population = %d, want 1", got)
	}
	view, err := sim.Organism(0)
	if err != nil {
		t.Fatalf("Organism(0): %v", err)
	}
	if view.Generation != 0 {
		t.Fatalf("ancestor generation = %d, want 0", view.Generation)
	}
}

func TestNewRejectsSoupSmallerThanAncestor(t *testing.T) {
	_, err := New(WithSoupSize(4))
	if err == nil {
		t.Fatal("expected an error for a soup too small to hold the ancestor")
	}
}

func TestStepAdvancesInstructionCounter(t *testing.T) {
	sim, err := New(WithSoupSize(2000), WithSeed(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sim.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	snap, err := sim.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Stats.InstructionsExecuted == 0 {
		t.Fatal("expected at least one instruction executed after a Step")
	}
	if len(snap.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(snap.History))
	}
}

// TestAncestorEventuallyDivides drives the simulator forward until the
// ancestor's own replication loop commits its first child. It checks only
// that a birth happens; ancestor.TestReplicates checks the child's bytes
// directly against cpu.Step.
func TestAncestorEventuallyDivides(t *testing.T) {
	sim, err := New(WithSoupSize(2000), WithSeed(1), WithMutationRate(0), WithTimeSlice(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	const maxTurns = 50
	for i := 0; i < maxTurns; i++ {
		if err := sim.StepN(1); err != nil {
			t.Fatalf("StepN: %v", err)
		}
		if sim.Population() > 1 {
			return
		}
	}
	t.Fatalf("population still 1 after %d turns", maxTurns)
}

func TestSetConfigRejectsOutOfRangeMutationRate(t *testing.T) {
	sim, err := New(WithSoupSize(2000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bad := 0.5
	if err := sim.SetConfig(ConfigPatch{MutationRate: &bad}); err == nil {
		t.Fatal("expected an error for mutation_rate out of [0, 0.1]")
	}
}

func TestSetConfigRejectsOutOfRangeMaxPopulation(t *testing.T) {
	sim, err := New(WithSoupSize(2000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bad := 5
	if err := sim.SetConfig(ConfigPatch{MaxPopulation: &bad}); err == nil {
		t.Fatal("expected an error for max_population below 10")
	}
}

func TestSetConfigAppliesValidPatch(t *testing.T) {
	sim, err := New(WithSoupSize(2000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := 20
	if err := sim.SetConfig(ConfigPatch{TimeSlice: &ts}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if sim.cfg.TimeSlice != 20 {
		t.Fatalf("time_slice = %d, want 20", sim.cfg.TimeSlice)
	}
}
