package ancestor

import (
	"math/rand"
	"testing"

	"github.com/maccam912/tierra-rs/cpu"
	"github.com/maccam912/tierra-rs/isa"
	"github.com/maccam912/tierra-rs/organism"
	"github.com/maccam912/tierra-rs/soup"
)

func TestBuildShape(t *testing.T) {
	g := Build()
	if len(g) == 0 {
		t.Fatal("empty genome")
	}
	var sawMalloc, sawDivide, sawCode bool
	for _, op := range g {
		switch op {
		case isa.MallocA:
			sawMalloc = true
		case isa.Divide:
			sawDivide = true
		}
		if !op.IsTemplate() {
			sawCode = true
		}
	}
	if !sawMalloc || !sawDivide || !sawCode {
		t.Fatalf("genome fails the Divide-validation contract: malloc=%v divide=%v code=%v", sawMalloc, sawDivide, sawCode)
	}
}

// TestReplicates drives a freshly-seeded ancestor through cpu.Step, with
// all mutation disabled, until it divides, then checks the child's
// genome is byte-identical to the parent's — the stasis property
// spec.md §8's law 3 and scenario 1 require.
func TestReplicates(t *testing.T) {
	const soupSize = 512
	s := soup.New(soupSize)
	g := Build()
	addr, ok := s.Reserve(len(g), 0)
	if !ok {
		t.Fatal("could not place ancestor")
	}
	for i, op := range g {
		s.Write(addr+i, op)
	}
	o := organism.New(0, addr, len(g), 0)

	cfg := cpu.DefaultConfig(soupSize)
	cfg.CopyMutationRate = 0
	rng := rand.New(rand.NewSource(1))

	var result cpu.Result
	const maxSteps = 10000
	steps := 0
	for ; steps < maxSteps; steps++ {
		result = cpu.Step(o, s, rng, nil, cfg)
		if result.Divided {
			break
		}
	}
	if !result.Divided {
		t.Fatalf("ancestor did not divide within %d steps (errors=%d, ip=%d)", maxSteps, o.Errors, o.IP)
	}
	if result.ChildSize != len(g) {
		t.Fatalf("child size = %d, want %d", result.ChildSize, len(g))
	}
	for i := 0; i < len(g); i++ {
		got := s.Read(result.ChildAddr + i)
		if got != g[i] {
			t.Fatalf("child cell %d = %s, want %s", i, got, g[i])
		}
	}
}
