// Package ancestor builds the canonical self-replicating genome the
// simulator seeds the soup with at t=0, per spec.md §6's behavioural
// contract: locate the genome's own start and end using two templates,
// compute its size from the two, MallocA that size, copy itself
// cell-by-cell with MovIAB in a loop bounded by DecC/IfCz, then Divide.
//
// Rather than hand-transcribing a literal byte dump (original_source's
// create_ancestor counts a fixed-size IncA loop to reach a hardcoded
// size of 80), this genome locates its own boundaries at runtime: it
// relies on the soup's zero value being Nop0 (soup.New fills every cell
// with it), so a template search that runs off either end of the
// genome into untouched soup finds a boundary without needing a
// dedicated marker region. The computed size therefore always equals
// this genome's actual length, by construction, rather than a constant
// baked in at build time.
package ancestor

import "github.com/maccam912/tierra-rs/isa"

// Build returns the ancestor's instruction sequence. Every organism
// seeded from it, and every descendant that inherits its bytes
// unmutated, computes its own size the same way, so the genome replays
// correctly across generations regardless of where it lands in the soup
// (see the offset-by-offset comments below).
func Build() []isa.Opcode {
	return []isa.Opcode{
		// 0: Adrb searches backward for the complement of its own inline
		// template (offsets 1-4). Since nothing precedes the genome but
		// untouched (Nop0) soup, the nearest run of Nop0 the search can
		// match sits just outside the genome's own start, so AX lands on
		// this genome's first cell.
		isa.Adrb,
		isa.Nop1, isa.Nop1, isa.Nop1, isa.Nop1,

		// 5: stash the start address; we'll need it twice.
		isa.PushA,

		// 6: Adrf searches forward for the complement of its inline
		// template (offsets 7-10). The genome's interior never contains
		// four consecutive Nop0 cells, so the first match is the
		// untouched soup just past the genome's last cell; AX lands four
		// cells past that boundary (the inline template's own length).
		isa.Adrf,
		isa.Nop1, isa.Nop1, isa.Nop1, isa.Nop1,

		// 11: recover the start address into BX.
		isa.PopB,

		// 12: CX = end - start = (genome length + 4), since the forward
		// search overshoots its boundary by its own template length.
		isa.SubAB,

		// 13-16: correct the overshoot; CX now holds the true genome size.
		isa.DecC, isa.DecC, isa.DecC, isa.DecC,

		// 17: MallocA reserves CX cells; AX <- new child's start address.
		// CX is left untouched, so it doubles as the copy-loop counter.
		isa.MallocA,

		// 18: stash the child's address.
		isa.PushA,

		// 19: AX <- BX, which still holds this genome's own start
		// address from the PopB at offset 11.
		isa.MovAB,

		// 20: recover the child's address into BX. Entry state for the
		// copy loop: AX = this genome's start (source, advances with
		// IncA), BX = child's start (destination, advances with IncB),
		// CX = genome size (counts down with DecC).
		isa.PopB,

		// 21-22: loop_start template, addressed by the JmpB below.
		isa.Nop0, isa.Nop0,

		// 23: copy one cell from soup[AX] to soup[BX].
		isa.MovIAB,
		// 24-25: advance both pointers.
		isa.IncA,
		isa.IncB,
		// 26: count down.
		isa.DecC,
		// 27: if CX != 0 (more to copy), skip the Divide below and fall
		// into JmpB; if CX == 0, run Divide and fall out of the loop.
		isa.IfCz,
		// 28: commit the finished copy as a new organism.
		isa.Divide,
		// 29: jump back to loop_start while CX != 0.
		isa.JmpB,
		isa.Nop1, isa.Nop1,
	}
}

// Size is the length of the genome Build returns.
func Size() int {
	return len(Build())
}
