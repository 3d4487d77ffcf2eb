package isa

import "testing"

func TestComplementIsInvolutive(t *testing.T) {
	for _, op := range []Opcode{Nop0, Nop1} {
		c, ok := op.Complement()
		if !ok {
			t.Fatalf("%s: expected a complement", op)
		}
		back, ok := c.Complement()
		if !ok || back != op {
			t.Fatalf("%s: complement of complement = %s, want %s", op, back, op)
		}
	}
}

func TestNonTemplateHasNoComplement(t *testing.T) {
	if _, ok := IncA.Complement(); ok {
		t.Fatal("IncA should have no complement")
	}
}

func TestFromByteAlwaysValid(t *testing.T) {
	for b := 0; b < 256; b++ {
		op := FromByte(byte(b))
		if !Valid(op) {
			t.Fatalf("FromByte(%d) = %d, not a valid opcode", b, op)
		}
	}
}

func TestEveryOpcodeHasAName(t *testing.T) {
	for op := Opcode(0); int(op) < NumOpcodes; op++ {
		if op.Name() == "???" {
			t.Fatalf("opcode %d has no name", op)
		}
	}
}

func TestIsTemplate(t *testing.T) {
	if !Nop0.IsTemplate() || !Nop1.IsTemplate() {
		t.Fatal("Nop0/Nop1 must be templates")
	}
	if IncA.IsTemplate() {
		t.Fatal("IncA must not be a template")
	}
}
