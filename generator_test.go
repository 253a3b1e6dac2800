package rewritex

import "testing"

// TestGenerateTwoPassBranchPatch lays out a forward jmp immediately
// followed by its target (a ret), confirming pass 1's address-independent
// length computation and pass 2's relative-displacement patch agree: the
// jmp's rel32 resolves to 0 since the target is the very next byte.
func TestGenerateTwoPassBranchPatch(t *testing.T) {
	storage, err := AllocateCodeStorage(4096)
	if err != nil {
		t.Fatalf("AllocateCodeStorage: %v", err)
	}
	defer storage.Free()

	instrs := NewInstrList(2)
	instrs.Append(Instr{Addr: 0x1000, Len: 2, Mnem: MJmp, Form: FormUnary, Dst: Imm64(W64, 0x2000)})
	instrs.Append(Instr{Addr: 0x2000, Len: 1, Mnem: MRet, Form: FormZero})

	base, err := Generate(storage, instrs)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if base != storage.Base() {
		t.Fatalf("expected Generate's base to be the region's first reservation")
	}

	want := []byte{0xE9, 0x00, 0x00, 0x00, 0x00, 0xC3}
	got := storage.base[:len(want)]
	for i, b := range want {
		if got[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, got[i])
		}
	}
}

// TestGenerateBackwardBranchPatch lays out a ret followed by a jmp back to
// the start of the region, so the patched rel32 is negative.
func TestGenerateBackwardBranchPatch(t *testing.T) {
	storage, err := AllocateCodeStorage(4096)
	if err != nil {
		t.Fatalf("AllocateCodeStorage: %v", err)
	}
	defer storage.Free()

	instrs := NewInstrList(2)
	instrs.Append(Instr{Addr: 0x1000, Len: 1, Mnem: MRet, Form: FormZero})
	instrs.Append(Instr{Addr: 0x1001, Len: 2, Mnem: MJmp, Form: FormUnary, Dst: Imm64(W64, 0x1000)})

	base, err := Generate(storage, instrs)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// ret is 1 byte; jmp starts at out[1] and is E9 + rel32, total 6 bytes.
	// The jmp's target resolves to the ret's new address (base+0); the next
	// instruction address after the jmp is base+6, so rel32 == -6.
	want := []byte{0xC3, 0xE9, 0xFA, 0xFF, 0xFF, 0xFF}
	got := storage.base[:len(want)]
	for i, b := range want {
		if got[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, got[i])
		}
	}
	_ = base
}
