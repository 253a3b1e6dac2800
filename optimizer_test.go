package rewritex

import "testing"

func traceOf(items ...Instr) *InstrList {
	l := NewInstrList(len(items))
	for _, in := range items {
		l.Append(in)
	}
	return l
}

// TestOptimizeDropsRedundantMoveAndIdentityAdd confirms passes 1 and 2:
// "mov rax, rax" and "add rax, 0" are both no-ops and should disappear,
// leaving only the ret.
func TestOptimizeDropsRedundantMoveAndIdentityAdd(t *testing.T) {
	trace := traceOf(
		Instr{Mnem: MMov, Form: FormBinary, Dst: Reg64(W64, AX), Src: Reg64(W64, AX)},
		Instr{Mnem: MAdd, Form: FormBinary, Dst: Reg64(W64, AX), Src: Imm64(W64, 0)},
		Instr{Mnem: MRet, Form: FormZero},
	)
	out := Optimize(trace)
	if out.Len() != 1 {
		t.Fatalf("expected 1 surviving instruction, got %d", out.Len())
	}
	if out.At(0).Mnem != MRet {
		t.Errorf("expected MRet, got %v", out.At(0).Mnem)
	}
}

// TestOptimizeEliminatesDeadStore confirms pass 3: a mov into rax that is
// overwritten by a second mov before anything reads the first value is
// dropped.
func TestOptimizeEliminatesDeadStore(t *testing.T) {
	trace := traceOf(
		Instr{Mnem: MMov, Form: FormBinary, Dst: Reg64(W64, AX), Src: Imm64(W64, 1)},
		Instr{Mnem: MMov, Form: FormBinary, Dst: Reg64(W64, AX), Src: Imm64(W64, 2)},
		Instr{Mnem: MRet, Form: FormZero},
	)
	out := Optimize(trace)
	if out.Len() != 2 {
		t.Fatalf("expected the first mov to be eliminated, got %d instructions", out.Len())
	}
	if out.At(0).Mnem != MMov || out.At(0).Src.Imm != 2 {
		t.Errorf("expected the surviving mov to load 2, got src imm %d", out.At(0).Src.Imm)
	}
	if out.At(1).Mnem != MRet {
		t.Errorf("expected MRet second, got %v", out.At(1).Mnem)
	}
}

// TestOptimizeKeepsStoreReadBeforeOverwrite confirms a dead-store false
// positive doesn't happen: if the first mov's value is read (e.g. by an
// add) before the second mov clobbers it, both movs survive.
func TestOptimizeKeepsStoreReadBeforeOverwrite(t *testing.T) {
	trace := traceOf(
		Instr{Mnem: MMov, Form: FormBinary, Dst: Reg64(W64, AX), Src: Imm64(W64, 1)},
		Instr{Mnem: MAdd, Form: FormBinary, Dst: Reg64(W64, CX), Src: Reg64(W64, AX)},
		Instr{Mnem: MMov, Form: FormBinary, Dst: Reg64(W64, AX), Src: Imm64(W64, 2)},
		Instr{Mnem: MRet, Form: FormZero},
	)
	out := Optimize(trace)
	if out.Len() != 4 {
		t.Fatalf("expected all 4 instructions to survive, got %d", out.Len())
	}
}

// TestOptimizePrunesDeadCompare confirms pass 4: a cmp whose flags are
// clobbered by a later flag-setting add before any Jcc/CMOV/SETcc reads
// them is dropped.
func TestOptimizePrunesDeadCompare(t *testing.T) {
	trace := traceOf(
		Instr{Mnem: MCmp, Form: FormBinary, Dst: Reg64(W64, AX), Src: Reg64(W64, BX)},
		Instr{Mnem: MAdd, Form: FormBinary, Dst: Reg64(W64, CX), Src: Reg64(W64, DX)},
		Instr{Mnem: MRet, Form: FormZero},
	)
	out := Optimize(trace)
	if out.Len() != 2 {
		t.Fatalf("expected the cmp to be pruned, got %d instructions", out.Len())
	}
	if out.At(0).Mnem != MAdd {
		t.Errorf("expected MAdd first, got %v", out.At(0).Mnem)
	}
}

// TestOptimizeKeepsCompareReadByJcc confirms a cmp feeding a conditional
// jump survives even though nothing else reads the flags afterward.
func TestOptimizeKeepsCompareReadByJcc(t *testing.T) {
	trace := traceOf(
		Instr{Mnem: MCmp, Form: FormBinary, Dst: Reg64(W64, AX), Src: Reg64(W64, BX)},
		Instr{Mnem: MJcc, Form: FormUnary, Cond: CondE, Dst: Imm64(W64, 0x2000)},
	)
	out := Optimize(trace)
	if out.Len() != 2 {
		t.Fatalf("expected both instructions to survive, got %d", out.Len())
	}
	if out.At(0).Mnem != MCmp {
		t.Errorf("expected MCmp first, got %v", out.At(0).Mnem)
	}
}
