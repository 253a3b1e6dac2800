package rewritex

// Optimize runs a fixed peephole pipeline over a captured trace. Each
// pass is a single linear scan; passes run in a fixed order and each
// sees the previous pass's output.
func Optimize(trace *InstrList) *InstrList {
	items := trace.Slice()

	// Pass 1: redundant-move elimination (mov r, r is a no-op).
	items = eliminateRedundantMoves(items)

	// Pass 2: identity-arithmetic folding (add r,0 / sub r,0 / and r,-1 /
	// or r,0 / xor-with-self already folded by the emulator, shl/shr r,0).
	items = foldIdentityArithmetic(items)

	// Pass 3: dead-store elimination (a write to a register that is
	// overwritten again before any intervening read is useless).
	items = eliminateDeadStores(items)

	// Pass 4: flag-liveness pruning (a flag-setting instruction whose
	// flags are clobbered again before any Jcc/CMOV/SETcc reads them
	// keeps its data effect but could, in principle, skip flag
	// computation; this system has no separate no-flags encoding to fall
	// back to for most mnemonics, so the pass only removes pure compares
	// — CMP/TEST — whose result is never consumed).
	items = pruneDeadCompares(items)

	out := NewInstrList(len(items))
	for _, in := range items {
		out.Append(in)
	}
	return out
}

func eliminateRedundantMoves(items []Instr) []Instr {
	kept := items[:0:0]
	for _, in := range items {
		if in.Mnem == MMov && in.Dst.Kind == OpRegister && in.Src.Kind == OpRegister && in.Dst.Reg == in.Src.Reg {
			continue
		}
		kept = append(kept, in)
	}
	return kept
}

func foldIdentityArithmetic(items []Instr) []Instr {
	kept := items[:0:0]
	for _, in := range items {
		if isIdentityArith(in) {
			continue
		}
		kept = append(kept, in)
	}
	return kept
}

func isIdentityArith(in Instr) bool {
	if in.Src.Kind != OpImmediate {
		return false
	}
	switch in.Mnem {
	case MAdd, MSub, MOr, MXor, MShl, MShr, MSar, MRol, MRor:
		return in.Src.Imm == 0
	case MAnd:
		return in.Src.Imm == maskWidth(in.Dst.Width)
	default:
		return false
	}
}

// eliminateDeadStores drops an instruction whose only effect is writing a
// register when that register is written again before any instruction in
// between reads it (a store to a location nothing observes).
func eliminateDeadStores(items []Instr) []Instr {
	n := len(items)
	dead := make([]bool, n)
	for i := 0; i < n; i++ {
		dst := writtenRegister(items[i])
		if dst == RegNone || setsFlags(items[i]) {
			continue
		}
		for j := i + 1; j < n; j++ {
			if instrReadsRegister(items[j], dst) {
				break
			}
			if writtenRegister(items[j]) == dst && !dead[j] {
				dead[i] = true
				break
			}
			if isControlTransfer(items[j]) {
				break
			}
		}
	}
	kept := items[:0:0]
	for i, in := range items {
		if !dead[i] {
			kept = append(kept, in)
		}
	}
	return kept
}

func writtenRegister(in Instr) Register {
	switch in.Mnem {
	case MMov, MLea, MMovsx, MMovzx, MAdd, MSub, MAnd, MOr, MXor, MNeg, MNot,
		MInc, MDec, MShl, MShr, MSar, MRol, MRor, MPop, MCmov:
		if in.Dst.Kind == OpRegister {
			return in.Dst.Reg
		}
	}
	return RegNone
}

func instrReadsRegister(in Instr, r Register) bool {
	if in.Src.Kind == OpRegister && in.Src.Reg == r {
		return true
	}
	if in.Src2.Kind == OpRegister && in.Src2.Reg == r {
		return true
	}
	if in.Dst.Kind == OpIndirect && (in.Dst.Base == r || in.Dst.Index == r) {
		return true
	}
	if in.Src.Kind == OpIndirect && (in.Src.Base == r || in.Src.Index == r) {
		return true
	}
	// Read-modify-write mnemonics also read their destination.
	switch in.Mnem {
	case MAdd, MSub, MAnd, MOr, MXor, MNeg, MNot, MInc, MDec, MShl, MShr, MSar, MRol, MRor, MCmp, MTest:
		if in.Dst.Kind == OpRegister && in.Dst.Reg == r {
			return true
		}
	}
	if in.Mnem == MPush && in.Dst.Kind == OpRegister && in.Dst.Reg == r {
		return true
	}
	return false
}

func isControlTransfer(in Instr) bool {
	switch in.Mnem {
	case MCall, MRet, MJmp, MJcc, MHintCall, MHintRet:
		return true
	default:
		return false
	}
}

// pruneDeadCompares drops a CMP/TEST instruction whose flags are
// overwritten by a later flag-setting instruction before any Jcc/CMOV/
// SETcc consumes them.
func pruneDeadCompares(items []Instr) []Instr {
	n := len(items)
	dead := make([]bool, n)
	for i := 0; i < n; i++ {
		if items[i].Mnem != MCmp && items[i].Mnem != MTest {
			continue
		}
		for j := i + 1; j < n; j++ {
			if readsFlags(items[j]) {
				break
			}
			if setsFlags(items[j]) {
				dead[i] = true
				break
			}
			if isControlTransfer(items[j]) {
				break
			}
		}
	}
	kept := items[:0:0]
	for i, in := range items {
		if !dead[i] {
			kept = append(kept, in)
		}
	}
	return kept
}

func setsFlags(in Instr) bool {
	switch in.Mnem {
	case MAdd, MSub, MAnd, MOr, MXor, MNeg, MInc, MDec, MCmp, MTest:
		return true
	default:
		return false
	}
}

func readsFlags(in Instr) bool {
	switch in.Mnem {
	case MJcc, MCmov, MSet:
		return true
	default:
		return false
	}
}
