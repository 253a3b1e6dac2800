package rewritex

// encodeInstr dispatches a single Instr to its mnemonic family's emit
// function, returning the updated buffer and, for branch instructions
// carrying a rel32 field, the offset within the returned slice where that
// field's four placeholder bytes begin (-1 otherwise). This is the single
// switchboard every per-mnemonic file's emitX function is reached through.
func encodeInstr(dst []byte, in Instr) (out []byte, relOffset int) {
	// An FS/GS override on a memory operand goes ahead of every prefix the
	// emit functions add themselves.
	for _, o := range []Operand{in.Dst, in.Src} {
		if o.Kind == OpIndirect && o.Seg == SegFS {
			dst = append(dst, 0x64)
			break
		}
		if o.Kind == OpIndirect && o.Seg == SegGS {
			dst = append(dst, 0x65)
			break
		}
	}
	switch in.Mnem {
	case MMov, MLea:
		return emitMov(dst, in), -1
	case MAdd, MSub, MAnd, MOr, MXor, MCmp, MTest, MNeg, MNot:
		return emitArith(dst, in), -1
	case MInc, MDec:
		return emitIncDec(dst, in), -1
	case MShl, MShr, MSar, MRol, MRor:
		return emitShiftRotate(dst, in), -1
	case MMovsx, MMovzx:
		return emitMovExt(dst, in), -1
	case MPush, MPop:
		return emitPushPop(dst, in), -1
	case MJcc, MJmp, MCall, MRet, MCmov, MSet:
		return emitBranch(dst, in)
	case MMovss, MMovsd, MAddss, MAddsd, MMovaps:
		return emitSSE(dst, in), -1
	case MNop:
		return append(dst, 0x90), -1
	default:
		return dst, -1
	}
}

// Generate is the two-pass code generator: pass 1 lays out every
// instruction to learn its final address (encoding length never depends
// on the address itself, since branches are always widened to rel32 —
// see emitBranch), then pass 2 emits real bytes and patches every branch
// target, resolving intra-trace targets against the addresses pass 1
// assigned and leaving any target outside the trace as an absolute
// external address.
func Generate(storage *CodeStorage, instrs *InstrList) (uintptr, error) {
	n := instrs.Len()
	offsets := make([]int, n)
	total := 0
	for i := 0; i < n; i++ {
		buf, _ := encodeInstr(nil, instrs.At(i))
		offsets[i] = total
		total += len(buf)
	}

	base, region, err := storage.Reserve(total)
	if err != nil {
		return 0, err
	}

	addrForSource := make(map[uintptr]uintptr, n)
	for i := 0; i < n; i++ {
		addrForSource[instrs.At(i).Addr] = base + uintptr(offsets[i])
	}

	out := region[:0]
	for i := 0; i < n; i++ {
		in := instrs.At(i)
		var relOff int
		out, relOff = encodeInstr(out, in)
		if relOff >= 0 {
			target := uintptr(in.Dst.Imm)
			if resolved, ok := addrForSource[target]; ok {
				target = resolved
			}
			nextAddr := base + uintptr(len(out))
			rel := int32(int64(target) - int64(nextAddr))
			writeI32LE(out[relOff:relOff+4], rel)
		}
	}

	if len(out) != total {
		return 0, captureFatalErr(base, "generator layout/emit length mismatch")
	}
	if err := storage.Commit(total); err != nil {
		return 0, err
	}
	return base, nil
}
