package rewritex

// decodeBranch covers Jcc (rel8 and rel32), unconditional JMP, CALL, RET,
// CMOVcc, and SETcc. Condition codes map directly onto the x86 tttn
// nibble, so the low nibble of whichever opcode byte carries the
// condition (code[0] for Jcc rel8, code[1] for the 0F forms) is its Cond.
func decodeBranch(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 1 {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	op := code[0]

	switch {
	case op >= 0x70 && op <= 0x7F: // Jcc rel8
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		rel := int64(int8(code[1]))
		target := addr + 2 + uintptr(rel)
		return Instr{Addr: addr, Len: 2, Mnem: MJcc, Form: FormUnary, Cond: Cond(op - 0x70),
			Dst: Imm64(W64, uint64(target))}, nil

	case op == 0xEB: // JMP rel8
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		rel := int64(int8(code[1]))
		target := addr + 2 + uintptr(rel)
		return Instr{Addr: addr, Len: 2, Mnem: MJmp, Form: FormUnary, Dst: Imm64(W64, uint64(target))}, nil

	case op == 0xE9: // JMP rel32
		if len(code) < 5 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		rel := int64(readI32LE(code[1:]))
		target := addr + 5 + uintptr(rel)
		return Instr{Addr: addr, Len: 5, Mnem: MJmp, Form: FormUnary, Dst: Imm64(W64, uint64(target))}, nil

	case op == 0xE8: // CALL rel32
		if len(code) < 5 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		rel := int64(readI32LE(code[1:]))
		target := addr + 5 + uintptr(rel)
		return Instr{Addr: addr, Len: 5, Mnem: MCall, Form: FormUnary, Dst: Imm64(W64, uint64(target))}, nil

	case op == 0xC3: // RET (near, no operand)
		return Instr{Addr: addr, Len: 1, Mnem: MRet, Form: FormZero}, nil

	case op == 0x0F:
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		op2 := code[1]
		switch {
		case op2 >= 0x80 && op2 <= 0x8F: // Jcc rel32
			if len(code) < 6 {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			rel := int64(readI32LE(code[2:]))
			target := addr + 6 + uintptr(rel)
			return Instr{Addr: addr, Len: 6, Mnem: MJcc, Form: FormUnary, Cond: Cond(op2 - 0x80),
				Dst: Imm64(W64, uint64(target))}, nil

		case op2 >= 0x40 && op2 <= 0x4F: // CMOVcc r, r/m
			reg, rm, n, ok := decodeModRM(code[2:], rex, width, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 2 + n, Mnem: MCmov, Form: FormBinary, Cond: Cond(op2 - 0x40),
				Dst: reg, Src: rm}, nil

		case op2 >= 0x90 && op2 <= 0x9F: // SETcc r/m8
			_, rm, n, ok := decodeModRM(code[2:], rex, W8, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 2 + n, Mnem: MSet, Form: FormUnary, Cond: Cond(op2 - 0x90), Dst: rm}, nil
		}
	}
	return Instr{}, decoderUnsupportedErr(addr)
}

// emitBranch re-synthesizes branch bytes, leaving any rel32 field zeroed.
// Jcc/JMP/CALL are always widened to rel32 on emission: the generator
// never reasons about whether rel8 would fit, since capture traces are
// rarely dense enough for it to matter and a uniform width keeps the
// two-pass layout arithmetic simple. relOffset is the index
// within the returned slice where the 4-byte placeholder begins, or -1
// if this instruction carries no relocation; pass 2 of the generator
// patches it once every address in the trace is final.
func emitBranch(dst []byte, in Instr) (out []byte, relOffset int) {
	switch in.Mnem {
	case MJcc:
		dst = append(dst, 0x0F, 0x80+byte(in.Cond))
		off := len(dst)
		return appendI32(dst, 0), off
	case MJmp:
		dst = append(dst, 0xE9)
		off := len(dst)
		return appendI32(dst, 0), off
	case MCall:
		dst = append(dst, 0xE8)
		off := len(dst)
		return appendI32(dst, 0), off
	case MRet:
		return append(dst, 0xC3), -1
	case MCmov:
		core := []byte{0x0F, 0x40 + byte(in.Cond)}
		needR, needX, needB := false, false, false
		core, needR, needX, needB = encodeModRM(core, in.Dst.Reg.Enc(), in.Src)
		w := in.Dst.Width == W64
		return withPrefixes(dst, core, false, w, needR, needX, needB), -1
	case MSet:
		core := []byte{0x0F, 0x90 + byte(in.Cond)}
		needR, needX, needB := false, false, false
		core, needR, needX, needB = encodeModRM(core, 0, in.Dst)
		return withPrefixes(dst, core, false, false, needR, needX, needB), -1
	}
	return dst, -1
}
