package rewritex

// decodePushPop covers the opcode-embedded register forms (0x50+rd PUSH,
// 0x58+rd POP) and PUSH imm32 (0x68).
func decodePushPop(code []byte, addr uintptr, rex rexBits) (Instr, error) {
	if len(code) < 1 {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	op := code[0]
	switch {
	case op >= 0x50 && op <= 0x57:
		enc := op - 0x50
		if rex.b {
			enc |= 8
		}
		return Instr{Addr: addr, Len: 1, Mnem: MPush, Form: FormUnary, Dst: Reg64(W64, gpReg(enc))}, nil

	case op >= 0x58 && op <= 0x5F:
		enc := op - 0x58
		if rex.b {
			enc |= 8
		}
		return Instr{Addr: addr, Len: 1, Mnem: MPop, Form: FormUnary, Dst: Reg64(W64, gpReg(enc))}, nil

	case op == 0x68:
		if len(code) < 5 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		imm := uint64(uint32(readI32LE(code[1:])))
		return Instr{Addr: addr, Len: 5, Mnem: MPush, Form: FormUnary, Dst: Imm64(W32, imm)}, nil

	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
}

func emitPushPop(dst []byte, in Instr) []byte {
	if in.Dst.Kind == OpImmediate {
		dst = append(dst, 0x68)
		return appendI32(dst, int32(uint32(in.Dst.Imm)))
	}
	base := byte(0x50)
	if in.Mnem == MPop {
		base = 0x58
	}
	core := []byte{base + in.Dst.Reg.Enc()&7}
	return withPrefixes(dst, core, false, false, false, false, in.Dst.Reg.IsExtended())
}
