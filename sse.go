package rewritex

// decodeSSE covers a minimal scalar-float subset: MOVSS/MOVSD (load
// form, F3/F2 0F 10; the 0F 11 store form is not decoded), ADDSS/ADDSD
// (F3/F2 0F 58), and MOVAPS (0F 28). This system stops at plain SSE2 and
// never reasons about AVX.
func decodeSSE(code []byte, addr uintptr, rex rexBits, seg Segment, hasF2, hasF3 bool) (Instr, error) {
	if len(code) < 2 || code[0] != 0x0F {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	switch code[1] {
	case 0x10: // MOVSS/MOVSD xmm, xmm/m
		mnem := MMovss
		if hasF2 {
			mnem = MMovsd
		}
		if !hasF2 && !hasF3 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		reg, rm, n, ok := decodeModRM(code[2:], rex, W128, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		reg.Reg = X0 + (reg.Reg - AX)
		if rm.Kind == OpRegister {
			rm.Reg = X0 + (rm.Reg - AX)
		}
		return Instr{Addr: addr, Len: 2 + n, Mnem: mnem, Form: FormBinary, Dst: reg, Src: rm}, nil

	case 0x58: // ADDSS/ADDSD xmm, xmm/m
		mnem := MAddss
		if hasF2 {
			mnem = MAddsd
		}
		if !hasF2 && !hasF3 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		reg, rm, n, ok := decodeModRM(code[2:], rex, W128, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		reg.Reg = X0 + (reg.Reg - AX)
		if rm.Kind == OpRegister {
			rm.Reg = X0 + (rm.Reg - AX)
		}
		return Instr{Addr: addr, Len: 2 + n, Mnem: mnem, Form: FormBinary, Dst: reg, Src: rm}, nil

	case 0x28: // MOVAPS xmm, xmm/m
		reg, rm, n, ok := decodeModRM(code[2:], rex, W128, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		reg.Reg = X0 + (reg.Reg - AX)
		if rm.Kind == OpRegister {
			rm.Reg = X0 + (rm.Reg - AX)
		}
		return Instr{Addr: addr, Len: 2 + n, Mnem: MMovaps, Form: FormBinary, Dst: reg, Src: rm}, nil

	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
}

func emitSSE(dst []byte, in Instr) []byte {
	var mandatory, opcode []byte
	switch in.Mnem {
	case MMovss:
		mandatory, opcode = []byte{0xF3}, []byte{0x0F, 0x10}
	case MMovsd:
		mandatory, opcode = []byte{0xF2}, []byte{0x0F, 0x10}
	case MAddss:
		mandatory, opcode = []byte{0xF3}, []byte{0x0F, 0x58}
	case MAddsd:
		mandatory, opcode = []byte{0xF2}, []byte{0x0F, 0x58}
	case MMovaps:
		opcode = []byte{0x0F, 0x28}
	default:
		return dst
	}
	// Encoding order is mandatory-prefix, REX, opcode, ModR/M — the
	// F2/F3 selector always precedes REX, unlike withPrefixes' 0x66.
	core, needR, needX, needB := encodeModRM(nil, in.Dst.Reg.Enc(), in.Src)
	dst = append(dst, mandatory...)
	if needR || needX || needB {
		rex := byte(0x40)
		if needR {
			rex |= 0x04
		}
		if needX {
			rex |= 0x02
		}
		if needB {
			rex |= 0x01
		}
		dst = append(dst, rex)
	}
	dst = append(dst, opcode...)
	return append(dst, core...)
}
