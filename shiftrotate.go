package rewritex

var shiftDigit = map[Mnemonic]uint8{
	MRol: 0, MRor: 1, MShl: 4, MShr: 5, MSar: 7,
}

var digitToShift = map[uint8]Mnemonic{
	0: MRol, 1: MRor, 4: MShl, 5: MShr, 7: MSar,
}

// decodeShiftRotate covers the C1 /digit,imm8 and D3 /digit,CL forms.
// The count is masked to 6 bits for 64-bit operands and 5 bits otherwise
// at emulation time, not here — the decoder preserves the raw encoded
// byte so re-emission is lossless.
func decodeShiftRotate(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 2 {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	op := code[0]
	digit := (code[1] >> 3) & 7
	mnem, ok := digitToShift[digit]
	if !ok {
		return Instr{}, decoderUnsupportedErr(addr)
	}

	switch op {
	case 0xC1: // r/m, imm8
		_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok || len(code) < 1+n+1 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		imm := uint64(code[1+n])
		return Instr{Addr: addr, Len: 1 + n + 1, Mnem: mnem, Form: FormBinary, Dst: rm, Src: Imm64(W8, imm)}, nil

	case 0xD3: // r/m, CL
		_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		return Instr{Addr: addr, Len: 1 + n, Mnem: mnem, Form: FormBinary, Dst: rm, Src: Reg64(W8, CX)}, nil

	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
}

func emitShiftRotate(dst []byte, in Instr) []byte {
	digit := shiftDigit[in.Mnem]
	w := in.Dst.Width == W64
	p66 := in.Dst.Width == W16
	var needR, needX, needB bool
	if in.Src.Kind == OpImmediate {
		core := []byte{0xC1}
		core, needR, needX, needB = encodeModRM(core, digit, in.Dst)
		core = append(core, byte(in.Src.Imm))
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
	core := []byte{0xD3}
	core, needR, needX, needB = encodeModRM(core, digit, in.Dst)
	return withPrefixes(dst, core, p66, w, needR, needX, needB)
}
