package rewritex

// decodeIncDec covers INC/DEC r/m. The single-byte opcode-embedded forms
// (0x40-0x47/0x48-0x4F) don't exist in 64-bit mode — that range is REX
// prefixes — so unlike inc.go/dec.go's legacy-mode paths, only the FF /0
// and FF /1 ModR/M forms apply here.
func decodeIncDec(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 2 || code[0] != 0xFF {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	digit := (code[1] >> 3) & 7
	var mnem Mnemonic
	switch digit {
	case 0:
		mnem = MInc
	case 1:
		mnem = MDec
	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
	_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
	if !ok {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	return Instr{Addr: addr, Len: 1 + n, Mnem: mnem, Form: FormUnary, Dst: rm}, nil
}

func emitIncDec(dst []byte, in Instr) []byte {
	digit := uint8(0)
	if in.Mnem == MDec {
		digit = 1
	}
	core := []byte{0xFF}
	needR, needX, needB := false, false, false
	core, needR, needX, needB = encodeModRM(core, digit, in.Dst)
	w := in.Dst.Width == W64
	p66 := in.Dst.Width == W16
	return withPrefixes(dst, core, p66, w, needR, needX, needB)
}
