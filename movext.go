package rewritex

// decodeMovExt covers the two-byte MOVZX/MOVSX forms (0F B6/B7 zero-
// extend, 0F BE/BF sign-extend), each reading an 8- or 16-bit source into
// a wider destination.
func decodeMovExt(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 2 || code[0] != 0x0F {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	var mnem Mnemonic
	var srcWidth ValueType
	switch code[1] {
	case 0xB6:
		mnem, srcWidth = MMovzx, W8
	case 0xB7:
		mnem, srcWidth = MMovzx, W16
	case 0xBE:
		mnem, srcWidth = MMovsx, W8
	case 0xBF:
		mnem, srcWidth = MMovsx, W16
	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
	reg, rm, n, ok := decodeModRM(code[2:], rex, srcWidth, seg)
	if !ok {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	reg.Width = width
	return Instr{Addr: addr, Len: 2 + n, Mnem: mnem, Form: FormBinary, Dst: reg, Src: rm}, nil
}

func emitMovExt(dst []byte, in Instr) []byte {
	var op byte
	switch {
	case in.Mnem == MMovzx && in.Src.Width == W8:
		op = 0xB6
	case in.Mnem == MMovzx && in.Src.Width == W16:
		op = 0xB7
	case in.Mnem == MMovsx && in.Src.Width == W8:
		op = 0xBE
	default:
		op = 0xBF
	}
	core := []byte{0x0F, op}
	needR, needX, needB := false, false, false
	core, needR, needX, needB = encodeModRM(core, in.Dst.Reg.Enc(), in.Src)
	w := in.Dst.Width == W64
	return withPrefixes(dst, core, false, w, needR, needX, needB)
}
