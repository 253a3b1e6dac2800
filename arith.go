package rewritex

// arithOpcode pins down the legacy 8-opcode group layout every one of
// ADD/OR/AND/SUB/XOR/CMP shares: base+0 (r/m8,r8), base+1 (r/m,r),
// base+2 (r8,r/m8), base+3 (r,r/m). Only the 32/64-bit forms matter here.
var arithGroupBase = map[Mnemonic]uint8{
	MAdd: 0x00,
	MOr:  0x08,
	MAnd: 0x20,
	MSub: 0x28,
	MXor: 0x30,
	MCmp: 0x38,
}

// arithDigit is the /digit extension used by the 0x81/0x83 immediate-group
// opcodes and by F7 for NEG/NOT.
var arithDigit = map[Mnemonic]uint8{
	MAdd: 0, MOr: 1, MAnd: 4, MSub: 5, MXor: 6, MCmp: 7,
}

var digitToArith = map[uint8]Mnemonic{
	0: MAdd, 1: MOr, 4: MAnd, 5: MSub, 6: MXor, 7: MCmp,
}

// decodeArith covers ADD/OR/AND/SUB/XOR/CMP/TEST register and immediate
// forms, plus NEG/NOT under the F7 /2 /3 unary group, all through one
// table-driven decoder.
func decodeArith(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 1 {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	op := code[0]

	for mnem, base := range arithGroupBase {
		switch op {
		case base + 1: // r/m, r
			reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 1 + n, Mnem: mnem, Form: FormBinary, Dst: rm, Src: reg, PtEnc: EncMR}, nil
		case base + 3: // r, r/m
			reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 1 + n, Mnem: mnem, Form: FormBinary, Dst: reg, Src: rm, PtEnc: EncRM}, nil
		}
	}

	switch op {
	case 0x81: // r/m, imm32 — digit selects the operation
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		digit := (code[1] >> 3) & 7
		mnem, ok := digitToArith[digit]
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok || len(code) < 1+n+4 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		imm, immW := uint64(uint32(readI32LE(code[1+n:]))), W32
		if width == W64 {
			imm, immW = uint64(int64(readI32LE(code[1+n:]))), W64
		}
		return Instr{Addr: addr, Len: 1 + n + 4, Mnem: mnem, Form: FormBinary, Dst: rm, Src: Imm64(immW, imm)}, nil

	case 0x83: // r/m, imm8 sign-extended
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		digit := (code[1] >> 3) & 7
		mnem, ok := digitToArith[digit]
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok || len(code) < 1+n+1 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		imm, immW := uint64(uint32(int32(int8(code[1+n])))), W32
		if width == W64 {
			imm, immW = uint64(int64(int8(code[1+n]))), W64
		}
		return Instr{Addr: addr, Len: 1 + n + 1, Mnem: mnem, Form: FormBinary, Dst: rm, Src: Imm64(immW, imm)}, nil

	case 0x85: // TEST r/m, r
		reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		return Instr{Addr: addr, Len: 1 + n, Mnem: MTest, Form: FormBinary, Dst: rm, Src: reg, PtEnc: EncMR}, nil

	case 0xF6, 0xF7: // unary group: NEG /3, NOT /2, TEST /0 with immediate
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		digit := (code[1] >> 3) & 7
		w := width
		if op == 0xF6 {
			w = W8
		}
		switch digit {
		case 0: // TEST r/m, imm (imm8 for F6, imm32 for F7)
			_, rm, n, ok := decodeModRM(code[1:], rex, w, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			immLen := 1
			if op == 0xF7 {
				immLen = 4
			}
			if len(code) < 1+n+immLen {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			var imm uint64
			if op == 0xF6 {
				imm = uint64(code[1+n])
			} else {
				imm = uint64(uint32(readI32LE(code[1+n:])))
			}
			return Instr{Addr: addr, Len: 1 + n + immLen, Mnem: MTest, Form: FormBinary, Dst: rm, Src: Imm64(w, imm)}, nil
		case 2: // NOT
			_, rm, n, ok := decodeModRM(code[1:], rex, w, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 1 + n, Mnem: MNot, Form: FormUnary, Dst: rm}, nil
		case 3: // NEG
			_, rm, n, ok := decodeModRM(code[1:], rex, w, seg)
			if !ok {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			return Instr{Addr: addr, Len: 1 + n, Mnem: MNeg, Form: FormUnary, Dst: rm}, nil
		}
		return Instr{}, decoderUnsupportedErr(addr)

	default:
		return Instr{}, decoderUnsupportedErr(addr)
	}
}

// emitArith is the generator-side inverse of decodeArith.
func emitArith(dst []byte, in Instr) []byte {
	w := in.Dst.Width == W64 || in.Src.Width == W64
	p66 := in.Dst.Width == W16 || in.Src.Width == W16
	var needR, needX, needB bool

	switch in.Mnem {
	case MNeg, MNot:
		op := byte(0xF7)
		if in.Dst.Width == W8 {
			op = 0xF6
		}
		core := []byte{op}
		digit := uint8(3)
		if in.Mnem == MNot {
			digit = 2
		}
		core, needR, needX, needB = encodeModRM(core, digit, in.Dst)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}

	base, isGroup := arithGroupBase[in.Mnem]
	if in.Mnem == MTest && in.Src.Kind == OpRegister {
		core := []byte{0x85}
		core, needR, needX, needB = encodeModRM(core, in.Src.Reg.Enc(), in.Dst)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
	if in.Mnem == MTest && in.Src.Kind == OpImmediate {
		op := byte(0xF7)
		if in.Dst.Width == W8 {
			op = 0xF6
		}
		core := []byte{op}
		core, needR, needX, needB = encodeModRM(core, 0, in.Dst)
		if in.Dst.Width == W8 {
			core = append(core, byte(in.Src.Imm))
		} else {
			core = appendI32(core, int32(uint32(in.Src.Imm)))
		}
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
	if !isGroup {
		return dst
	}

	if in.Src.Kind == OpImmediate {
		core := []byte{0x81}
		digit := arithDigit[in.Mnem]
		core, needR, needX, needB = encodeModRM(core, digit, in.Dst)
		core = appendI32(core, int32(uint32(in.Src.Imm)))
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
	if in.Dst.Kind == OpRegister && in.PtEnc != EncMR {
		core := []byte{base + 3}
		core, needR, needX, needB = encodeModRM(core, in.Dst.Reg.Enc(), in.Src)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
	core := []byte{base + 1}
	core, needR, needX, needB = encodeModRM(core, in.Src.Reg.Enc(), in.Dst)
	return withPrefixes(dst, core, p66, w, needR, needX, needB)
}
