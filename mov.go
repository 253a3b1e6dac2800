package rewritex

// decodeMov handles the MOV forms this decoder supports: reg/mem, mem/reg,
// reg,imm32 (0xC7 /0) and the opcode-embedded form (0xB8+rd: reg,imm64
// under REX.W, reg,imm32 otherwise).
// LEA lives here too since it shares MOV's ModR/M addressing shape.
func decodeMov(code []byte, addr uintptr, rex rexBits, width ValueType, seg Segment) (Instr, error) {
	if len(code) < 1 {
		return Instr{}, decoderUnsupportedErr(addr)
	}
	op := code[0]
	switch op {
	case 0x89: // MOV r/m, r (register is source)
		reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		return Instr{Addr: addr, Len: 1 + n, Mnem: MMov, Form: FormBinary, Dst: rm, Src: reg, PtEnc: EncMR}, nil

	case 0x8B: // MOV r, r/m (register is destination)
		reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		return Instr{Addr: addr, Len: 1 + n, Mnem: MMov, Form: FormBinary, Dst: reg, Src: rm, PtEnc: EncRM}, nil

	case 0x8D: // LEA r, m — address computation, memory not dereferenced
		reg, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok || !rm.IsMemory() {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		return Instr{Addr: addr, Len: 1 + n, Mnem: MLea, Form: FormBinary, Dst: reg, Src: rm, PtEnc: EncRM}, nil

	case 0xC7: // MOV r/m, imm32 (/0 digit, only form this decoder accepts)
		if len(code) < 2 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		digit := (code[1] >> 3) & 7
		if digit != 0 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		_, rm, n, ok := decodeModRM(code[1:], rex, width, seg)
		if !ok || len(code) < 1+n+4 {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		imm := uint64(uint32(readI32LE(code[1+n:])))
		return Instr{Addr: addr, Len: 1 + n + 4, Mnem: MMov, Form: FormBinary, Dst: rm, Src: Imm64(W32, imm)}, nil

	default:
		if op >= 0xB8 && op <= 0xBF { // MOV r64, imm64 with REX.W, else MOV r32, imm32
			enc := op - 0xB8
			if rex.b {
				enc |= 8
			}
			if !rex.w {
				immLen := 4 // imm16 under a 0x66 prefix
				if width == W16 {
					immLen = 2
				}
				if len(code) < 1+immLen {
					return Instr{}, decoderUnsupportedErr(addr)
				}
				var imm uint64
				for i := immLen; i >= 1; i-- {
					imm = imm<<8 | uint64(code[i])
				}
				return Instr{Addr: addr, Len: 1 + immLen, Mnem: MMov, Form: FormBinary,
					Dst: Reg64(width, gpReg(enc)), Src: Imm64(width, imm)}, nil
			}
			if len(code) < 9 {
				return Instr{}, decoderUnsupportedErr(addr)
			}
			imm := uint64(code[1]) | uint64(code[2])<<8 | uint64(code[3])<<16 | uint64(code[4])<<24 |
				uint64(code[5])<<32 | uint64(code[6])<<40 | uint64(code[7])<<48 | uint64(code[8])<<56
			return Instr{Addr: addr, Len: 9, Mnem: MMov, Form: FormBinary,
				Dst: Reg64(W64, gpReg(enc)), Src: Imm64(W64, imm)}, nil
		}
		return Instr{}, decoderUnsupportedErr(addr)
	}
}

// emitMov re-synthesizes the bytes for a captured or passed-through MOV/LEA
// instruction. The generator calls this during pass 2 once every address
// is final.
func emitMov(dst []byte, in Instr) []byte {
	w := in.Dst.Width == W64 || in.Src.Width == W64
	p66 := in.Dst.Width == W16 || in.Src.Width == W16

	switch {
	case in.Mnem == MLea:
		core := []byte{0x8D}
		var needR, needX, needB bool
		core, needR, needX, needB = encodeModRM(core, in.Dst.Reg.Enc(), in.Src)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)

	case in.Src.Kind == OpImmediate && in.Dst.Kind == OpRegister && in.Dst.Width == W64 && in.Src.Imm > 0xFFFFFFFF:
		core := []byte{0xB8 + in.Dst.Reg.Enc()&7}
		v := in.Src.Imm
		for i := 0; i < 8; i++ {
			core = append(core, byte(v))
			v >>= 8
		}
		return withPrefixes(dst, core, false, true, false, false, in.Dst.Reg.IsExtended())

	case in.Src.Kind == OpImmediate:
		core := []byte{0xC7}
		var needR, needX, needB bool
		core, needR, needX, needB = encodeModRM(core, 0, in.Dst)
		core = appendI32(core, int32(uint32(in.Src.Imm)))
		return withPrefixes(dst, core, p66, w, needR, needX, needB)

	case in.Dst.Kind == OpRegister:
		core := []byte{0x8B}
		var needR, needX, needB bool
		core, needR, needX, needB = encodeModRM(core, in.Dst.Reg.Enc(), in.Src)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)

	default: // register is the source, r/m is the destination
		core := []byte{0x89}
		var needR, needX, needB bool
		core, needR, needX, needB = encodeModRM(core, in.Src.Reg.Enc(), in.Dst)
		return withPrefixes(dst, core, p66, w, needR, needX, needB)
	}
}

func restWidth(rexW bool, p66 bool) ValueType {
	switch {
	case rexW:
		return W64
	case p66:
		return W16
	default:
		return W32
	}
}
