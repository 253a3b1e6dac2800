package rewritex

// DecodeOne consumes one x86-64 instruction starting at code[0], tagged
// with the address it would execute at were it still in place (addr),
// and returns the decoded Instr plus the number of bytes consumed.
//
// The prefix loop recognizes legacy prefixes (0x66 operand-size, 0xF2/0xF3
// repeat/SSE selector, 0x2E/0x64/0x65 segment overrides — the rest ignored
// since this system never emits string instructions or lock semantics)
// followed by an optional single REX byte, then dispatches on the opcode.
// An opcode (or ModR/M/SIB/immediate byte run) this decoder can't make
// sense of is reported as a DecoderUnsupported error; callers that want
// the "record an Invalid instruction and keep going" policy should go
// through Decode rather than calling DecodeOne directly.
func DecodeOne(code []byte, addr uintptr) (Instr, error) {
	pos := 0
	var prefixes PrefixSet
	var seg Segment
	p66 := false

	for pos < len(code) {
		switch code[pos] {
		case 0x66:
			prefixes |= PS66
			p66 = true
			pos++
			continue
		case 0xF2:
			prefixes |= PSF2
			pos++
			continue
		case 0xF3:
			prefixes |= PSF3
			pos++
			continue
		case 0x2E: // CS override, not separately modeled
			pos++
			continue
		case 0x64:
			prefixes |= PSSeg
			seg = SegFS
			pos++
			continue
		case 0x65:
			prefixes |= PSSeg
			seg = SegGS
			pos++
			continue
		}
		break
	}

	var rex rexBits
	if pos < len(code) && code[pos]&0xF0 == 0x40 {
		b := code[pos]
		rex = rexBits{
			present: true,
			w:       b&0x08 != 0,
			r:       b&0x04 != 0,
			x:       b&0x02 != 0,
			b:       b&0x01 != 0,
		}
		if rex.w {
			prefixes |= PSRexW
		}
		if rex.r {
			prefixes |= PSRexR
		}
		if rex.x {
			prefixes |= PSRexX
		}
		if rex.b {
			prefixes |= PSRexB
		}
		pos++
	}

	if pos >= len(code) {
		return Instr{}, decoderUnsupportedErr(addr)
	}

	width := restWidth(rex.w, p66)
	rest := code[pos:]
	op := rest[0]

	hasF2 := prefixes&PSF2 != 0
	hasF3 := prefixes&PSF3 != 0

	var in Instr
	var err error

	switch {
	case op == 0x0F && len(rest) >= 2 && rest[1] == 0x1F:
		// multi-byte NOP (0F 1F /0): decoder-level only, never emitted.
		_, _, n, ok := decodeModRM(rest[2:], rex, width, seg)
		if !ok {
			return Instr{}, decoderUnsupportedErr(addr)
		}
		in, err = Instr{Addr: addr, Len: 2 + n, Mnem: MNop, Form: FormZero}, nil

	case op == 0x90 && !hasF2 && !hasF3:
		in, err = Instr{Addr: addr, Len: 1, Mnem: MNop, Form: FormZero}, nil

	case op == 0x0F && len(rest) >= 2 && (rest[1] == 0x10 || rest[1] == 0x58 || rest[1] == 0x28):
		in, err = decodeSSE(rest, addr, rex, seg, hasF2, hasF3)

	case op == 0x0F && len(rest) >= 2 && (rest[1] == 0xB6 || rest[1] == 0xB7 || rest[1] == 0xBE || rest[1] == 0xBF):
		in, err = decodeMovExt(rest, addr, rex, width, seg)

	case op == 0x0F:
		in, err = decodeBranch(rest, addr, rex, width, seg)

	case op >= 0x70 && op <= 0x7F, op == 0xEB, op == 0xE9, op == 0xE8, op == 0xC3:
		in, err = decodeBranch(rest, addr, rex, width, seg)

	case op == 0x89, op == 0x8B, op == 0x8D, op == 0xC7, op >= 0xB8 && op <= 0xBF:
		in, err = decodeMov(rest, addr, rex, width, seg)

	case op == 0xFF:
		in, err = decodeIncDec(rest, addr, rex, width, seg)

	case op >= 0x50 && op <= 0x5F, op == 0x68:
		in, err = decodePushPop(rest, addr, rex)

	case op == 0xC1, op == 0xD3:
		in, err = decodeShiftRotate(rest, addr, rex, width, seg)

	case op == 0xF6, op == 0xF7, op == 0x81, op == 0x83, op == 0x85:
		in, err = decodeArith(rest, addr, rex, width, seg)

	default:
		isArithGroup := false
		for _, base := range arithGroupBase {
			if op == base+1 || op == base+3 {
				isArithGroup = true
				break
			}
		}
		if isArithGroup {
			in, err = decodeArith(rest, addr, rex, width, seg)
		} else {
			return Instr{}, decoderUnsupportedErr(addr)
		}
	}

	if err != nil {
		return Instr{}, err
	}
	in.Len += pos
	in.Prefixes = prefixes
	if in.Dst.Kind == OpIndirect {
		in.Dst.Seg = seg
	}
	if in.Src.Kind == OpIndirect {
		in.Src.Seg = seg
	}
	return in, nil
}

// Decode walks code starting at fp, decoding up to max bytes (or until a
// RET is seen, if stopAtRet is set), and returns the resulting InstrList.
// Unlike DecodeOne, Decode is robust to opcodes it cannot recognize: a
// DecoderUnsupported byte is recorded as a single-byte Instr{Mnem: MInvalid}
// and the cursor advances by one, so one unrecognized byte never aborts
// the whole scan — a later stage (the emulator) decides whether reaching
// that Invalid instruction is actually fatal.
func Decode(read readCode, fp uintptr, max int, stopAtRet bool) (*InstrList, error) {
	out := NewInstrList(max / 2)
	pc := fp
	consumed := 0
	for consumed < max {
		chunk, ok := read(pc, 16)
		if !ok || len(chunk) == 0 {
			return out, nil
		}
		in, err := DecodeOne(chunk, pc)
		if err != nil {
			in = Instr{Addr: pc, Len: 1, Mnem: MInvalid}
		}
		out.Append(in)
		consumed += in.Len
		pc += uintptr(in.Len)
		if stopAtRet && in.Mnem == MRet {
			return out, nil
		}
	}
	return out, nil
}
