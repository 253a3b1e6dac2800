package rewritex

// rexBits holds the four REX prefix bits decoded for a single instruction;
// REX is not sticky across instructions.
type rexBits struct {
	present bool
	w, r, x, b bool
}

// gpReg maps a 4-bit encoding (3 bits + REX extension) to a Register.
// The mapping does not depend on operand width: an 8/16/32-bit operand
// names its underlying 64-bit GP register, and the legacy AH/CH/DH/BH
// byte encodings are not distinguished from SPL/BPL/SIL/DIL.
func gpReg(enc uint8) Register {
	return AX + Register(enc)
}

// decodeModRM implements the ModR/M/SIB decoding tie-breaks: mod==0,rm==5
// is RIP-relative (not a disp32-no-base form), index==4 in SIB always
// suppresses the index register regardless of REX.X, and the SIB
// no-base form (rm==4, base_raw==5, mod==0) is disp32-no-base.
//
// p points at the ModR/M byte itself (prefixes and opcode already
// consumed). Returns the register operand (reg field), the r/m operand,
// and the number of bytes consumed starting at p[0].
func decodeModRM(p []byte, rex rexBits, width ValueType, seg Segment) (regOp, rmOp Operand, consumed int, ok bool) {
	if len(p) < 1 {
		return Operand{}, Operand{}, 0, false
	}
	b := p[0]
	mod := (b >> 6) & 3
	regField := (b >> 3) & 7
	rm := b & 7

	regExt := regField
	if rex.r {
		regExt |= 8
	}
	regOp = Reg64(width, gpReg(regExt))

	if mod == 3 {
		rmExt := rm
		if rex.b {
			rmExt |= 8
		}
		rmOp = Reg64(width, gpReg(rmExt))
		return regOp, rmOp, 1, true
	}

	var scale uint8
	index := RegNone
	base := RegNone
	sibConsumed := 0
	baseRaw := uint8(0)
	haveSIB := rm == 4

	if haveSIB {
		if len(p) < 2 {
			return Operand{}, Operand{}, 0, false
		}
		sib := p[1]
		scale = 1 << ((sib >> 6) & 3)
		idxRaw := (sib >> 3) & 7
		baseRaw = sib & 7
		if idxRaw != 4 {
			ext := idxRaw
			if rex.x {
				ext |= 8
			}
			index = gpReg(ext)
		}
		ext := baseRaw
		if rex.b {
			ext |= 8
		}
		base = gpReg(ext)
		sibConsumed = 1
	} else {
		ext := rm
		if rex.b {
			ext |= 8
		}
		base = gpReg(ext)
	}

	var disp int64
	dispConsumed := 0
	switch {
	case mod == 1:
		if len(p) < 1+sibConsumed+1 {
			return Operand{}, Operand{}, 0, false
		}
		disp = int64(int8(p[1+sibConsumed]))
		dispConsumed = 1
	case mod == 2:
		if len(p) < 1+sibConsumed+4 {
			return Operand{}, Operand{}, 0, false
		}
		disp = int64(readI32LE(p[1+sibConsumed:]))
		dispConsumed = 4
	case mod == 0 && (rm == 5 || (haveSIB && baseRaw == 5)):
		if len(p) < 1+sibConsumed+4 {
			return Operand{}, Operand{}, 0, false
		}
		disp = int64(readI32LE(p[1+sibConsumed:]))
		dispConsumed = 4
		if rm == 5 && !haveSIB {
			base = IP // RIP-relative
		} else {
			base = RegNone // SIB no-base
		}
	}

	if scale == 0 {
		index = RegNone
	}
	rmOp = Mem(width, base, index, scale, disp, seg)
	return regOp, rmOp, 1 + sibConsumed + dispConsumed, true
}

func readI32LE(p []byte) int32 {
	return int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24)
}

func writeI32LE(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}

// encodeModRM is decodeModRM's inverse: given a reg-field register and an
// r/m operand (Register or Indirect), append the ModR/M byte, any SIB
// byte, and any displacement to dst, returning the updated buffer plus
// whether a REX.X/REX.B bit is required for index/base/rm.
//
// regFieldEnc carries the full 0..15 encoding of a real register (bit 3
// signals REX.R is needed) or an opcode-extension digit 0..7 (the /0../7
// forms CMP-with-immediate and friends use, which never need REX.R).
func encodeModRM(dst []byte, regFieldEnc uint8, rm Operand) (out []byte, needR, needX, needB bool) {
	needR = regFieldEnc >= 8
	if rm.Kind == OpRegister {
		modrm := 0xC0 | (regFieldEnc&7)<<3 | (rm.Reg.Enc() & 7)
		return append(dst, modrm), needR, false, rm.Reg.IsExtended()
	}

	base, index, scale, disp := rm.Base, rm.Index, rm.Scale, rm.Disp
	needX = index != RegNone && index.IsExtended()
	needB = base != RegNone && base.IsExtended()

	if base == IP {
		// RIP-relative: mod=00, rm=101.
		modrm := (regFieldEnc&7)<<3 | 5
		dst = append(dst, modrm)
		dst = appendI32(dst, int32(disp))
		return dst, needR, needX, needB
	}

	needsSIB := index != RegNone || base == RegNone || (base.Enc()&7) == 4 // RSP/R12 or absent base needs SIB
	var mod uint8
	switch {
	case base == RegNone:
		mod = 0
	case disp == 0 && (base.Enc()&7) != 5: // RBP/R13 can't use mod=00
		mod = 0
	case disp >= -128 && disp <= 127:
		mod = 1
	default:
		mod = 2
	}

	rmField := uint8(4)
	if !needsSIB {
		rmField = base.Enc() & 7
	}
	modrm := (mod << 6) | (regFieldEnc&7)<<3 | rmField
	dst = append(dst, modrm)

	if needsSIB {
		var scaleBits uint8
		switch scale {
		case 0, 1:
			scaleBits = 0
		case 2:
			scaleBits = 1
		case 4:
			scaleBits = 2
		case 8:
			scaleBits = 3
		}
		idxField := uint8(4) // no index
		if index != RegNone {
			idxField = index.Enc() & 7
		}
		baseField := uint8(5) // no base
		if base != RegNone {
			baseField = base.Enc() & 7
		}
		sib := (scaleBits << 6) | (idxField << 3) | baseField
		dst = append(dst, sib)
		if base == RegNone {
			dst = appendI32(dst, int32(disp)) // SIB no-base: always disp32
			return dst, needR, needX, needB
		}
	}

	switch mod {
	case 1:
		dst = append(dst, byte(int8(disp)))
	case 2:
		dst = appendI32(dst, int32(disp))
	}
	return dst, needR, needX, needB
}

func appendI32(dst []byte, v int32) []byte {
	var b [4]byte
	writeI32LE(b[:], v)
	return append(dst, b[:]...)
}

// withPrefixes prepends the 0x66 operand-size override (if p66) and a
// REX byte (if any of w/r/x/b is set) to core, then appends the result
// to dst. Every emit* function builds its opcode/ModRM/immediate bytes
// into a fresh core slice and finishes through this helper, so REX
// placement is handled in exactly one place regardless of which
// mnemonic is being re-synthesized.
func withPrefixes(dst, core []byte, p66, w, r, x, b bool) []byte {
	if p66 {
		dst = append(dst, 0x66)
	}
	if w || r || x || b {
		rex := byte(0x40)
		if w {
			rex |= 0x08
		}
		if r {
			rex |= 0x04
		}
		if x {
			rex |= 0x02
		}
		if b {
			rex |= 0x01
		}
		dst = append(dst, rex)
	}
	return append(dst, core...)
}
