package rewritex

// Emulator performs a capturing abstract interpretation over a decoded
// instruction stream: instructions whose every source is Static are
// folded directly into AbstractState and never reach the output trace;
// an instruction touching any Dynamic source is instead captured
// (appended to the output InstrList, with its destination marked
// Dynamic going forward). CALL to a statically-known target is inlined
// by pushing the return address and continuing decode at the callee
// (HINT_CALL); RET pops that inlining stack (HINT_RET) or, once it is
// empty, terminates the trace for real.
type Emulator struct {
	budget Budget
	state  *AbstractState
	out    *InstrList

	callStack []uintptr
	decoded   int
}

// NewEmulator constructs an emulator seeded with argc Dynamic integer
// argument registers.
func NewEmulator(budget Budget, argc int) *Emulator {
	return &Emulator{
		budget: budget,
		state:  NewAbstractState(argc),
		out:    NewInstrList(budget.MaxInstructions),
	}
}

// readCode is supplied by the caller (rewriter.go) as a view onto the
// target process's code at a given address; the emulator never owns
// process memory itself.
type readCode func(addr uintptr, n int) ([]byte, bool)

// Run decodes and abstractly interprets starting at entry until the
// trace terminates (real RET, a Jcc whose condition is not Static, a
// CALL beyond the inlining depth, or a budget, unreadable-code or
// unrecognized-opcode condition), returning the captured output trace.
func (e *Emulator) Run(entry uintptr, read readCode) (*InstrList, error) {
	pc := entry
	totalBytes := 0

	for {
		if e.decoded >= e.budget.MaxInstructions {
			return nil, captureFatalErr(pc, "instruction budget exceeded")
		}
		if totalBytes >= e.budget.MaxDecodeBytes {
			return nil, captureFatalErr(pc, "decode byte budget exceeded")
		}

		chunk, ok := read(pc, 16)
		if !ok || len(chunk) == 0 {
			return nil, captureFatalErr(pc, "unreadable code address")
		}
		in, err := DecodeOne(chunk, pc)
		if err != nil {
			// The decoder's "never guess" policy only turns fatal once
			// control flow actually reaches the unrecognized bytes.
			in = Instr{Addr: pc, Len: 1, Mnem: MInvalid}
		}
		e.decoded++
		totalBytes += in.Len

		done, err := e.step(in, read, &pc)
		if err != nil {
			return nil, err
		}
		if done {
			return e.out, nil
		}
	}
}

// step applies the capture rule to a single decoded instruction, updating
// pc to wherever control flows next. It reports done=true once the trace
// should stop.
func (e *Emulator) step(in Instr, read readCode, pc *uintptr) (done bool, err error) {
	switch in.Mnem {
	case MInvalid:
		return false, captureFatalErr(in.Addr, "control flow reached an unrecognized opcode")

	case MRet:
		if len(e.callStack) > 0 {
			ret := e.callStack[len(e.callStack)-1]
			e.callStack = e.callStack[:len(e.callStack)-1]
			e.out.Append(Instr{Addr: in.Addr, Len: in.Len, Mnem: MHintRet})
			*pc = ret
			return false, nil
		}
		e.out.Append(in)
		return true, nil

	case MCall:
		target := uintptr(in.Dst.Imm)
		if len(e.callStack) < 64 { // bounded inlining depth
			e.callStack = append(e.callStack, in.Addr+uintptr(in.Len))
			e.out.Append(Instr{Addr: in.Addr, Len: in.Len, Mnem: MHintCall, Dst: in.Dst})
			*pc = target
			return false, nil
		}
		e.captureDynamicControl(in)
		e.out.Append(in)
		return true, nil

	case MJmp:
		*pc = uintptr(in.Dst.Imm)
		return false, nil

	case MJcc:
		// The branch condition's flag tag decides whether this is still
		// foldable: a Static flag lets us follow the taken/not-taken edge
		// without emitting anything; a Dynamic flag forces capture and
		// the trace ends here, since both successors are live.
		if f, ok := condFlag(in.Cond); ok && e.state.FlagTag(f) == Static {
			taken := e.evalCond(in.Cond)
			if taken {
				*pc = uintptr(in.Dst.Imm)
			} else {
				*pc = in.Addr + uintptr(in.Len)
			}
			return false, nil
		}
		e.out.Append(in)
		return true, nil

	case MLea:
		e.stepLea(in)
		*pc = in.Addr + uintptr(in.Len)
		return false, nil

	default:
		if e.isFoldable(in) {
			e.fold(in)
			*pc = in.Addr + uintptr(in.Len)
			return false, nil
		}
		e.capture(in)
		*pc = in.Addr + uintptr(in.Len)
		return false, nil
	}
}

// stepLea specializes a LEA's address computation: any base or index
// register that is currently Static gets folded straight into the
// displacement, leaving only whatever is genuinely Dynamic. If nothing
// Dynamic remains, the destination register becomes Static at the
// computed address and LEA never reaches the output trace; otherwise the
// reduced (and possibly now simpler) addressing form is captured.
func (e *Emulator) stepLea(in Instr) {
	reduced, fullyStatic, addr := e.specializeLea(in.Src)
	if fullyStatic {
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, addr)
		}
		return
	}
	specialized := in
	specialized.Src = reduced
	e.capture(specialized)
}

// specializeLea folds every Static register in an indirect operand into
// its displacement. ok is true when base and index are both gone,
// meaning addr is the fully known target address.
func (e *Emulator) specializeLea(o Operand) (reduced Operand, ok bool, addr uint64) {
	base, index, scale, disp := o.Base, o.Index, o.Scale, o.Disp
	if base != RegNone && e.state.RegTag(base) == Static {
		disp += int64(e.state.RegValue(base))
		base = RegNone
	}
	if index != RegNone && e.state.RegTag(index) == Static {
		disp += int64(e.state.RegValue(index)) * int64(scale)
		index = RegNone
		scale = 0
	}
	if base == RegNone && index == RegNone {
		return Operand{}, true, uint64(disp)
	}
	return Mem(o.Width, base, index, scale, disp, o.Seg), false, 0
}

// captureDynamicControl marks the emulator's state as no longer
// trustworthy for anything downstream of an uninlined call: every
// caller-saved register becomes Dynamic, since the callee may have
// written anything into them.
func (e *Emulator) captureDynamicControl(in Instr) {
	for _, r := range CallerSaved {
		e.state.SetRegDynamic(r)
	}
}

// isFoldable reports whether every operand in.Instr reads from is
// currently Static, meaning the instruction's effect can be computed now
// instead of captured into the output trace.
func (e *Emulator) isFoldable(in Instr) bool {
	if !e.operandStatic(in.Src) || !e.operandStatic(in.Src2) {
		return false
	}
	switch in.Mnem {
	case MNop:
		return true
	case MMov:
		return e.operandStatic(in.Src) && in.Dst.Kind == OpRegister
	case MAdd, MSub, MAnd, MOr, MXor, MCmp, MTest, MMovsx, MMovzx, MShl, MShr, MSar, MRol, MRor:
		return e.operandStatic(in.Dst) && e.operandStatic(in.Src)
	case MNeg, MNot, MInc, MDec:
		return e.operandStatic(in.Dst)
	case MPush:
		return e.operandStatic(in.Dst)
	case MPop:
		return true
	default:
		return false
	}
}

func (e *Emulator) operandStatic(o Operand) bool {
	switch o.Kind {
	case OpNone, OpImmediate:
		return true
	case OpRegister:
		return e.state.RegTag(o.Reg) == Static
	case OpIndirect:
		// Memory is conservatively Dynamic: this state doesn't model a
		// static heap/stack image beyond the tracked push/pop bytes, and
		// indirect addressing through IP/args is always from the caller.
		if o.Base == SP || o.Base == BP {
			return false
		}
		return false
	default:
		return false
	}
}

func (e *Emulator) readOperand(o Operand) uint64 {
	switch o.Kind {
	case OpImmediate:
		return o.Imm
	case OpRegister:
		return e.state.RegValue(o.Reg)
	default:
		return 0
	}
}

// fold applies a Static-only instruction's effect directly to
// AbstractState without emitting anything into the output trace.
func (e *Emulator) fold(in Instr) {
	switch in.Mnem {
	case MMov:
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, e.readOperand(in.Src)&maskWidth(in.Dst.Width))
		}
	case MAdd:
		v, cf, zf, sf, of, pf := addFlags(e.readOperand(in.Dst), e.readOperand(in.Src), in.Dst.Width)
		e.setFlags(cf, zf, sf, of, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MSub, MCmp:
		v, cf, zf, sf, of, pf := subFlags(e.readOperand(in.Dst), e.readOperand(in.Src), in.Dst.Width)
		e.setFlags(cf, zf, sf, of, pf)
		if in.Mnem == MSub && in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MAnd, MTest:
		v := e.readOperand(in.Dst) & e.readOperand(in.Src)
		zf, sf, pf := logicFlags(v, in.Dst.Width)
		e.setFlags(false, zf, sf, false, pf)
		if in.Mnem == MAnd && in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MOr:
		v := e.readOperand(in.Dst) | e.readOperand(in.Src)
		zf, sf, pf := logicFlags(v, in.Dst.Width)
		e.setFlags(false, zf, sf, false, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MXor:
		v := e.readOperand(in.Dst) ^ e.readOperand(in.Src)
		zf, sf, pf := logicFlags(v, in.Dst.Width)
		e.setFlags(false, zf, sf, false, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MNeg:
		v, cf, zf, sf, of, pf := subFlags(0, e.readOperand(in.Dst), in.Dst.Width)
		e.setFlags(cf, zf, sf, of, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MNot:
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, ^e.readOperand(in.Dst)&maskWidth(in.Dst.Width))
		}
	case MInc:
		v, _, zf, sf, of, pf := addFlags(e.readOperand(in.Dst), 1, in.Dst.Width)
		e.setFlags(e.state.FlagValue(FlagCF), zf, sf, of, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MDec:
		v, _, zf, sf, of, pf := subFlags(e.readOperand(in.Dst), 1, in.Dst.Width)
		e.setFlags(e.state.FlagValue(FlagCF), zf, sf, of, pf)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MMovsx, MMovzx:
		v := e.readOperand(in.Src) & maskWidth(in.Src.Width)
		if in.Mnem == MMovsx && v&signBit(in.Src.Width) != 0 {
			v |= ^maskWidth(in.Src.Width)
		}
		v &= maskWidth(in.Dst.Width)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MShl, MShr, MSar, MRol, MRor:
		count := e.readOperand(in.Src)
		mask := uint64(0x1F)
		if in.Dst.Width == W64 {
			mask = 0x3F
		}
		count &= mask
		v := e.shiftValue(in.Mnem, e.readOperand(in.Dst), count, in.Dst.Width)
		if in.Dst.Kind == OpRegister {
			e.state.SetRegStatic(in.Dst.Reg, v)
		}
	case MPush:
		e.state.Push(in.Dst.Width.Bits()/8, Static, e.readOperand(in.Dst))
	case MPop:
		tag, v := e.state.Pop(in.Dst.Width.Bits() / 8)
		if in.Dst.Kind == OpRegister {
			if tag == Static {
				e.state.SetRegStatic(in.Dst.Reg, v)
			} else {
				e.state.SetRegDynamic(in.Dst.Reg)
			}
		}
	}
}

func (e *Emulator) shiftValue(mnem Mnemonic, v, count uint64, w ValueType) uint64 {
	bits := uint(w.Bits())
	mask := maskWidth(w)
	v &= mask
	c := uint(count) % bits
	switch mnem {
	case MShl:
		return (v << c) & mask
	case MShr:
		return (v & mask) >> c
	case MSar:
		signed := int64(v)
		if v&signBit(w) != 0 {
			signed = int64(v | ^mask)
		}
		return uint64(signed>>c) & mask
	case MRol:
		return ((v << c) | (v >> (bits - c))) & mask
	case MRor:
		return ((v >> c) | (v << (bits - c))) & mask
	}
	return v
}

func (e *Emulator) setFlags(cf, zf, sf, of, pf bool) {
	e.state.SetFlagStatic(FlagCF, cf)
	e.state.SetFlagStatic(FlagZF, zf)
	e.state.SetFlagStatic(FlagSF, sf)
	e.state.SetFlagStatic(FlagOF, of)
	e.state.SetFlagStatic(FlagPF, pf)
}

// operandRegisters lists the registers an operand itself names, whether
// it reads one (a register operand) or two (an indirect operand's base
// and index).
func operandRegisters(o Operand) []Register {
	switch o.Kind {
	case OpRegister:
		return []Register{o.Reg}
	case OpIndirect:
		var regs []Register
		if o.Base != RegNone {
			regs = append(regs, o.Base)
		}
		if o.Index != RegNone {
			regs = append(regs, o.Index)
		}
		return regs
	default:
		return nil
	}
}

// readsRegister reports whether in reads r's current value rather than
// merely overwriting it: a destination register is a read for the
// read-modify-write mnemonics (ADD, INC, ...) but not for a plain MOV or
// LEA, which only ever write their register destination.
func readsRegister(in Instr, r Register) bool {
	for _, o := range []Operand{in.Src, in.Src2} {
		if o.Kind == OpRegister && o.Reg == r {
			return true
		}
		if o.Kind == OpIndirect && (o.Base == r || o.Index == r) {
			return true
		}
	}
	if in.Dst.Kind == OpIndirect && (in.Dst.Base == r || in.Dst.Index == r) {
		return true
	}
	switch in.Mnem {
	case MAdd, MSub, MAnd, MOr, MXor, MNeg, MNot, MInc, MDec,
		MShl, MShr, MSar, MRol, MRor, MCmp, MTest, MCmov:
		return in.Dst.Kind == OpRegister && in.Dst.Reg == r
	case MPush:
		return in.Dst.Kind == OpRegister && in.Dst.Reg == r
	}
	return false
}

// flagsDefinedBy lists the condition flags a captured instruction of
// this mnemonic would clobber, matching the set optimizer.go's setsFlags
// enumerates for the same mnemonics.
func flagsDefinedBy(mnem Mnemonic) []Flag {
	switch mnem {
	case MAdd, MSub, MAnd, MOr, MXor, MNeg, MInc, MDec, MCmp, MTest:
		return []Flag{FlagCF, FlagZF, FlagSF, FlagOF, FlagPF}
	default:
		return nil
	}
}

// capture appends in to the output trace. Any register in reads that is
// still tagged Static has a value AbstractState knows but the real
// machine never saw written — so before in, capture emits a materializing
// MOV reg, imm for each one and marks it Dynamic, then marks in's
// destination Dynamic and invalidates every flag in's mnemonic defines,
// since their Static values no longer reflect what this captured
// instruction actually computes at run time.
func (e *Emulator) capture(in Instr) {
	seen := map[Register]bool{}
	for _, o := range []Operand{in.Dst, in.Src, in.Src2} {
		for _, r := range operandRegisters(o) {
			if seen[r] || e.state.RegTag(r) != Static || !readsRegister(in, r) {
				continue
			}
			seen[r] = true
			e.out.Append(Instr{
				Mnem: MMov, Form: FormBinary,
				Dst: Reg64(W64, r),
				Src: Imm64(W64, e.state.RegValue(r)),
			})
			e.state.SetRegDynamic(r)
		}
	}
	e.out.Append(in)
	if in.Dst.Kind == OpRegister {
		e.state.SetRegDynamic(in.Dst.Reg)
	}
	for _, f := range flagsDefinedBy(in.Mnem) {
		e.state.SetFlagDynamic(f)
	}
}

func condFlag(c Cond) (Flag, bool) {
	switch c {
	case CondB, CondAE:
		return FlagCF, true
	case CondE, CondNE:
		return FlagZF, true
	case CondS, CondNS:
		return FlagSF, true
	case CondO, CondNO:
		return FlagOF, true
	case CondP, CondNP:
		return FlagPF, true
	default:
		return 0, false // signed L/LE/G/GE combine SF/OF/ZF; treated as Dynamic-forcing
	}
}

func (e *Emulator) evalCond(c Cond) bool {
	switch c {
	case CondB:
		return e.state.FlagValue(FlagCF)
	case CondAE:
		return !e.state.FlagValue(FlagCF)
	case CondE:
		return e.state.FlagValue(FlagZF)
	case CondNE:
		return !e.state.FlagValue(FlagZF)
	case CondS:
		return e.state.FlagValue(FlagSF)
	case CondNS:
		return !e.state.FlagValue(FlagSF)
	case CondO:
		return e.state.FlagValue(FlagOF)
	case CondNO:
		return !e.state.FlagValue(FlagOF)
	case CondP:
		return e.state.FlagValue(FlagPF)
	case CondNP:
		return !e.state.FlagValue(FlagPF)
	default:
		return false
	}
}
