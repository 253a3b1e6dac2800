package rewritex

// Mnemonic is the closed instruction-kind enum this system operates on:
// every opcode family the decoder recognizes, the emulator's arithmetic
// semantics compute over, and the generator re-synthesizes.
type Mnemonic int

const (
	MNop Mnemonic = iota
	MInvalid

	MMov
	MLea
	MMovsx
	MMovzx

	MAdd
	MSub
	MAnd
	MOr
	MXor
	MNeg
	MNot
	MInc
	MDec
	MCmp
	MTest

	MShl
	MShr
	MSar
	MRol
	MRor

	MPush
	MPop

	MCall
	MRet
	MJmp
	MJcc
	MCmov
	MSet

	// Basic SSE2 scalar float subset (Non-goal caps us below AVX-512).
	MMovss
	MMovsd
	MAddss
	MAddsd
	MMovaps

	// Capture-hint pseudo-ops marking where the emulator inlined a CALL
	// and popped the matching RET; the generator drops both before emit.
	MHintCall
	MHintRet
)

// OperandForm records how many operands an Instruction has.
type OperandForm int

const (
	FormZero OperandForm = iota
	FormUnary
	FormBinary
	FormTernary
)

// EncKind hints at which ModR/M operand order a captured instruction used
// (reg,r/m vs r/m,reg), letting the generator re-synthesize the same form
// it decoded rather than always preferring one encoding.
type EncKind int

const (
	EncNone EncKind = iota
	EncRM           // ModR/M reg, r/m
	EncMR           // ModR/M r/m, reg
	EncRMI          // ModR/M reg, r/m, imm
)

// Cond is an x86 condition code, shared by Jcc/CMOV/SETcc.
type Cond int

const (
	CondO Cond = iota
	CondNO
	CondB
	CondAE
	CondE
	CondNE
	CondBE
	CondA
	CondS
	CondNS
	CondP
	CondNP
	CondL
	CondGE
	CondLE
	CondG
)

// PrefixSet is a bitmask of legacy prefixes recognized during decode,
// retained on the Instruction as a record of what was decoded. The
// generator does not read it: it derives every prefix it emits from the
// mnemonic and the operands.
type PrefixSet uint8

const (
	PS66 PrefixSet = 1 << iota
	PSF2
	PSF3
	PSSeg
	PSRexW
	PSRexR
	PSRexX
	PSRexB
)

// Instr is a flat, decoded instruction: both ends of the pipeline (the
// decoder producing it, the generator re-encoding it) share this one
// representation rather than a per-mnemonic type hierarchy.
type Instr struct {
	Addr uintptr // source address: fp + offset_at_start
	Len  int     // byte length consumed by the decoder

	Mnem Mnemonic
	Form OperandForm
	Cond Cond

	Dst  Operand
	Src  Operand
	Src2 Operand

	Prefixes PrefixSet
	PtEnc    EncKind
}

// InstrList is a growable, capacity-bounded sequence of Instr values.
// The bound is a hint, not a hard ceiling: Append grows past it. The
// emulator's instruction budget (see config.go) counts decoded
// instructions, not len(list), and raises CaptureFatal when that count
// reaches the budget.
type InstrList struct {
	items []Instr
}

// NewInstrList preallocates capacity for cap0 instructions.
func NewInstrList(cap0 int) *InstrList {
	if cap0 <= 0 {
		cap0 = 64
	}
	return &InstrList{items: make([]Instr, 0, cap0)}
}

func (l *InstrList) Append(in Instr) { l.items = append(l.items, in) }
func (l *InstrList) Len() int        { return len(l.items) }
func (l *InstrList) At(i int) Instr  { return l.items[i] }
func (l *InstrList) Set(i int, in Instr) { l.items[i] = in }
func (l *InstrList) Slice() []Instr  { return l.items }

// Truncate drops everything from index i onward.
func (l *InstrList) Truncate(i int) { l.items = l.items[:i] }
