package rewritex

import "fmt"

// ArgTag marks whether a Rewriter's caller is promising a particular
// System V integer argument is known ahead of time (Static) or must be
// treated as only available at run time (Dynamic, the default for any
// argument never bound through Configure).
type ArgTag int

const (
	ArgDynamic ArgTag = iota
	ArgStatic
)

// argBinding is one argument-index binding recorded by Configure.
type argBinding struct {
	tag   ArgTag
	value uint64
}

// Rewriter is the public entry point: it owns one CodeStorage region
// and turns (entry address, configured argument bindings) pairs into
// specialized native code.
type Rewriter struct {
	storage  *CodeStorage
	budget   Budget
	read     readCode
	bindings map[int]argBinding
}

// NewRewriter allocates storageSize bytes of executable storage and
// configures the default budget from the environment (see config.go).
// read supplies the bytes of the target code region being rewritten;
// production callers back it with a live process's memory, tests back
// it with a plain byte slice.
func NewRewriter(storageSize int, read func(addr uintptr, n int) ([]byte, bool)) (*Rewriter, error) {
	if read == nil {
		return nil, misconfigurationErr("read function must not be nil")
	}
	storage, err := AllocateCodeStorage(storageSize)
	if err != nil {
		return nil, err
	}
	return &Rewriter{
		storage:  storage,
		budget:   DefaultBudget(),
		read:     read,
		bindings: make(map[int]argBinding),
	}, nil
}

// ConfigureBudget overrides the default Budget, e.g. to tighten the
// instruction cap in a test.
func (rw *Rewriter) ConfigureBudget(b Budget) { rw.budget = b }

// Configure binds the System V integer argument at argIndex (0..5,
// following the rdi/rsi/rdx/rcx/r8/r9 order) to tag, with value read
// only when tag is ArgStatic. Binding the same index twice, or an index
// outside the register range, is rejected immediately rather than
// deferred to Specialize.
func (rw *Rewriter) Configure(argIndex int, tag ArgTag, value uint64) error {
	if argIndex < 0 || argIndex >= 6 {
		return misconfigurationErr(fmt.Sprintf("argument index %d out of System V integer register range", argIndex))
	}
	if _, bound := rw.bindings[argIndex]; bound {
		return misconfigurationErr(fmt.Sprintf("argument index %d already bound", argIndex))
	}
	rw.bindings[argIndex] = argBinding{tag: tag, value: value}
	return nil
}

// Specialize runs the full Decoder -> Emulator -> Optimizer -> Generator
// pipeline over the code at entry, using whatever argument bindings were
// previously set up through Configure: an index bound ArgStatic seeds
// the emulator's abstract state with its known value, and every other
// argument register (bound ArgDynamic or never bound at all) is treated
// as unknowable at specialize-time. It returns the address of the
// specialized native code inside the Rewriter's CodeStorage.
func (rw *Rewriter) Specialize(entry uintptr) (uintptr, error) {
	em := NewEmulator(rw.budget, 6)
	for i, b := range rw.bindings {
		if b.tag != ArgStatic {
			continue
		}
		r, ok := ArgRegister(i)
		if !ok {
			return 0, misconfigurationErr(fmt.Sprintf("no System V register for argument %d", i))
		}
		em.state.SetRegStatic(r, b.value)
	}

	trace, err := em.Run(entry, rw.read)
	if err != nil {
		return 0, err
	}

	optimized := Optimize(trace)

	base, err := Generate(rw.storage, optimized)
	if err != nil {
		return 0, err
	}
	return base, nil
}

// Free releases the Rewriter's CodeStorage. Every address Specialize
// previously returned becomes invalid.
func (rw *Rewriter) Free() error { return rw.storage.Free() }
