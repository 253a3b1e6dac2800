package rewritex

// System V AMD64 is the only calling convention this system reasons
// about: a CALL the emulator does not inline only needs to know which
// registers the callee is free to clobber.

// CallerSaved lists the integer registers a callee is free to clobber
// without the caller expecting them preserved across a CALL.
var CallerSaved = []Register{AX, CX, DX, SI, DI, R8, R9, R10, R11}

// CalleeSaved lists the integer registers a callee must restore before
// returning.
var CalleeSaved = []Register{BX, BP, R12, R13, R14, R15}

// IsCallerSaved reports whether r is clobbered by a System V call.
func IsCallerSaved(r Register) bool {
	for _, cr := range CallerSaved {
		if cr == r {
			return true
		}
	}
	return false
}
