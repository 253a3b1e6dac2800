package rewritex

import "github.com/xyproto/env/v2"

// Budget bounds a single specialize call: the emulator must make bounded
// progress, and CaptureFatal fires once either limit is exceeded.
type Budget struct {
	MaxInstructions int
	MaxDecodeBytes  int
	Verbose         bool
}

const (
	defaultMaxInstructions = 200_000
	defaultMaxDecodeBytes  = 1 << 20
)

// DefaultBudget reads REWRITEX_MAX_INSTRUCTIONS, REWRITEX_MAX_DECODE_BYTES,
// and REWRITEX_VERBOSE from the environment, falling back to generous
// defaults when unset.
func DefaultBudget() Budget {
	return Budget{
		MaxInstructions: env.IntOr("REWRITEX_MAX_INSTRUCTIONS", defaultMaxInstructions),
		MaxDecodeBytes:  env.IntOr("REWRITEX_MAX_DECODE_BYTES", defaultMaxDecodeBytes),
		Verbose:         env.Bool("REWRITEX_VERBOSE"),
	}
}
