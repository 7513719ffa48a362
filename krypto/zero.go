package krypto

import "crypto/subtle"

// Zeroize overwrites sensitive byte slices in place to reduce their lifetime
// in memory. The constant-time copy keeps the compiler from eliding the
// store; Go's garbage collector still makes complete erasure best-effort.
func Zeroize(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}
