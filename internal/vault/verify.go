package vault

import (
	"github.com/lockbox-sh/lockbox/krypto"
)

const verifierLabel = "lockbox.verifier.v2"
const fastSigLabel = "lockbox.fast-params.v2"

// ComputeVerifier returns a keyed tag confirming a candidate master key
// without decrypting any payload.
func ComputeVerifier(masterKey []byte) []byte {
	return krypto.KeyedTag(masterKey, []byte(verifierLabel))
}

// CheckVerifier reports whether the candidate key matches the stored
// verifier, in constant time.
func CheckVerifier(masterKey, verifier []byte) bool {
	return krypto.TagsEqual(ComputeVerifier(masterKey), verifier)
}

// SignFastParams returns the tamper-detection tag over the canonical
// fast-params serialization, keyed by the master key.
func SignFastParams(masterKey []byte, fp FastParams) []byte {
	msg := append([]byte(fastSigLabel+"\x00"), fp.Canonical()...)
	return krypto.KeyedTag(masterKey, msg)
}

// CheckFastParams reports whether the stored signature matches the block,
// in constant time. A mismatch means the on-disk fast-unlock parameters were
// modified and must not be trusted.
func CheckFastParams(masterKey []byte, fp FastParams, sig []byte) bool {
	return krypto.TagsEqual(SignFastParams(masterKey, fp), sig)
}
