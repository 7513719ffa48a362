package service

import (
	"errors"

	"github.com/lockbox-sh/lockbox/krypto"
)

// ErrKeyDestroyed is returned when a destroyed master-key handle is used.
var ErrKeyDestroyed = errors.New("master key destroyed")

// MasterKey is an opaque handle to the unlocked vault key. It lives only in
// process memory; Destroy zeroizes it, after which the handle is unusable.
type MasterKey struct {
	b []byte
}

func newMasterKey(b []byte) *MasterKey {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &MasterKey{b: cp}
}

func (k *MasterKey) bytes() ([]byte, error) {
	if k == nil || k.b == nil {
		return nil, ErrKeyDestroyed
	}
	return k.b, nil
}

// BytesUnsafe exposes the raw key material for tests and trusted callers
// that compute their own keyed tags. The slice aliases the handle; do not
// retain it.
func (k *MasterKey) BytesUnsafe() []byte {
	b, err := k.bytes()
	if err != nil {
		return nil
	}
	return b
}

// Destroy zeroizes the key material. Safe to call more than once.
func (k *MasterKey) Destroy() {
	if k == nil || k.b == nil {
		return
	}
	krypto.Zeroize(k.b)
	k.b = nil
}
