package vault

import (
	"encoding/binary"

	"github.com/lockbox-sh/lockbox/krypto"
)

const entryAcceptLabel = "lockbox.entry-accept.v2"

// EntryAcceptTag computes the accept tag for an issued entry challenge:
// HMAC over the challenge counter and nonce, keyed by the master key. The
// counter binding is what makes a replayed accept detectable.
func EntryAcceptTag(masterKey []byte, counter uint64, nonce []byte) []byte {
	msg := make([]byte, 0, len(entryAcceptLabel)+1+8+len(nonce))
	msg = append(msg, entryAcceptLabel...)
	msg = append(msg, 0)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	msg = append(msg, ctr[:]...)
	msg = append(msg, nonce...)
	return krypto.KeyedTag(masterKey, msg)
}

// CheckEntryAccept verifies an accept tag in constant time.
func CheckEntryAccept(masterKey []byte, counter uint64, nonce, accept []byte) bool {
	return krypto.TagsEqual(EntryAcceptTag(masterKey, counter, nonce), accept)
}
