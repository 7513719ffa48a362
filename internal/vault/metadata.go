package vault

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lockbox-sh/lockbox/krypto"
)

// MetadataVersion is the current on-disk metadata format version. The
// canonical fast-params serialization is pinned to this version; changing
// either requires bumping both together.
const MetadataVersion = 2

// FastParams describes the cheap KDF profile gating key wrap/unwrap.
type FastParams struct {
	KDF         string `json:"kdf"`
	Iterations  uint32 `json:"iterations"`
	MemoryKB    uint32 `json:"memoryKb"`
	Parallelism uint8  `json:"parallelism"`
	Salt        string `json:"salt"`
}

// Params converts the block into KDF cost parameters.
func (fp FastParams) Params() krypto.Params {
	return krypto.Params{
		MemoryKB:    fp.MemoryKB,
		Iterations:  fp.Iterations,
		Parallelism: fp.Parallelism,
	}
}

// DecodeSalt returns the raw fast salt bytes.
func (fp FastParams) DecodeSalt() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(fp.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode fast salt: %w", err)
	}
	return salt, nil
}

// Canonical returns the pinned, field-order-fixed serialization signed by
// the fast-params signature. Field order and formatting must never change
// without a MetadataVersion bump, or existing signatures stop verifying.
func (fp FastParams) Canonical() []byte {
	return []byte(fmt.Sprintf("kdf=%s&iterations=%d&memoryKb=%d&parallelism=%d&salt=%s",
		fp.KDF, fp.Iterations, fp.MemoryKB, fp.Parallelism, fp.Salt))
}

// Metadata is the single per-vault metadata record.
type Metadata struct {
	Version     int    `json:"version"`
	KDF         string `json:"kdf"`
	MemoryKB    uint32 `json:"memoryKb"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
	Salt        string `json:"salt"`

	Cipher      string `json:"cipher"`
	NonceLength int    `json:"nonceLength"`
	Parts       int    `json:"parts"`
	FileBase    string `json:"fileBase"`

	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	Verifier string      `json:"verifier"`
	Fast     *FastParams `json:"fast,omitempty"`
	FastSig  string      `json:"fastSig,omitempty"`

	WrapNonceCounter  uint64 `json:"wrapNonceCounter"`
	EntryNonceCounter uint64 `json:"entryNonceCounter"`
}

// SlowParams converts the metadata's slow KDF block into cost parameters.
func (m *Metadata) SlowParams() krypto.Params {
	return krypto.Params{
		MemoryKB:    m.MemoryKB,
		Iterations:  m.Iterations,
		Parallelism: m.Parallelism,
	}
}

// DecodeSalt returns the raw slow salt bytes.
func (m *Metadata) DecodeSalt() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(m.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return salt, nil
}

// DecodeVerifier returns the raw verifier tag bytes.
func (m *Metadata) DecodeVerifier() ([]byte, error) {
	v, err := base64.StdEncoding.DecodeString(m.Verifier)
	if err != nil {
		return nil, fmt.Errorf("decode verifier: %w", err)
	}
	return v, nil
}

// DecodeFastSig returns the raw fast-params signature bytes.
func (m *Metadata) DecodeFastSig() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(m.FastSig)
	if err != nil {
		return nil, fmt.Errorf("decode fast signature: %w", err)
	}
	return sig, nil
}

// Validate checks structural invariants of a loaded record.
func (m *Metadata) Validate() error {
	if m.Version <= 0 || m.Version > MetadataVersion {
		return fmt.Errorf("unsupported metadata version %d", m.Version)
	}
	if m.KDF != krypto.KDFArgon2id && m.KDF != krypto.KDFPBKDF2 {
		return fmt.Errorf("%w: %q", krypto.ErrUnsupportedKDF, m.KDF)
	}
	if m.NonceLength != krypto.NonceSize {
		return fmt.Errorf("unsupported nonce length %d", m.NonceLength)
	}
	if m.Parts <= 0 {
		return fmt.Errorf("invalid part count %d", m.Parts)
	}
	if m.FileBase == "" {
		return fmt.Errorf("missing file base")
	}
	if m.Verifier == "" {
		return fmt.Errorf("missing verifier")
	}
	if (m.Fast == nil) != (m.FastSig == "") {
		return fmt.Errorf("fast block and fast signature must be present together")
	}
	return nil
}
