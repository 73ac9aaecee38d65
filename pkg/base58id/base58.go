// Package base58id encodes and decodes the 32-byte asset keys used as the
// natural identifier for on-chain agents.
package base58id

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the fixed length of an asset key in its raw form.
const Size = 32

// Encode base58-encodes a 32-byte asset key. The fixed-size array parameter
// guarantees the length, so Encode has no error or panic path.
func Encode(key [Size]byte) string {
	return base58.Encode(key[:])
}

// Decode parses a base58-encoded asset key, rejecting any value that does not
// decode to exactly Size bytes.
func Decode(s string) ([Size]byte, error) {
	var out [Size]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("base58id: decode %q: %w", s, err)
	}
	if len(raw) != Size {
		return out, fmt.Errorf("base58id: decoded %q to %d bytes, want %d", s, len(raw), Size)
	}
	copy(out[:], raw)
	return out, nil
}

// IsZero reports whether key is the all-zero key, used throughout the event
// payloads to denote an absent/reset value (e.g. wallet reset, default
// pubkey, zero hash).
func IsZero(key [Size]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
