package core

import (
	"crypto/sha256"
)

// GetHash calculates the SHA-256 hash of the concatenated parts
func GetHash(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// PubkeyFromHash derives an address from arbitrary seed bytes, used for
// program ids of deployed code.
func PubkeyFromHash(parts ...[]byte) Pubkey {
	return Pubkey(GetHash(parts...))
}
