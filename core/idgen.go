package core

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// IDLength is the length of generated node identifiers in hex characters.
const IDLength = 8

// GenerateID produces a fixed-length lowercase hex identifier derived from
// a cryptographically strong random source, re-rolling until the result is
// absent from exclude. There is no persistent registry; uniqueness holds
// only against the supplied set.
func GenerateID(exclude map[string]struct{}) string {
	for {
		var seed [16]byte
		if _, err := rand.Read(seed[:]); err != nil {
			panic(err)
		}
		h, _ := blake2b.New(IDLength/2, nil)
		h.Write(seed[:])
		id := hex.EncodeToString(h.Sum(nil))
		if _, taken := exclude[id]; !taken {
			return id
		}
	}
}

// IsHex reports whether s is non-empty and entirely hex digits.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
