package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices with
// Keccak-256. Bridge-side identifiers (superblock ids, battle session ids)
// are all derived through it so they match across components.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
