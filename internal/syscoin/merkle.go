package syscoin

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
)

// MerkleRoot folds an ordered list of block hashes into a Bitcoin-style
// merkle root: pairs are double-SHA256 hashed, an odd element is paired with
// itself, and a single hash is its own root. The zero hash is returned for
// an empty list.
func MerkleRoot(hashes []common.Hash) common.Hash {
	if len(hashes) == 0 {
		return common.Hash{}
	}
	level := make([]chainhash.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = commonToChainHash(h)
	}
	for len(level) > 1 {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			j := i + 1
			if j == len(level) {
				j = i
			}
			next = append(next, hashMerkleNode(level[i], level[j]))
		}
		level = next
	}
	return hashToCommon(level[0])
}

func hashMerkleNode(left, right chainhash.Hash) chainhash.Hash {
	var buf [2 * chainhash.HashSize]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}
