package syscoin

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
)

// TargetFromBits expands a compact difficulty encoding into the full
// 256-bit target.
func TargetFromBits(bits uint32) *big.Int {
	return blockchain.CompactToBig(bits)
}

// BitsFromTarget compresses a target back into its compact encoding.
func BitsFromTarget(target *big.Int) uint32 {
	return blockchain.BigToCompact(target)
}

// WorkFromBits returns the expected number of hashes needed to find a block
// at the given difficulty, the quantity accumulated-work bookkeeping sums.
func WorkFromBits(bits uint32) *big.Int {
	return blockchain.CalcWork(bits)
}

// RetargetBounds returns the inclusive target range a difficulty adjustment
// may move to from the given bits. One adjustment can make blocks at most
// four times harder or four times easier to mine.
func RetargetBounds(bits uint32) (lower, upper *big.Int) {
	target := blockchain.CompactToBig(bits)
	lower = new(big.Int).Rsh(target, 2)
	upper = new(big.Int).Lsh(target, 2)
	return lower, upper
}
