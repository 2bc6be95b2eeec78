package syscoin

import "errors"

var (
	// ErrInvalidHeader is returned when raw header bytes cannot be decoded,
	// including truncated aux-pow sections and trailing garbage.
	ErrInvalidHeader = errors.New("syscoin: malformed block header")

	// ErrHeaderHashMismatch is returned when a header does not hash to the
	// value the caller claimed for it.
	ErrHeaderHashMismatch = errors.New("syscoin: header does not hash to the claimed value")

	// ErrBadBits is returned when the compact difficulty expands to a
	// non-positive target or one easier than the network's pow limit.
	ErrBadBits = errors.New("syscoin: difficulty bits out of range")

	// ErrProofOfWork is returned when a plain header's hash exceeds the
	// target encoded by its bits.
	ErrProofOfWork = errors.New("syscoin: hash exceeds difficulty target")

	// ErrParentProofOfWork is the merge-mined counterpart: the parent
	// chain's block hash exceeds the Syscoin header's target.
	ErrParentProofOfWork = errors.New("syscoin: parent block hash exceeds target")

	// ErrParentSameChain is returned when the parent block declares the
	// same aux chain id as this chain; merged mining requires a foreign
	// parent.
	ErrParentSameChain = errors.New("syscoin: parent block on the same aux chain")

	// ErrBadChainID is returned when a merge-mined header does not carry
	// the network's aux chain id in its version word.
	ErrBadChainID = errors.New("syscoin: aux chain id mismatch")

	// ErrCoinbaseIndex is returned when the coinbase merkle branch does
	// not place the coinbase at index zero of the parent block.
	ErrCoinbaseIndex = errors.New("syscoin: coinbase branch index is not zero")

	// ErrParentMerkle is returned when the coinbase branch does not
	// connect the coinbase transaction to the parent header's merkle root.
	ErrParentMerkle = errors.New("syscoin: coinbase not in parent merkle tree")

	// ErrMergedMissing is returned when the parent coinbase script lacks
	// the merge-mining commitment for this block.
	ErrMergedMissing = errors.New("syscoin: merge-mining commitment missing from coinbase")

	// ErrMergedDuplicated is returned when the commitment magic appears
	// more than once in the parent coinbase script.
	ErrMergedDuplicated = errors.New("syscoin: merge-mining commitment found twice")

	// ErrChainMerkle is returned when the chain merkle branch, the
	// committed tree size, or the nonce-derived slot disagree with the
	// commitment in the parent coinbase.
	ErrChainMerkle = errors.New("syscoin: chain merkle proof mismatch")
)
