// Package syscoin implements the Syscoin block header codec together with
// the proof-of-work, merged-mining and merkle rules the battle arbitration
// relies on. All functions are pure; persistence and session state live in
// the callers.
package syscoin

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"

	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
)

const (
	// baseHeaderLen is the serialized size of the version/prev/merkle/
	// time/bits/nonce header shared with Bitcoin.
	baseHeaderLen = 80

	// versionAuxPowFlag marks a merge-mined header. The low byte keeps
	// the base block version and bits 16..30 carry the aux chain id.
	versionAuxPowFlag = 0x100

	// versionChainIDShift positions the aux chain id inside the version
	// word.
	versionChainIDShift = 16
)

// BlockHeader is a decoded Syscoin block header. Merge-mined headers carry
// the aux-pow section proving inclusion in a foreign parent block; for plain
// headers AuxPoW is nil.
type BlockHeader struct {
	Base   wire.BlockHeader
	AuxPoW *AuxPoW
}

// ParseHeader decodes raw into a BlockHeader. The aux-pow section is decoded
// exactly when the version word carries the aux flag, and raw must contain
// nothing beyond the encoded header.
func ParseHeader(raw []byte) (*BlockHeader, error) {
	if len(raw) < baseHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(raw))
	}
	r := bytes.NewReader(raw)
	hdr := &BlockHeader{}
	if err := hdr.Base.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if hdr.Base.Version&versionAuxPowFlag != 0 {
		aux, err := parseAuxPoW(r)
		if err != nil {
			return nil, err
		}
		hdr.AuxPoW = aux
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidHeader, r.Len())
	}
	return hdr, nil
}

// Bytes serializes the header back to its wire form, aux-pow section
// included.
func (h *BlockHeader) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := h.Base.Serialize(&buf); err != nil {
		return nil, err
	}
	if h.AuxPoW != nil {
		if err := h.AuxPoW.serialize(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Hash returns the block hash: the double-SHA256 of the 80-byte base header.
// The aux-pow section is never hashed.
func (h *BlockHeader) Hash() common.Hash {
	return hashToCommon(h.powHash())
}

// PrevHash returns the hash of the preceding block.
func (h *BlockHeader) PrevHash() common.Hash {
	return hashToCommon(h.Base.PrevBlock)
}

// MerkleRootHash returns the transaction merkle root committed by the
// header.
func (h *BlockHeader) MerkleRootHash() common.Hash {
	return hashToCommon(h.Base.MerkleRoot)
}

// Timestamp returns the header time as Unix seconds.
func (h *BlockHeader) Timestamp() uint32 {
	return uint32(h.Base.Timestamp.Unix())
}

// Bits returns the compact difficulty target.
func (h *BlockHeader) Bits() uint32 {
	return h.Base.Bits
}

// ChainID returns the aux chain id encoded in the version word.
func (h *BlockHeader) ChainID() uint32 {
	return uint32(h.Base.Version) >> versionChainIDShift
}

// IsMergeMined reports whether the version word carries the aux-pow flag.
func (h *BlockHeader) IsMergeMined() bool {
	return h.Base.Version&versionAuxPowFlag != 0
}

func (h *BlockHeader) powHash() chainhash.Hash {
	return h.Base.BlockHash()
}

// VerifyHeader decodes raw, checks that it hashes to claimedHash and that it
// carries valid proof of work for params. Plain headers must hash below
// their own target; merge-mined headers must prove the commitment chain
// through the parent block's coinbase and the parent must hash below the
// Syscoin target. The parsed header is returned so callers can read its
// fields without a second decode.
func VerifyHeader(raw []byte, claimedHash common.Hash, params *netparams.Params) (*BlockHeader, error) {
	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if hdr.Hash() != claimedHash {
		return nil, ErrHeaderHashMismatch
	}

	target := blockchain.CompactToBig(hdr.Base.Bits)
	if target.Sign() <= 0 || target.Cmp(params.PowLimit) > 0 {
		return nil, ErrBadBits
	}

	if !hdr.IsMergeMined() {
		pow := hdr.powHash()
		if blockchain.HashToBig(&pow).Cmp(target) > 0 {
			return nil, ErrProofOfWork
		}
		return hdr, nil
	}

	if hdr.ChainID() != params.AuxPowChainID {
		return nil, ErrBadChainID
	}
	if err := hdr.AuxPoW.verify(hdr.powHash(), target, params.AuxPowChainID); err != nil {
		return nil, err
	}
	return hdr, nil
}

func hashToCommon(h chainhash.Hash) common.Hash {
	return common.BytesToHash(h[:])
}

func commonToChainHash(h common.Hash) chainhash.Hash {
	var out chainhash.Hash
	copy(out[:], h[:])
	return out
}
