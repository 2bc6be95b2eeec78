package syscoin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// maxMerkleBranchLen bounds both aux-pow merkle branches. Parent blocks
// never hold more than 2^30 transactions and no miner aggregates more than
// 2^30 aux chains.
const maxMerkleBranchLen = 30

// mergeMiningMagic prefixes the chain merkle root committed in the parent
// coinbase script.
var mergeMiningMagic = []byte{0xfa, 0xbe, 'm', 'm'}

// AuxPoW is the merged-mining section of a Syscoin header: the parent
// chain's coinbase transaction, the branch placing that coinbase in the
// parent block, the branch placing this chain's block hash in the committed
// aux tree, and the parent header whose hash satisfies the Syscoin target.
type AuxPoW struct {
	CoinbaseTx     wire.MsgTx
	ParentHash     chainhash.Hash
	CoinbaseBranch MerkleBranch
	ChainBranch    MerkleBranch
	ParentHeader   wire.BlockHeader
}

// MerkleBranch is a compact inclusion proof: the sibling hashes from leaf
// to root, with the leaf index's bits selecting the side at each level.
type MerkleBranch struct {
	Hashes   []chainhash.Hash
	SideMask uint32
}

// root climbs the branch from leaf and returns the resulting merkle root.
func (b MerkleBranch) root(leaf chainhash.Hash) chainhash.Hash {
	current := leaf
	mask := b.SideMask
	for i := range b.Hashes {
		if mask&1 == 1 {
			current = hashMerkleNode(b.Hashes[i], current)
		} else {
			current = hashMerkleNode(current, b.Hashes[i])
		}
		mask >>= 1
	}
	return current
}

func parseAuxPoW(r *bytes.Reader) (*AuxPoW, error) {
	aux := &AuxPoW{}
	if err := aux.CoinbaseTx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: coinbase tx: %v", ErrInvalidHeader, err)
	}
	if _, err := io.ReadFull(r, aux.ParentHash[:]); err != nil {
		return nil, fmt.Errorf("%w: parent block hash: %v", ErrInvalidHeader, err)
	}
	var err error
	if aux.CoinbaseBranch, err = readBranch(r); err != nil {
		return nil, err
	}
	if aux.ChainBranch, err = readBranch(r); err != nil {
		return nil, err
	}
	if err := aux.ParentHeader.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: parent header: %v", ErrInvalidHeader, err)
	}
	return aux, nil
}

func (a *AuxPoW) serialize(w io.Writer) error {
	if err := a.CoinbaseTx.Serialize(w); err != nil {
		return err
	}
	if _, err := w.Write(a.ParentHash[:]); err != nil {
		return err
	}
	if err := writeBranch(w, a.CoinbaseBranch); err != nil {
		return err
	}
	if err := writeBranch(w, a.ChainBranch); err != nil {
		return err
	}
	return a.ParentHeader.Serialize(w)
}

func readBranch(r io.Reader) (MerkleBranch, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return MerkleBranch{}, fmt.Errorf("%w: branch length: %v", ErrInvalidHeader, err)
	}
	if count > maxMerkleBranchLen {
		return MerkleBranch{}, fmt.Errorf("%w: branch of %d hashes", ErrInvalidHeader, count)
	}
	branch := MerkleBranch{Hashes: make([]chainhash.Hash, count)}
	for i := range branch.Hashes {
		if _, err := io.ReadFull(r, branch.Hashes[i][:]); err != nil {
			return MerkleBranch{}, fmt.Errorf("%w: branch hash: %v", ErrInvalidHeader, err)
		}
	}
	var side [4]byte
	if _, err := io.ReadFull(r, side[:]); err != nil {
		return MerkleBranch{}, fmt.Errorf("%w: branch index: %v", ErrInvalidHeader, err)
	}
	branch.SideMask = binary.LittleEndian.Uint32(side[:])
	return branch, nil
}

func writeBranch(w io.Writer, b MerkleBranch) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(b.Hashes))); err != nil {
		return err
	}
	for i := range b.Hashes {
		if _, err := w.Write(b.Hashes[i][:]); err != nil {
			return err
		}
	}
	var side [4]byte
	binary.LittleEndian.PutUint32(side[:], b.SideMask)
	_, err := w.Write(side[:])
	return err
}

// verify checks the merged-mining commitment chain for blockHash against
// target. The parent must be a foreign chain's block, its hash must satisfy
// this chain's target, its coinbase must be the parent block's first
// transaction, and the coinbase script must commit to the aux merkle tree
// slot this chain id hashes to.
func (a *AuxPoW) verify(blockHash chainhash.Hash, target *big.Int, chainID uint32) error {
	if uint32(a.ParentHeader.Version)>>versionChainIDShift == chainID {
		return ErrParentSameChain
	}
	parentPow := a.ParentHeader.BlockHash()
	if blockchain.HashToBig(&parentPow).Cmp(target) > 0 {
		return ErrParentProofOfWork
	}
	if a.CoinbaseBranch.SideMask != 0 {
		return ErrCoinbaseIndex
	}
	txid := a.CoinbaseTx.TxHash()
	if a.CoinbaseBranch.root(txid) != a.ParentHeader.MerkleRoot {
		return ErrParentMerkle
	}
	if len(a.CoinbaseTx.TxIn) == 0 {
		return ErrMergedMissing
	}
	chainRoot := a.ChainBranch.root(blockHash)
	return verifyCommitment(
		a.CoinbaseTx.TxIn[0].SignatureScript,
		chainRoot,
		len(a.ChainBranch.Hashes),
		a.ChainBranch.SideMask,
		chainID,
	)
}

// verifyCommitment locates the merge-mining commitment in the parent
// coinbase script and checks root, tree size and slot. The committed root is
// byte-reversed relative to the internal hash order.
func verifyCommitment(script []byte, chainRoot chainhash.Hash, branchLen int, slot, chainID uint32) error {
	head := bytes.Index(script, mergeMiningMagic)
	if head < 0 {
		return ErrMergedMissing
	}
	if bytes.Contains(script[head+1:], mergeMiningMagic) {
		return ErrMergedDuplicated
	}
	payload := script[head+len(mergeMiningMagic):]
	if len(payload) < chainhash.HashSize+8 {
		return ErrMergedMissing
	}
	if !bytes.Equal(payload[:chainhash.HashSize], reverseBytes(chainRoot[:])) {
		return ErrChainMerkle
	}
	treeSize := binary.LittleEndian.Uint32(payload[chainhash.HashSize:])
	if treeSize != 1<<uint(branchLen) {
		return ErrChainMerkle
	}
	nonce := binary.LittleEndian.Uint32(payload[chainhash.HashSize+4:])
	if slot != expectedChainSlot(nonce, chainID, branchLen) {
		return ErrChainMerkle
	}
	return nil
}

// expectedChainSlot derives the aux tree slot a chain id must occupy. The
// derivation is the fixed linear-congruential step miners and verifiers
// share, so a miner cannot prove two conflicting blocks of one aux chain in
// a single parent block.
func expectedChainSlot(nonce, chainID uint32, height int) uint32 {
	rand := nonce
	rand = rand*1103515245 + 12345
	rand += chainID
	rand = rand*1103515245 + 12345
	return rand % (1 << uint(height))
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
