package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func RandomHash(t *testing.T) common.Hash {
	var hash common.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return hash
}

func RandomAddress(t *testing.T) common.Address {
	var addr common.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}

// MineHeader loops the nonce until the header hashes at or below its own
// compact target. Use a regression-grade difficulty or the loop will not
// finish.
func MineHeader(t *testing.T, hdr *wire.BlockHeader) {
	t.Helper()
	target := blockchain.CompactToBig(hdr.Bits)
	for nonce := uint32(0); nonce < 1<<20; nonce++ {
		hdr.Nonce = nonce
		hash := hdr.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
	}
	t.Fatal("no nonce satisfies the target")
}
