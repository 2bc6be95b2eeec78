package syscoin

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
)

// testBits is the regression net pow limit; nearly every nonce satisfies it,
// so tests can mine real headers in a handful of iterations.
const testBits = 0x207fffff

func plainHeader(prev common.Hash, timestamp uint32) *BlockHeader {
	return &BlockHeader{Base: wire.BlockHeader{
		Version:    4,
		PrevBlock:  commonToChainHash(prev),
		MerkleRoot: chainhash.Hash{0x11},
		Timestamp:  time.Unix(int64(timestamp), 0),
		Bits:       testBits,
	}}
}

// mine loops the nonce until the header hashes at or below its own target.
func mine(t *testing.T, hdr *wire.BlockHeader) {
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

// antiMine loops the nonce until the header hashes above its own target.
func antiMine(t *testing.T, hdr *wire.BlockHeader) {
	t.Helper()
	target := blockchain.CompactToBig(hdr.Bits)
	for nonce := uint32(0); nonce < 1<<20; nonce++ {
		hdr.Nonce = nonce
		hash := hdr.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) > 0 {
			return
		}
	}
	t.Fatal("every nonce satisfies the target")
}

func encode(t *testing.T, hdr *BlockHeader) []byte {
	t.Helper()
	raw, err := hdr.Bytes()
	require.NoError(t, err)
	return raw
}

func TestParseHeaderRoundTrip(t *testing.T) {
	prev := common.HexToHash("0xabcdef")
	hdr := plainHeader(prev, 1700000600)
	hdr.Base.Nonce = 42

	parsed, err := ParseHeader(encode(t, hdr))
	require.NoError(t, err)
	assert.Equal(t, hdr, parsed)
	assert.Equal(t, prev, parsed.PrevHash())
	assert.Equal(t, uint32(1700000600), parsed.Timestamp())
	assert.Equal(t, uint32(testBits), parsed.Bits())
	assert.Equal(t, uint32(0), parsed.ChainID())
	assert.False(t, parsed.IsMergeMined())
}

func TestParseHeaderMalformed(t *testing.T) {
	raw := encode(t, plainHeader(common.Hash{}, 1700000600))

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseHeader(raw[:baseHeaderLen-1])
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
	t.Run("trailing bytes", func(t *testing.T) {
		_, err := ParseHeader(append(append([]byte{}, raw...), 0x00))
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
	t.Run("aux flag without aux section", func(t *testing.T) {
		hdr := plainHeader(common.Hash{}, 1700000600)
		hdr.Base.Version |= versionAuxPowFlag
		_, err := ParseHeader(encode(t, hdr))
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestVerifyHeaderPlain(t *testing.T) {
	params := &netparams.RegressionNetParams

	t.Run("valid proof of work", func(t *testing.T) {
		hdr := plainHeader(common.HexToHash("0x01"), 1700000600)
		mine(t, &hdr.Base)

		parsed, err := VerifyHeader(encode(t, hdr), hdr.Hash(), params)
		require.NoError(t, err)
		assert.Equal(t, hdr.Hash(), parsed.Hash())
		assert.Equal(t, hdr.Bits(), parsed.Bits())
	})

	t.Run("claimed hash mismatch", func(t *testing.T) {
		hdr := plainHeader(common.HexToHash("0x01"), 1700000600)
		mine(t, &hdr.Base)

		_, err := VerifyHeader(encode(t, hdr), common.HexToHash("0xdead"), params)
		require.ErrorIs(t, err, ErrHeaderHashMismatch)
	})

	t.Run("hash above target", func(t *testing.T) {
		hdr := plainHeader(common.HexToHash("0x01"), 1700000600)
		hdr.Base.Bits = 0x1d00ffff
		antiMine(t, &hdr.Base)

		_, err := VerifyHeader(encode(t, hdr), hdr.Hash(), params)
		require.ErrorIs(t, err, ErrProofOfWork)
	})

	t.Run("bits above pow limit", func(t *testing.T) {
		hdr := plainHeader(common.HexToHash("0x01"), 1700000600)
		hdr.Base.Bits = 0x217fffff

		_, err := VerifyHeader(encode(t, hdr), hdr.Hash(), params)
		require.ErrorIs(t, err, ErrBadBits)
	})

	t.Run("zero target", func(t *testing.T) {
		hdr := plainHeader(common.HexToHash("0x01"), 1700000600)
		hdr.Base.Bits = 0x20800000

		_, err := VerifyHeader(encode(t, hdr), hdr.Hash(), params)
		require.ErrorIs(t, err, ErrBadBits)
	})

	t.Run("malformed raw", func(t *testing.T) {
		_, err := VerifyHeader([]byte{0x01, 0x02}, common.Hash{}, params)
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
}
