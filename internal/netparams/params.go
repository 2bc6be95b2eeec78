// Package netparams defines the per-network parameter sets the bridge
// components are constructed with. Everything that varies between the
// production, test and regression networks lives here; nothing is read
// from ambient globals.
package netparams

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
)

// Network identifies which Syscoin network a deployment tracks.
type Network uint8

const (
	MainNet Network = iota
	TestNet
	// RegNet is the local regression network. Several consensus checks
	// are waived on it because it has neither a fixed superblock length
	// nor a retarget history.
	RegNet
)

func (n Network) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	case RegNet:
		return "regnet"
	default:
		return "unknown"
	}
}

// Params carries every network-dependent constant. A single Params value
// is fixed at initialization and shared by the registry, the battle
// manager and the claim manager.
type Params struct {
	Name string
	Net  Network

	// SuperblockDuration is the number of Syscoin blocks every superblock
	// commits to. Submitted hash lists must have exactly this length on
	// all networks except RegNet.
	SuperblockDuration uint32

	// BattleTimeout is how long each party has to answer before the
	// opponent may convict it by timeout.
	BattleTimeout time.Duration

	// ChallengeWindow is how long a proposed superblock stays open to
	// challenges before the claim manager may confirm it.
	ChallengeWindow time.Duration

	// Difficulty retargets on Syscoin fall on fixed superblock heights:
	// every height h with (h - RetargetOffset) % RetargetSpan == 0.
	// Off-boundary superblocks must keep their parent's bits unchanged.
	RetargetOffset uint32
	RetargetSpan   uint32

	// PowLimitBits is the easiest difficulty the network accepts, in
	// compact form; PowLimit is its expanded target.
	PowLimitBits uint32
	PowLimit     *big.Int

	// AuxPowChainID is this chain's merge-mining identifier. Parent
	// blocks claiming the same id are rejected.
	AuxPowChainID uint32

	// Bond sizes the claim manager requires from each party.
	ProposalDeposit  *big.Int
	ChallengeDeposit *big.Int
}

// IsRetargetHeight reports whether a superblock at the given height falls
// on a difficulty-retarget boundary. Heights below the offset never do.
func (p *Params) IsRetargetHeight(height uint32) bool {
	if p.RetargetSpan == 0 || height < p.RetargetOffset {
		return false
	}
	return (height-p.RetargetOffset)%p.RetargetSpan == 0
}

var (
	// MainNetParams tracks the production Syscoin network.
	MainNetParams = Params{
		Name:               "mainnet",
		Net:                MainNet,
		SuperblockDuration: 60,
		BattleTimeout:      10 * time.Minute,
		ChallengeWindow:    3 * time.Hour,
		RetargetOffset:     2,
		RetargetSpan:       6,
		PowLimitBits:       0x1e0fffff,
		PowLimit:           blockchain.CompactToBig(0x1e0fffff),
		AuxPowChainID:      16,
		ProposalDeposit:    big.NewInt(3_000_000_000_000_000_000),
		ChallengeDeposit:   big.NewInt(1_000_000_000_000_000_000),
	}

	// TestNetParams tracks the public Syscoin test network.
	TestNetParams = Params{
		Name:               "testnet",
		Net:                TestNet,
		SuperblockDuration: 10,
		BattleTimeout:      5 * time.Minute,
		ChallengeWindow:    30 * time.Minute,
		RetargetOffset:     2,
		RetargetSpan:       6,
		PowLimitBits:       0x1e0fffff,
		PowLimit:           blockchain.CompactToBig(0x1e0fffff),
		AuxPowChainID:      16,
		ProposalDeposit:    big.NewInt(1_000_000_000_000_000),
		ChallengeDeposit:   big.NewInt(1_000_000_000_000_000),
	}

	// RegressionNetParams is the local development network. Hash-list
	// length and header chaining checks are waived, and mining against
	// its pow limit is cheap enough for tests to do inline.
	RegressionNetParams = Params{
		Name:               "regnet",
		Net:                RegNet,
		SuperblockDuration: 10,
		BattleTimeout:      time.Minute,
		ChallengeWindow:    time.Minute,
		RetargetOffset:     2,
		RetargetSpan:       6,
		PowLimitBits:       0x207fffff,
		PowLimit:           blockchain.CompactToBig(0x207fffff),
		AuxPowChainID:      16,
		ProposalDeposit:    big.NewInt(1000),
		ChallengeDeposit:   big.NewInt(1000),
	}
)
