//go:build integration

package integration

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/KBriverun/sysethereum-contracts/internal/battle"
	"github.com/KBriverun/sysethereum-contracts/internal/claim"
	"github.com/KBriverun/sysethereum-contracts/internal/crypto"
	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
	"github.com/KBriverun/sysethereum-contracts/internal/superblocks"
	"github.com/KBriverun/sysethereum-contracts/internal/syscoin"
	"github.com/KBriverun/sysethereum-contracts/internal/testutils"
	"github.com/KBriverun/sysethereum-contracts/pkg/db/pebble"
)

var (
	managerAddr     = common.HexToAddress("0x00000000000000000000000000000000c1a10000")
	submitterAddr   = common.HexToAddress("0x000000000000000000000000000000000000a110")
	challengerAddr  = common.HexToAddress("0x000000000000000000000000000000000000ca11")
	challenger2Addr = common.HexToAddress("0x000000000000000000000000000000000000ca22")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// mainLikeParams carries the production rule set with a regression-grade
// pow limit and a short span, so tests can mine real block spans inline.
func mainLikeParams() *netparams.Params {
	p := netparams.MainNetParams
	p.SuperblockDuration = 3
	p.PowLimitBits = 0x207fffff
	p.PowLimit = blockchain.CompactToBig(0x207fffff)
	p.BattleTimeout = time.Minute
	p.ChallengeWindow = time.Hour
	p.ProposalDeposit = big.NewInt(300)
	p.ChallengeDeposit = big.NewInt(200)
	return &p
}

func regLikeParams() *netparams.Params {
	p := netparams.RegressionNetParams
	p.BattleTimeout = time.Minute
	p.ChallengeWindow = time.Hour
	p.ProposalDeposit = big.NewInt(300)
	p.ChallengeDeposit = big.NewInt(200)
	return &p
}

// bridgeEnv wires the full stack the way the keeper binary does: one
// pebble store under the registry, the battle manager adjudicating for
// the claim manager, and a synthetic clock shared by everything.
type bridgeEnv struct {
	params   *netparams.Params
	registry *superblocks.Registry
	battle   *battle.Manager
	claim    *claim.Manager
	events   *battle.RecordingSink
	clock    *fakeClock

	genesisID   common.Hash
	genesisLast common.Hash
	genesisWork *big.Int
}

func newBridgeEnv(t *testing.T, params *netparams.Params) *bridgeEnv {
	t.Helper()
	store, err := pebble.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	registry, err := superblocks.New(store, params)
	require.NoError(t, err)
	require.NoError(t, registry.SetManager(managerAddr))

	env := &bridgeEnv{
		params:      params,
		registry:    registry,
		events:      &battle.RecordingSink{},
		clock:       &fakeClock{now: time.Unix(1700010000, 0)},
		genesisLast: crypto.Keccak256([]byte("genesis-last")),
		genesisWork: big.NewInt(1 << 30),
	}
	env.genesisID, err = registry.Bootstrap(
		crypto.Keccak256([]byte("genesis-root")), env.genesisWork, 1700000000,
		env.genesisLast, params.PowLimitBits, common.Hash{},
	)
	require.NoError(t, err)

	env.battle, err = battle.New(battle.Config{
		Params:   params,
		Registry: registry,
		Events:   env.events,
		Clock:    env.clock.Now,
	})
	require.NoError(t, err)

	env.claim, err = claim.New(claim.Config{
		Address:  managerAddr,
		Params:   params,
		Registry: registry,
		Battle:   env.battle,
		Clock:    env.clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, env.battle.Bind(managerAddr, env.claim))

	for _, addr := range []common.Address{submitterAddr, challengerAddr, challenger2Addr} {
		require.NoError(t, env.claim.MakeDeposit(addr, big.NewInt(1000)))
	}
	return env
}

// span is a mined chain of blocks extending the genesis superblock.
type span struct {
	raw    [][]byte
	hashes []common.Hash
	lastTs uint32
}

func (e *bridgeEnv) mineSpan(t *testing.T, blocks int) *span {
	t.Helper()
	sp := &span{
		raw:    make([][]byte, blocks),
		hashes: make([]common.Hash, blocks),
	}
	prev := e.genesisLast
	for i := 0; i < blocks; i++ {
		sp.lastTs = 1700000000 + uint32(60*(i+1))
		hdr := &wire.BlockHeader{
			Version:    4,
			PrevBlock:  chainhash.Hash(prev),
			MerkleRoot: chainhash.Hash{byte(i + 1)},
			Timestamp:  time.Unix(int64(sp.lastTs), 0),
			Bits:       e.params.PowLimitBits,
		}
		testutils.MineHeader(t, hdr)
		var buf bytes.Buffer
		require.NoError(t, hdr.Serialize(&buf))
		sp.raw[i] = buf.Bytes()
		sp.hashes[i] = common.Hash(hdr.BlockHash())
		prev = sp.hashes[i]
	}
	return sp
}

// spanWork is the accumulated work a sound summary of the span commits to.
func (e *bridgeEnv) spanWork() *big.Int {
	work := new(big.Int).Mul(
		syscoin.WorkFromBits(e.params.PowLimitBits),
		big.NewInt(int64(e.params.SuperblockDuration)),
	)
	return work.Add(work, e.genesisWork)
}

func (e *bridgeEnv) propose(t *testing.T, sp *span, work *big.Int) common.Hash {
	t.Helper()
	id, err := e.claim.ProposeSuperblock(submitterAddr,
		syscoin.MerkleRoot(sp.hashes), work, sp.lastTs,
		sp.hashes[len(sp.hashes)-1], e.params.PowLimitBits, e.genesisID,
	)
	require.NoError(t, err)
	return id
}

func (e *bridgeEnv) status(t *testing.T, id common.Hash) superblocks.Status {
	t.Helper()
	sb, err := e.registry.Superblock(id)
	require.NoError(t, err)
	return sb.Status
}

// runBattle plays a full evidence exchange for one session, disputing the
// given interim index, and leaves the session pending verification.
func (e *bridgeEnv) runBattle(t *testing.T, sessionID common.Hash, challenger common.Address, sp *span, blockIndex int) {
	t.Helper()
	require.NoError(t, e.battle.QueryMerkleRootHashes(challenger, sessionID))
	require.NoError(t, e.battle.RespondMerkleRootHashes(submitterAddr, sessionID, sp.hashes))
	require.NoError(t, e.battle.QueryLastBlockHeader(challenger, sessionID, blockIndex))
	var interim []byte
	if blockIndex != battle.NoInterimBlock {
		interim = sp.raw[blockIndex]
	}
	require.NoError(t, e.battle.RespondLastBlockHeader(submitterAddr, sessionID, sp.raw[len(sp.raw)-1], interim))
}

// convictions lists conviction events in emission order, "challenger" or
// "submitter".
func (e *bridgeEnv) convictions() []string {
	var out []string
	for _, ev := range e.events.Events() {
		switch ev.(type) {
		case battle.ChallengerConvicted:
			out = append(out, "challenger")
		case battle.SubmitterConvicted:
			out = append(out, "submitter")
		}
	}
	return out
}
