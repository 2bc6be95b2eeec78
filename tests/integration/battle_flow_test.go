//go:build integration

package integration

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KBriverun/sysethereum-contracts/internal/battle"
	"github.com/KBriverun/sysethereum-contracts/internal/claim"
	"github.com/KBriverun/sysethereum-contracts/internal/superblocks"
)

// An honest submitter answers every query, survives verification, and
// collects the challenger's bond once the window lapses.
func TestHonestSubmitterDefeatsChallenge(t *testing.T) {
	env := newBridgeEnv(t, mainLikeParams())
	sp := env.mineSpan(t, 3)
	id := env.propose(t, sp, env.spanWork())
	require.Equal(t, superblocks.StatusNew, env.status(t, id))

	sessionID, err := env.claim.ChallengeSuperblock(challengerAddr, id)
	require.NoError(t, err)
	require.Equal(t, superblocks.StatusInBattle, env.status(t, id))

	env.runBattle(t, sessionID, challengerAddr, sp, 1)
	require.NoError(t, env.battle.VerifySuperblock(sessionID))

	assert.Equal(t, []string{"challenger"}, env.convictions())
	assert.Equal(t, 0, env.battle.ActiveSessions())
	assert.Equal(t, 0, env.claim.LiveSessions(id))

	// Still inside the challenge window: not settled yet.
	assert.ErrorIs(t, env.claim.CheckClaimFinished(id), claim.ErrClaimPending)
	assert.Equal(t, superblocks.StatusInBattle, env.status(t, id))

	env.clock.advance(env.params.ChallengeWindow + time.Second)
	require.NoError(t, env.claim.CheckClaimFinished(id))
	assert.Equal(t, superblocks.StatusApproved, env.status(t, id))
	assert.Equal(t, id, env.registry.Best(), "confirmed superblock carries the most work")

	assert.Equal(t, big.NewInt(1200), env.claim.Deposit(submitterAddr))
	assert.Equal(t, big.NewInt(800), env.claim.Deposit(challengerAddr))
}

// A submitter whose hash list is shorter than the superblock duration has
// the response rejected without state change and is convicted by timeout.
func TestShortHashListConvictsSubmitter(t *testing.T) {
	env := newBridgeEnv(t, mainLikeParams())
	sp := env.mineSpan(t, 3)
	id := env.propose(t, sp, env.spanWork())
	sessionID, err := env.claim.ChallengeSuperblock(challengerAddr, id)
	require.NoError(t, err)

	require.NoError(t, env.battle.QueryMerkleRootHashes(challengerAddr, sessionID))
	err = env.battle.RespondMerkleRootHashes(submitterAddr, sessionID, sp.hashes[1:])
	require.ErrorIs(t, err, battle.ErrBadBlockHeight)

	sess, err := env.battle.Session(sessionID)
	require.NoError(t, err)
	assert.Equal(t, battle.StateQueryMerkleRootHashes, sess.State)
	assert.Empty(t, sess.BlockHashes)

	env.clock.advance(env.params.BattleTimeout + time.Second)
	require.NoError(t, env.battle.Timeout(sessionID))
	assert.Equal(t, []string{"submitter"}, env.convictions())
	assert.Equal(t, superblocks.StatusInvalid, env.status(t, id))

	require.NoError(t, env.claim.CheckClaimFinished(id))
	assert.Equal(t, big.NewInt(700), env.claim.Deposit(submitterAddr))
	assert.Equal(t, big.NewInt(1300), env.claim.Deposit(challengerAddr))
}

// A superblock claiming no more work than its parent fails the final
// verification even when every header it transmitted is sound.
func TestEqualWorkConvictsSubmitter(t *testing.T) {
	env := newBridgeEnv(t, regLikeParams())
	sp := env.mineSpan(t, 3)
	id := env.propose(t, sp, new(big.Int).Set(env.genesisWork))

	sessionID, err := env.claim.ChallengeSuperblock(challengerAddr, id)
	require.NoError(t, err)
	env.runBattle(t, sessionID, challengerAddr, sp, battle.NoInterimBlock)

	require.NoError(t, env.battle.VerifySuperblock(sessionID))
	assert.Equal(t, []string{"submitter"}, env.convictions())

	var rejected bool
	for _, ev := range env.events.Events() {
		if r, ok := ev.(battle.ActionRejected); ok {
			assert.ErrorIs(t, r.Err, battle.ErrInvalidAccumulatedWork)
			rejected = true
		}
	}
	assert.True(t, rejected, "verification must report why the submitter lost")
	assert.Equal(t, superblocks.StatusInvalid, env.status(t, id))
}

// A submitter who goes silent mid-battle is convicted once the response
// window lapses, and the challenger collects the bond.
func TestSilentSubmitterTimesOut(t *testing.T) {
	env := newBridgeEnv(t, mainLikeParams())
	sp := env.mineSpan(t, 3)
	id := env.propose(t, sp, env.spanWork())
	sessionID, err := env.claim.ChallengeSuperblock(challengerAddr, id)
	require.NoError(t, err)

	require.NoError(t, env.battle.QueryMerkleRootHashes(challengerAddr, sessionID))

	env.clock.advance(env.params.BattleTimeout)
	assert.ErrorIs(t, env.battle.Timeout(sessionID), battle.ErrNoTimeoutYet)

	env.clock.advance(time.Second)
	require.NoError(t, env.battle.Timeout(sessionID))
	assert.Equal(t, []string{"submitter"}, env.convictions())

	require.NoError(t, env.claim.CheckClaimFinished(id))
	assert.Equal(t, superblocks.StatusInvalid, env.status(t, id))
	assert.Equal(t, big.NewInt(1300), env.claim.Deposit(challengerAddr))
}

// Two challengers dispute the same superblock; the submitter defeats both
// battles and collects both bonds when the claim settles.
func TestTwoChallengersBothDefeated(t *testing.T) {
	env := newBridgeEnv(t, mainLikeParams())
	sp := env.mineSpan(t, 3)
	id := env.propose(t, sp, env.spanWork())

	first, err := env.claim.ChallengeSuperblock(challengerAddr, id)
	require.NoError(t, err)
	second, err := env.claim.ChallengeSuperblock(challenger2Addr, id)
	require.NoError(t, err)
	require.Equal(t, 2, env.claim.LiveSessions(id))

	env.runBattle(t, first, challengerAddr, sp, 0)
	require.NoError(t, env.battle.VerifySuperblock(first))
	require.Equal(t, 1, env.claim.LiveSessions(id))

	env.runBattle(t, second, challenger2Addr, sp, battle.NoInterimBlock)
	require.NoError(t, env.battle.VerifySuperblock(second))
	require.Equal(t, 0, env.claim.LiveSessions(id))

	assert.Equal(t, []string{"challenger", "challenger"}, env.convictions())

	env.clock.advance(env.params.ChallengeWindow + time.Second)
	require.NoError(t, env.claim.CheckClaimFinished(id))
	assert.Equal(t, superblocks.StatusApproved, env.status(t, id))

	assert.Equal(t, big.NewInt(1400), env.claim.Deposit(submitterAddr))
	assert.Equal(t, big.NewInt(800), env.claim.Deposit(challengerAddr))
	assert.Equal(t, big.NewInt(800), env.claim.Deposit(challenger2Addr))
}
