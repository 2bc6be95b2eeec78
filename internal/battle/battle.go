package battle

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
	"github.com/KBriverun/sysethereum-contracts/internal/superblocks"
	"github.com/KBriverun/sysethereum-contracts/internal/syscoin"
	"github.com/KBriverun/sysethereum-contracts/pkg/log"
)

// Registry is the read-only superblock view battles validate against.
type Registry interface {
	Superblock(id common.Hash) (*superblocks.Superblock, error)
}

// Arbiter receives the verdict of a resolved session. Returning an error
// keeps the session in its terminal state; Timeout can then settle it
// again.
type Arbiter interface {
	SessionDecided(sessionID, superblockHash common.Hash, winner, loser common.Address) error
}

// Config carries the manager's collaborators. Params and Registry are
// required; Events defaults to a LogSink and Clock to time.Now.
type Config struct {
	Params   *netparams.Params
	Registry Registry
	Events   EventSink
	Clock    func() time.Time
}

// Manager runs every live dispute session. One action commits fully before
// the next is accepted; sessions share no state with each other.
type Manager struct {
	params   *netparams.Params
	registry Registry
	events   EventSink
	clock    func() time.Time
	logger   zerolog.Logger
	store    *SessionStore

	mu      sync.RWMutex
	arbiter Arbiter
	claim   common.Address
	bound   bool
}

func New(cfg Config) (*Manager, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("battle: params are required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("battle: registry is required")
	}
	m := &Manager{
		params:   cfg.Params,
		registry: cfg.Registry,
		events:   cfg.Events,
		clock:    cfg.Clock,
		logger:   log.Battle,
		store:    NewSessionStore(),
	}
	if m.events == nil {
		m.events = LogSink{Logger: m.logger}
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m, nil
}

// Bind registers the claim manager: the only caller allowed to open
// sessions and the receiver of verdicts. It can be called once.
func (m *Manager) Bind(claim common.Address, arbiter Arbiter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound {
		return ErrBound
	}
	m.claim = claim
	m.arbiter = arbiter
	m.bound = true
	return nil
}

// OpenSession creates a dispute session over superblockHash between
// submitter and challenger. Only the bound claim manager may call it. The
// session starts challenged, with the submitter's marker seeded ahead so
// the challenger owes the first move.
func (m *Manager) OpenSession(caller common.Address, superblockHash common.Hash, submitter, challenger common.Address) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := SessionID(superblockHash, submitter, challenger)
	if !m.bound || caller != m.claim {
		return common.Hash{}, m.reject(id, ErrUnauthorized)
	}
	sess := &BattleSession{
		ID:                    id,
		SuperblockHash:        superblockHash,
		Submitter:             submitter,
		Challenger:            challenger,
		LastActionTimestamp:   m.clock(),
		LastActionSubmitter:   1,
		ActionsCounter:        1,
		BlockIndexInvalidated: NoInterimBlock,
		State:                 StateChallenged,
	}
	if err := m.store.Create(sess); err != nil {
		return common.Hash{}, m.reject(id, err)
	}
	m.events.Emit(SessionOpened{
		SessionID:      id,
		SuperblockHash: superblockHash,
		Submitter:      submitter,
		Challenger:     challenger,
	})
	return id, nil
}

// QueryMerkleRootHashes is the challenger's opening move: request the block
// hash list behind the superblock's merkle root.
func (m *Manager) QueryMerkleRootHashes(caller common.Address, sessionID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if caller != sess.Challenger {
		return m.reject(sessionID, ErrUnauthorized)
	}
	if sess.State != StateChallenged {
		return m.reject(sessionID, ErrBadStatus)
	}
	sess.State = StateQueryMerkleRootHashes
	sess.recordAction(caller, m.clock())
	m.events.Emit(MerkleRootHashesQueried{
		SessionID:      sessionID,
		SuperblockHash: sess.SuperblockHash,
		Challenger:     caller,
	})
	return nil
}

// RespondMerkleRootHashes supplies the ordered block hash list. The list
// must end on the superblock's committed last hash, match the configured
// superblock duration off the regression network, and fold to the committed
// merkle root. It can be set once.
func (m *Manager) RespondMerkleRootHashes(caller common.Address, sessionID common.Hash, blockHashes []common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if caller != sess.Submitter {
		return m.reject(sessionID, ErrUnauthorized)
	}
	if sess.State != StateQueryMerkleRootHashes || len(sess.BlockHashes) != 0 {
		return m.reject(sessionID, ErrBadStatus)
	}
	sb, err := m.registry.Superblock(sess.SuperblockHash)
	if err != nil {
		return m.reject(sessionID, fmt.Errorf("fetching superblock: %w", err))
	}
	if len(blockHashes) == 0 || blockHashes[len(blockHashes)-1] != sb.LastHash {
		return m.reject(sessionID, ErrBadLastBlock)
	}
	if m.params.Net != netparams.RegNet && uint32(len(blockHashes)) != m.params.SuperblockDuration {
		return m.reject(sessionID, ErrBadBlockHeight)
	}
	if syscoin.MerkleRoot(blockHashes) != sb.BlocksRoot {
		return m.reject(sessionID, ErrInvalidMerkleRoot)
	}
	sess.BlockHashes = append([]common.Hash(nil), blockHashes...)
	sess.State = StateRespondMerkleRootHashes
	sess.recordAction(caller, m.clock())
	m.events.Emit(MerkleRootHashesResponded{
		SessionID:      sessionID,
		SuperblockHash: sess.SuperblockHash,
		Submitter:      caller,
		BlockCount:     len(blockHashes),
	})
	return nil
}

// QueryLastBlockHeader requests the last block's full header. blockIndex
// names one interim block whose header must accompany the response, or
// NoInterimBlock to dispute the final block only. The index is fixed for
// the rest of the session.
func (m *Manager) QueryLastBlockHeader(caller common.Address, sessionID common.Hash, blockIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if caller != sess.Challenger {
		return m.reject(sessionID, ErrUnauthorized)
	}
	if sess.State != StateRespondMerkleRootHashes {
		return m.reject(sessionID, ErrBadStatus)
	}
	if sess.LastHeader.Status != HeaderNone {
		return m.reject(sessionID, ErrBadSyscoinStatus)
	}
	if blockIndex < NoInterimBlock || blockIndex >= len(sess.BlockHashes) {
		return m.reject(sessionID, ErrBadInterimBlockIndex)
	}
	sess.BlockIndexInvalidated = blockIndex
	sess.LastHeader.Status = HeaderRequested
	sess.State = StateQueryLastBlockHeader
	sess.recordAction(caller, m.clock())
	m.events.Emit(LastBlockHeaderQueried{
		SessionID:  sessionID,
		Challenger: caller,
		BlockIndex: blockIndex,
	})
	return nil
}

// RespondLastBlockHeader supplies the last block's raw header, plus the
// disputed interim block's header when one was requested. Both headers must
// carry valid proof of work for their committed hashes.
func (m *Manager) RespondLastBlockHeader(caller common.Address, sessionID common.Hash, lastHeader, interimHeader []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if caller != sess.Submitter {
		return m.reject(sessionID, ErrUnauthorized)
	}
	if sess.State != StateQueryLastBlockHeader {
		return m.reject(sessionID, ErrBadStatus)
	}
	if sess.LastHeader.Status != HeaderRequested {
		return m.reject(sessionID, ErrBadSyscoinStatus)
	}
	lastHash := sess.BlockHashes[len(sess.BlockHashes)-1]
	hdr, err := syscoin.VerifyHeader(lastHeader, lastHash, m.params)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if len(interimHeader) > 0 && sess.BlockIndexInvalidated == NoInterimBlock {
		return m.reject(sessionID, ErrBadInterimBlockIndex)
	}
	if len(interimHeader) == 0 && sess.BlockIndexInvalidated != NoInterimBlock {
		return m.reject(sessionID, ErrInterimBlockMissing)
	}
	if len(interimHeader) > 0 {
		if err := m.verifyInterimHeader(sess, interimHeader); err != nil {
			return m.reject(sessionID, err)
		}
	}
	sess.LastHeader = BlockInfo{
		PrevHash:  hdr.PrevHash(),
		Timestamp: hdr.Timestamp(),
		Bits:      hdr.Bits(),
		Status:    HeaderVerified,
		Hash:      lastHash,
	}
	sess.State = StatePendingVerification
	sess.recordAction(caller, m.clock())
	m.events.Emit(LastBlockHeaderResponded{SessionID: sessionID, Submitter: caller})
	return nil
}

// verifyInterimHeader checks the disputed block's header against its
// committed hash, and its previous-hash field against the preceding list
// entry, or the parent superblock's last hash when the disputed block is
// the first of the span.
func (m *Manager) verifyInterimHeader(sess *BattleSession, raw []byte) error {
	idx := sess.BlockIndexInvalidated
	hdr, err := syscoin.VerifyHeader(raw, sess.BlockHashes[idx], m.params)
	if err != nil {
		return err
	}
	var wantPrev common.Hash
	if idx == 0 {
		sb, err := m.registry.Superblock(sess.SuperblockHash)
		if err != nil {
			return fmt.Errorf("fetching superblock: %w", err)
		}
		parent, err := m.registry.Superblock(sb.ParentID)
		if err != nil {
			return fmt.Errorf("fetching parent superblock: %w", err)
		}
		wantPrev = parent.LastHash
	} else {
		wantPrev = sess.BlockHashes[idx-1]
	}
	if hdr.PrevHash() != wantPrev {
		return ErrBadInterimPrevHash
	}
	return nil
}

// VerifySuperblock performs the final consistency checks and convicts
// exactly one party. Anyone may call it; outside StatePendingVerification
// it does nothing.
func (m *Manager) VerifySuperblock(sessionID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if sess.State != StatePendingVerification {
		m.logger.Debug().
			Str("session", sessionID.Hex()).
			Str("state", sess.State.String()).
			Msg("verify ignored outside pending verification")
		return nil
	}
	sb, err := m.registry.Superblock(sess.SuperblockHash)
	if err != nil {
		return fmt.Errorf("fetching superblock: %w", err)
	}
	parent, err := m.registry.Superblock(sb.ParentID)
	if err != nil {
		return fmt.Errorf("fetching parent superblock: %w", err)
	}
	if err := m.checkLastBlock(sess, sb, parent); err != nil {
		m.events.Emit(ActionRejected{SessionID: sessionID, Err: err})
		return m.convictSubmitter(sess)
	}
	if err := m.checkSuperblockWork(sess, sb, parent); err != nil {
		m.events.Emit(ActionRejected{SessionID: sessionID, Err: err})
		return m.convictSubmitter(sess)
	}
	return m.convictChallenger(sess)
}

// checkLastBlock is the first verification pass: the transmitted evidence
// must chain correctly and agree with the registry's committed summary.
func (m *Manager) checkLastBlock(sess *BattleSession, sb, parent *superblocks.Superblock) error {
	n := len(sess.BlockHashes)
	if n == 0 {
		return ErrBadLastBlock
	}
	// The regression network mines ad-hoc spans with no chain history to
	// check against.
	if m.params.Net != netparams.RegNet && n >= 2 && sess.BlockHashes[n-2] != sess.LastHeader.PrevHash {
		return ErrBadPrevBlock
	}
	if sess.LastHeader.Hash != sess.BlockHashes[n-1] {
		return ErrBadMismatch
	}
	if sess.BlockHashes[n-1] != sb.LastHash {
		return ErrBadLastBlock
	}
	if sess.LastHeader.Status != HeaderVerified {
		return ErrBadSyscoinStatus
	}
	if sess.LastHeader.Timestamp != sb.Timestamp {
		return ErrBadTimestamp
	}
	if parent.Timestamp > sb.Timestamp {
		return ErrBadTimestamp
	}
	return nil
}

// checkSuperblockWork is the second pass: difficulty and accumulated work
// must be consistent with the parent superblock. Difficulty may move only
// on a retarget boundary, and only within the bounds the retarget rule
// allows; these checks apply on the production network alone.
func (m *Manager) checkSuperblockWork(sess *BattleSession, sb, parent *superblocks.Superblock) error {
	if sb.AccumulatedWork == nil || sb.AccumulatedWork.Sign() <= 0 {
		return ErrInvalidAccumulatedWork
	}
	if m.params.Net == netparams.MainNet {
		if m.params.IsRetargetHeight(sb.Height) {
			lower, upper := syscoin.RetargetBounds(parent.LastBits)
			target := syscoin.TargetFromBits(sess.LastHeader.Bits)
			if target.Cmp(lower) < 0 || target.Cmp(upper) > 0 {
				return ErrBadRetarget
			}
		} else {
			if sess.LastHeader.Bits != parent.LastBits {
				return ErrBadBits
			}
			expected := new(big.Int).Mul(
				syscoin.WorkFromBits(sess.LastHeader.Bits),
				big.NewInt(int64(m.params.SuperblockDuration)),
			)
			expected.Add(expected, parent.AccumulatedWork)
			if sb.AccumulatedWork.Cmp(expected) != 0 {
				return ErrBadAccumulatedWork
			}
		}
	}
	if parent.AccumulatedWork != nil && sb.AccumulatedWork.Cmp(parent.AccumulatedWork) <= 0 {
		return ErrInvalidAccumulatedWork
	}
	return nil
}

// Timeout settles a session whose owing party failed to act within the
// window, or one left in a failed state by an unfinished resolution.
// Anyone may call it.
func (m *Manager) Timeout(sessionID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return m.reject(sessionID, err)
	}
	if sess.State == StateSuperblockFailed {
		return m.convictSubmitter(sess)
	}
	if m.clock().Sub(sess.LastActionTimestamp) <= m.params.BattleTimeout {
		return m.reject(sessionID, ErrNoTimeoutYet)
	}
	if sess.NextMover() == sess.Challenger {
		return m.convictChallenger(sess)
	}
	return m.convictSubmitter(sess)
}

// convictSubmitter resolves the session against the submitter: the
// superblock claim fails and the challenger wins.
func (m *Manager) convictSubmitter(sess *BattleSession) error {
	sess.State = StateSuperblockFailed
	m.events.Emit(SubmitterConvicted{
		SessionID:      sess.ID,
		SuperblockHash: sess.SuperblockHash,
		Submitter:      sess.Submitter,
	})
	return m.resolve(sess, sess.Challenger, sess.Submitter)
}

// convictChallenger resolves the session against the challenger: the
// superblock claim stands.
func (m *Manager) convictChallenger(sess *BattleSession) error {
	sess.State = StateSuperblockVerified
	m.events.Emit(ChallengerConvicted{
		SessionID:      sess.ID,
		SuperblockHash: sess.SuperblockHash,
		Challenger:     sess.Challenger,
	})
	return m.resolve(sess, sess.Submitter, sess.Challenger)
}

// resolve reports the verdict and removes the session. A failed callback
// keeps the session in its terminal state so Timeout can settle it again.
func (m *Manager) resolve(sess *BattleSession, winner, loser common.Address) error {
	if err := m.arbiter.SessionDecided(sess.ID, sess.SuperblockHash, winner, loser); err != nil {
		return fmt.Errorf("verdict callback: %w", err)
	}
	if err := m.store.Delete(sess.ID); err != nil {
		return err
	}
	m.events.Emit(SessionRemoved{SessionID: sess.ID})
	return nil
}

func (m *Manager) reject(sessionID common.Hash, err error) error {
	m.events.Emit(ActionRejected{SessionID: sessionID, Err: err})
	return err
}

// Session returns a point-in-time copy of a live session.
func (m *Manager) Session(sessionID common.Hash) (BattleSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return BattleSession{}, err
	}
	return sess.snapshot(), nil
}

// ActiveSessions reports how many disputes are live.
func (m *Manager) ActiveSessions() int {
	return m.store.Len()
}

// SessionIDs lists the live session ids in no particular order.
func (m *Manager) SessionIDs() []common.Hash {
	return m.store.IDs()
}
