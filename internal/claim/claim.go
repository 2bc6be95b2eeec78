// Package claim drives superblock claims end to end. It holds the parties'
// deposits, forwards proposals and challenges to the superblock registry,
// opens battle sessions for disputes, and settles bonds when verdicts
// arrive or the challenge window lapses.
package claim

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/KBriverun/sysethereum-contracts/internal/battle"
	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
	"github.com/KBriverun/sysethereum-contracts/internal/superblocks"
	"github.com/KBriverun/sysethereum-contracts/pkg/log"
)

// SuperblockRegistry is the part of the registry the claim manager drives.
type SuperblockRegistry interface {
	Propose(caller common.Address, blocksRoot common.Hash, accWork *big.Int, timestamp uint32,
		lastHash common.Hash, lastBits uint32, parentID common.Hash, submitter common.Address) (common.Hash, error)
	Challenge(caller common.Address, id common.Hash) error
	SemiApprove(caller common.Address, id common.Hash) error
	Invalidate(caller common.Address, id common.Hash) error
	Confirm(caller common.Address, id common.Hash) error
	Superblock(id common.Hash) (*superblocks.Superblock, error)
}

// BattleOpener is the part of the battle manager the claim manager drives.
// Verdicts come back through SessionDecided.
type BattleOpener interface {
	OpenSession(caller common.Address, superblockHash common.Hash, submitter, challenger common.Address) (common.Hash, error)
}

// Claim tracks one proposed superblock from submission to settlement.
type Claim struct {
	SuperblockHash common.Hash
	Submitter      common.Address
	CreatedAt      time.Time
	Deadline       time.Time
	Challengers    []common.Address

	// Decided is set once the outcome is known: a lost battle, or an
	// expired window with every challenge defeated. Closed is set when
	// the bonds are released and, for surviving claims, the registry
	// record is confirmed.
	Decided bool
	Invalid bool
	Closed  bool

	sessions map[common.Hash]common.Address
	bonded   map[common.Address]*big.Int
}

func (c *Claim) snapshot() Claim {
	out := *c
	out.Challengers = append([]common.Address(nil), c.Challengers...)
	out.sessions = nil
	out.bonded = nil
	return out
}

// Config carries the claim manager's collaborators. Address is the
// identity it presents to the registry and the battle manager; both must
// be configured to accept it before claims flow.
type Config struct {
	Address  common.Address
	Params   *netparams.Params
	Registry SuperblockRegistry
	Battle   BattleOpener
	Clock    func() time.Time
}

// Manager is the claim manager.
type Manager struct {
	addr     common.Address
	params   *netparams.Params
	registry SuperblockRegistry
	battle   BattleOpener
	clock    func() time.Time
	logger   zerolog.Logger

	mu       sync.RWMutex
	deposits map[common.Address]*big.Int
	claims   map[common.Hash]*Claim
}

var _ battle.Arbiter = (*Manager)(nil)

func New(cfg Config) (*Manager, error) {
	if cfg.Params == nil || cfg.Registry == nil || cfg.Battle == nil {
		return nil, errors.New("claim: params, registry and battle are required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		addr:     cfg.Address,
		params:   cfg.Params,
		registry: cfg.Registry,
		battle:   cfg.Battle,
		clock:    clock,
		logger:   log.Claim,
		deposits: make(map[common.Address]*big.Int),
		claims:   make(map[common.Hash]*Claim),
	}, nil
}

// Address returns the identity the manager presents to its collaborators.
func (m *Manager) Address() common.Address {
	return m.addr
}

// ProposeSuperblock bonds the proposal deposit, registers the superblock
// and opens its claim. The claim stays open to challenges until the
// challenge window lapses.
func (m *Manager) ProposeSuperblock(submitter common.Address, blocksRoot common.Hash, accWork *big.Int,
	timestamp uint32, lastHash common.Hash, lastBits uint32, parentID common.Hash) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if free := m.deposits[submitter]; free == nil || free.Cmp(m.params.ProposalDeposit) < 0 {
		return common.Hash{}, ErrInsufficientDeposit
	}
	id, err := m.registry.Propose(m.addr, blocksRoot, accWork, timestamp, lastHash, lastBits, parentID, submitter)
	if err != nil {
		return common.Hash{}, err
	}
	now := m.clock()
	cl := &Claim{
		SuperblockHash: id,
		Submitter:      submitter,
		CreatedAt:      now,
		Deadline:       now.Add(m.params.ChallengeWindow),
		sessions:       make(map[common.Hash]common.Address),
		bonded:         make(map[common.Address]*big.Int),
	}
	if err := m.bondLocked(cl, submitter, m.params.ProposalDeposit); err != nil {
		return common.Hash{}, err
	}
	m.claims[id] = cl
	m.logger.Info().
		Str("superblock", id.Hex()).
		Str("submitter", submitter.Hex()).
		Time("deadline", cl.Deadline).
		Msg("superblock claim opened")
	return id, nil
}

// ChallengeSuperblock bonds the challenge deposit, marks the registry
// record as disputed and opens a battle session between the submitter and
// the challenger. It returns the session id.
func (m *Manager) ChallengeSuperblock(challenger common.Address, superblockID common.Hash) (common.Hash, error) {
	m.mu.Lock()
	cl, ok := m.claims[superblockID]
	if !ok {
		m.mu.Unlock()
		return common.Hash{}, ErrClaimUnknown
	}
	if cl.Decided {
		m.mu.Unlock()
		return common.Hash{}, ErrClaimDecided
	}
	if challenger == cl.Submitter {
		m.mu.Unlock()
		return common.Hash{}, ErrSelfChallenge
	}
	if m.clock().After(cl.Deadline) {
		m.mu.Unlock()
		return common.Hash{}, ErrWindowClosed
	}
	if err := m.bondLocked(cl, challenger, m.params.ChallengeDeposit); err != nil {
		m.mu.Unlock()
		return common.Hash{}, err
	}
	if err := m.registry.Challenge(m.addr, superblockID); err != nil {
		m.refundLocked(cl, challenger, m.params.ChallengeDeposit)
		m.mu.Unlock()
		return common.Hash{}, err
	}
	submitter := cl.Submitter
	m.mu.Unlock()

	// The battle manager reports verdicts through SessionDecided, which
	// takes the claim lock, so it must not be called while holding it.
	sessionID, err := m.battle.OpenSession(m.addr, superblockID, submitter, challenger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// The registry record stays in battle with no live session; the
		// claim still settles through CheckClaimFinished.
		m.refundLocked(cl, challenger, m.params.ChallengeDeposit)
		return common.Hash{}, err
	}
	if cl.Decided {
		// Settled while the session was being opened. The orphaned
		// session drains through Timeout and SessionDecided ignores it.
		m.refundLocked(cl, challenger, m.params.ChallengeDeposit)
		return common.Hash{}, ErrClaimDecided
	}
	cl.Challengers = append(cl.Challengers, challenger)
	cl.sessions[sessionID] = challenger
	m.logger.Info().
		Str("superblock", superblockID.Hex()).
		Str("challenger", challenger.Hex()).
		Str("session", sessionID.Hex()).
		Msg("superblock challenged")
	return sessionID, nil
}

// SessionDecided is the battle manager's verdict callback. A submitter
// loss invalidates the claim immediately; a challenger loss moves their
// bond to the submitter and, once no sessions remain live, semi-approves
// the superblock. An error keeps the battle session alive for a retry, so
// every step here tolerates being run twice.
func (m *Manager) SessionDecided(sessionID, superblockHash common.Hash, winner, loser common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, ok := m.claims[superblockHash]
	if !ok {
		return ErrClaimUnknown
	}
	if cl.Closed {
		m.logger.Warn().
			Str("session", sessionID.Hex()).
			Str("superblock", superblockHash.Hex()).
			Msg("verdict for a closed claim ignored")
		return nil
	}
	delete(cl.sessions, sessionID)
	m.awardLocked(cl, loser, winner)

	if loser == cl.Submitter {
		if !cl.Invalid {
			if err := m.registry.Invalidate(m.addr, superblockHash); err != nil {
				return err
			}
			cl.Invalid = true
			cl.Decided = true
		}
		m.logger.Info().
			Str("superblock", superblockHash.Hex()).
			Str("winner", winner.Hex()).
			Msg("superblock claim defeated")
		return nil
	}

	// Semi-approval waits for the challenge window: until it lapses the
	// record must stay challengeable.
	if !cl.Invalid && !cl.Decided && len(cl.sessions) == 0 && m.clock().After(cl.Deadline) {
		if err := m.registry.SemiApprove(m.addr, superblockHash); err != nil {
			return err
		}
		cl.Decided = true
		m.logger.Info().
			Str("superblock", superblockHash.Hex()).
			Msg("all challenges defeated")
	}
	return nil
}

// CheckClaimFinished settles a claim once nothing more can happen to it:
// the window lapsed and no battle is live. Surviving claims are confirmed
// and every bond is released; defeated claims just release what remains.
// A claim blocked on an unapproved parent stays semi-approved and reports
// ErrClaimPending; call again after the parent confirms.
func (m *Manager) CheckClaimFinished(superblockID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, ok := m.claims[superblockID]
	if !ok {
		return ErrClaimUnknown
	}
	if cl.Closed {
		return ErrClaimClosed
	}
	if len(cl.sessions) > 0 {
		return ErrClaimPending
	}

	if cl.Invalid {
		m.unbondAllLocked(cl)
		cl.Closed = true
		m.logger.Info().
			Str("superblock", superblockID.Hex()).
			Msg("defeated claim closed")
		return nil
	}

	if !cl.Decided {
		if !m.clock().After(cl.Deadline) {
			return ErrClaimPending
		}
		sb, err := m.registry.Superblock(superblockID)
		if err != nil {
			return err
		}
		if sb.Status == superblocks.StatusNew || sb.Status == superblocks.StatusInBattle {
			if err := m.registry.SemiApprove(m.addr, superblockID); err != nil {
				return err
			}
		}
		cl.Decided = true
	}
	m.unbondAllLocked(cl)

	if err := m.registry.Confirm(m.addr, superblockID); err != nil {
		if errors.Is(err, superblocks.ErrParentStatus) {
			return ErrClaimPending
		}
		return err
	}
	cl.Closed = true
	m.logger.Info().
		Str("superblock", superblockID.Hex()).
		Msg("superblock claim confirmed")
	return nil
}

// Claim returns a point-in-time copy of the claim for id.
func (m *Manager) Claim(id common.Hash) (Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cl, ok := m.claims[id]
	if !ok {
		return Claim{}, ErrClaimUnknown
	}
	return cl.snapshot(), nil
}

// LiveSessions reports how many battle sessions are still open for id.
func (m *Manager) LiveSessions(id common.Hash) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cl := m.claims[id]; cl != nil {
		return len(cl.sessions)
	}
	return 0
}

// OpenClaims lists the superblock ids of claims not yet closed, in no
// particular order.
func (m *Manager) OpenClaims() []common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]common.Hash, 0, len(m.claims))
	for id, cl := range m.claims {
		if !cl.Closed {
			ids = append(ids, id)
		}
	}
	return ids
}
