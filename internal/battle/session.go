// Package battle drives superblock dispute sessions: a submitter defending
// a committed superblock against a challenger through alternating
// query/response rounds, ending in a conviction of exactly one party. Every
// accepted action advances a per-session counter and stamps the mover's
// marker, so the party owing a move is always derivable from the session
// alone.
package battle

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/KBriverun/sysethereum-contracts/internal/crypto"
)

// ChallengeState is the session's position in the dispute protocol.
// StateUnchallenged is never stored; sessions are created already
// challenged. The two terminal states are observable only through events:
// conviction removes the session in the same action.
type ChallengeState uint8

const (
	StateUnchallenged ChallengeState = iota
	StateChallenged
	StateQueryMerkleRootHashes
	StateRespondMerkleRootHashes
	StateQueryLastBlockHeader
	StatePendingVerification
	StateSuperblockVerified
	StateSuperblockFailed
)

func (s ChallengeState) String() string {
	switch s {
	case StateUnchallenged:
		return "unchallenged"
	case StateChallenged:
		return "challenged"
	case StateQueryMerkleRootHashes:
		return "query-merkle-root-hashes"
	case StateRespondMerkleRootHashes:
		return "respond-merkle-root-hashes"
	case StateQueryLastBlockHeader:
		return "query-last-block-header"
	case StatePendingVerification:
		return "pending-verification"
	case StateSuperblockVerified:
		return "superblock-verified"
	case StateSuperblockFailed:
		return "superblock-failed"
	default:
		return "unknown"
	}
}

// HeaderStatus tracks the last block header through its request/response
// round.
type HeaderStatus uint8

const (
	HeaderNone HeaderStatus = iota
	HeaderRequested
	HeaderVerified
)

func (s HeaderStatus) String() string {
	switch s {
	case HeaderNone:
		return "none"
	case HeaderRequested:
		return "requested"
	case HeaderVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// NoInterimBlock is the disputed-index sentinel meaning the challenger
// disputes the final block only and requests no interim header.
const NoInterimBlock = -1

// BlockInfo carries the fields of the one block header actually transmitted
// and checked: the superblock's last block.
type BlockInfo struct {
	PrevHash  common.Hash
	Timestamp uint32
	Bits      uint32
	Status    HeaderStatus
	Hash      common.Hash
}

// BattleSession is one dispute between a submitter and a single challenger
// over one superblock. It is mutated only by the manager's action handlers
// and removed on conviction.
type BattleSession struct {
	ID             common.Hash
	SuperblockHash common.Hash
	Submitter      common.Address
	Challenger     common.Address

	// LastActionTimestamp is when the most recent action was accepted.
	// LastActionSubmitter and LastActionChallenger hold the value
	// ActionsCounter had when that party last moved; the party with the
	// smaller marker owes the next move.
	LastActionTimestamp  time.Time
	LastActionSubmitter  uint64
	LastActionChallenger uint64
	ActionsCounter       uint64

	// BlockIndexInvalidated is the one block the challenger disputes,
	// or NoInterimBlock. Meaningful once LastHeader.Status advances past
	// HeaderNone.
	BlockIndexInvalidated int
	BlockHashes           []common.Hash
	LastHeader            BlockInfo
	State                 ChallengeState
}

// SessionID derives the identifier a dispute over superblockHash between
// the two parties is stored under.
func SessionID(superblockHash common.Hash, submitter, challenger common.Address) common.Hash {
	return crypto.Keccak256(superblockHash[:], submitter[:], challenger[:])
}

// NextMover returns the party whose action is owed. Exactly one marker is
// strictly ahead at any time.
func (s *BattleSession) NextMover() common.Address {
	if s.LastActionSubmitter > s.LastActionChallenger {
		return s.Challenger
	}
	return s.Submitter
}

// recordAction stamps an accepted action: the counter advances by one and
// the mover's marker takes its new value.
func (s *BattleSession) recordAction(mover common.Address, at time.Time) {
	s.ActionsCounter++
	if mover == s.Submitter {
		s.LastActionSubmitter = s.ActionsCounter
	} else {
		s.LastActionChallenger = s.ActionsCounter
	}
	s.LastActionTimestamp = at
}

// snapshot returns a deep copy safe to hand outside the manager's lock.
func (s *BattleSession) snapshot() BattleSession {
	cp := *s
	cp.BlockHashes = append([]common.Hash(nil), s.BlockHashes...)
	return cp
}
