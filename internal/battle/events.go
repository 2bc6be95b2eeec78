package battle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Event is one observable battle occurrence. Accepted actions, rejections
// and convictions all emit; the sink is the audit surface for a protocol
// whose terminal states are removed in the same action that reaches them.
type Event interface {
	event()
}

// EventSink receives every event the manager emits. Emit is called with the
// session lock held and must not call back into the manager.
type EventSink interface {
	Emit(e Event)
}

// SessionOpened is emitted when a dispute session is created.
type SessionOpened struct {
	SessionID      common.Hash
	SuperblockHash common.Hash
	Submitter      common.Address
	Challenger     common.Address
}

// MerkleRootHashesQueried is emitted when the challenger requests the block
// hash list.
type MerkleRootHashesQueried struct {
	SessionID      common.Hash
	SuperblockHash common.Hash
	Challenger     common.Address
}

// MerkleRootHashesResponded is emitted when the submitter's hash list is
// accepted.
type MerkleRootHashesResponded struct {
	SessionID      common.Hash
	SuperblockHash common.Hash
	Submitter      common.Address
	BlockCount     int
}

// LastBlockHeaderQueried is emitted when the challenger requests the last
// block header, naming the interim block index under dispute.
type LastBlockHeaderQueried struct {
	SessionID  common.Hash
	Challenger common.Address
	BlockIndex int
}

// LastBlockHeaderResponded is emitted when the submitter's header evidence
// is accepted.
type LastBlockHeaderResponded struct {
	SessionID common.Hash
	Submitter common.Address
}

// ChallengerConvicted is emitted when a session resolves against the
// challenger.
type ChallengerConvicted struct {
	SessionID      common.Hash
	SuperblockHash common.Hash
	Challenger     common.Address
}

// SubmitterConvicted is emitted when a session resolves against the
// submitter.
type SubmitterConvicted struct {
	SessionID      common.Hash
	SuperblockHash common.Hash
	Submitter      common.Address
}

// SessionRemoved is emitted after the verdict callback succeeds and the
// session is deleted. It always follows a conviction event.
type SessionRemoved struct {
	SessionID common.Hash
}

// ActionRejected is the diagnostic event for any failed validation. For a
// rejected action the session is unchanged; during final verification a
// conviction follows it.
type ActionRejected struct {
	SessionID common.Hash
	Err       error
}

func (SessionOpened) event()             {}
func (MerkleRootHashesQueried) event()   {}
func (MerkleRootHashesResponded) event() {}
func (LastBlockHeaderQueried) event()    {}
func (LastBlockHeaderResponded) event()  {}
func (ChallengerConvicted) event()       {}
func (SubmitterConvicted) event()        {}
func (SessionRemoved) event()            {}
func (ActionRejected) event()            {}

// LogSink renders events as structured log lines.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case SessionOpened:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Str("superblock", ev.SuperblockHash.Hex()).
			Str("submitter", ev.Submitter.Hex()).
			Str("challenger", ev.Challenger.Hex()).
			Msg("battle session opened")
	case MerkleRootHashesQueried:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Str("challenger", ev.Challenger.Hex()).
			Msg("merkle root hashes queried")
	case MerkleRootHashesResponded:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Int("blocks", ev.BlockCount).
			Msg("merkle root hashes responded")
	case LastBlockHeaderQueried:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Int("block_index", ev.BlockIndex).
			Msg("last block header queried")
	case LastBlockHeaderResponded:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Msg("last block header responded")
	case ChallengerConvicted:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Str("superblock", ev.SuperblockHash.Hex()).
			Str("challenger", ev.Challenger.Hex()).
			Msg("challenger convicted")
	case SubmitterConvicted:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Str("superblock", ev.SuperblockHash.Hex()).
			Str("submitter", ev.Submitter.Hex()).
			Msg("submitter convicted")
	case SessionRemoved:
		s.Logger.Info().
			Str("session", ev.SessionID.Hex()).
			Msg("battle session removed")
	case ActionRejected:
		s.Logger.Warn().
			Str("session", ev.SessionID.Hex()).
			Err(ev.Err).
			Msg("battle action rejected")
	}
}

// RecordingSink keeps every event in order, for tests and monitoring.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingSink) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything emitted so far.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
