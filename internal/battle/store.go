package battle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SessionStore owns the live sessions, keyed by session id. Sessions are
// addressed only by id; the store offers no iteration. Deleting a session
// removes every trace of it.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[common.Hash]*BattleSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[common.Hash]*BattleSession)}
}

// Create stores a new session. It fails with ErrSessionExists when the id
// is already live.
func (s *SessionStore) Create(sess *BattleSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Get returns the stored session for mutation in place.
func (s *SessionStore) Get(id common.Hash) (*BattleSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the session entirely.
func (s *SessionStore) Delete(id common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs lists the live session ids in no particular order.
func (s *SessionStore) IDs() []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]common.Hash, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
