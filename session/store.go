package session

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a user has no session yet.
var ErrNotFound = errors.New("session not found")

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store is the process-wide session map. Each session carries its own
// mutex, so operations on one user serialize while different users
// never contend.
type Store struct {
	mu           sync.Mutex
	entries      map[int64]*entry
	historyLimit int
}

func NewStore(historyLimit int) *Store {
	return &Store{
		entries:      make(map[int64]*entry),
		historyLimit: historyLimit,
	}
}

func (s *Store) entryFor(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		e = &entry{session: newSession(userID, s.historyLimit)}
		s.entries[userID] = e
	}
	return e
}

// Do runs fn with exclusive access to the user's session, creating it
// lazily on first use. Long-running work inside fn intentionally blocks
// other operations for the same user only.
func (s *Store) Do(userID int64, fn func(*Session) error) error {
	e := s.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Get runs fn read-style against an existing session; ErrNotFound when
// the user never interacted.
func (s *Store) Get(userID int64, fn func(*Session) error) error {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// RecordUpload appends a file reference to the user's session.
func (s *Store) RecordUpload(userID int64, path string) {
	_ = s.Do(userID, func(sess *Session) error {
		sess.AddFile(path)
		return nil
	})
}
