// Package metadata implements the Image-wide dictionaries of spec.md
// section 3: header values, hash values, acquisition error ranges, and
// optical-disc sessions.
package metadata

import (
	"sync"

	"github.com/go-ewf/ewf/internal/format"
)

// Store aggregates every non-chunk fact an Image carries. Safe for
// concurrent reads; writes happen only during open/parse or during a
// write session, both single-threaded by contract.
type Store struct {
	mu      sync.RWMutex
	header  *format.HeaderValues
	hashes  map[string][]byte // digest name -> raw bytes, e.g. "MD5", "SHA1"
	errors  []format.ErrorRange
	sessions []format.Session
}

func New() *Store {
	return &Store{
		header: format.NewHeaderValues(),
		hashes: make(map[string][]byte),
	}
}

func (s *Store) SetHeaderValues(hv *format.HeaderValues) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = hv
}

func (s *Store) HeaderValue(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return "", false
	}
	return s.header.Get(key)
}

func (s *Store) HeaderValues() *format.HeaderValues {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header
}

func (s *Store) SetHash(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.hashes[name] = cp
}

func (s *Store) Hash(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.hashes[name]
	return v, ok
}

func (s *Store) AddErrorRange(r format.ErrorRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, r)
}

func (s *Store) ErrorRanges() []format.ErrorRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]format.ErrorRange, len(s.errors))
	copy(out, s.errors)
	return out
}

func (s *Store) SetSessions(sessions []format.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
}

func (s *Store) Sessions() []format.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]format.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}
