package cas

import (
	"fmt"
	"sync"
)

// SessionMemoryStore implements the SessionStore interface storing session data in memory.
type SessionMemoryStore struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewSessionMemoryStore returns a ready to use SessionMemoryStore.
func NewSessionMemoryStore() *SessionMemoryStore {
	return &SessionMemoryStore{
		store: make(map[string]string),
	}
}

// Read returns the ticket for a session id
func (s *SessionMemoryStore) Read(id string) (string, error) {
	s.mu.RLock()

	if s.store == nil {
		s.mu.RUnlock()
		return "", fmt.Errorf("cas: session store: no session for %v", id)
	}

	t, ok := s.store[id]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("cas: session store: no session for %v", id)
	}

	return t, nil
}

// Write stores the ticket for a session id
func (s *SessionMemoryStore) Write(id, ticket string) error {
	s.mu.Lock()

	if s.store == nil {
		s.store = make(map[string]string)
	}

	s.store[id] = ticket
	s.mu.Unlock()
	return nil
}

// Delete removes the session from memory
func (s *SessionMemoryStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.store, id)
	s.mu.Unlock()
	return nil
}

// Clear removes all session data
func (s *SessionMemoryStore) Clear() error {
	s.mu.Lock()
	s.store = make(map[string]string)
	s.mu.Unlock()
	return nil
}

// DeleteFromTicket removes the session holding the ticket, if any.
func (s *SessionMemoryStore) DeleteFromTicket(ticket string) error {
	s.mu.Lock()

	var id string
	for sid, t := range s.store {
		if t == ticket {
			id = sid
			break
		}
	}

	if id != "" {
		delete(s.store, id)
	}

	s.mu.Unlock()
	return nil
}
