package cas

import (
	"sync"

	"github.com/golang/glog"
)

// SessionHandle is a reference to a local session owned by the surrounding
// web-serving layer. The mapping store holds it only to invalidate it when a
// single logout notice arrives.
type SessionHandle interface {
	// ID returns the local session identifier.
	ID() string

	// Invalidate terminates the local session.
	Invalidate() error
}

// SessionMappingStore correlates CAS server tickets with local sessions for
// single logout.
type SessionMappingStore interface {
	// Register maps a ticket to a session, replacing any prior ticket
	// mapping for the same session id.
	Register(ticket string, session SessionHandle)

	// RemoveByTicket atomically removes and returns the session mapped to
	// the ticket. Exactly one caller observes a given entry.
	RemoveByTicket(ticket string) (SessionHandle, bool)

	// RemoveBySessionID removes the mapping for a local session id,
	// including the ticket entry pointing at it. Unknown ids are a no-op.
	RemoveBySessionID(sessionID string)
}

type mappedSession struct {
	session SessionHandle

	// session id captured at registration time, since a handle may become
	// unusable after invalidation
	sessionID string
}

// MemorySessionMappingStore implements SessionMappingStore with two in-memory
// maps, a forward map from ticket to session and a reverse index from session
// id to ticket. Both maps are updated under one mutex so no caller observes a
// partially-updated pair.
type MemorySessionMappingStore struct {
	mu       sync.Mutex
	sessions map[string]mappedSession // ticket -> session
	tickets  map[string]string        // session id -> ticket
}

// NewMemorySessionMappingStore returns an empty MemorySessionMappingStore.
func NewMemorySessionMappingStore() *MemorySessionMappingStore {
	return &MemorySessionMappingStore{
		sessions: make(map[string]mappedSession),
		tickets:  make(map[string]string),
	}
}

// Register maps ticket -> session and session id -> ticket. A session already
// registered under another ticket loses that mapping, mirroring
// re-authentication.
func (s *MemorySessionMappingStore) Register(ticket string, session SessionHandle) {
	id := session.ID()

	s.mu.Lock()

	if old, ok := s.tickets[id]; ok {
		delete(s.sessions, old)
	}

	s.tickets[id] = ticket
	s.sessions[ticket] = mappedSession{session: session, sessionID: id}

	s.mu.Unlock()
}

// RemoveByTicket removes both the forward entry and the reverse index entry
// and returns the session, or false if the ticket is unknown.
func (s *MemorySessionMappingStore) RemoveByTicket(ticket string) (SessionHandle, bool) {
	s.mu.Lock()

	m, ok := s.sessions[ticket]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}

	delete(s.sessions, ticket)

	// The reverse entry may already point at a newer ticket for the same
	// session id; only clear it if it still points here.
	if t, ok := s.tickets[m.sessionID]; ok {
		if t == ticket {
			delete(s.tickets, m.sessionID)
		} else if glog.V(2) {
			glog.Infof("cas: session mappings: reverse entry for %v superseded by %v", m.sessionID, t)
		}
	}

	s.mu.Unlock()
	return m.session, true
}

// RemoveBySessionID looks up the reverse index and clears both entries.
// Unknown session ids are ignored.
func (s *MemorySessionMappingStore) RemoveBySessionID(sessionID string) {
	s.mu.Lock()

	if ticket, ok := s.tickets[sessionID]; ok {
		delete(s.sessions, ticket)
	}
	delete(s.tickets, sessionID)

	s.mu.Unlock()
}
