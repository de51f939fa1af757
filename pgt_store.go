package cas

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// ProxyGrantingTicketStorage maps a PGT IOU, returned synchronously in a
// validation response, to the proxy granting ticket delivered asynchronously
// on the proxy callback.
type ProxyGrantingTicketStorage interface {
	// Save records the IOU to PGT pair, overwriting an existing IOU.
	Save(pgtIou, pgt string) error

	// Retrieve returns the PGT for an IOU without consuming it.
	Retrieve(pgtIou string) (string, bool)

	// Consume atomically removes and returns the PGT for an IOU. Consuming
	// an unknown or already-consumed IOU reports false.
	Consume(pgtIou string) (string, bool)

	// Remove deletes the entry for an IOU. Removing an unknown IOU is a no-op.
	Remove(pgtIou string)

	// CleanUp removes every entry older than ttl at the time of the call.
	CleanUp(ttl time.Duration)
}

type proxyGrantingTicket struct {
	pgt      string
	issuedAt time.Time
}

// MemoryProxyGrantingTicketStorage implements ProxyGrantingTicketStorage
// storing IOU to PGT pairs in memory.
type MemoryProxyGrantingTicketStorage struct {
	mu    sync.Mutex
	store map[string]proxyGrantingTicket

	// now is stubbed in tests
	now func() time.Time
}

// NewMemoryProxyGrantingTicketStorage returns an empty storage.
func NewMemoryProxyGrantingTicketStorage() *MemoryProxyGrantingTicketStorage {
	return &MemoryProxyGrantingTicketStorage{
		store: make(map[string]proxyGrantingTicket),
		now:   time.Now,
	}
}

// Save records the pair with the current timestamp.
func (s *MemoryProxyGrantingTicketStorage) Save(pgtIou, pgt string) error {
	s.mu.Lock()
	s.store[pgtIou] = proxyGrantingTicket{pgt: pgt, issuedAt: s.now()}
	s.mu.Unlock()

	if glog.V(2) {
		glog.Infof("cas: pgt storage: saved pgt for iou %v", pgtIou)
	}

	return nil
}

// Retrieve returns the PGT for the IOU, if present.
func (s *MemoryProxyGrantingTicketStorage) Retrieve(pgtIou string) (string, bool) {
	s.mu.Lock()
	t, ok := s.store[pgtIou]
	s.mu.Unlock()

	return t.pgt, ok
}

// Consume removes and returns the PGT for the IOU, if present.
func (s *MemoryProxyGrantingTicketStorage) Consume(pgtIou string) (string, bool) {
	s.mu.Lock()
	t, ok := s.store[pgtIou]
	if ok {
		delete(s.store, pgtIou)
	}
	s.mu.Unlock()

	return t.pgt, ok
}

// Remove deletes the entry for the IOU.
func (s *MemoryProxyGrantingTicketStorage) Remove(pgtIou string) {
	s.mu.Lock()
	delete(s.store, pgtIou)
	s.mu.Unlock()
}

// CleanUp removes entries older than ttl. The scan holds the store lock, so
// entries saved after the scan begins are never removed by it.
func (s *MemoryProxyGrantingTicketStorage) CleanUp(ttl time.Duration) {
	cutoff := s.now().Add(-ttl)
	removed := 0

	s.mu.Lock()
	for iou, t := range s.store {
		if t.issuedAt.Before(cutoff) {
			delete(s.store, iou)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 && glog.V(2) {
		glog.Infof("cas: pgt storage: removed %v expired entries", removed)
	}
}
