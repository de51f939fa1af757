package cas

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Reaper periodically removes expired entries from a
// ProxyGrantingTicketStorage. The first sweep fires one full interval after
// Start, and sweeps repeat every interval until Stop. A Reaper cannot be
// restarted once stopped; construct a new one.
type Reaper struct {
	storage  ProxyGrantingTicketStorage
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewReaper creates a Reaper sweeping storage every interval, removing
// entries older than ttl.
func NewReaper(storage ProxyGrantingTicketStorage, ttl, interval time.Duration) *Reaper {
	return &Reaper{
		storage:  storage,
		ttl:      ttl,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the sweep schedule on a background goroutine. A nil storage or
// a non-positive interval or ttl is a configuration error.
func (r *Reaper) Start() error {
	if r.storage == nil {
		return errors.New("cas: reaper: no proxy granting ticket storage")
	}

	if r.interval <= 0 {
		return errors.Errorf("cas: reaper: interval must be positive, got %v", r.interval)
	}

	if r.ttl <= 0 {
		return errors.Errorf("cas: reaper: ttl must be positive, got %v", r.ttl)
	}

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("cas: reaper: already started")
	}
	r.started = true
	r.mu.Unlock()

	go r.run()
	return nil
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.done)

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep runs one CleanUp pass. A failing sweep is logged and does not
// terminate the schedule.
func (r *Reaper) sweep() {
	defer func() {
		if err := recover(); err != nil {
			glog.Errorf("cas: reaper: sweep failed: %v", err)
		}
	}()

	r.storage.CleanUp(r.ttl)
}

// Stop cancels future sweeps and waits for any in-flight sweep to complete.
// It is safe to call multiple times and without a prior Start.
func (r *Reaper) Stop() {
	r.mu.Lock()
	started := r.started
	select {
	case <-r.stop:
		// already stopped
	default:
		close(r.stop)
	}
	r.mu.Unlock()

	if started {
		<-r.done
	}
}
