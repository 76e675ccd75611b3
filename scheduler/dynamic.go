package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/log"
)

// DynamicKey is the opaque key (chain_id, request_id) dynamic tasks are
// registered under (spec.md §4.4: "registered by a stable key so that a
// later registration of the same key ... is a no-op").
type DynamicKey string

type dynamicEntry struct {
	cancel context.CancelFunc
	done   chan struct{}
	expireAt time.Time
	// correlationID tags one run of a DynamicKey for log correlation,
	// since the key itself is reused across the no-op-while-running /
	// replace-after-finish lifecycle and can't tell two runs apart.
	correlationID string
}

// DynamicScheduler runs cancellable, per-request jobs. A second
// registration under a key already running is a no-op (the existing job
// keeps running); a finished job is swept by the janitor after its TTL
// elapses, bounding memory for tasks whose caller never explicitly
// cancels them.
type DynamicScheduler struct {
	mu      sync.Mutex
	entries map[DynamicKey]*dynamicEntry
	ttl     time.Duration
	clock   cl.Clock
	log     log.Logger
}

// NewDynamicScheduler builds a scheduler whose janitor evicts finished
// entries older than ttl.
func NewDynamicScheduler(ttl time.Duration, clock cl.Clock, l log.Logger) *DynamicScheduler {
	return &DynamicScheduler{
		entries: make(map[DynamicKey]*dynamicEntry),
		ttl:     ttl,
		clock:   clock,
		log:     l,
	}
}

// Spawn registers and runs fn under key if not already running; returns
// true if this call started the job, false if a job under key was
// already in flight (no-op per spec.md §4.4).
func (s *DynamicScheduler) Spawn(ctx context.Context, key DynamicKey, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if e, exists := s.entries[key]; exists && e.done != nil {
		select {
		case <-e.done:
			// previous run finished; fall through to replace it
		default:
			s.mu.Unlock()
			return false
		}
	}
	taskCtx, cancel := context.WithCancel(ctx)
	correlationID := uuid.New().String()
	entry := &dynamicEntry{cancel: cancel, done: make(chan struct{}), correlationID: correlationID}
	s.entries[key] = entry
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugw("dynamic task spawned", "key", string(key), "correlation_id", correlationID)
	}
	go func() {
		defer func() {
			close(entry.done)
			s.mu.Lock()
			entry.expireAt = s.clock.Now().Add(s.ttl)
			s.mu.Unlock()
			if s.log != nil {
				s.log.Debugw("dynamic task finished", "key", string(key), "correlation_id", correlationID)
			}
		}()
		fn(taskCtx)
	}()
	return true
}

// Cancel stops the job registered under key, if any, and removes it
// immediately (a cooperative cancellation signal — spec.md §5 dynamic
// tasks accept cancellation at every suspension point).
func (s *DynamicScheduler) Cancel(key DynamicKey) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if ok {
		if s.log != nil {
			s.log.Debugw("dynamic task cancelled", "key", string(key), "correlation_id", entry.correlationID)
		}
		entry.cancel()
	}
}

// Janitor runs until ctx is cancelled, sweeping finished entries whose
// TTL has elapsed every tick.
func (s *DynamicScheduler) Janitor(ctx context.Context, tick time.Duration) {
	ticker := s.clock.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.sweep()
		}
	}
}

func (s *DynamicScheduler) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		select {
		case <-e.done:
			if !e.expireAt.IsZero() && now.After(e.expireAt) {
				delete(s.entries, k)
			}
		default:
		}
	}
}

// StopAll cancels every running dynamic task, used on process shutdown.
func (s *DynamicScheduler) StopAll() {
	s.mu.Lock()
	entries := make([]*dynamicEntry, 0, len(s.entries))
	for k, e := range s.entries {
		entries = append(entries, e)
		delete(s.entries, k)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
}
