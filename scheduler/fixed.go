// Package scheduler runs the node's two task pools: a FixedScheduler for
// long-lived per-(chain, task kind) jobs (listeners, subscribers, RPC
// servers) and a DynamicScheduler for cancellable, keyed, per-request
// jobs with TTL-based janitor cleanup (spec.md §2 Schedulers, §4.4
// dynamic tasks).
//
// Grounded on drand's beacon ticker/SyncManager goroutine-plus-cancel
// pattern (chain/beacon/ticker.go, chain/beacon/sync_manager.go): a
// registry map guarded by a mutex, each entry owning a context.CancelFunc.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/arpa-network/randcast-node/log"
)

// TaskKind distinguishes the three fixed-task pools of spec.md §2.
type TaskKind int

const (
	TaskListener TaskKind = iota
	TaskSubscriber
	TaskRPCServer
)

func (k TaskKind) String() string {
	switch k {
	case TaskListener:
		return "listener"
	case TaskSubscriber:
		return "subscriber"
	case TaskRPCServer:
		return "rpc_server"
	default:
		return "unknown"
	}
}

// FixedKey identifies one long-lived job.
type FixedKey struct {
	ChainID uint64
	Kind    TaskKind
	Name    string // distinguishes multiple listeners/subscribers of the same kind on one chain
}

func (k FixedKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.ChainID, k.Kind, k.Name)
}

// AlreadyExistsError is returned by FixedScheduler.Start on a key
// collision (spec.md §2: fixed tasks are keyed by (chain_id, task_type)).
type AlreadyExistsError struct{ Key FixedKey }

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("fixed task %s already exists", e.Key)
}

type fixedEntry struct {
	key    FixedKey
	cancel context.CancelFunc
	done   chan struct{}
}

// FixedTaskInfo describes one registered job, used by the management RPC's
// ListFixedTasks (spec.md §6 / SPEC_FULL §13).
type FixedTaskInfo struct {
	ChainID  uint64
	TaskType string
	Name     string
	Running  bool
}

// FixedScheduler owns every long-lived job in the process: one goroutine
// per registered key, started once and run until process shutdown or
// explicit Stop.
type FixedScheduler struct {
	mu      sync.Mutex
	entries map[string]*fixedEntry
	log     log.Logger
}

func NewFixedScheduler(l log.Logger) *FixedScheduler {
	return &FixedScheduler{entries: make(map[string]*fixedEntry), log: l}
}

// Start registers and runs fn under key. fn must run until ctx is
// cancelled. Returns AlreadyExistsError if key is already registered.
func (s *FixedScheduler) Start(ctx context.Context, key FixedKey, fn func(ctx context.Context)) error {
	s.mu.Lock()
	k := key.String()
	if _, exists := s.entries[k]; exists {
		s.mu.Unlock()
		return &AlreadyExistsError{Key: key}
	}
	taskCtx, cancel := context.WithCancel(ctx)
	entry := &fixedEntry{key: key, cancel: cancel, done: make(chan struct{})}
	s.entries[k] = entry
	s.mu.Unlock()

	go func() {
		defer close(entry.done)
		fn(taskCtx)
	}()
	return nil
}

// List snapshots every registered job, used by the management RPC's
// ListFixedTasks.
func (s *FixedScheduler) List() []FixedTaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FixedTaskInfo, 0, len(s.entries))
	for _, e := range s.entries {
		running := true
		select {
		case <-e.done:
			running = false
		default:
		}
		out = append(out, FixedTaskInfo{
			ChainID:  e.key.ChainID,
			TaskType: e.key.Kind.String(),
			Name:     e.key.Name,
			Running:  running,
		})
	}
	return out
}

// Stop cancels and deregisters the job at key, blocking until its
// goroutine has exited.
func (s *FixedScheduler) Stop(key FixedKey) {
	s.mu.Lock()
	k := key.String()
	entry, ok := s.entries[k]
	if ok {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	<-entry.done
}

// StopAll cancels every registered job and waits for all of them to
// exit, used on process shutdown.
func (s *FixedScheduler) StopAll() {
	s.mu.Lock()
	entries := make([]*fixedEntry, 0, len(s.entries))
	for k, e := range s.entries {
		entries = append(entries, e)
		delete(s.entries, k)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		<-e.done
	}
}
