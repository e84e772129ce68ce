// Package latch implements the request scheduler's per-key latching
// described by spec.md §5: "Operations on the same key serialize through
// a latch layer ... correctness of the engine itself therefore assumes
// exclusive access per key." mvcc.Engine itself performs no latching — a
// caller (the scheduler, a CLI driver, a test harness) acquires a Guard
// before calling into it and releases the Guard afterward.
//
// Grounded on the teacher's lock_manager.go: the same wait-for-graph
// deadlock detector and FIFO per-key wait queue, narrowed from
// LockManager's shared/exclusive dual-mode locking (spec's MVCC engine
// never needs a shared mode, so Manager drops LockTypeShared, the
// upgrade path, and GetLockType/HasExclusiveHolder entirely) down to
// plain mutual exclusion per key.
package latch

import (
	"errors"
	"sync"
	"time"
)

// ErrLatchTimeout is returned when Acquire's deadline elapses before the
// latch set could be granted.
var ErrLatchTimeout = errors.New("latch: acquire timed out")

// ErrDeadlock is returned when granting a wait would complete a cycle in
// the wait-for graph.
var ErrDeadlock = errors.New("latch: acquiring would deadlock")

// keyState tracks the single current holder (if any) and an ordered wait
// queue for one key. Unlike the teacher's LockInfo, there is at most one
// holder at a time — Holders collapses to a single field.
type keyState struct {
	holder    uint64
	hasHolder bool
	waitQueue []*waiter
}

type waiter struct {
	schedulerID uint64
	granted     bool
	woken       chan struct{}
}

// Manager is the process-wide per-key latch table. It owns no storage;
// callers latch the key-set an mvcc.Engine operation is about to touch,
// run the operation, then release.
type Manager struct {
	mu sync.Mutex

	keys map[string]*keyState

	// waitFor maps schedulerID -> set of schedulerIDs it is waiting for,
	// mirroring the teacher's deadlock-detection graph.
	waitFor map[uint64]map[uint64]struct{}

	// held maps schedulerID -> set of keys it currently holds, for
	// ReleaseAll and for extending an existing Guard.
	held map[uint64]map[string]struct{}

	defaultTimeout time.Duration
}

// Options configures a Manager.
type Options struct {
	DefaultTimeout time.Duration
}

// DefaultOptions returns the teacher's default 5-second wait timeout.
func DefaultOptions() Options {
	return Options{DefaultTimeout: 5 * time.Second}
}

// NewManager returns an empty Manager.
func NewManager(opts Options) *Manager {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	return &Manager{
		keys:           make(map[string]*keyState),
		waitFor:        make(map[uint64]map[uint64]struct{}),
		held:           make(map[uint64]map[string]struct{}),
		defaultTimeout: opts.DefaultTimeout,
	}
}

// Guard is the set of keys a scheduler currently holds latched. Release
// drops every key in the set at once.
type Guard struct {
	mgr         *Manager
	schedulerID uint64
	keys        []string
}

// Acquire latches every key in keys for schedulerID, sorted internally by
// the caller to keep a consistent lock order across callers (spec.md §5
// leaves ordering to the scheduler; Manager itself just grants in
// request order per key). Blocks up to timeout (or the Manager default,
// if timeout is zero) per key; on ErrLatchTimeout or ErrDeadlock any
// keys already acquired by this call are released before returning.
func (m *Manager) Acquire(schedulerID uint64, keys [][]byte, timeout time.Duration) (*Guard, error) {
	if timeout == 0 {
		timeout = m.defaultTimeout
	}

	g := &Guard{mgr: m, schedulerID: schedulerID}
	for _, key := range keys {
		if err := m.acquireOne(schedulerID, key, timeout); err != nil {
			g.Release()
			return nil, err
		}
		g.keys = append(g.keys, string(key))
	}
	return g, nil
}

func (m *Manager) acquireOne(schedulerID uint64, key []byte, timeout time.Duration) error {
	keyStr := string(key)

	m.mu.Lock()

	state, exists := m.keys[keyStr]
	if !exists {
		state = &keyState{}
		m.keys[keyStr] = state
	}

	if state.hasHolder && state.holder == schedulerID {
		m.mu.Unlock()
		return nil
	}

	if !state.hasHolder {
		m.grantLocked(state, schedulerID, keyStr)
		m.mu.Unlock()
		return nil
	}

	blocking := map[uint64]struct{}{state.holder: {}}
	if m.wouldDeadlockLocked(schedulerID, blocking) {
		m.mu.Unlock()
		return ErrDeadlock
	}
	m.addWaitForLocked(schedulerID, blocking)

	w := &waiter{schedulerID: schedulerID, woken: make(chan struct{})}
	state.waitQueue = append(state.waitQueue, w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.woken:
		return nil
	case <-timer.C:
		m.removeFromWaitQueue(keyStr, schedulerID)
		return ErrLatchTimeout
	}
}

func (m *Manager) grantLocked(state *keyState, schedulerID uint64, keyStr string) {
	state.holder = schedulerID
	state.hasHolder = true

	if _, ok := m.held[schedulerID]; !ok {
		m.held[schedulerID] = make(map[string]struct{})
	}
	m.held[schedulerID][keyStr] = struct{}{}
}

func (m *Manager) addWaitForLocked(schedulerID uint64, blocking map[uint64]struct{}) {
	if _, ok := m.waitFor[schedulerID]; !ok {
		m.waitFor[schedulerID] = make(map[uint64]struct{})
	}
	for target := range blocking {
		m.waitFor[schedulerID][target] = struct{}{}
	}
}

// wouldDeadlockLocked runs the teacher's DFS cycle check over the
// wait-for graph, caller holding m.mu.
func (m *Manager) wouldDeadlockLocked(schedulerID uint64, blocking map[uint64]struct{}) bool {
	var dfs func(node uint64, visited, inStack map[uint64]bool) bool
	dfs = func(node uint64, visited, inStack map[uint64]bool) bool {
		visited[node] = true
		inStack[node] = true

		for target := range m.waitFor[node] {
			if target == schedulerID {
				return true
			}
			if !visited[target] {
				if dfs(target, visited, inStack) {
					return true
				}
			} else if inStack[target] {
				return true
			}
		}

		inStack[node] = false
		return false
	}

	for target := range blocking {
		if target == schedulerID {
			continue
		}
		if dfs(target, make(map[uint64]bool), make(map[uint64]bool)) {
			return true
		}
	}
	return false
}

func (m *Manager) releaseOne(schedulerID uint64, keyStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.keys[keyStr]
	if !exists || !state.hasHolder || state.holder != schedulerID {
		return
	}

	state.hasHolder = false
	state.holder = 0

	if keys, ok := m.held[schedulerID]; ok {
		delete(keys, keyStr)
		if len(keys) == 0 {
			delete(m.held, schedulerID)
		}
	}

	delete(m.waitFor, schedulerID)
	for _, blocking := range m.waitFor {
		delete(blocking, schedulerID)
	}

	m.processWaitQueueLocked(keyStr, state)

	if !state.hasHolder && len(state.waitQueue) == 0 {
		delete(m.keys, keyStr)
	}
}

func (m *Manager) processWaitQueueLocked(keyStr string, state *keyState) {
	if state.hasHolder || len(state.waitQueue) == 0 {
		return
	}

	next := state.waitQueue[0]
	state.waitQueue = state.waitQueue[1:]
	next.granted = true

	m.grantLocked(state, next.schedulerID, keyStr)
	delete(m.waitFor, next.schedulerID)
	close(next.woken)
}

func (m *Manager) removeFromWaitQueue(keyStr string, schedulerID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.keys[keyStr]
	if !exists {
		return
	}

	kept := state.waitQueue[:0:0]
	for _, w := range state.waitQueue {
		if w.schedulerID != schedulerID {
			kept = append(kept, w)
		}
	}
	state.waitQueue = kept

	delete(m.waitFor, schedulerID)

	if !state.hasHolder && len(state.waitQueue) == 0 {
		delete(m.keys, keyStr)
	}
}

// Release drops every key g holds, waking the next waiter (if any) on
// each. Release is idempotent: calling it twice is a no-op the second
// time.
func (g *Guard) Release() {
	for _, keyStr := range g.keys {
		g.mgr.releaseOne(g.schedulerID, keyStr)
	}
	g.keys = nil
}

// NumLatched returns the number of keys currently latched process-wide,
// for tests and diagnostics.
func (m *Manager) NumLatched() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
