// Package sessions maps (user_id, session_id) keys to live orchestrators
// and serializes access per key.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"engram/internal/engine"
)

// Factory creates the orchestrator for a key on first use and after
// eviction. All authoritative state lives in the stores, so recreation
// is cheap.
type Factory func(userID, sessionID string) *engine.Orchestrator

type entry struct {
	mu       sync.Mutex // serializes turns on this key
	orch     *engine.Orchestrator
	lastUsed time.Time
	held     int
}

// Manager caches one orchestrator per (user_id, session_id) and
// guarantees operations on the same key never run concurrently.
// Different keys proceed in parallel.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
}

// NewManager creates a Manager. Entries idle longer than ttl become
// eligible for eviction.
func NewManager(factory Factory, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		factory: factory,
		ttl:     ttl,
		logger:  logger,
	}
}

func key(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Acquire returns the key's orchestrator with its lock held. The
// returned release function must be called when the turn is done.
// Acquire blocks while another turn holds the same key.
func (m *Manager) Acquire(userID, sessionID string) (*engine.Orchestrator, func()) {
	k := key(userID, sessionID)

	m.mu.Lock()
	e, ok := m.entries[k]
	if !ok {
		e = &entry{orch: m.factory(userID, sessionID)}
		m.entries[k] = e
	}
	e.held++
	m.mu.Unlock()

	e.mu.Lock()

	release := func() {
		m.mu.Lock()
		e.held--
		e.lastUsed = time.Now()
		m.mu.Unlock()
		e.mu.Unlock()
	}
	return e.orch, release
}

// Remove drops the key from the cache. Callers holding the key's lock
// may call Remove before releasing; a waiter that was already queued on
// the old entry simply operates on stores that no longer contain the
// session.
func (m *Manager) Remove(userID, sessionID string) {
	m.mu.Lock()
	delete(m.entries, key(userID, sessionID))
	m.mu.Unlock()
}

// EvictIdle removes entries idle beyond the TTL. Held entries are never
// evicted.
func (m *Manager) EvictIdle() int {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for k, e := range m.entries {
		if e.held == 0 && !e.lastUsed.IsZero() && e.lastUsed.Before(cutoff) {
			delete(m.entries, k)
			evicted++
		}
	}
	return evicted
}

// StartEviction runs EvictIdle on the given interval until the context
// is cancelled.
func (m *Manager) StartEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.EvictIdle(); n > 0 {
					m.logger.Debug("evicted idle orchestrators", "count", n)
				}
			}
		}
	}()
}

// Len reports the number of cached orchestrators.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
