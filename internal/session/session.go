// Package session manages the lifecycle of per-client engines, so several
// independent UI collaborators can drive the same gRPC-Web-inspector
// deployment without sharing registry or reflection state (spec §9 "Global
// mutable state" forbids a shared singleton; each session gets its own
// engine.Engine).
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/grpcweb-inspector/core/internal/config"
	"github.com/grpcweb-inspector/core/internal/engine"
)

const (
	// DefaultSessionTTL is the default time-to-live for sessions.
	DefaultSessionTTL = 1 * time.Hour
	// CleanupInterval is how often to check for expired sessions.
	CleanupInterval = 5 * time.Minute
	// SessionIDLength is the length of session IDs in bytes (hex encoded).
	SessionIDLength = 16
)

// State holds the per-session state.
type State struct {
	Engine    *engine.Engine
	CreatedAt time.Time
	LastUsed  time.Time
}

// Manager handles session lifecycle.
type Manager struct {
	sessions map[string]*State
	mu       sync.RWMutex
	ttl      time.Duration
	cfg      config.Config
	stopCh   chan struct{}
}

// NewManager creates a new session manager. Each session's engine is built
// from cfg.
func NewManager(ttl time.Duration, cfg config.Config) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	m := &Manager{
		sessions: make(map[string]*State),
		ttl:      ttl,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// GenerateID creates a new random session ID.
func GenerateID() (string, error) {
	b := make([]byte, SessionIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetOrCreate returns an existing session's engine or creates a new one,
// returning its ID alongside it. It returns the concrete *engine.Engine,
// so Manager does not satisfy interfaces.SessionManager, whose methods
// return interfaces.Core.
func (m *Manager) GetOrCreate(sessionID string) (*engine.Engine, string, error) {
	if sessionID != "" {
		m.mu.RLock()
		state, exists := m.sessions[sessionID]
		m.mu.RUnlock()

		if exists {
			m.mu.Lock()
			state.LastUsed = time.Now()
			m.mu.Unlock()
			return state.Engine, sessionID, nil
		}
	}

	newID, err := GenerateID()
	if err != nil {
		return nil, "", err
	}

	state := &State{
		Engine:    engine.New(m.cfg),
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
	}

	m.mu.Lock()
	m.sessions[newID] = state
	m.mu.Unlock()

	return state.Engine, newID, nil
}

// Get returns a session's engine by ID.
func (m *Manager) Get(sessionID string) (*engine.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}

	state.LastUsed = time.Now()
	return state.Engine, true
}

// Delete removes a session.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupLoop periodically removes expired sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// cleanup removes sessions whose last use exceeds the configured TTL.
func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, state := range m.sessions {
		if now.Sub(state.LastUsed) > m.ttl {
			delete(m.sessions, id)
		}
	}
}

// Close stops the cleanup loop and discards all sessions.
func (m *Manager) Close() error {
	close(m.stopCh)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.sessions {
		delete(m.sessions, id)
	}
	return nil
}

// Stats reports session population statistics.
type Stats struct {
	ActiveSessions int
	OldestSession  time.Duration
	NewestSession  time.Duration
}

// GetStats returns current session statistics.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{ActiveSessions: len(m.sessions)}

	now := time.Now()
	for _, state := range m.sessions {
		age := now.Sub(state.CreatedAt)
		if stats.OldestSession == 0 || age > stats.OldestSession {
			stats.OldestSession = age
		}
		if stats.NewestSession == 0 || age < stats.NewestSession {
			stats.NewestSession = age
		}
	}

	return stats
}
