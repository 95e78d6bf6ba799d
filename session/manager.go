package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager maintains the registry of connected Sessions, keyed by player id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	logger   *zap.Logger
}

// NewManager creates a Manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same player,
// it is closed first (handles duplicate login / reconnect).
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[s.PlayerID]; ok {
		old.Close()
		m.logger.Info("duplicate session displaced",
			zap.Int64("player_id", s.PlayerID))
	}
	m.sessions[s.PlayerID] = s
	m.logger.Info("session registered",
		zap.Int64("player_id", s.PlayerID),
		zap.Bool("arbiter", s.Arbiter))
}

// Unregister removes the session for a player id.
func (m *Manager) Unregister(playerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, playerID)
	m.logger.Info("session unregistered", zap.Int64("player_id", playerID))
}

// Get returns the session for a player id, or nil.
func (m *Manager) Get(playerID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[playerID]
}

// Arbiter returns the connected arbiter session, or nil when the authority is
// offline.
func (m *Manager) Arbiter() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Arbiter {
			return s
		}
	}
	return nil
}

// IsOnline reports whether a player is currently connected.
func (m *Manager) IsOnline(playerID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[playerID]
	return ok
}

// Count returns the number of currently connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot slice of all current sessions.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Stale returns the sessions whose last heartbeat is older than window. The
// disconnect watchdog closes them.
func (m *Manager) Stale(window time.Duration) []*Session {
	var out []*Session
	for _, s := range m.All() {
		if s.Stale(window) {
			out = append(out, s)
		}
	}
	return out
}

// BroadcastAll sends a raw pre-encoded packet to every connected session.
// Uses non-blocking send to prevent slow connections from blocking the
// broadcast.
func (m *Manager) BroadcastAll(data []byte) {
	for _, s := range m.All() {
		select {
		case s.SendChan <- data:
		default:
			m.logger.Warn("broadcast dropped packet for slow client",
				zap.Int64("player_id", s.PlayerID))
		}
	}
}

// BroadcastToAll sends a packet to every connected session (typed version).
func (m *Manager) BroadcastToAll(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		m.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	m.BroadcastAll(data)
}

// BroadcastHeartbeat pushes a heartbeat packet carrying the server timestamp
// to every connected session. Replicas refresh their disconnect window on any
// received packet, so the emitter keeps idle-but-healthy connections alive.
func (m *Manager) BroadcastHeartbeat() {
	payload, err := json.Marshal(struct {
		Timestamp int64 `json:"timestamp"`
	}{time.Now().UnixMilli()})
	if err != nil {
		return
	}
	m.BroadcastToAll(&Packet{Type: "heartbeat", Payload: payload})
}

// CloseAll gracefully closes all connected sessions.
func (m *Manager) CloseAll() {
	sessions := m.All()
	m.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if m.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
