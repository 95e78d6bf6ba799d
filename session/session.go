// Package session tracks connected participants: their WebSocket connections,
// per-connection broadcast cursors and heartbeat freshness.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session represents one connected participant. The arbiter session is the
// authority; everyone else is a replica fed by broadcast deltas.
type Session struct {
	PlayerID  int64
	AccountID int64
	CrewID    int64
	Arbiter   bool

	Conn *websocket.Conn

	// Cursor tracks which commands this connection has already received.
	Cursor replication.Cursor

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu            sync.Mutex
	lastHeartbeat time.Time
	logger        *zap.Logger
}

// NewSession creates a Session with the write goroutine started.
func NewSession(accountID, playerID, crewID int64, arbiter bool, conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		PlayerID:      playerID,
		AccountID:     accountID,
		CrewID:        crewID,
		Arbiter:       arbiter,
		Conn:          conn,
		Cursor:        replication.NewCursor(),
		SendChan:      make(chan []byte, sendChanBuf),
		Done:          make(chan struct{}),
		lastHeartbeat: time.Now(),
		logger:        logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("player_id", s.PlayerID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.Int64("player_id", s.PlayerID),
				zap.String("type", pkt.Type))
		}
	}
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping raw packet",
				zap.Int64("player_id", s.PlayerID))
		}
	}
}

// Close signals the writePump to shut down.
func (s *Session) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Heartbeat records a client heartbeat at the given wall-clock instant.
func (s *Session) Heartbeat(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = at
}

// LastHeartbeat returns the most recent heartbeat instant.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Stale reports whether the session has been silent longer than window.
func (s *Session) Stale(window time.Duration) bool {
	return time.Since(s.LastHeartbeat()) > window
}

// SendHeartbeatAck answers a client heartbeat with both timestamps.
func (s *Session) SendHeartbeatAck(clientTS int64) {
	type ackPayload struct {
		ClientTS int64 `json:"clientTs"`
		ServerTS int64 `json:"serverTs"`
	}
	payload, _ := json.Marshal(ackPayload{
		ClientTS: clientTS,
		ServerTS: time.Now().UnixMilli(),
	})
	s.Send(&Packet{Type: "heartbeat_ack", Payload: payload})
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}
