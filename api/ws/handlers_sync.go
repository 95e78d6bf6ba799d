package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// Connection upkeep: client heartbeats and explicit resync requests.

// HandleHeartbeat refreshes the session's liveness window and answers with
// both timestamps so the client can estimate skew.
func (h *Handlers) HandleHeartbeat(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var p struct {
		Timestamp int64 `json:"timestamp"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
	}
	s.Heartbeat(time.Now())
	s.SendHeartbeatAck(p.Timestamp)
	return nil
}

// HandleResync pushes the full command history to the requesting session,
// rebuilding it from scratch. Replicas call this after detecting a gap.
func (h *Handlers) HandleResync(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	h.bc.SendSnapshot(s)
	h.logger.Info("full resync served",
		zap.Int64("player_id", s.PlayerID),
		zap.String("trace_id", TraceIDFromCtx(ctx)))
	return nil
}
