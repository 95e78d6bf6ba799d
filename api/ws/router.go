package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, sess *session.Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
func (r *Router) Dispatch(s *session.Session, raw []byte) {
	var pkt session.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("player_id", s.PlayerID),
			zap.Error(err))
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("player_id", s.PlayerID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	// Assign a trace ID for this message dispatch.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("player_id", s.PlayerID))
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("player_id", s.PlayerID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
