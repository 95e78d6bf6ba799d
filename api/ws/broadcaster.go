package ws

import (
	"encoding/json"
	"errors"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// Packet types shipped by the broadcaster.
const (
	PacketSyncDelta = "sync_delta"
	PacketSyncFull  = "sync_full"

	// PacketSessionSuspended announces a tripped breaker: live sync has
	// halted and an admin session reload is required.
	PacketSessionSuspended = "session_suspended"
)

// Broadcaster ships command-log deltas to connected replicas. Each session
// carries its own cursor so a reconnecting client picks up exactly where its
// connection dropped; the circuit breaker halts the auto path when command
// volume indicates a feedback loop.
type Broadcaster struct {
	log     *replication.Log
	breaker *replication.Breaker
	sm      *session.Manager
	logger  *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(log *replication.Log, breaker *replication.Breaker, sm *session.Manager, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{log: log, breaker: breaker, sm: sm, logger: logger}
}

// Breaker exposes the circuit breaker for the admin reload path.
func (b *Broadcaster) Breaker() *replication.Breaker {
	return b.breaker
}

// Tripped reports whether live sync is halted. Mutating handlers check this
// before touching state the replicas can no longer see.
func (b *Broadcaster) Tripped() bool {
	return b.breaker.Tripped()
}

// Sweep runs one auto-broadcast pass: per session, compute the delta since
// its cursor and ship it. The breaker observes the largest delta of the pass.
func (b *Broadcaster) Sweep() error {
	if !b.breaker.Allow() {
		return errs.ErrTripped
	}

	largest := 0
	for _, s := range b.sm.All() {
		if s.IsClosed() {
			continue
		}
		delta := b.log.Since(s.Cursor)
		if delta.Size() == 0 {
			continue
		}
		if delta.Size() > largest {
			largest = delta.Size()
		}
		b.sendDelta(s, delta)
	}

	if largest == 0 {
		return nil
	}
	if err := b.breaker.Observe(largest); err != nil {
		if errors.Is(err, errs.ErrTripped) {
			b.logger.Error("auto-broadcast halted by circuit breaker",
				zap.Int("commands", largest))
			b.notifySuspended()
		}
		return err
	}
	return nil
}

// notifySuspended tells every connected session that sync is halted until an
// admin session reload.
func (b *Broadcaster) notifySuspended() {
	for _, s := range b.sm.All() {
		s.Send(&session.Packet{Type: PacketSessionSuspended})
	}
}

// SendSnapshot pushes the full command history to one session and fast
// forwards its cursor. Used when a replica joins and when the authority
// reconnects.
func (b *Broadcaster) SendSnapshot(s *session.Session) {
	snap := b.log.Snapshot()
	b.send(s, PacketSyncFull, snap)
	s.Cursor = b.log.Counts()
}

// SnapshotAll pushes the full history to every connected session, used after
// an authority reconnect to guarantee convergence.
func (b *Broadcaster) SnapshotAll() {
	for _, s := range b.sm.All() {
		b.SendSnapshot(s)
	}
}

func (b *Broadcaster) sendDelta(s *session.Session, delta replication.Delta) {
	b.send(s, PacketSyncDelta, delta)
}

func (b *Broadcaster) send(s *session.Session, typ string, delta replication.Delta) {
	payload, err := json.Marshal(delta)
	if err != nil {
		b.logger.Error("delta marshal failed", zap.Error(err))
		return
	}
	s.Send(&session.Packet{Type: typ, Payload: payload})
}
