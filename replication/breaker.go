package replication

import (
	"sync"

	"github.com/mevsgame/fitgd-sub006/errs"
	"go.uber.org/zap"
)

// Circuit breaker constants. A broadcast carrying more commands than the
// threshold is "large"; that many large broadcasts in a row trip the breaker.
const (
	LargeBroadcastThreshold       = 50
	MaxConsecutiveLargeBroadcasts = 3
)

// Breaker guards the auto-broadcast path against runaway command volume,
// usually the symptom of a replication feedback loop. Once tripped it stays
// tripped until an explicit session reload re-arms it.
type Breaker struct {
	mu          sync.Mutex
	consecutive int
	tripped     bool
	logger      *zap.Logger
}

// NewBreaker creates an armed Breaker.
func NewBreaker(logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{logger: logger}
}

// Allow reports whether auto-broadcast may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped
}

// Observe records the size of a broadcast that is about to ship. It returns
// errs.ErrTripped when this broadcast is the one that trips the breaker, or
// when the breaker was already tripped.
func (b *Breaker) Observe(size int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		return errs.ErrTripped
	}
	if size <= LargeBroadcastThreshold {
		b.consecutive = 0
		return nil
	}

	b.consecutive++
	b.logger.Warn("large broadcast observed",
		zap.Int("commands", size),
		zap.Int("consecutive", b.consecutive))
	if b.consecutive >= MaxConsecutiveLargeBroadcasts {
		b.tripped = true
		b.logger.Error("broadcast circuit breaker tripped; auto-sync halted until session reload",
			zap.Int("commands", size))
		return errs.ErrTripped
	}
	return nil
}

// Tripped reports whether the breaker has fired.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reset re-arms the breaker. Only the session-reload admin path calls this.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
	b.consecutive = 0
	b.logger.Info("broadcast circuit breaker re-armed")
}
