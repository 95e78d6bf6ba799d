package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// detached builds a session without a connection or write pump, enough for
// registry behavior.
func detached(playerID int64, arbiter bool) *Session {
	return &Session{
		PlayerID:      playerID,
		Arbiter:       arbiter,
		Cursor:        replication.NewCursor(),
		SendChan:      make(chan []byte, 4),
		Done:          make(chan struct{}),
		lastHeartbeat: time.Now(),
	}
}

func TestManager_RegisterDisplacesDuplicate(t *testing.T) {
	m := NewManager(nil)
	first := detached(1, false)
	m.Register(first)

	second := detached(1, false)
	m.Register(second)

	assert.True(t, first.IsClosed(), "the displaced session must be closed")
	assert.Same(t, second, m.Get(1))
	assert.Equal(t, 1, m.Count())
}

func TestManager_ArbiterLookup(t *testing.T) {
	m := NewManager(nil)
	assert.Nil(t, m.Arbiter())

	m.Register(detached(1, false))
	gm := detached(2, true)
	m.Register(gm)
	assert.Same(t, gm, m.Arbiter())

	m.Unregister(2)
	assert.Nil(t, m.Arbiter())
}

func TestManager_StaleSessions(t *testing.T) {
	m := NewManager(nil)
	fresh := detached(1, false)
	stale := detached(2, false)
	stale.Heartbeat(time.Now().Add(-20 * time.Second))
	m.Register(fresh)
	m.Register(stale)

	got := m.Stale(15 * time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].PlayerID)
}

func TestSession_HeartbeatRefreshes(t *testing.T) {
	s := detached(1, false)
	s.Heartbeat(time.Now().Add(-time.Minute))
	assert.True(t, s.Stale(15*time.Second))

	s.Heartbeat(time.Now())
	assert.False(t, s.Stale(15*time.Second))
}

func TestManager_BroadcastHeartbeatReachesEverySession(t *testing.T) {
	m := NewManager(nil)
	a := detached(1, false)
	b := detached(2, true)
	m.Register(a)
	m.Register(b)

	m.BroadcastHeartbeat()

	for _, s := range []*Session{a, b} {
		raw := <-s.SendChan
		var pkt Packet
		require.NoError(t, json.Unmarshal(raw, &pkt))
		assert.Equal(t, "heartbeat", pkt.Type)

		var p struct {
			Timestamp int64 `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(pkt.Payload, &p))
		assert.NotZero(t, p.Timestamp)
	}
}

func TestManager_BroadcastSkipsFullChannels(t *testing.T) {
	m := NewManager(nil)
	s := detached(1, false)
	m.Register(s)

	for i := 0; i < 10; i++ {
		m.BroadcastAll([]byte(`{"type":"sync_delta"}`))
	}
	assert.Len(t, s.SendChan, 4, "overflow is dropped, never blocks")
}
