package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(playerID int64) *session.Session {
	return &session.Session{
		PlayerID: playerID,
		Cursor:   replication.NewCursor(),
		SendChan: make(chan []byte, 1024),
		Done:     make(chan struct{}),
	}
}

func drainPackets(t *testing.T, s *session.Session) []session.Packet {
	t.Helper()
	var out []session.Packet
	for {
		select {
		case raw := <-s.SendChan:
			var pkt session.Packet
			require.NoError(t, json.Unmarshal(raw, &pkt))
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func TestBroadcaster_SweepShipsOnlyNewCommands(t *testing.T) {
	log := replication.NewLog(nil)
	sm := session.NewManager(nil)
	bc := NewBroadcaster(log, replication.NewBreaker(nil), sm, nil)
	s := testSession(1)
	sm.Register(s)

	log.Append(replication.NewMomentumCommand(1, 4))
	require.NoError(t, bc.Sweep())

	pkts := drainPackets(t, s)
	require.Len(t, pkts, 1)
	assert.Equal(t, PacketSyncDelta, pkts[0].Type)

	var delta replication.Delta
	require.NoError(t, json.Unmarshal(pkts[0].Payload, &delta))
	assert.Equal(t, 1, delta.Size())

	// Nothing new: a second sweep ships nothing.
	require.NoError(t, bc.Sweep())
	assert.Empty(t, drainPackets(t, s))
}

func TestBroadcaster_LateJoinerGetsFullSnapshot(t *testing.T) {
	log := replication.NewLog(nil)
	sm := session.NewManager(nil)
	bc := NewBroadcaster(log, replication.NewBreaker(nil), sm, nil)

	log.Append(NewTestCommands(3)...)

	late := testSession(2)
	sm.Register(late)
	bc.SendSnapshot(late)

	pkts := drainPackets(t, late)
	require.Len(t, pkts, 1)
	assert.Equal(t, PacketSyncFull, pkts[0].Type)

	var delta replication.Delta
	require.NoError(t, json.Unmarshal(pkts[0].Payload, &delta))
	assert.Equal(t, 3, delta.Size())

	// The snapshot fast-forwarded the cursor: the next sweep is empty.
	require.NoError(t, bc.Sweep())
	assert.Empty(t, drainPackets(t, late))
}

func TestBroadcaster_BreakerTripsAfterThreeLargeSweeps(t *testing.T) {
	log := replication.NewLog(nil)
	sm := session.NewManager(nil)
	bc := NewBroadcaster(log, replication.NewBreaker(nil), sm, nil)
	s := testSession(1)
	sm.Register(s)

	for i := 0; i < 2; i++ {
		log.Append(NewTestCommands(60)...)
		require.NoError(t, bc.Sweep())
	}
	log.Append(NewTestCommands(60)...)
	err := bc.Sweep()
	assert.True(t, errors.Is(err, errs.ErrTripped), "the third oversized sweep trips the breaker")
	pkts := drainPackets(t, s)
	require.Len(t, pkts, 4, "the tripping sweep still shipped, then announced the halt")
	assert.Equal(t, PacketSessionSuspended, pkts[3].Type)

	// Once tripped, nothing ships until an explicit reload.
	log.Append(NewTestCommands(1)...)
	err = bc.Sweep()
	assert.True(t, errors.Is(err, errs.ErrTripped))
	assert.Empty(t, drainPackets(t, s))

	bc.Breaker().Reset()
	require.NoError(t, bc.Sweep())
	assert.Len(t, drainPackets(t, s), 1)
}

func TestBroadcaster_SmallSweepResetsLargeRun(t *testing.T) {
	log := replication.NewLog(nil)
	sm := session.NewManager(nil)
	bc := NewBroadcaster(log, replication.NewBreaker(nil), sm, nil)
	s := testSession(1)
	sm.Register(s)

	log.Append(NewTestCommands(60)...)
	require.NoError(t, bc.Sweep())
	log.Append(NewTestCommands(60)...)
	require.NoError(t, bc.Sweep())

	log.Append(NewTestCommands(10)...)
	require.NoError(t, bc.Sweep())

	log.Append(NewTestCommands(60)...)
	require.NoError(t, bc.Sweep(), "the run of large sweeps was broken")
	assert.False(t, bc.Breaker().Tripped())
}

// NewTestCommands builds n distinct crew commands.
func NewTestCommands(n int) []replication.Command {
	cmds := make([]replication.Command, 0, n)
	for i := 0; i < n; i++ {
		cmds = append(cmds, replication.NewMomentumCommand(1, i%11))
	}
	return cmds
}
