package client

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures every packet sent toward the authority.
type recordingTransport struct {
	sent []*session.Packet
	err  error
}

func (t *recordingTransport) Send(pkt *session.Packet) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, pkt)
	return nil
}

func seededReplica(tr Transport) *Replica {
	r := NewReplica(tr, nil)
	r.Seed(
		[]*model.Crew{{ID: 1, CurrentMomentum: 5}},
		[]*model.Character{{ID: 10, CrewID: 1, PlayerID: 100, Force: 2, LoadLimit: 5, RallyAvailable: true}},
		[]*model.Trait{{ID: 30, CharacterID: 10}},
		[]*model.Equipment{{ID: 20, CharacterID: 10, Tier: model.GearRare, Category: model.GearActive, Slots: 1}},
		nil,
	)
	return r
}

func packetOf(t *testing.T, typ string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	pkt, err := json.Marshal(session.Packet{Type: typ, Payload: raw})
	require.NoError(t, err)
	return pkt
}

func TestReplica_DeltaApplyIsIdempotent(t *testing.T) {
	r := seededReplica(&recordingTransport{})
	delta := replication.Delta{Crews: []replication.Command{replication.NewMomentumCommand(1, 3)}}

	require.NoError(t, r.HandlePacket(packetOf(t, "sync_delta", delta)))
	require.NoError(t, r.HandlePacket(packetOf(t, "sync_delta", delta)))

	crew, err := r.Store().Crew(1)
	require.NoError(t, err)
	assert.Equal(t, 3, crew.CurrentMomentum)
	assert.Equal(t, 1, r.Duplicates())
}

func TestReplica_RequestRoundTrip(t *testing.T) {
	tr := &recordingTransport{}
	r := seededReplica(tr)

	done, err := r.Request("set_approach", 10, map[string]string{"approach": "force"})
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "set_approach", tr.sent[0].Type)
	assert.Equal(t, 1, r.PendingCount())

	var env struct {
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(tr.sent[0].Payload, &env))
	require.NotEmpty(t, env.RequestID)

	require.NoError(t, r.HandlePacket(packetOf(t, "response", Response{
		RequestID: env.RequestID, Success: true,
	})))

	resp := <-done
	assert.True(t, resp.Success)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReplica_PreValidationBlocksBadRequests(t *testing.T) {
	tr := &recordingTransport{}
	r := seededReplica(tr)

	// The mirror shows the turn idle, so a roll request never leaves.
	_, err := r.Request("commit_roll", 10, nil)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Empty(t, tr.sent)

	_, err = r.Request("use_stims", 10, nil)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Empty(t, tr.sent)
}

func TestReplica_PreValidationUsesMirroredRoundState(t *testing.T) {
	tr := &recordingTransport{}
	r := seededReplica(tr)

	rs := core.NewRoundState(10)
	rs.State = core.StateDecisionPhase
	rs.Approach = model.ApproachForce
	rs.Position = core.PositionRisky
	delta := replication.Delta{RoundState: []replication.Command{replication.NewRoundStateCommand(rs)}}
	require.NoError(t, r.HandlePacket(packetOf(t, "sync_delta", delta)))

	_, err := r.Request("commit_roll", 10, nil)
	require.NoError(t, err)
	assert.Len(t, tr.sent, 1)
}

func TestReplica_CanEquipMirrorsLoadLimit(t *testing.T) {
	r := seededReplica(&recordingTransport{})
	r.Seed(nil, nil, nil, []*model.Equipment{
		{ID: 21, CharacterID: 10, Category: model.GearActive, Slots: 6},
	}, nil)

	assert.NoError(t, r.CanEquip(10, 20))
	assert.Error(t, r.CanEquip(10, 21))
}

func TestReplica_FullSnapshotRebuildConverges(t *testing.T) {
	r := seededReplica(&recordingTransport{})

	// Live delta mutates the mirror.
	live := replication.Delta{Crews: []replication.Command{replication.NewMomentumCommand(1, 2)}}
	require.NoError(t, r.HandlePacket(packetOf(t, "sync_delta", live)))

	// The authority's full history tells a different story; the rebuild wins.
	full := replication.Delta{
		Crews: []replication.Command{
			replication.NewMomentumCommand(1, 4),
			replication.NewMomentumCommand(1, 6),
		},
		Clocks: []replication.Command{
			replication.NewClockCommand(replication.TypeClockCreated, replication.ClockPayload{
				ClockID: 9, OwnerID: 1, OwnerKind: model.OwnerCrew,
				Category: model.ClockThreat, Segments: 2, MaxSegments: 6,
			}),
		},
	}
	require.NoError(t, r.HandlePacket(packetOf(t, "sync_full", full)))

	crew, err := r.Store().Crew(1)
	require.NoError(t, err)
	assert.Equal(t, 6, crew.CurrentMomentum)

	clk, err := r.Store().Clock(9)
	require.NoError(t, err)
	assert.Equal(t, 2, clk.Segments)

	// Base entities survived the rebuild.
	_, err = r.Store().Character(10)
	assert.NoError(t, err)
}

func TestReplica_HeartbeatAndDisconnectWindow(t *testing.T) {
	tr := &recordingTransport{}
	r := seededReplica(tr)

	require.NoError(t, r.SendHeartbeat())
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "heartbeat", tr.sent[0].Type)

	assert.False(t, r.Disconnected())
	r.mu.Lock()
	r.lastContact = r.lastContact.Add(-2 * DisconnectWindow)
	r.mu.Unlock()
	assert.True(t, r.Disconnected())

	require.NoError(t, r.HandlePacket(packetOf(t, "heartbeat_ack", map[string]int64{"serverTs": 1})))
	assert.False(t, r.Disconnected(), "any authority packet refreshes the window")
}

func TestReplica_SendFailureClearsPending(t *testing.T) {
	tr := &recordingTransport{err: errors.New("socket closed")}
	r := seededReplica(tr)

	_, err := r.Request("set_approach", 10, map[string]string{"approach": "force"})
	assert.Error(t, err)
	assert.Equal(t, 0, r.PendingCount())
}
