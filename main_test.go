package main

import (
	"context"
	"testing"

	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPersistDirty_ClocksSurviveRestart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := state.NewStore()
	log := replication.NewLog(nil)
	clocks := clock.NewService(store, log, nil, nil)

	created, err := clocks.Create(&model.Clock{
		OwnerID: 1, OwnerKind: model.OwnerCrew,
		Category: model.ClockThreat, Name: "alarm", MaxSegments: 6,
	})
	require.NoError(t, err)
	_, err = clocks.Advance(context.Background(), created.ID, 3)
	require.NoError(t, err)

	persistDirty(db, store, zap.NewNop())

	// Restart: a fresh store is rebuilt from the rows alone.
	restarted := state.NewStore()
	require.NoError(t, loadStore(db, restarted))
	got, err := restarted.Clock(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Segments)
	assert.Equal(t, 6, got.MaxSegments)
}

func TestPersistDirty_EmptiedClockRowIsRemoved(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := state.NewStore()
	log := replication.NewLog(nil)
	clocks := clock.NewService(store, log, nil, nil)

	created, err := clocks.Create(&model.Clock{
		OwnerID: 1, OwnerKind: model.OwnerCrew,
		Category: model.ClockThreat, Name: "alarm", Segments: 2, MaxSegments: 6,
	})
	require.NoError(t, err)
	persistDirty(db, store, zap.NewNop())

	var count int64
	require.NoError(t, db.Model(&model.Clock{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = clocks.Reduce(context.Background(), created.ID, 2)
	require.NoError(t, err)
	persistDirty(db, store, zap.NewNop())

	require.NoError(t, db.Model(&model.Clock{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "an emptied clock must not come back after a restart")
}
