package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_SinceAdvancesCursorPerCategory(t *testing.T) {
	log := NewLog(nil)
	cursor := NewCursor()

	log.Append(NewMomentumCommand(1, 4))
	log.Append(NewTraitCommand(TypeTraitDisabled, 7, 10))

	d := log.Since(cursor)
	assert.Equal(t, 2, d.Size())
	assert.Len(t, d.Crews, 1)
	assert.Len(t, d.Characters, 1)

	// Nothing new: the cursor has caught up.
	d = log.Since(cursor)
	assert.Equal(t, 0, d.Size())

	log.Append(NewMomentumCommand(1, 3))
	d = log.Since(cursor)
	assert.Equal(t, 1, d.Size())
	assert.Len(t, d.Crews, 1)
}

func TestLog_CursorAheadOfLogResendsAll(t *testing.T) {
	log := NewLog(nil)
	log.Append(NewMomentumCommand(1, 4))

	cursor := NewCursor()
	cursor[CategoryCrew] = 99

	d := log.Since(cursor)
	assert.Len(t, d.Crews, 1, "a stale cursor must not lose commands")
	assert.Equal(t, 1, cursor[CategoryCrew])
}

func TestDelta_MergedOrdersByTimestamp(t *testing.T) {
	d := Delta{
		Crews: []Command{
			{CommandID: "b", Category: CategoryCrew, Timestamp: 20},
		},
		Clocks: []Command{
			{CommandID: "a", Category: CategoryClock, Timestamp: 10},
			{CommandID: "c", Category: CategoryClock, Timestamp: 30},
		},
	}
	merged := d.Merged()
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].CommandID)
	assert.Equal(t, "b", merged[1].CommandID)
	assert.Equal(t, "c", merged[2].CommandID)
}

func TestLog_SnapshotAndAllCommandIDs(t *testing.T) {
	log := NewLog(nil)
	log.Append(NewMomentumCommand(1, 4))
	log.Append(NewMomentumCommand(1, 3))
	log.Append(NewTraitCommand(TypeTraitEnabled, 7, 10))

	snap := log.Snapshot()
	assert.Equal(t, 3, snap.Size())
	assert.Len(t, log.AllCommandIDs(), 3)
}
