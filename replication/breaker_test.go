package replication

import (
	"errors"
	"testing"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsOnThreeConsecutiveLargeBroadcasts(t *testing.T) {
	b := NewBreaker(nil)

	require.NoError(t, b.Observe(60))
	require.NoError(t, b.Observe(60))
	err := b.Observe(60)
	assert.True(t, errors.Is(err, errs.ErrTripped), "the third large broadcast trips")
	assert.True(t, b.Tripped())
	assert.False(t, b.Allow())

	// Every observation after the trip is rejected, including small ones.
	assert.True(t, errors.Is(b.Observe(1), errs.ErrTripped))
}

func TestBreaker_SmallBroadcastResetsTheRun(t *testing.T) {
	b := NewBreaker(nil)

	require.NoError(t, b.Observe(60))
	require.NoError(t, b.Observe(60))
	require.NoError(t, b.Observe(10))
	require.NoError(t, b.Observe(60))
	require.NoError(t, b.Observe(60))
	assert.False(t, b.Tripped())
}

func TestBreaker_ThresholdIsExclusive(t *testing.T) {
	b := NewBreaker(nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Observe(LargeBroadcastThreshold))
	}
	assert.False(t, b.Tripped(), "exactly at the threshold is not large")
}

func TestBreaker_ResetReArms(t *testing.T) {
	b := NewBreaker(nil)
	for i := 0; i < MaxConsecutiveLargeBroadcasts; i++ {
		_ = b.Observe(LargeBroadcastThreshold + 1)
	}
	require.True(t, b.Tripped())

	b.Reset()
	assert.True(t, b.Allow())
	assert.NoError(t, b.Observe(60))
}
