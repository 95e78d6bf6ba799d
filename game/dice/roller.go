// Package dice isolates the randomness source behind a small interface so
// turn resolution stays deterministic under test.
package dice

import (
	"math/rand"
	"time"

	"github.com/mevsgame/fitgd-sub006/game/core"
)

// Faces is the die size used throughout turn resolution.
const Faces = 6

// Roller produces raw face values. Given a pool size it returns an ordered
// list of faces in [1, Faces]. Implementations must return exactly n values.
type Roller interface {
	Roll(n int) []int
}

// RandRoller is the production Roller, backed by math/rand.
type RandRoller struct {
	rng *rand.Rand
}

// NewRandRoller creates a RandRoller. A nil source seeds from the wall clock.
func NewRandRoller(rng *rand.Rand) *RandRoller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandRoller{rng: rng}
}

func (r *RandRoller) Roll(n int) []int {
	if n < 1 {
		n = 1
	}
	out := make([]int, n)
	for i := range out {
		out[i] = r.rng.Intn(Faces) + 1
	}
	return out
}

// PoolSize returns how many dice the position asks for. Desperate actions
// always roll exactly two dice and read the lowest; every other position
// rolls the full pool and reads the highest.
func PoolSize(position core.Position, pool int) int {
	if position == core.PositionDesperate {
		return 2
	}
	if pool < 1 {
		return 1
	}
	return pool
}

// Read selects the result value from the rolled faces per the position's
// read rule.
func Read(position core.Position, faces []int) int {
	if len(faces) == 0 {
		return 0
	}
	if position == core.PositionDesperate {
		lowest := faces[0]
		for _, f := range faces[1:] {
			if f < lowest {
				lowest = f
			}
		}
		return lowest
	}
	highest := faces[0]
	for _, f := range faces[1:] {
		if f > highest {
			highest = f
		}
	}
	return highest
}

// MapOutcome maps the rolled faces and the selected value to the four-way
// outcome: two or more maximum faces are a critical, a single maximum read
// value a success, the next two faces a partial, everything else a failure.
func MapOutcome(faces []int, selected int) core.Outcome {
	maxCount := 0
	for _, f := range faces {
		if f == Faces {
			maxCount++
		}
	}
	switch {
	case maxCount >= 2:
		return core.OutcomeCritical
	case selected == Faces:
		return core.OutcomeSuccess
	case selected >= Faces-2:
		return core.OutcomePartial
	default:
		return core.OutcomeFailure
	}
}
