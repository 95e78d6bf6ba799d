package replication

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Cursor records, per category, how many commands a broadcast channel has
// already shipped. Constructed per session; never shared between sessions.
type Cursor map[Category]int

// NewCursor returns a zeroed cursor covering every category.
func NewCursor() Cursor {
	c := make(Cursor, len(Categories))
	for _, cat := range Categories {
		c[cat] = 0
	}
	return c
}

// Delta is the broadcast unit: the new commands per category since a cursor.
type Delta struct {
	Characters []Command `json:"characters"`
	Crews      []Command `json:"crews"`
	Clocks     []Command `json:"clocks"`
	RoundState []Command `json:"playerRoundState"`
}

// Size returns the total command count across all categories.
func (d *Delta) Size() int {
	return len(d.Characters) + len(d.Crews) + len(d.Clocks) + len(d.RoundState)
}

// Merged flattens the delta into one slice ordered by timestamp. Replicas
// apply the merged order exactly as provided.
func (d *Delta) Merged() []Command {
	out := make([]Command, 0, d.Size())
	out = append(out, d.Characters...)
	out = append(out, d.Crews...)
	out = append(out, d.Clocks...)
	out = append(out, d.RoundState...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func (d *Delta) bucket(cat Category) *[]Command {
	switch cat {
	case CategoryCharacter:
		return &d.Characters
	case CategoryCrew:
		return &d.Crews
	case CategoryClock:
		return &d.Clocks
	case CategoryRoundState:
		return &d.RoundState
	}
	return nil
}

// Log is the append-only per-category command history of one session.
type Log struct {
	mu     sync.RWMutex
	lists  map[Category][]Command
	logger *zap.Logger
}

// NewLog creates an empty Log.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	lists := make(map[Category][]Command, len(Categories))
	for _, cat := range Categories {
		lists[cat] = nil
	}
	return &Log{lists: lists, logger: logger}
}

// Append adds committed commands to their category lists.
func (l *Log) Append(cmds ...Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, cmd := range cmds {
		l.lists[cmd.Category] = append(l.lists[cmd.Category], cmd)
		l.logger.Debug("command appended",
			zap.String("category", string(cmd.Category)),
			zap.String("type", string(cmd.Type)),
			zap.String("command_id", cmd.CommandID))
	}
}

// Counts returns the current command count per category.
func (l *Log) Counts() Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := NewCursor()
	for _, cat := range Categories {
		c[cat] = len(l.lists[cat])
	}
	return c
}

// Since computes the delta of commands appended after the cursor and advances
// the cursor to the current counts.
func (l *Log) Since(cursor Cursor) Delta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var d Delta
	for _, cat := range Categories {
		list := l.lists[cat]
		from := cursor[cat]
		if from > len(list) {
			// Cursor ahead of the log happens after a session reload; resend
			// everything rather than lose commands.
			from = 0
		}
		if from < len(list) {
			*d.bucket(cat) = append([]Command(nil), list[from:]...)
		}
		cursor[cat] = len(list)
	}
	return d
}

// Snapshot returns the entire history as a delta, used for the full state
// push when a replica joins or the authority reconnects.
func (l *Log) Snapshot() Delta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var d Delta
	for _, cat := range Categories {
		*d.bucket(cat) = append([]Command(nil), l.lists[cat]...)
	}
	return d
}

// AllCommandIDs returns every command id currently in the log. The initial
// session load feeds these to the applier so replay-on-join never re-triggers
// side effects.
func (l *Log) AllCommandIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []string
	for _, cat := range Categories {
		for _, cmd := range l.lists[cat] {
			ids = append(ids, cmd.CommandID)
		}
	}
	return ids
}
