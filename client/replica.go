// Package client implements the replica side of the sync protocol: it mirrors
// the authority's state by applying command deltas, tracks in-flight requests
// and watches the connection with heartbeats.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/gear"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// DisconnectWindow is how long the replica tolerates authority silence before
// reporting the connection lost.
const DisconnectWindow = 15 * time.Second

// Transport sends packets toward the authority. The network layer feeds
// received packets back through Replica.HandlePacket.
type Transport interface {
	Send(pkt *session.Packet) error
}

// Response mirrors the authority's request acknowledgement.
type Response struct {
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// pendingRequest tracks one in-flight mutation.
type pendingRequest struct {
	Type   string
	SentAt time.Time
	Done   chan Response
}

// Replica mirrors the authority state for one participant.
type Replica struct {
	mu      sync.Mutex
	store   *state.Store
	applier *replication.Applier
	tr      Transport
	logger  *zap.Logger

	pending     map[string]*pendingRequest
	lastContact time.Time
}

// NewReplica creates an empty replica around the given transport.
func NewReplica(tr Transport, logger *zap.Logger) *Replica {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := state.NewStore()
	return &Replica{
		store:       store,
		applier:     replication.NewApplier(store, logger),
		tr:          tr,
		logger:      logger,
		pending:     make(map[string]*pendingRequest),
		lastContact: time.Now(),
	}
}

// Store exposes the mirrored state for reads. Local code must never mutate it
// directly; every change arrives as a replicated command.
func (r *Replica) Store() *state.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

// Seed loads base entities fetched over REST before the stream starts.
func (r *Replica) Seed(crews []*model.Crew, chars []*model.Character, traits []*model.Trait, items []*model.Equipment, clocks []*model.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seedLocked(crews, chars, traits, items, clocks)
}

func (r *Replica) seedLocked(crews []*model.Crew, chars []*model.Character, traits []*model.Trait, items []*model.Equipment, clocks []*model.Clock) {
	for _, c := range crews {
		r.store.PutCrew(c)
	}
	for _, c := range chars {
		r.store.PutCharacter(c)
	}
	for _, t := range traits {
		r.store.PutTrait(t)
	}
	for _, e := range items {
		r.store.PutEquipment(e)
	}
	for _, c := range clocks {
		r.store.PutClock(c)
	}
}

// Request pre-validates the operation locally, then sends it and returns a
// channel that resolves with the authority's acknowledgement. Failing the
// local check never reaches the wire.
func (r *Replica) Request(msgType string, characterID int64, payload interface{}) (<-chan Response, error) {
	if err := r.preValidate(msgType, characterID); err != nil {
		return nil, err
	}

	var rawPayload json.RawMessage
	if payload != nil {
		var err error
		rawPayload, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	env, err := json.Marshal(struct {
		RequestID   string          `json:"requestId"`
		CharacterID int64           `json:"characterId"`
		Payload     json.RawMessage `json:"payload,omitempty"`
	}{requestID, characterID, rawPayload})
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{Type: msgType, SentAt: time.Now(), Done: make(chan Response, 1)}
	r.mu.Lock()
	r.pending[requestID] = p
	r.mu.Unlock()

	if err := r.tr.Send(&session.Packet{Type: msgType, Payload: env}); err != nil {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
		return nil, err
	}
	return p.Done, nil
}

// preValidate rejects requests the mirrored state already shows as invalid.
// The authority remains the source of truth; this only saves a round trip.
func (r *Replica) preValidate(msgType string, characterID int64) error {
	store := r.Store()
	switch msgType {
	case "commit_roll":
		rs := store.Round(characterID)
		if rs.State != core.StateDecisionPhase {
			return errs.Validation("cannot roll from state %s", rs.State)
		}
		if rs.Approach == "" || rs.Position == "" {
			return errs.Validation("approach and position must be selected before rolling")
		}
	case "use_stims":
		rs := store.Round(characterID)
		if rs.State != core.StateResolvingOutcome {
			return errs.Validation("stims are only available during consequence resolution")
		}
	case "use_rally":
		char, err := store.Character(characterID)
		if err != nil {
			return err
		}
		if !char.RallyAvailable && !store.Round(characterID).RallyInvoked {
			return errs.Validation("rally already spent")
		}
	case "action_start":
		char, err := store.Character(characterID)
		if err != nil {
			return err
		}
		if action := store.Action(char.CrewID); action != nil && action.CharacterID != characterID {
			return errs.Concurrency("another character's action is in progress")
		}
	}
	return nil
}

// CanEquip mirrors the authority's load validation so the UI can grey out
// items without a round trip.
func (r *Replica) CanEquip(characterID, itemID int64) error {
	store := r.Store()
	char, err := store.Character(characterID)
	if err != nil {
		return err
	}
	item, err := store.Equipment(itemID)
	if err != nil {
		return err
	}
	return gear.CanEquip(store.CharacterEquipment(characterID), item, char.LoadLimit)
}

// HandlePacket processes one packet from the authority.
func (r *Replica) HandlePacket(raw []byte) error {
	var pkt session.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return err
	}
	r.touch()

	switch pkt.Type {
	case "response":
		return r.handleResponse(pkt.Payload)
	case "sync_delta":
		return r.applyDelta(pkt.Payload)
	case "sync_full":
		return r.rebuild(pkt.Payload)
	case "heartbeat", "heartbeat_ack":
		// touch above already refreshed the disconnect window.
		return nil
	default:
		r.logger.Debug("unhandled packet type", zap.String("type", pkt.Type))
		return nil
	}
}

func (r *Replica) handleResponse(payload json.RawMessage) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return err
	}
	r.mu.Lock()
	p, ok := r.pending[resp.RequestID]
	delete(r.pending, resp.RequestID)
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("response for unknown request", zap.String("request_id", resp.RequestID))
		return nil
	}
	p.Done <- resp
	return nil
}

func (r *Replica) applyDelta(payload json.RawMessage) error {
	var delta replication.Delta
	if err := json.Unmarshal(payload, &delta); err != nil {
		return err
	}
	r.mu.Lock()
	applier := r.applier
	r.mu.Unlock()
	return applier.ApplyDelta(delta)
}

// rebuild replaces the mirror wholesale from a full history snapshot. Base
// entities survive; every derived mutation is replayed from command zero.
func (r *Replica) rebuild(payload json.RawMessage) error {
	var delta replication.Delta
	if err := json.Unmarshal(payload, &delta); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.store
	fresh := state.NewStore()
	r.seedInto(fresh, old)
	applier := replication.NewApplier(fresh, r.logger)
	r.mu.Unlock()

	if err := applier.ApplyDelta(delta); err != nil {
		return err
	}

	r.mu.Lock()
	r.store = fresh
	r.applier = applier
	r.mu.Unlock()
	r.logger.Info("replica rebuilt from full snapshot",
		zap.Int("commands", delta.Size()))
	return nil
}

// seedInto copies base entities from the old mirror into a fresh one before
// replay. Clocks are excluded: their full lifecycle lives in the command log.
func (r *Replica) seedInto(fresh, old *state.Store) {
	for _, crew := range old.AllCrews() {
		c := *crew
		fresh.PutCrew(&c)
	}
	for _, char := range old.AllCharacters() {
		c := *char
		fresh.PutCharacter(&c)
	}
	for _, trait := range old.AllTraits() {
		t := *trait
		fresh.PutTrait(&t)
	}
	for _, item := range old.AllEquipment() {
		e := *item
		fresh.PutEquipment(&e)
	}
}

// SendHeartbeat ships a liveness packet carrying the local clock.
func (r *Replica) SendHeartbeat() error {
	payload, _ := json.Marshal(struct {
		Timestamp int64 `json:"timestamp"`
	}{time.Now().UnixMilli()})
	return r.tr.Send(&session.Packet{Type: "heartbeat", Payload: payload})
}

func (r *Replica) touch() {
	r.mu.Lock()
	r.lastContact = time.Now()
	r.mu.Unlock()
}

// Disconnected reports whether the authority has been silent longer than the
// disconnect window.
func (r *Replica) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastContact) > DisconnectWindow
}

// PendingCount returns the number of unacknowledged requests.
func (r *Replica) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Duplicates reports how many duplicate commands the mirror skipped.
func (r *Replica) Duplicates() int {
	r.mu.Lock()
	applier := r.applier
	r.mu.Unlock()
	return applier.Duplicates()
}
