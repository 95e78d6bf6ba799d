package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
)

// StateHandler serves read-only session state. Replicas bootstrap their
// mirror from these endpoints before subscribing to the command stream.
type StateHandler struct {
	store *state.Store
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(store *state.Store) *StateHandler {
	return &StateHandler{store: store}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// GetCrew handles GET /api/state/crews/:id: the momentum pool, the action
// lock and every crew-owned clock.
func (h *StateHandler) GetCrew(c *gin.Context) {
	crewID, ok := parseID(c, "id")
	if !ok {
		return
	}
	crew, err := h.store.Crew(crewID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"crew":    crew,
		"action":  h.store.Action(crewID),
		"clocks":  h.store.ClocksForOwner(model.OwnerCrew, crewID),
		"members": h.store.CrewMembers(crewID),
	})
}

// GetCharacter handles GET /api/state/characters/:id: the sheet with traits,
// equipment, clocks and the live round record.
func (h *StateHandler) GetCharacter(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	char, err := h.store.Character(charID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"character": char,
		"traits":    h.store.CharacterTraits(charID),
		"equipment": h.store.CharacterEquipment(charID),
		"clocks":    h.store.ClocksForOwner(model.OwnerCharacter, charID),
		"round":     h.store.Round(charID).Clone(),
	})
}

// GetRound handles GET /api/state/characters/:id/round.
func (h *StateHandler) GetRound(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Character(charID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": h.store.Round(charID).Clone()})
}

// ListClocks handles GET /api/state/clocks: every clock in the session.
func (h *StateHandler) ListClocks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clocks": h.store.AllClocks()})
}
