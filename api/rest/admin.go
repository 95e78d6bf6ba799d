package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mevsgame/fitgd-sub006/api/ws"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/scheduler"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	sm     *session.Manager
	bc     *ws.Broadcaster
	log    *replication.Log
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	sm *session.Manager,
	bc *ws.Broadcaster,
	log *replication.Log,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{sm: sm, bc: bc, log: log, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	counts := h.log.Counts()
	commands := make(map[string]int, len(counts))
	for cat, n := range counts {
		commands[string(cat)] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"online_sessions": h.sm.Count(),
		"breaker_tripped": h.bc.Breaker().Tripped(),
		"command_counts":  commands,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListSessions returns a snapshot of all connected participants.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions := h.sm.All()
	type sessionInfo struct {
		PlayerID      int64 `json:"player_id"`
		CrewID        int64 `json:"crew_id"`
		Arbiter       bool  `json:"arbiter"`
		LastHeartbeat int64 `json:"last_heartbeat_ms"`
	}
	result := make([]sessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, sessionInfo{
			PlayerID:      s.PlayerID,
			CrewID:        s.CrewID,
			Arbiter:       s.Arbiter,
			LastHeartbeat: s.LastHeartbeat().UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": result, "count": len(result)})
}

// Kick forcibly disconnects a participant by player ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) Kick(c *gin.Context) {
	playerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s := h.sm.Get(playerID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not online"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked participant", zap.Int64("player_id", playerID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ReloadSession re-arms the tripped broadcast circuit breaker and pushes the
// full command history to every connected replica. This is the only path that
// resumes auto-sync after a trip.
// POST /api/admin/session/reload
func (h *AdminHandler) ReloadSession(c *gin.Context) {
	wasTripped := h.bc.Breaker().Tripped()
	h.bc.Breaker().Reset()
	h.bc.SnapshotAll()
	h.logger.Warn("session reloaded by admin",
		zap.Bool("breaker_was_tripped", wasTripped),
		zap.Int("sessions", h.sm.Count()))
	c.JSON(http.StatusOK, gin.H{"ok": true, "breaker_was_tripped": wasTripped})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
