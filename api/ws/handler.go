package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mevsgame/fitgd-sub006/cache"
	"github.com/mevsgame/fitgd-sub006/config"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/state"
	mw "github.com/mevsgame/fitgd-sub006/middleware"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	sm       *session.Manager
	store    *state.Store
	crews    *crew.Service
	bc       *Broadcaster
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	sm *session.Manager,
	store *state.Store,
	crews *crew.Service,
	bc *Broadcaster,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:     db,
		cache:  c,
		sec:    sec,
		sm:     sm,
		store:  store,
		crews:  crews,
		bc:     bc,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	// The arbiter flag lives on the account row, never in the client request.
	var account model.Account
	if err := h.db.First(&account, claims.AccountID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		return
	}

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := session.NewSession(account.ID, account.ID, h.crewForPlayer(account.ID), account.Arbiter, conn, h.logger)
	h.sm.Register(sess)

	// Every joiner rebuilds from the full history; an authority reconnect
	// additionally re-pushes the full state to all replicas.
	h.bc.SendSnapshot(sess)
	if sess.Arbiter {
		h.bc.SnapshotAll()
		h.logger.Info("authority connected, full state pushed",
			zap.Int64("player_id", sess.PlayerID))
	}

	h.readPump(sess)
}

// crewForPlayer resolves the crew the player's character belongs to. Players
// without a character (spectators, the arbiter before claiming a crew) get 0.
func (h *Handler) crewForPlayer(playerID int64) int64 {
	var char model.Character
	if err := h.db.Where("player_id = ?", playerID).First(&char).Error; err != nil {
		return 0
	}
	return char.CrewID
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *session.Session) {
	defer func() {
		h.handleDisconnect(s)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("player_id", s.PlayerID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
func (h *Handler) handleDisconnect(s *session.Session) {
	s.Close()

	// An uncommitted action held by the departing player is released so the
	// crew is not stuck waiting. Committed actions stay for the arbiter.
	if s.CrewID != 0 {
		if action := h.store.Action(s.CrewID); action != nil &&
			action.PlayerID == s.PlayerID && !action.CommittedToRoll {
			if err := h.crews.ClearAction(s.CrewID, false); err != nil {
				h.logger.Warn("could not release action on disconnect",
					zap.Int64("crew_id", s.CrewID),
					zap.Error(err))
			}
		}
	}

	h.sm.Unregister(s.PlayerID)
	h.logger.Info("participant disconnected",
		zap.Int64("player_id", s.PlayerID),
		zap.Bool("arbiter", s.Arbiter))
}
