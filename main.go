package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/mevsgame/fitgd-sub006/api/rest"
	apows "github.com/mevsgame/fitgd-sub006/api/ws"
	"github.com/mevsgame/fitgd-sub006/cache"
	"github.com/mevsgame/fitgd-sub006/config"
	dbadapter "github.com/mevsgame/fitgd-sub006/db"
	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/dice"
	"github.com/mevsgame/fitgd-sub006/game/gear"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/game/turn"
	mw "github.com/mevsgame/fitgd-sub006/middleware"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/plugin/hook"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/scheduler"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Session state ----
	store := state.NewStore()
	if err := loadStore(db, store); err != nil {
		log.Fatalf("load session state: %v", err)
	}

	cmdLog := replication.NewLog(logger)
	history, err := replication.LoadHistory(db)
	if err != nil {
		log.Fatalf("load command history: %v", err)
	}
	cmdLog.Append(history.Merged()...)

	// The authority's own applier never replays history into the live store;
	// the rows loaded above already reflect it. Marking every persisted id
	// keeps a later full-snapshot apply from double-firing side effects.
	applier := replication.NewApplier(store, logger)
	applier.MarkApplied(cmdLog.AllCommandIDs()...)
	logger.Info("command history loaded", zap.Int("commands", history.Size()))

	writer := replication.NewWriter(db, logger)
	defer writer.Stop(nil)

	// ---- Services ----
	hooks := hook.NewHookCenter()
	crewSvc := crew.NewService(store, cmdLog, logger)
	clockSvc := clock.NewService(store, cmdLog, hooks, logger)
	gearSvc := gear.NewService(store, cmdLog, logger)
	turnSvc := turn.NewService(store, cmdLog, crewSvc, clockSvc, dice.NewRandRoller(nil), hooks, logger)

	// ---- Sessions / broadcast ----
	sm := session.NewManager(logger)
	defer sm.CloseAll()
	breaker := replication.NewBreaker(logger)
	bc := apows.NewBroadcaster(cmdLog, breaker, sm, logger)

	wsRouter := apows.NewRouter(logger)
	handlers := apows.NewHandlers(store, turnSvc, crewSvc, clockSvc, gearSvc, bc, logger)
	handlers.RegisterAll(wsRouter)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sched.AddTicker("auto_broadcast",
		time.Duration(cfg.Game.BroadcastIntervalMs)*time.Millisecond, func() {
			if err := bc.Sweep(); err != nil {
				logger.Warn("broadcast sweep suspended", zap.Error(err))
			}
		})

	// The emitter keeps idle replicas inside their disconnect window; the
	// watchdog closes sessions that stopped answering.
	heartbeatWindow := time.Duration(cfg.Game.HeartbeatWindowMs) * time.Millisecond
	sched.AddTicker("heartbeat_emitter", heartbeatWindow/3, sm.BroadcastHeartbeat)
	sched.AddTicker("heartbeat_watchdog", heartbeatWindow/3, func() {
		for _, s := range sm.Stale(heartbeatWindow) {
			logger.Warn("heartbeat window exceeded, closing session",
				zap.Int64("player_id", s.PlayerID))
			s.Close()
		}
	})

	// Persistence sweep: flush dirty entities and any commands the writer has
	// not yet seen.
	persistCursor := cmdLog.Counts()
	sched.AddTicker("persistence",
		time.Duration(cfg.Game.SaveIntervalS)*time.Second, func() {
			if d := cmdLog.Since(persistCursor); d.Size() > 0 {
				writer.Enqueue(d.Merged()...)
			}
			persistDirty(db, store, logger)
		})

	// ---- Gin HTTP server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	stateH := apirest.NewStateHandler(store)
	adminH := apirest.NewAdminHandler(sm, bc, cmdLog, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		stateG := api.Group("/state")
		stateG.Use(mw.Auth(cfg.Security, c))
		stateG.GET("/crews/:id", stateH.GetCrew)
		stateG.GET("/characters/:id", stateH.GetCharacter)
		stateG.GET("/characters/:id/round", stateH.GetRound)
		stateG.GET("/clocks", stateH.ListClocks)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/sessions", adminH.ListSessions)
		adminG.POST("/kick/:id", adminH.Kick)
		adminG.POST("/session/reload", adminH.ReloadSession)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, cfg.Security, sm, store, crewSvc, bc, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// loadStore reads every session entity from the database into the in-memory
// store. Clocks are loaded too: the persisted rows already reflect the full
// command history.
func loadStore(db *gorm.DB, store *state.Store) error {
	var crews []*model.Crew
	if err := db.Find(&crews).Error; err != nil {
		return err
	}
	for _, c := range crews {
		store.PutCrew(c)
	}
	var chars []*model.Character
	if err := db.Find(&chars).Error; err != nil {
		return err
	}
	for _, ch := range chars {
		store.PutCharacter(ch)
	}
	var traits []*model.Trait
	if err := db.Find(&traits).Error; err != nil {
		return err
	}
	for _, t := range traits {
		store.PutTrait(t)
	}
	var items []*model.Equipment
	if err := db.Find(&items).Error; err != nil {
		return err
	}
	for _, e := range items {
		store.PutEquipment(e)
	}
	var clocks []*model.Clock
	if err := db.Find(&clocks).Error; err != nil {
		return err
	}
	for _, cl := range clocks {
		store.PutClock(cl)
	}
	return nil
}

// persistDirty saves every entity flagged since the last sweep and removes
// rows for clocks that emptied out.
func persistDirty(db *gorm.DB, store *state.Store, logger *zap.Logger) {
	d := store.DrainDirty()
	for _, c := range d.Crews {
		if err := db.Save(c).Error; err != nil {
			logger.Error("crew save failed", zap.Int64("id", c.ID), zap.Error(err))
		}
	}
	for _, ch := range d.Characters {
		if err := db.Save(ch).Error; err != nil {
			logger.Error("character save failed", zap.Int64("id", ch.ID), zap.Error(err))
		}
	}
	for _, e := range d.Equipment {
		if err := db.Save(e).Error; err != nil {
			logger.Error("equipment save failed", zap.Int64("id", e.ID), zap.Error(err))
		}
	}
	for _, t := range d.Traits {
		if err := db.Save(t).Error; err != nil {
			logger.Error("trait save failed", zap.Int64("id", t.ID), zap.Error(err))
		}
	}
	for _, cl := range d.Clocks {
		if err := db.Save(cl).Error; err != nil {
			logger.Error("clock save failed", zap.Int64("id", cl.ID), zap.Error(err))
		}
	}
	if len(d.DeletedClockIDs) > 0 {
		if err := db.Delete(&model.Clock{}, d.DeletedClockIDs).Error; err != nil {
			logger.Error("clock delete failed", zap.Int64s("ids", d.DeletedClockIDs), zap.Error(err))
		}
	}
}
