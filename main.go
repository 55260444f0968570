package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/challengeplans/server/api/rest"
	"github.com/challengeplans/server/api/sse"
	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/challenge"
	"github.com/challengeplans/server/config"
	"github.com/challengeplans/server/content"
	dbadapter "github.com/challengeplans/server/db"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/history"
	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/progress"
	"github.com/challengeplans/server/reward"
	"github.com/challengeplans/server/scheduler"
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

	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}
	if len(cfg.Server.AdminIPs) == 0 {
		logger.Warn("server.admin_ips is empty; admin endpoints accept any source IP")
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
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Notifications ----
	dispatcher := notify.New(db, pubsub, cfg.Gamification.NotifyBuffer, logger)
	defer dispatcher.Stop(context.Background())

	// ---- Core services ----
	bus := events.NewBus()
	rewards := reward.NewEngine(db, logger)
	hist := history.NewService(logger)
	progressSvc := progress.NewService(db, rewards, hist, dispatcher, bus, logger)
	challengeSvc := challenge.NewService(db, dispatcher, bus, logger)
	contentSvc := content.NewService(db, rewards, dispatcher, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "tasks": sched.ListTickers()})
	})

	// ---- Handlers ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	challengeH := apirest.NewChallengeHandler(challengeSvc, progressSvc)
	taskH := apirest.NewTaskHandler(challengeSvc, progressSvc)
	profileH := apirest.NewProfileHandler(db, progressSvc)
	contentH := apirest.NewContentHandler(contentSvc)
	notifH := apirest.NewNotificationHandler(db)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, progressSvc, challengeSvc, logger)
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)

	// Keep a user's leaderboard entry in step with score changes.
	bus.Register(events.ScoreChanged, 10, "ranking", func(ctx context.Context, event string, data interface{}) error {
		payload, ok := data.(events.ScorePayload)
		if !ok {
			return nil
		}
		return rankH.UpdateUserScore(ctx, payload.UserID)
	})

	// ---- Periodic tasks ----
	sched.AddTicker("challenge_sweep", cfg.Gamification.SweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := challengeSvc.SweepExpired(ctx, time.Now()); err != nil {
			logger.Error("challenge sweep failed", zap.Error(err))
		}
	})
	sched.AddTicker("ranking_refresh", cfg.Gamification.RankingRefreshInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := rankH.RefreshRanking(ctx); err != nil {
			logger.Error("ranking refresh failed", zap.Error(err))
		}
	})

	// ---- Routes ----
	auth := mw.Auth(cfg.Security, c)
	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		chG := api.Group("/challenges")
		chG.Use(auth)
		chG.GET("", challengeH.List)
		chG.POST("", challengeH.Create)
		chG.GET("/mine", challengeH.ListMine)
		chG.GET("/:id", challengeH.Get)
		chG.POST("/:id/activate", challengeH.Activate)
		chG.POST("/:id/join", challengeH.Join)
		chG.POST("/:id/leave", challengeH.Leave)
		chG.POST("/:id/tasks", taskH.Create)

		taskG := api.Group("/tasks")
		taskG.Use(auth)
		taskG.PUT("/:id", taskH.Update)
		taskG.DELETE("/:id", taskH.Delete)
		taskG.POST("/:id/assign", taskH.Assign)
		taskG.POST("/:id/completion", taskH.SetCompletion)

		meG := api.Group("/me")
		meG.Use(auth)
		meG.GET("", profileH.Me)
		meG.GET("/participations", profileH.Participations)
		meG.GET("/achievements", profileH.Achievements)
		meG.GET("/rewards", profileH.Rewards)
		meG.GET("/challenges/:id/history", profileH.History)

		noteG := api.Group("/notes")
		noteG.Use(auth)
		noteG.GET("", contentH.ListNotes)
		noteG.POST("", contentH.CreateNote)
		noteG.POST("/:id/publish", contentH.PublishNote)
		noteG.POST("/:id/rating", contentH.RateNote)

		planG := api.Group("/plans")
		planG.Use(auth)
		planG.GET("", contentH.ListPlans)
		planG.POST("", contentH.CreatePlan)
		planG.POST("/:id/publish", contentH.PublishPlan)

		notifG := api.Group("/notifications")
		notifG.Use(auth)
		notifG.GET("", notifH.List)
		notifG.POST("/:id/read", notifH.MarkRead)
		notifG.POST("/read-all", notifH.MarkAllRead)

		api.GET("/ranking", auth, rankH.Top)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), auth, mw.RequireAdmin())
		adminG.POST("/progress", adminH.OverrideProgress)
		adminG.POST("/rewards", adminH.CreateReward)
		adminG.POST("/reward-rules", adminH.CreateRule)
		adminG.POST("/reward-rules/:id/active", adminH.SetRuleActive)
		adminG.POST("/ranking/refresh", rankH.Refresh)
		adminG.POST("/sweep", adminH.Sweep)
	}

	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
