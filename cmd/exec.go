package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"code-duel/config"
	"code-duel/internal/handlers"
	"code-duel/internal/services"
	"code-duel/monitoring"
	"code-duel/security"
	"code-duel/utils"

	_ "code-duel/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}
	defer redisClient.Close()

	// PubNub mirrors outcome events; without keys only the websocket is used
	var pn services.Pubnub
	if p, err := services.NewPubnub(&services.PubNubConfig{
		PublishKey:   cfg.PubNubPublishKey,
		SubscribeKey: cfg.PubNubSubscribeKey,
		SecretKey:    cfg.PubNubSecretKey,
		UserID:       cfg.PubNubUserID,
	}); err != nil {
		slog.Warn("pubnub disabled", "error", err)
	} else {
		pn = p
	}

	// Initialize services
	var (
		registry = services.NewConnectionRegistry()
		queue    *services.MatchmakingQueue
		rooms    *services.RoomRegistry
		matches  *services.MatchManager
	)
	monitor := monitoring.NewMonitor(func() monitoring.Snapshot {
		tickets := make(map[int]int)
		for _, b := range queue.Snapshot() {
			tickets[b.TimeLimitMinutes] = b.Waiting
		}
		return monitoring.Snapshot{
			QueueTickets: tickets,
			LiveMatches:  matches.LiveCount(),
			WaitingRooms: rooms.Waiting(),
			Connections:  registry.Count(),
		}
	})

	fanout := services.NewFanout(registry, pn)
	problems := services.NewProblemService(
		services.NewPocketBaseProblemStore(app),
		services.NewProblemHistory(redisClient, cfg.RecentProblemWindow, cfg.RecentProblemTTL),
	)
	matches = services.NewMatchManager(problems, fanout, registry, monitor, cfg.FinishedMatchRetention)
	queue = services.NewMatchmakingQueue(cfg, matches, fanout, monitor)
	rooms = services.NewRoomRegistry(cfg, matches, registry, monitor)
	services.BindConnectionLifecycle(registry, queue, rooms, matches)

	judge := services.NewJudgeClient(cfg.JudgeURL, cfg.JudgeTimeout, monitor)
	submissions := services.NewSubmissionService(matches, judge, fanout)

	// Initialize handlers
	gateway := handlers.NewGateway(cfg, registry, queue, matches, submissions)
	roomHandler := handlers.NewRoomHandler(rooms)
	matchHandler := handlers.NewMatchHandler(matches)
	notificationHandler := handlers.NewNotificationHandler(pn, registry)
	adminHandler := handlers.NewAdminHandler(registry, queue, rooms, matches, fanout)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Start background tasks
	sched, err := services.StartSweepers(cfg, rooms, matches, monitor)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("shutdown signal received, cleaning up")
		if err := sched.Shutdown(); err != nil {
			slog.Warn("scheduler shutdown", "error", err)
		}
		matches.Shutdown()
		return e.Next()
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Player websocket
		e.Router.GET("/ws", gateway.ServeWS)

		// Room endpoints
		e.Router.POST("/api/v1/rooms", roomHandler.CreateRoom).BindFunc(limiter.RoomRateLimit)
		e.Router.POST("/api/v1/rooms/join", roomHandler.JoinRoom).BindFunc(limiter.RoomRateLimit)
		e.Router.GET("/api/v1/rooms/{code}", roomHandler.GetRoom)

		// Match endpoints
		e.Router.GET("/api/v1/matches/{matchId}", matchHandler.GetMatch)

		// Notification endpoints
		e.Router.GET("/api/v1/notifications/token", notificationHandler.GetToken)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/dashboard", adminHandler.GetDashboard)
		e.Router.POST("/api/v1/admin/queue/remove", adminHandler.RemoveFromQueue)
		e.Router.POST("/api/v1/admin/sweep", adminHandler.ForceSweep)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]any{
				"status":      "healthy",
				"connections": registry.Count(),
				"liveMatches": matches.LiveCount(),
			})
		})

		slog.Info("server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}
