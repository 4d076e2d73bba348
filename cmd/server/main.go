package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/api/handlers"
	job "github.com/maheshrc27/skyqueue/internal/jobs"
	"github.com/maheshrc27/skyqueue/internal/lock"
	"github.com/maheshrc27/skyqueue/internal/logging"
	"github.com/maheshrc27/skyqueue/internal/queue"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const tickLockKey = "skyqueue:scheduler:tick"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("failed to open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		fatal("database is unreachable", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		fatal("failed to migrate database", err)
	}

	r2Service, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		fatal("failed to set up blob storage", err)
	}

	queueRepo := repository.NewQueueRepository(db)
	postedRepo := repository.NewPostedImageRepository(db, queueRepo)
	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	userRepo := repository.NewUserRepository(db)

	locks := lock.NewRegistry()
	go locks.RunSweeper(ctx, cfg.LockSweepInterval)

	queueService := service.NewQueueService(queueRepo, postedRepo, r2Service, locks, cfg.LockWait)
	poster := service.NewBlueskyPoster(sessionRepo, cfg.SecretKey, cfg.PostTimeout)
	scheduleService := service.NewScheduleService(scheduleRepo, settingsRepo)
	postDispatcher := service.NewPostDispatcher(db, queueRepo, scheduleRepo, queueService, r2Service, poster, cfg.PostTimeout)

	var redisClient *redis.Client
	var tickLock job.TickLock
	if cfg.RedisURI != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			fatal("redis is unreachable", err)
		}
		tickLock = lock.NewRedisLock(redisClient, tickLockKey, cfg.PollInterval)
	}

	var dispatcher service.Dispatcher = postDispatcher
	var asynqServer *asynq.Server
	if cfg.DispatchMode == config.DispatchAsynq {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		dispatcher = queue.NewAsynqDispatcher(client, cfg.PostTimeout)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency:     cfg.DispatchConcurrency,
			ShutdownTimeout: cfg.ShutdownGrace,
			Logger:          queue.NewLogger(appLogger),
		})
		mux := asynq.NewServeMux()
		queue.NewWorker(postDispatcher).Register(mux)

		slog.Info("starting asynq worker")
		if err := asynqServer.Start(mux); err != nil {
			fatal("could not start asynq server", err)
		}
	}

	scheduler := job.NewScheduler(scheduleRepo, dispatcher, job.Options{
		Interval:    cfg.PollInterval,
		Concurrency: cfg.DispatchConcurrency,
		Grace:       cfg.ShutdownGrace,
		Lock:        tickLock,
	})
	// In-flight dispatches get the grace period on shutdown, not the signal.
	if err := scheduler.Start(context.WithoutCancel(ctx)); err != nil {
		fatal("failed to start scheduler", err)
	}

	expiryJob := job.NewSessionExpiryJob(sessionRepo, cfg.SessionWarnWindow)
	c := cron.New()
	if _, err := c.AddFunc("@every 00h10m00s", expiryJob.Run); err != nil {
		fatal("failed to schedule session expiry job", err)
	}
	c.Start()

	app := fiber.New(fiber.Config{
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())

	handlers.NewOpsHandler(db, scheduler).Register(app)
	handlers.NewScheduleHandler(userRepo, scheduleService).Register(app)

	go func() {
		if err := app.Listen(cfg.OpsAddr); err != nil {
			fatal("failed to start ops server", err)
		}
	}()
	slog.Info("ops server listening", "addr", cfg.OpsAddr, "dispatch_mode", cfg.DispatchMode)

	<-ctx.Done()
	gracefulShutdown(cfg, scheduler, c, asynqServer, app, redisClient, db)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	slog.Info("closing database connection")
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func gracefulShutdown(
	cfg *config.Config,
	scheduler *job.Scheduler,
	c *cron.Cron,
	asynqServer *asynq.Server,
	app *fiber.App,
	redisClient *redis.Client,
	db *sql.DB) {
	slog.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	scheduler.Stop(stopCtx)
	<-c.Stop().Done()

	if asynqServer != nil {
		asynqServer.Shutdown()
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownGrace); err != nil {
		slog.Error("failed to shut down ops server", "error", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}

	closeDB(db)
	slog.Info("shutdown complete")
}
