package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"mailsync/config"
	"mailsync/mailbox"
	"mailsync/mailparser"
	"mailsync/middleware"
	"mailsync/repository"
	"mailsync/routes"
	"mailsync/services"
	"mailsync/synclock"
	"mailsync/utils"
	"mailsync/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	log := utils.NewLogger(cfg.LogLevel, cfg.Environment)
	cfg.LogSummary(log)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	cipher, err := utils.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}

	// Initialize database connection
	db, err := config.ConnectDB(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis backs the rate limiter and the sync lock when enabled
	var (
		limiterStorage fiber.Storage
		locker         synclock.Locker = synclock.NewLocalLocker()
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		limiterStorage = middleware.NewRedisStorage(rdb)
		locker = synclock.NewRedisLocker(rdb, cfg.SyncLockTTL)
		log.WithField("address", cfg.Redis.Address).Info("Using redis for rate limits and sync locks")
	}

	accounts := repository.NewAccountRepository(db)
	emails := repository.NewEmailRepository(db)
	dialer := mailbox.NewIMAPDialer(cfg.IMAPConnectTimeout, cfg.IMAPCommandTimeout, log.WithField("component", "imap"))
	sender := mailbox.NewSMTPSender(cfg.SMTPSendTimeout, log.WithField("component", "smtp"))
	parser := mailparser.NewParser(log.WithField("component", "parser"))
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	syncService := services.NewSyncService(accounts, emails, cipher, dialer, parser, locker,
		log.WithField("component", "sync"), services.SyncServiceConfig{
			DefaultLimit: cfg.SyncDefaultLimit,
			MaxLimit:     cfg.SyncMaxLimit,
		})

	svc := routes.Services{
		Accounts: services.NewAccountService(accounts, cipher, dialer, tokens, log.WithField("component", "accounts")),
		Emails:   services.NewEmailService(emails),
		Sync:     syncService,
		Send:     services.NewSendService(accounts, cipher, sender, log.WithField("component", "send")),
		Folders:  services.NewFolderService(accounts, cipher, dialer, log.WithField("component", "folders")),
		Contacts: services.NewContactService(accounts, emails),
		Tokens:   tokens,
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "mailsync",
		BodyLimit:    25 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins
	app.Use(middleware.CORS(corsConfig))
	app.Use(middleware.Metrics())

	routes.SetupRoutes(app, svc, routes.Limits{
		SyncPerMinute: cfg.RateLimitSync,
		SendPerMinute: cfg.RateLimitSend,
		Storage:       limiterStorage,
	}, log)

	// Initialize and start the background sync worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncWorker := worker.NewSyncWorker(accounts, syncService, cfg.SyncInterval, log.WithField("component", "worker"))
	go syncWorker.Start(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	log.Infof("🚀 Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
