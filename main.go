package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"greendrake/chambers/internal/api"
	"greendrake/chambers/internal/api/handlers"
	"greendrake/chambers/internal/cache"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/logging"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/storage"
	"greendrake/chambers/internal/tasks"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks and scheduled scans), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, ServiceName: cfg.AppName, RunMode: cfg.RunMode})

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Error().Err(err).Msg("error disconnecting from MongoDB")
		}
	}()
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}
	cancelIndex()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Error().Err(err).Msg("error disconnecting from Redis")
		}
	}()

	// Signature uploads are optional.
	var store storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		s3Client, err := storage.NewS3Client(context.Background(), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 client")
		}
		store = storage.NewS3Storage(s3Client, cfg)
	} else {
		log.Warn().Msg("AWS_S3_BUCKET not set, signature uploads disabled")
	}

	emailSender := setupEmailSender(cfg, redisClient, log)

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	queue := tasks.NewQueue(taskClient)

	notifications := services.NewNotificationService(mongoDb, queue, log)
	userService := services.NewUserService(mongoDb, cfg)
	approvalService := services.NewApprovalService(mongoDb, userService, notifications, cfg.AppURL, log)
	reminderService := services.NewReminderService(mongoDb, cfg, userService, notifications, log)
	svc := api.Services{
		Users:         userService,
		Deletions:     services.NewUserDeletionService(mongoDb, userService, notifications, log),
		Clients:       services.NewClientService(mongoDb),
		Approvals:     approvalService,
		Proposals:     services.NewProposalService(mongoDb, cfg, userService, approvalService, notifications, queue, log),
		Bills:         services.NewBillService(mongoDb, cfg, userService, approvalService, log),
		Projects:      services.NewProjectService(mongoDb),
		Finance:       services.NewFinanceService(mongoDb, cfg),
		Todos:         services.NewTodoService(mongoDb, userService, notifications, log),
		Notifications: notifications,
		Reminders:     reminderService,
		Storage:       store,
		Health: map[string]handlers.HealthCheck{
			"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}

	taskProcessor := tasks.NewTaskProcessor(cfg, emailSender, store, reminderService, log)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// The service API always runs.
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, log, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("port", cfg.ServiceApiPort).Msg("service API listening")
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("service API ListenAndServe error")
		}
	}()

	var (
		mainApiSrv *http.Server
		stopLimits func()
		taskSrv    *asynq.Server
		scheduler  *asynq.Scheduler
	)

	apiMode := func() {
		router, limiter := api.SetupRouter(cfg, log, svc)
		stopLimits = limiter.Stop
		mainApiSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("port", cfg.ApiPort).Msg("main API listening")
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("main API ListenAndServe error")
			}
		}()
	}

	bgMode := func() {
		taskSrv = tasks.SetupServer(redisClient, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("background task server starting")
			if err := taskSrv.Run(taskProcessor.Mux()); err != nil {
				log.Fatal().Err(err).Msg("background task server error")
			}
		}()

		scheduler, err = tasks.NewScheduler(redisClient, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up scheduler")
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
	}

	log.Info().Str("mode", cfg.RunMode).Msg("starting application")
	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatal().Str("mode", cfg.RunMode).Msg("invalid run mode")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-shutdownChan:
		log.Info().Msg("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("service API shutdown error")
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("main API shutdown error")
		}
		stopLimits()
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}

	wg.Wait()
	log.Info().Msg("server gracefully stopped")
}

// setupEmailSender picks the primary transport and tees to a file when
// EMAIL_MOCK_TO_FILE is set.
func setupEmailSender(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) email.Sender {
	var primary email.Sender
	if cfg.MockServices {
		log.Info().Msg("MOCK_SERVICES enabled, using Redis email sender")
		primary = email.NewRedisSender(rdb, cfg)
	} else {
		primary = email.NewSMTPSender(cfg)
	}

	composite := email.NewCompositeEmailSender(primary)
	if cfg.EmailMockToFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailMockToFile)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.EmailMockToFile).Msg("file email sender disabled")
		} else {
			composite.AddSender(fileSender)
		}
	}
	return composite
}
