package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oceanstella/api/internal/cache"
	"oceanstella/api/internal/config"
	"oceanstella/api/internal/database"
	"oceanstella/api/internal/handlers"
	"oceanstella/api/internal/identity"
	"oceanstella/api/internal/jobs"
	"oceanstella/api/internal/log"
	"oceanstella/api/internal/mailer"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/security"
	"oceanstella/api/internal/server"
	"oceanstella/api/internal/service"
	"oceanstella/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	db := database.NewConnector(cfg.Postgres)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	issuer, err := security.NewTokenIssuer(cfg.Security.JWTAccessSecret, cfg.Security.JWTAccessTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token issuer")
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)

	// both stay nil interfaces when storage is off
	var avatars service.AvatarStore
	var assetRemover jobs.AssetRemover
	objectStore, err := storage.NewObjectStore(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Warn().Msg("object storage not configured, avatar uploads disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to init object store")
	default:
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		avatars = objectStore
		assetRemover = objectStore
	}

	queue := jobs.NewQueue(redisClient, cfg.Redis.Stream)

	otp := service.NewOTPFlow(users, newCodeSender(cfg, logger), cfg.OTP, log.Component(logger, "otp"))
	authService := service.NewAuthService(users, sessions, issuer, otp, newVerifier(ctx, cfg, logger), cfg, log.Component(logger, "auth"))
	userService := service.NewUserService(users, sessions, queue, cfg.Security.PasswordMinLength, log.Component(logger, "users"))
	uploadService := service.NewUploadService(avatars, cfg.Storage.MaxUploadBytes, log.Component(logger, "uploads"))

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:      logger,
		Config:   cfg,
		Auth:     authService,
		Users:    userService,
		Uploads:  uploadService,
		Issuer:   issuer,
		Accounts: users,
		DB:       db,
		Cache:    redisClient,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	jobsLog := log.Component(logger, "jobs")
	processor := jobs.NewProcessor(assetRemover, sessions, cfg.Jobs.SessionRetention, jobsLog)
	consumer := jobs.NewConsumer(
		redisClient,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Jobs.ClaimInterval,
		jobsLog,
		processor,
	)

	scheduler := jobs.NewScheduler(queue, cfg.Jobs.SessionPurge, jobsLog)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	go func() {
		if err := consumer.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			jobsLog.Error().Err(err).Msg("task consumer stopped")
		}
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, stopWorker, db, redisClient)
}

func newCodeSender(cfg *config.AppConfig, logger zerolog.Logger) service.CodeSender {
	if cfg.SMTP.Host == "" {
		if !cfg.Production() {
			logger.Warn().Msg("smtp not configured, verification codes are logged")
			return mailer.NewLogSender(log.Component(logger, "mailer"))
		}
		logger.Warn().Msg("smtp not configured, signups will fail to send codes")
	}
	return mailer.NewSMTPSender(cfg.SMTP, cfg.OTP.TTL)
}

func newVerifier(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) identity.Verifier {
	if !cfg.Firebase.Enabled() {
		logger.Warn().Msg("firebase not configured, google sign-in disabled")
		return identity.Disabled{}
	}
	verifier, err := identity.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Error().Err(err).Msg("firebase init failed, google sign-in disabled")
		return identity.Disabled{}
	}
	return verifier
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, stopWorker context.CancelFunc, db *database.Connector, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()
	stopWorker()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
