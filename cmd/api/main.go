package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/citywatch/api/internal/admin"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/auth"
	"github.com/citywatch/api/internal/config"
	"github.com/citywatch/api/internal/db"
	"github.com/citywatch/api/internal/evidence"
	internalhttp "github.com/citywatch/api/internal/http"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/moderation"
	"github.com/citywatch/api/internal/otp"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/service"
	"github.com/citywatch/api/internal/storage"
	"github.com/citywatch/api/internal/taxonomy"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api stopped with error")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "citywatch-api").Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("schema migrated")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	users := repo.NewStore(pool)
	taxonomyRepo := taxonomy.NewRepository(pool)
	issueRepo := issue.NewRepository(pool)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(users, jwtManager, auth.NewRedisRevoker(redisClient))

	var sender otp.Sender = otp.NewLogSender(log.With().Str("component", "sms").Logger())
	if webhook := otp.NewWebhookSender(cfg.OTP.SMSWebhookURL); webhook != nil {
		sender = webhook
	}
	otpService := otp.NewService(otp.NewRepository(pool), users, sender, otp.Config{
		Expiry:     cfg.OTP.Expiry,
		MaxPerHour: cfg.OTP.MaxPerHour,
		ExposeCode: !cfg.IsProduction(),
	}, log.With().Str("component", "otp").Logger())

	uploader, err := storage.NewLocalUploader(cfg.Upload.Dir, cfg.Upload.PublicPath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	handler := internalhttp.NewRouter(cfg, internalhttp.Services{
		Auth:       authService,
		OTP:        otpService,
		Issues:     issue.NewService(issueRepo, taxonomyRepo),
		Moderation: moderation.NewService(issueRepo),
		Admin:      admin.NewService(admin.NewRepository(pool), audit.NewRepository(pool), users, taxonomyRepo),
		Evidence:   evidence.NewService(uploader, cfg.Upload.MaxFileSize),
		Taxonomy:   taxonomy.NewService(taxonomyRepo),
		Checks: map[string]internalhttp.Check{
			"db":    pool.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("env", cfg.Env).Msgf("api listening on :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
