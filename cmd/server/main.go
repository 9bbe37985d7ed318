package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/api"
	"github.com/agora-protocol/relay/internal/config"
	"github.com/agora-protocol/relay/internal/relay"
	"github.com/agora-protocol/relay/internal/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the rate limiter whenever it is configured, and the
	// mailboxes too when selected.
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	mailboxes, err := openMailboxStore(ctx, cfg, redisStore, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.MailboxBackend).Msg("mailbox store unavailable")
	}
	defer mailboxes.Close()

	policy, err := relay.ParseRecipientPolicy(cfg.RecipientPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid recipient policy")
	}

	rl := relay.New(mailboxes, relay.Options{
		SessionTTL:      cfg.SessionTTL,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		RecipientPolicy: policy,
		Retention:       cfg.MailboxRetention,
		Logger:          logger,
	})

	go rl.RunSweeper(ctx, cfg.SweepInterval)

	router := api.NewRouter(logger, cfg, rl, redisStore)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("backend", cfg.MailboxBackend).
			Str("recipients", string(policy)).
			Msg("starting Agora relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func openMailboxStore(ctx context.Context, cfg *config.Config, redisStore *store.RedisStore, logger zerolog.Logger) (store.MailboxStore, error) {
	switch cfg.MailboxBackend {
	case config.BackendRedis:
		// main closes redisStore itself.
		return nopCloser{redisStore}, nil

	case config.BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("migrations completed")

		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg, nil

	case config.BackendSQLite:
		db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite mailbox store")
		return db, nil
	}

	logger.Warn().Msg("using in-memory mailboxes; messages are lost on restart")
	return store.NewMemoryStore(), nil
}

type nopCloser struct{ *store.RedisStore }

func (nopCloser) Close() error { return nil }
