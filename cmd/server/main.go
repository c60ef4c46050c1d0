// Package main is the entry point for the MineX game server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"minex-server/internal/config"
	"minex-server/internal/game/fraud"
	"minex-server/internal/game/mines"
	"minex-server/internal/handler"
	"minex-server/internal/notify"
	"minex-server/internal/pkg/db"
	"minex-server/internal/pkg/lock"
	"minex-server/internal/pkg/token"
	"minex-server/internal/repository"
	"minex-server/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	roundRepo := repository.NewRoundRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)

	// Initialize the game core
	sessionStore := mines.NewStore()
	hub := notify.NewHub()

	var policy fraud.Policy = fraud.Disabled{}
	if cfg.Game.ForcedLossPolicy {
		policy = fraud.NewStreakPolicy()
	}

	scheduler := service.NewScheduler(
		sessionStore,
		roundRepo,
		sessionRepo,
		userRepo,
		txRepo,
		hub,
		cfg.Game.RoundDuration,
		cfg.Game.RoundMines,
	)

	engine := service.NewEngine(
		sessionStore,
		scheduler,
		userRepo,
		txRepo,
		sessionRepo,
		policy,
		lock.NewUserLock(),
		hub,
	)

	accountService := service.NewAccountService(userRepo, txRepo, cfg.Game.InitialBalance)
	tokens := token.NewService(cfg.JWT.Secret, cfg.JWT.TTL)

	// Start the round cycle before accepting traffic
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start round scheduler")
	}

	// Assemble the API
	authHandler := handler.NewAuthHandler(accountService, tokens, cfg, txRepo)
	gameHandler := handler.NewGameHandler(engine, sessionRepo)
	adminHandler := handler.NewAdminHandler(accountService, scheduler)
	wsHandler := handler.NewWebSocketHandler(hub, engine)

	router := handler.NewRouter(authHandler, gameHandler, adminHandler, wsHandler, tokens, dbPool)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown: stop taking requests, stop the round cycle,
	// then drop the push connections.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown was not clean")
	}
	scheduler.Stop()
	hub.Close()
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_wagered DOUBLE PRECISION NOT NULL DEFAULT 0,
			consecutive_wins INT NOT NULL DEFAULT 0,
			hack_mode_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create rounds table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rounds (
			round_id VARCHAR(14) PRIMARY KEY,
			mine_positions TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			status VARCHAR(10) NOT NULL DEFAULT 'active'
		);
		CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: rounds table created")

	// Migration 3: Create sessions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			round_id VARCHAR(14) NOT NULL,
			bet_amount DOUBLE PRECISION NOT NULL,
			mine_count INT NOT NULL,
			mine_positions TEXT NOT NULL,
			revealed_cells TEXT NOT NULL DEFAULT '[]',
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			status VARCHAR(10) NOT NULL DEFAULT 'active',
			winnings DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_time ON sessions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_round ON sessions(round_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: sessions table created")

	// Migration 4: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount DOUBLE PRECISION NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: transactions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
