package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enginerepair/engshopsync/internal/auth"
	"github.com/enginerepair/engshopsync/internal/compat"
	"github.com/enginerepair/engshopsync/internal/config"
	"github.com/enginerepair/engshopsync/internal/db"
	"github.com/enginerepair/engshopsync/internal/dbmigrate"
	"github.com/enginerepair/engshopsync/internal/httpapi"
	"github.com/enginerepair/engshopsync/internal/pullservice"
	"github.com/enginerepair/engshopsync/internal/pushservice"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "engshopsync").Logger()

	cfg := config.Load()

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := dbmigrate.Apply(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Security validation: always require a non-default secret outside dev mode.
	if !cfg.JWTDevMode && cfg.JWTHS256Secret == "dev-secret-change-in-production" {
		log.Fatal().Msg("FATAL: cannot start outside dev mode with the default JWT_HS256_SECRET")
	}

	jwtCfg := auth.JWTCfg{
		HS256Secret: cfg.JWTHS256Secret,
		DevMode:     cfg.JWTDevMode,
	}

	srv := &httpapi.Server{
		DB:                  pool,
		Log:                 log.Logger,
		RateLimitConfig:     httpapi.DefaultRateLimitConfig,
		AuthRateLimitConfig: httpapi.DefaultAuthRateLimitConfig,
		JWTCfg:              jwtCfg,
		Push:                pushservice.New(pool, log.Logger, cfg.PushMaxBatch),
		Pull:                pullservice.New(pool, cfg.PullMaxBatch),
		Compat:              compat.New(pool),
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Administrative gRPC server (change-request approval/rejection,
	// schema inspection) is conditionally compiled with -tags adminrpc.
	startAdminRPC(pool, jwtCfg, cfg.AdminRPCAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	stopAdminRPC()

	log.Info().Msg("server stopped")
}
