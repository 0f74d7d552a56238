/**
 * @description
 * This is the main entry point for the pinball score-oracle service. It is
 * responsible for initializing and starting the application server.
 *
 * Key features:
 * - Configuration Loading: Loads environment variables from a .env.local file.
 * - Signer Self-Check: Verifies the configured oracle address matches the
 *   address derived from the signing key before serving a single request.
 * - Backend Selection: Uses in-memory nonce/rate state by default, or Redis
 *   backends when REDIS_URL is set, so multiple instances share replay state.
 * - Graceful Shutdown: Handles interrupt signals to shut down cleanly.
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thisyearnofear/pinball/internal/api"
	"github.com/thisyearnofear/pinball/internal/config"
	"github.com/thisyearnofear/pinball/internal/crypto"
	"github.com/thisyearnofear/pinball/internal/nonce"
	"github.com/thisyearnofear/pinball/internal/ratelimit"
)

func main() {
	// Initialize a structured logger for better log management.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// ------------------------------------------------------------------
	// Configuration Loading
	// ------------------------------------------------------------------
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("cannot load config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded successfully")

	// ------------------------------------------------------------------
	// Signer Initialization & Self-Check
	// ------------------------------------------------------------------
	signer, err := crypto.NewSigner(cfg.SignerPrivateKey, logger)
	if err != nil {
		logger.Error("cannot initialize signer", "error", err)
		os.Exit(1)
	}
	if !strings.EqualFold(signer.Address().Hex(), cfg.SignerAddress) {
		logger.Error("signer address mismatch",
			"configured", cfg.SignerAddress,
			"derived", signer.Address().Hex(),
		)
		os.Exit(1)
	}
	logger.Info("signer initialized", "address", signer.Address().Hex())

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ------------------------------------------------------------------
	// State Backends (memory by default, Redis when configured)
	// ------------------------------------------------------------------
	var ledger nonce.Ledger
	var limiter ratelimit.Limiter

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(rootCtx).Err(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		ledger = nonce.NewRedisLedger(redisClient)
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.SignRateLimit, cfg.SignRateWindow)
		logger.Info("using redis state backends")
	} else {
		memLedger := nonce.NewMemoryLedger(nonce.DefaultPendingTTL)
		memLimiter := ratelimit.NewMemoryLimiter(cfg.SignRateLimit, cfg.SignRateWindow)
		go memLedger.Run(rootCtx, nonce.DefaultSweepInterval)
		go memLimiter.Run(rootCtx, ratelimit.DefaultSweepInterval)
		ledger = memLedger
		limiter = memLimiter
		logger.Info("using in-memory state backends")
	}

	// Global per-IP ceiling is always process-local; it is a coarse spam
	// guard, not part of the replay-protection state.
	ipLimiter := ratelimit.NewMemoryLimiter(cfg.GlobalRateLimit, time.Minute)
	go ipLimiter.Run(rootCtx, ratelimit.DefaultSweepInterval)

	// ------------------------------------------------------------------
	// Server Initialization
	// ------------------------------------------------------------------
	server := api.NewServer(cfg, logger, signer, ledger, limiter, ipLimiter)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ------------------------------------------------------------------
	// Start Server & Handle Graceful Shutdown
	// ------------------------------------------------------------------
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("starting server", "address", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdownChannel:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}

	logger.Info("application has shut down")
}
