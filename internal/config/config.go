/**
 * @description
 * This file is responsible for managing the score-oracle's configuration.
 * It loads environment variables from a .env file and the system environment,
 * making them available to the rest of the application in a structured format.
 *
 * Key features:
 * - Structured Config: Defines a `Config` struct to hold all configuration parameters.
 * - .env Loading: Uses the `godotenv` library to load variables from a `.env.local` file,
 *   which is ideal for local development.
 * - Validation: Includes checks to ensure that critical variables (the signer key and
 *   its expected address) are set, preventing the service from starting in an
 *   invalid state.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultPort            = "8080"
	DefaultGlobalRateLimit = 120 // requests per minute per client IP
	DefaultSignRateLimit   = 3
	DefaultSignRateWindow  = 5 * time.Minute
)

// Config holds all configuration for the score-oracle service.
// Values are read from environment variables or a .env file and are treated
// as immutable after process start.
type Config struct {
	Port string

	// SignerPrivateKey is the hex-encoded ECDSA key the oracle signs with.
	SignerPrivateKey string
	// SignerAddress is the expected public address of the signer, used for a
	// startup self-check against the address derived from the private key.
	SignerAddress string

	// AllowedOrigins is either "*" or a comma-separated list of origins
	// permitted by the CORS middleware.
	AllowedOrigins []string
	AllowAllOrigins bool

	// GlobalRateLimit is the per-client-IP request ceiling per minute across
	// all endpoints.
	GlobalRateLimit int

	// SignRateLimit / SignRateWindow configure the per-address admission
	// limiter guarding the signing endpoint.
	SignRateLimit  int
	SignRateWindow time.Duration

	// RedisURL, when set, switches the nonce ledger and admission limiter to
	// their shared Redis backends so replay protection survives restarts and
	// multiple instances.
	RedisURL string
}

/**
 * @description
 * LoadConfig reads configuration from environment variables and/or a .env.local file
 * located in the specified path.
 *
 * @param path The path to the directory containing the .env.local file.
 * @returns A Config struct populated with the loaded values, or an error if loading fails.
 *
 * @notes
 * - It first attempts to load from a .env.local file, then falls back to .env. If
 *   neither exists it proceeds assuming variables are set directly in the
 *   environment (e.g., in production).
 * - This function is typically called once at application startup.
 */
func LoadConfig(path string) (config Config, err error) {
	envLocalPath := filepath.Join(path, ".env.local")
	envPath := filepath.Join(path, ".env")

	// Try .env.local first, then .env as fallback.
	if err := godotenv.Load(envLocalPath); err != nil {
		_ = godotenv.Load(envPath)
	}

	config.Port = os.Getenv("PORT")
	if config.Port == "" {
		config.Port = DefaultPort
	}

	config.SignerPrivateKey = os.Getenv("SCORE_SIGNER_PK")
	if config.SignerPrivateKey == "" {
		return Config{}, errors.New("SCORE_SIGNER_PK is not set")
	}

	config.SignerAddress = os.Getenv("SCORE_SIGNER_ADDR")
	if config.SignerAddress == "" {
		return Config{}, errors.New("SCORE_SIGNER_ADDR is not set")
	}
	if !strings.HasPrefix(config.SignerAddress, "0x") || len(config.SignerAddress) != 42 {
		return Config{}, errors.New("SCORE_SIGNER_ADDR must be a 0x-prefixed 20-byte address")
	}

	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" || origins == "*" {
		config.AllowAllOrigins = true
	} else {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, trimmed)
			}
		}
	}

	config.GlobalRateLimit, err = intFromEnv("RATE_LIMIT", DefaultGlobalRateLimit)
	if err != nil {
		return Config{}, err
	}

	config.SignRateLimit, err = intFromEnv("SIGN_RATE_LIMIT", DefaultSignRateLimit)
	if err != nil {
		return Config{}, err
	}

	windowMs, err := intFromEnv("SIGN_RATE_WINDOW_MS", int(DefaultSignRateWindow.Milliseconds()))
	if err != nil {
		return Config{}, err
	}
	config.SignRateWindow = time.Duration(windowMs) * time.Millisecond

	config.RedisURL = os.Getenv("REDIS_URL")

	return
}

// intFromEnv parses a positive integer environment variable, falling back to
// the given default when unset.
func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return value, nil
}
