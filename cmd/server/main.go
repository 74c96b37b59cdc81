// Package main is the entry point for the referral-rewards server.
//
// main stays minimal: read configuration, build the logger, hand both to
// internal/server. All real logic lives in the internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sakif/referral-rewards/internal/referral"
	"github.com/sakif/referral-rewards/internal/server"
)

func main() {
	// .env is a development convenience; in production the variables come
	// from the real environment and the file simply isn't there.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	// JWT_SECRET is the one setting with no default — a guessable signing
	// key makes every bearer token forgeable.
	// Generate one with: openssl rand -hex 32
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	// REFERRAL_BASE_URL is the public URL referral links point at, e.g.
	// https://rewards.example.com — defaults to localhost for development.
	baseURL := os.Getenv("REFERRAL_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + strconv.Itoa(port)
	}

	// Reward constants rarely change, but they are deployment config, not
	// code: REFERRAL_CADENCE / REFERRAL_AWARD / REFERRAL_SIGNUP_BONUS
	// override the defaults (5 / 10 / 10).
	refCfg := referral.DefaultConfig(baseURL)
	refCfg.Cadence = intEnv(logger, "REFERRAL_CADENCE", refCfg.Cadence)
	refCfg.Award = int64(intEnv(logger, "REFERRAL_AWARD", int(refCfg.Award)))
	refCfg.SignupBonus = int64(intEnv(logger, "REFERRAL_SIGNUP_BONUS", int(refCfg.SignupBonus)))

	dbPath := "data/rewards.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	cfg := server.Config{
		Port:      port,
		DBPath:    dbPath,
		JWTSecret: jwtSecret,
		Referral:  refCfg,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// intEnv reads an integer env var, falling back to def when unset.
// A set-but-unparsable value is a config mistake worth failing loudly on.
func intEnv(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Error("invalid integer env var",
			slog.String("key", key),
			slog.String("value", v),
		)
		os.Exit(1)
	}
	return n
}
