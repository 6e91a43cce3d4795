package main

import (
	"context"
	"os"
	"time"

	"goldenbook-backend/internal/app"
	"goldenbook-backend/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}

	a, err := app.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("App create failed")
	}

	// Verify connections before serving.
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("Postgres handle unavailable")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("Postgres connection failed")
		}
		log.Info().Msg("Postgres connected")
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}

	if a.Scheduler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go a.Scheduler.Run(ctx)
	}

	log.Info().Str("port", cfg.Port).Msg("Server running")
	if err := a.Fiber.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
