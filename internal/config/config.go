package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string

	// Auction engine knobs.
	DecayTickSeconds      int // decay scheduler interval (default 5)
	SettlementMaxAttempts int // per-bid settlement retries (default 3)
	SettlementBackoffMs   int // initial backoff between attempts (default 200)
	SettlementConcurrency int // parallel bids per settlement pass (default 4)
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                   env,
		Port:                  port,
		SessionSecret:         viper.GetString("SESSION_SECRET"),
		DatabaseURL:           dbURL,
		RedisURL:              viper.GetString("REDIS_URL"),
		FrontendURLEndsWith:   viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:           viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:     strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:        viper.GetString("HEALTH_ADMIN_KEY"),
		DecayTickSeconds:      intOrDefault("DECAY_TICK_SECONDS", 5),
		SettlementMaxAttempts: intOrDefault("SETTLEMENT_MAX_ATTEMPTS", 3),
		SettlementBackoffMs:   intOrDefault("SETTLEMENT_BACKOFF_MS", 200),
		SettlementConcurrency: intOrDefault("SETTLEMENT_CONCURRENCY", 4),
	}, nil
}

func intOrDefault(key string, def int) int {
	v := viper.GetInt(key)
	if v <= 0 {
		return def
	}
	return v
}
