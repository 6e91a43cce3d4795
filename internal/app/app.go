// Package app assembles the HTTP surface: global middleware, module wiring
// and route registration.
package app

import (
	"time"

	"goldenbook-backend/internal/bids"
	"goldenbook-backend/internal/certificates"
	"goldenbook-backend/internal/clearing"
	"goldenbook-backend/internal/config"
	"goldenbook-backend/internal/database"
	"goldenbook-backend/internal/documents"
	"goldenbook-backend/internal/health"
	"goldenbook-backend/internal/middleware"
	"goldenbook-backend/internal/rounds"
	"goldenbook-backend/internal/scheduler"
	"goldenbook-backend/internal/settlement"
	"goldenbook-backend/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App bundles the running pieces: the Fiber app, its backing stores and the
// decay scheduler (started by the caller).
type App struct {
	Fiber     *fiber.App
	DB        *gorm.DB
	Redis     *redis.Client
	Scheduler *scheduler.Scheduler
}

// CreateApp builds the Fiber app with all global middleware and routes.
func CreateApp(cfg *config.Config) (*App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Session (Redis); the client doubles for health markers and snapshots.
	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	// --- Health (no auth) ---
	healthHandlers := &health.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			healthHandlers.DB = sqlDB
		}
	}
	app.Get("/", healthHandlers.JSON)
	app.Get("/reset", healthHandlers.Reset)
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/errors", healthHandlers.Errors)

	out := &App{Fiber: app, DB: db, Redis: rdb}
	if db == nil {
		return out, nil
	}

	// --- Modules ---
	walletService := &wallet.Service{DB: db}
	roundsService := &rounds.Service{DB: db, Wallet: walletService}
	bidsService := &bids.Service{DB: db, Wallet: walletService}
	docStore := &documents.Store{DB: db}
	certService := &certificates.Service{DB: db}
	engine := &clearing.Engine{DB: db, Wallet: walletService, Docs: docStore}
	bridge := &settlement.Bridge{
		DB:          db,
		Wallet:      walletService,
		Certs:       certService,
		Docs:        docStore,
		MaxAttempts: cfg.SettlementMaxAttempts,
		Backoff:     time.Duration(cfg.SettlementBackoffMs) * time.Millisecond,
		Concurrency: cfg.SettlementConcurrency,
	}
	out.Scheduler = &scheduler.Scheduler{
		Rounds:   roundsService,
		Engine:   engine,
		Bridge:   bridge,
		Redis:    rdb,
		Interval: time.Duration(cfg.DecayTickSeconds) * time.Second,
	}

	roundHandlers := &rounds.Handlers{Service: roundsService}
	roundGroup := app.Group("/api/v1/rounds", middleware.RequireAuth())
	roundGroup.Post("/create-round", middleware.RequireAdmin(), roundHandlers.CreateRound)
	roundGroup.Post("/activate-round/:round_id", middleware.RequireAdmin(), roundHandlers.ActivateRound)
	roundGroup.Post("/close-round/:round_id", middleware.RequireAdmin(), roundHandlers.CloseRound)
	roundGroup.Post("/cancel-round/:round_id", middleware.RequireAdmin(), roundHandlers.CancelRound)
	roundGroup.Get("/get-round/:round_id", roundHandlers.GetRound)
	roundGroup.Get("/get-active-rounds", roundHandlers.GetActiveRounds)

	bidHandlers := &bids.Handlers{Service: bidsService}
	bidGroup := app.Group("/api/v1/bids", middleware.RequireAuth())
	bidGroup.Post("/submit-bid", bidHandlers.SubmitBid)
	bidGroup.Post("/cancel-bid", bidHandlers.CancelBid)
	bidGroup.Get("/my-bids", bidHandlers.MyBids)
	bidGroup.Get("/round-bids/:round_id", middleware.RequireAdmin(), bidHandlers.RoundBids)

	clearingHandlers := &clearing.Handlers{Engine: engine}
	settlementHandlers := &settlement.Handlers{Bridge: bridge}
	clearingGroup := app.Group("/api/v1/clearing", middleware.RequireAuth())
	clearingGroup.Post("/clear-round/:round_id", middleware.RequireAdmin(), clearingHandlers.ClearRound)
	clearingGroup.Get("/clear-result/:round_id", clearingHandlers.GetClearResult)
	clearingGroup.Post("/settle-round/:round_id", middleware.RequireAdmin(), settlementHandlers.SettleRound)

	walletHandlers := &wallet.Handlers{Service: walletService}
	walletGroup := app.Group("/api/v1/wallet", middleware.RequireAuth())
	walletGroup.Get("/balance", walletHandlers.Balance)
	walletGroup.Post("/deposit", walletHandlers.Deposit)
	walletGroup.Get("/transactions", walletHandlers.Transactions)

	certHandlers := &certificates.Handlers{Service: certService}
	certGroup := app.Group("/api/v1/certificates", middleware.RequireAuth())
	certGroup.Get("/my-certificates", certHandlers.MyCertificates)

	return out, nil
}
