package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/communities/internal/cache"
	"github.com/dimitrije/communities/internal/config"
	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/handlers"
	"github.com/dimitrije/communities/internal/logging"
	authmw "github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/oauth"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/sse"
	"github.com/dimitrije/communities/internal/upload"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

type cleaner interface {
	Cleanup(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.NewLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	recordsDB := db
	if cfg.RecordsDatabaseURL != cfg.DatabaseURL {
		recordsDB, err = database.New(ctx, cfg.RecordsDatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to records database: %v", err)
		}
		defer recordsDB.Close()
	}

	var store interface {
		cache.Store
		cleaner
	}
	switch cfg.Cache.Backend {
	case "memory":
		store = cache.NewMemoryStore()
	default:
		store = cache.NewPostgresStore(db)
	}

	index := records.NewPostgresIndex(recordsDB)
	uploader := upload.NewClient(cfg.Upload.URL, cfg.Upload.CallbackURL, cfg.Upload.Timeout)

	hub := sse.NewHub()
	go hub.Run(ctx)

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userService := services.NewUserService(db)
	tokenService := services.NewTokenService(db)
	communityService := services.NewCommunityService(db, index, uploader, logger)
	curationService := services.NewCurationService(communityService, index, store, cfg.Cache.CurateTTL, hub, logger)

	providers := oauth.FromConfig(cfg)
	render, err := handlers.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	authHandler := handlers.NewAuthHandler(cfg, providers, userService, tokenService, jwtService, render, logger)
	userHandler := handlers.NewUserHandler(userService)
	communityHandler := handlers.NewCommunityHandler(communityService, render, providers.Names(), logger)
	curateHandler := handlers.NewCurateHandler(curationService, logger)
	eventsHandler := handlers.NewEventsHandler(hub, communityService)

	go authHandler.CleanupLoop(ctx)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))

	web := app.Group("/communities")
	web.Use(authmw.OptionalAuth(jwtService))
	web.Get("/", communityHandler.Index)
	web.Get("/about/:id/", communityHandler.Detail)

	// curate reads its own body: query, form or JSON
	members := web.Group("")
	members.Use(authmw.Auth(jwtService))
	members.Get("/curate/", curateHandler.Curate)
	members.Post("/curate/", curateHandler.Curate)
	members.Get("/new/", communityHandler.New)
	members.Post("/new/", communityHandler.New)
	members.Get("/edit/:id/", communityHandler.Edit)
	members.Post("/edit/:id/", communityHandler.Edit)
	members.Post("/delete/:id/", communityHandler.Delete)
	members.Get("/events/:id/", eventsHandler.Stream)

	api := app.Group("/api/v1")
	api.Use(middleware.BodyParser())

	auth := api.Group("/auth")
	auth.Get("/providers", authHandler.Providers)
	auth.Get("/:provider/consent", authHandler.GetConsentURL)
	auth.Get("/:provider/login", authHandler.Login)
	auth.Get("/:provider/callback", authHandler.Callback)
	auth.Post("/exchange", authHandler.ExchangeCode)
	auth.Post("/refresh", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Post("/auth/logout-all", authHandler.LogoutAll)

	protected.Get("/users/me", userHandler.GetMe)
	protected.Patch("/users/me", userHandler.UpdateMe)

	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	go every(ctx, time.Hour, func() {
		n, err := tokenService.CleanupExpired(ctx)
		if err != nil {
			logger.Error("failed to purge refresh tokens", "error", err)
			return
		}
		logger.Debug("purged refresh tokens", "count", n)
	})

	go every(ctx, cfg.Cache.CurateTTL, func() {
		if err := store.Cleanup(ctx); err != nil {
			logger.Error("failed to purge cache", "backend", cfg.Cache.Backend, "error", err)
		}
	})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logger.Info("server starting", "addr", addr, "cache", cfg.Cache.Backend, "providers", providers.Names())
		if err := app.Run(addr); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
