package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sydlexius/clearwater/internal/analysis"
	"github.com/sydlexius/clearwater/internal/api"
	"github.com/sydlexius/clearwater/internal/config"
	"github.com/sydlexius/clearwater/internal/crm"
	"github.com/sydlexius/clearwater/internal/database"
	"github.com/sydlexius/clearwater/internal/event"
	"github.com/sydlexius/clearwater/internal/logging"
	"github.com/sydlexius/clearwater/internal/message"
	"github.com/sydlexius/clearwater/internal/presence"
	"github.com/sydlexius/clearwater/internal/settings"
	"github.com/sydlexius/clearwater/internal/spotify"
	"github.com/sydlexius/clearwater/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("CW_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging
	logger, logCloser := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if logCloser != nil {
		defer logCloser.Close() //nolint:errcheck
	}
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Settings back tokens, the system prompt and the daily outreach counter
	settingsService := settings.NewService(db, logger)

	// Initialize event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	// Every band moved to "messaged" counts against the daily limit
	eventBus.Subscribe(event.BandMessaged, func(e event.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		count, err := settingsService.IncrementDailyCount(ctx)
		if err != nil {
			logger.Error("incrementing daily count", "error", err)
			return
		}
		if count > settings.DailyLimit {
			logger.Warn("daily outreach limit exceeded",
				slog.Int("count", count), slog.Int("limit", settings.DailyLimit))
		}
	})

	// Initialize Spotify client
	authenticator := spotify.NewAuthenticator(cfg.Spotify, settingsService, logger)
	spotifyClient := spotify.NewClient(authenticator, logger)

	// Initialize presence scraper with headless Chrome sessions
	scraper := presence.NewScraper(cfg.Scraper, func(ctx context.Context) (presence.Navigator, error) {
		return presence.NewChromeNavigator(ctx, logger)
	}, logger)

	// Initialize outreach CRM and message generator
	crmClient := crm.New(cfg.Airtable, logger)
	generator := message.NewGenerator(cfg.Message)

	analyzer := analysis.NewAnalyzer(spotifyClient, scraper, crmClient, eventBus, logger)
	cleaner := analysis.NewCleaner(spotifyClient, eventBus, logger)

	logger.Info("starting clearwater",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// Set up HTTP router
	router := api.NewRouter(api.RouterDeps{
		Auth:      authenticator,
		Playlists: spotifyClient,
		Analyzer:  analyzer,
		Cleaner:   cleaner,
		Bands:     crmClient,
		Generator: generator,
		Settings:  settingsService,
		Bus:       eventBus,
		Logger:    logger,
		BasePath:  cfg.Server.BasePath,
	})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create HTTP server. No write timeout: analysis streams stay open
	// for the length of a scraping run.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
