package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/api"
	"github.com/heimdex/heimdex-timeline/internal/composition"
	"github.com/heimdex/heimdex-timeline/internal/config"
	"github.com/heimdex/heimdex-timeline/internal/db"
	"github.com/heimdex/heimdex-timeline/internal/history"
	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/media"
	"github.com/heimdex/heimdex-timeline/internal/playback"
	"github.com/heimdex/heimdex-timeline/internal/ramcache"
	"github.com/heimdex/heimdex-timeline/internal/render"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
	"github.com/heimdex/heimdex-timeline/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings := cfg.Settings()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex timeline",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
		"settings", cfg.SettingsPath(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mediaRepo := media.NewRepository(database.Conn())
	authToken, err := ensureAuthToken(ctx, mediaRepo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %-56s ║\n", "HEIMDEX TIMELINE v"+config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	mediaSvc := media.NewService(mediaRepo, logger)
	if err := mediaSvc.Load(ctx); err != nil {
		return fmt.Errorf("failed to load media catalog: %w", err)
	}

	tl := timeline.New(timeline.Options{
		Logger:               logging.WithComponent(logger, "timeline"),
		SnapThreshold:        settings.SnapThreshold,
		DefaultImageDuration: settings.DefaultImageDuration,
	})
	graph, err := composition.Open(ctx, composition.NewRepository(database.Conn()), tl, mediaSvc, logging.WithComponent(logger, "composition"))
	if err != nil {
		return fmt.Errorf("failed to open compositions: %w", err)
	}

	previewLogger := logging.WithComponent(logger, "preview")
	engine := render.NewMemoryEngine(settings.PreviewFPS, previewLogger)
	cache := ramcache.New(engine, settings.FrameWidth, settings.FrameHeight, previewLogger)
	detach := cache.Attach(tl)
	defer detach()

	pool := media.NewPool(mediaSvc, settings.ElementLatency)
	filler := ramcache.NewFiller(tl, cache, engine, pool, ramcache.FillConfig{
		SeekTimeout:     settings.SeekTimeout,
		SeekRetries:     settings.SeekRetries,
		ToleranceFrames: settings.SeekToleranceFrames,
		Logger:          previewLogger,
	})
	driver := playback.NewDriver(tl, cache, engine, pool, playback.DefaultConfig(settings.PreviewFPS, logging.WithComponent(logger, "playback")))
	go driver.Start(ctx)

	hist := history.New(tl, settings.HistoryLimit, logging.WithComponent(logger, "history"))
	defer hist.Close()

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Timeline:  tl,
		Graph:     graph,
		Media:     mediaSvc,
		Tokens:    mediaRepo,
		History:   hist,
		Cache:     cache,
		Filler:    filler,
		Driver:    driver,
		Logger:    logger,
		StartTime: startTime,
		Version:   config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.TrayEnabled() {
		tray := ui.NewTray(ui.TrayConfig{
			Cache:  cache,
			Filler: filler,
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	} else {
		logger.Info("running without system tray")
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	filler.Cancel()
	driver.Pause()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := graph.Save(shutdownCtx); err != nil {
		logger.Error("failed to save active composition", "error", err)
	}
	cancel()

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(ctx context.Context, tokens *media.SQLiteRepository) (string, error) {
	existing, err := tokens.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := tokens.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
