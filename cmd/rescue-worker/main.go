// Package main provides the rescue worker entry point for spiral.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/spiral/internal/archetype"
	"github.com/thebtf/spiral/internal/config"
	gormdb "github.com/thebtf/spiral/internal/db/gorm"
	"github.com/thebtf/spiral/internal/flow"
	"github.com/thebtf/spiral/internal/genai"
	"github.com/thebtf/spiral/internal/watcher"
	"github.com/thebtf/spiral/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP port (default: from settings)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.spiral)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.WorkerPort = *port
	}

	dbPath := cfg.DBPath
	if *dataDir != "" {
		dbPath = filepath.Join(*dataDir, "spiral.db")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the store (migrations run automatically)
	store, err := gormdb.NewStore(gormdb.Config{
		Path:     dbPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Generator is optional: without an API key the engine runs entirely
	// on local fallbacks.
	var generator genai.Generator
	gemini, err := genai.NewGeminiClient(ctx, genai.GeminiConfig{
		PrimaryModel:   cfg.PrimaryModel,
		FallbackModel:  cfg.FallbackModel,
		AttemptTimeout: time.Duration(cfg.GenTimeoutSec) * time.Second,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Generator unavailable, running with local content only")
	} else {
		generator = gemini
	}

	// Archetype lookup is optional too; Redis caching kicks in when an
	// address is configured.
	lookup := archetype.NewLookup(gormdb.NewArchetypeStore(store), cfg.RedisAddr)
	defer lookup.Close()

	engine, err := flow.NewEngine(generator, lookup)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build flow engine")
	}

	if err := engine.Crisis().LoadOverrides(config.CrisisPhrasesPath()); err != nil {
		log.Warn().Err(err).Msg("Failed to load crisis phrase overrides, using builtins")
	}

	startWatchers(engine)

	svc := worker.NewService(Version, cfg, store, engine)

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down worker")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		cancel()
	}()

	log.Info().Int("port", cfg.WorkerPort).Str("version", Version).Msg("Starting rescue worker")
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Worker error")
	}
}

// startWatchers wires file watchers for the crisis phrase list and the
// settings file.
func startWatchers(engine *flow.Engine) {
	phrasesPath := config.CrisisPhrasesPath()
	phrasesWatcher, err := watcher.New(phrasesPath,
		func() {
			log.Warn().Str("path", phrasesPath).Msg("Crisis phrase file deleted, keeping last loaded set")
		},
		func() {
			if err := engine.Crisis().LoadOverrides(phrasesPath); err != nil {
				log.Error().Err(err).Msg("Failed to reload crisis phrases")
				return
			}
			log.Info().Str("path", phrasesPath).Msg("Crisis phrases reloaded")
		})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create crisis phrase watcher")
	} else if err := phrasesWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start crisis phrase watcher")
	}

	settingsPath := config.SettingsPath()
	settingsWatcher, err := watcher.New(settingsPath,
		func() {
			log.Warn().Str("path", settingsPath).Msg("Settings file deleted, exiting for supervisor restart")
			os.Exit(0)
		},
		nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
	} else if err := settingsWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
	}
}
