package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/adalundhe/steward/core/config"
	"github.com/adalundhe/steward/core/events"
	"github.com/adalundhe/steward/core/holdqueue"
	"github.com/adalundhe/steward/core/memory"
	"github.com/adalundhe/steward/core/providers"
	"github.com/adalundhe/steward/core/store"
)

// app is the shared wiring every subcommand builds on: config, logging, the
// sqlite-backed hold queue, and the audit bus.
type app struct {
	cfg    *config.Manager
	log    *slog.Logger
	bus    *events.Bus
	db     *store.DB
	queue  *holdqueue.Service
	memory *memory.Store
}

func newApp(ctx context.Context) (*app, error) {
	var manager *config.Manager
	if flagConfig != "" {
		manager = config.NewManager(flagConfig)
	} else {
		manager = config.NewManager()
	}
	if err := manager.Load(); err != nil {
		return nil, err
	}
	cfg := manager.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	bus := events.NewBus()
	bus.Subscribe(events.LogHandler(logger))

	db, err := store.Open(cfg.HoldQueue.DatabasePath, store.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	queue := holdqueue.NewService(
		store.NewHeldActionStore(db),
		store.NewGraduationStore(db),
		cfg.HoldQueue.Policy(),
		logger,
		holdqueue.WithBus(bus),
	)

	mem, err := memory.NewStore(memory.Config{
		RecordCacheSize: cfg.Memory.RecordCacheSize,
		QueryCacheTTL:   cfg.Memory.QueryCacheTTL.Std(),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	return &app{
		cfg:    manager,
		log:    logger,
		bus:    bus,
		db:     db,
		queue:  queue,
		memory: mem,
	}, nil
}

func (a *app) close() {
	if a.memory != nil {
		_ = a.memory.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.cfg.Close()
}

// completer builds the configured language-model provider. API keys come
// from the environment, never from config files.
func (a *app) completer() (providers.Completer, error) {
	cfg := a.cfg.Get()
	switch cfg.Provider.Name {
	case "anthropic":
		pc := providers.DefaultAnthropicConfig()
		pc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		applyProviderOverrides(&pc.BaseConfig, cfg.Provider)
		return providers.NewAnthropicProvider(pc)
	case "openai":
		pc := providers.DefaultOpenAIConfig()
		pc.APIKey = os.Getenv("OPENAI_API_KEY")
		applyProviderOverrides(&pc.BaseConfig, cfg.Provider)
		return providers.NewOpenAIProvider(pc)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func applyProviderOverrides(base *providers.BaseConfig, pc config.ProviderConfig) {
	if pc.StandardModel != "" {
		base.StandardModel = pc.StandardModel
	}
	if pc.ElevatedModel != "" {
		base.ElevatedModel = pc.ElevatedModel
	}
	if pc.MaxTokens > 0 {
		base.MaxTokens = pc.MaxTokens
	}
	if pc.Timeout > 0 {
		base.Timeout = pc.Timeout.Std()
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
