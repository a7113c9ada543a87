// Package config loads and watches the copilot's layered configuration:
// defaults, then user, project, and local YAML files, then STEWARD_*
// environment overrides. The active config is swapped atomically so readers
// never see a partially applied reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/steward/core/classify"
	"github.com/adalundhe/steward/core/ensemble"
	"github.com/adalundhe/steward/core/holdqueue"
)

type Manager struct {
	configPtr unsafe.Pointer
	paths     []string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Ensemble  EnsembleConfig  `yaml:"ensemble"`
	Sceptic   ScepticConfig   `yaml:"sceptic"`
	HoldQueue HoldQueueConfig `yaml:"hold_queue"`
	Memory    MemoryConfig    `yaml:"memory"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ProviderConfig struct {
	Name          string   `yaml:"name"`
	StandardModel string   `yaml:"standard_model"`
	ElevatedModel string   `yaml:"elevated_model"`
	MaxTokens     int      `yaml:"max_tokens"`
	Timeout       Duration `yaml:"timeout"`
}

type EnsembleConfig struct {
	ConfidenceGapThreshold float64 `yaml:"confidence_gap_threshold"`
	MemoryLimit            int     `yaml:"memory_limit"`
	RecentTurns            int     `yaml:"recent_turns"`
}

type ScepticConfig struct {
	Cooldown           Duration `yaml:"cooldown"`
	VelocityGapPercent float64  `yaml:"velocity_gap_percent"`
	BlockerAgeDays     int      `yaml:"blocker_age_days"`
	ScopeCreepCount    int      `yaml:"scope_creep_count"`
}

type HoldQueueConfig struct {
	DatabasePath string               `yaml:"database_path"`
	PollInterval Duration             `yaml:"poll_interval"`
	Tiers        []holdqueue.TierRule `yaml:"tiers"`
}

type MemoryConfig struct {
	RecordCacheSize int      `yaml:"record_cache_size"`
	QueryCacheTTL   Duration `yaml:"query_cache_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewManager builds a manager over the given config file paths, lowest
// precedence first. With no paths it uses DefaultSearchPaths.
func NewManager(paths ...string) *Manager {
	if len(paths) == 0 {
		paths = DefaultSearchPaths()
	}
	m := &Manager{
		paths:     paths,
		stopWatch: make(chan struct{}),
	}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(DefaultConfig()))
	return m
}

// DefaultSearchPaths returns the layered config locations: user, then
// project, then project-local overrides.
func DefaultSearchPaths() []string {
	paths := make([]string, 0, 3)
	if userDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(userDir, "steward", "config.yaml"))
	}
	return append(paths, "steward.yaml", "steward.local.yaml")
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:      "anthropic",
			MaxTokens: 1024,
			Timeout:   Duration(2 * time.Minute),
		},
		Ensemble: EnsembleConfig{
			ConfidenceGapThreshold: 0.4,
			MemoryLimit:            5,
			RecentTurns:            10,
		},
		Sceptic: ScepticConfig{
			Cooldown:           Duration(30 * time.Minute),
			VelocityGapPercent: 20,
			BlockerAgeDays:     5,
			ScopeCreepCount:    3,
		},
		HoldQueue: HoldQueueConfig{
			DatabasePath: "steward.db",
			PollInterval: Duration(time.Minute),
			Tiers:        holdqueue.DefaultPolicy().Tiers,
		},
		Memory: MemoryConfig{
			RecordCacheSize: 4096,
			QueryCacheTTL:   Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Get returns the active config. Never nil; safe across Reload.
func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Load builds a fresh config from defaults, file layers, and environment,
// then swaps it in and notifies watchers.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	for _, path := range m.paths {
		if err := m.mergeFile(cfg, path); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	m.applyEnvironment(cfg)

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)
	return nil
}

// mergeFile parses path into a fresh layer and merges the non-zero fields
// over cfg. Missing files are not an error.
func (m *Manager) mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return err
	}
	Merge(cfg, &layer)
	return nil
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("STEWARD_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("STEWARD_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Provider.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("STEWARD_MAX_TOKENS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Provider.MaxTokens = n
		}
	}
	if v := os.Getenv("STEWARD_CONFIDENCE_GAP"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Ensemble.ConfidenceGapThreshold = f
		}
	}
	if v := os.Getenv("STEWARD_SCEPTIC_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sceptic.Cooldown = Duration(d)
		}
	}
	if v := os.Getenv("STEWARD_DB_PATH"); v != "" {
		cfg.HoldQueue.DatabasePath = v
	}
	if v := os.Getenv("STEWARD_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HoldQueue.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv("STEWARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// OnChange registers fn to run on every successful Load.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Watch reloads the config whenever one of the layered files changes. Runs
// until Close.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	watched := make(map[string]bool, len(m.paths))
	for _, path := range m.paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		watched[abs] = true
		// Watch the directory: editors replace files on save, which drops
		// per-file watches.
		dir := filepath.Dir(abs)
		if _, statErr := os.Stat(dir); statErr == nil {
			_ = watcher.Add(dir)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil || !watched[abs] {
					continue
				}
				_ = m.Load()
			case <-watcher.Errors:
			case <-m.stopWatch:
				return
			}
		}
	}()
	return nil
}

// Reload is an explicit Load, for signal handlers.
func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

// Thresholds converts to the classifier's threshold type.
func (c ScepticConfig) Thresholds() classify.ScepticConfig {
	return classify.ScepticConfig{
		Cooldown:           c.Cooldown.Std(),
		VelocityGapPercent: c.VelocityGapPercent,
		BlockerAgeDays:     c.BlockerAgeDays,
		ScopeCreepCount:    c.ScopeCreepCount,
	}
}

// Policy converts the tier table to a graduation policy.
func (c HoldQueueConfig) Policy() holdqueue.Policy {
	if len(c.Tiers) == 0 {
		return holdqueue.DefaultPolicy()
	}
	return holdqueue.Policy{Tiers: c.Tiers}
}

// EnsembleConfig converts to the orchestrator's tuning, folding in the
// sceptic thresholds and provider token cap.
func (c *Config) EnsembleConfig() ensemble.Config {
	return ensemble.Config{
		ConfidenceGapThreshold: c.Ensemble.ConfidenceGapThreshold,
		Sceptic:                c.Sceptic.Thresholds(),
		MaxTokens:              c.Provider.MaxTokens,
		MemoryLimit:            c.Ensemble.MemoryLimit,
		RecentTurns:            c.Ensemble.RecentTurns,
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
