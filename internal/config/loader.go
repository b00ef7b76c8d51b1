package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading, watching, and hot-reloading.
// A detected file write triggers reload, validate, swap, notify. The
// daemon's SIGHUP handler (cmd/esdmd) calls Load instead, which re-reads,
// validates and swaps the config but does not notify OnChange callbacks.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewLoader creates a new configuration loader.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		errChan: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load reads and parses the configuration file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := ValidateSchema(cfg); err != nil {
		return nil, err
	}

	l.config = cfg
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts watching the configuration file for changes.
// When changes are detected, the configuration is reloaded and
// registered callbacks are invoked.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go l.watchLoop()

	return nil
}

func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer
	debounceDelay := 100 * time.Millisecond

	for {
		select {
		case <-l.ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			select {
			case l.errChan <- err:
			default:
			}
		}
	}
}

// Reload forces an immediate reload, bypassing the filesystem-event
// debounce.
func (l *Loader) Reload() {
	l.reload()
}

func (l *Loader) reload() {
	newCfg, err := loadConfigFromFile(l.path)
	if err != nil {
		select {
		case l.errChan <- fmt.Errorf("reload config: %w", err):
		default:
		}
		return
	}

	if err := newCfg.Validate(); err != nil {
		select {
		case l.errChan <- fmt.Errorf("validate new config: %w", err):
		default:
		}
		return
	}
	if err := ValidateSchema(newCfg); err != nil {
		select {
		case l.errChan <- err:
		default:
		}
		return
	}

	l.mu.Lock()
	l.config = newCfg
	l.mu.Unlock()

	for _, cb := range l.onChange {
		cb(newCfg)
	}
}

// OnChange registers a callback to be invoked when the configuration changes.
func (l *Loader) OnChange(cb func(*Config)) {
	l.onChange = append(l.onChange, cb)
}

// Errors returns a channel for receiving errors that occur during watching.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadConfigFromFile reads and parses a config file based on its
// extension, falling back to format auto-detection.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return cfg, nil
}

func autoDetectAndParse(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// LoadOrCreate loads the configuration from the specified path,
// creating a default configuration file if it doesn't exist.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, false, err
	}

	return cfg, false, nil
}

// SaveConfig writes cfg to path in TOML form, creating parent
// directories as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Merge merges two configurations, with src overriding dst for
// non-zero values. Used to layer CLI flag overrides on top of a
// loaded file.
func Merge(dst, src *Config) *Config {
	result := dst.Clone()

	if src.Version > 0 {
		result.Version = src.Version
	}

	if src.Sources.TPMDevice != "" {
		result.Sources.TPMDevice = src.Sources.TPMDevice
	}
	result.Sources.Jitter = src.Sources.Jitter || result.Sources.Jitter
	result.Sources.Interrupt = src.Sources.Interrupt || result.Sources.Interrupt
	result.Sources.Scheduler = src.Sources.Scheduler || result.Sources.Scheduler
	result.Sources.Kernel = src.Sources.Kernel || result.Sources.Kernel
	result.Sources.TPM = src.Sources.TPM || result.Sources.TPM
	result.Sources.Aux = src.Sources.Aux || result.Sources.Aux

	if src.Policy.SecurityStrengthBits > 0 {
		result.Policy.SecurityStrengthBits = src.Policy.SecurityStrengthBits
	}
	if src.Policy.MinSeedEntropyBits > 0 {
		result.Policy.MinSeedEntropyBits = src.Policy.MinSeedEntropyBits
	}
	if src.Policy.FullSeedEntropyBits > 0 {
		result.Policy.FullSeedEntropyBits = src.Policy.FullSeedEntropyBits
	}
	if src.Policy.InitEntropyBits > 0 {
		result.Policy.InitEntropyBits = src.Policy.InitEntropyBits
	}
	if src.Policy.DigestSizeBits > 0 {
		result.Policy.DigestSizeBits = src.Policy.DigestSizeBits
	}
	if src.Policy.OversamplingRatioNum > 0 {
		result.Policy.OversamplingRatioNum = src.Policy.OversamplingRatioNum
	}
	if src.Policy.OversamplingRatioDen > 0 {
		result.Policy.OversamplingRatioDen = src.Policy.OversamplingRatioDen
	}

	if src.Monitor.DurationSec > 0 {
		result.Monitor.DurationSec = src.Monitor.DurationSec
	}
	if src.Monitor.QuantumMs > 0 {
		result.Monitor.QuantumMs = src.Monitor.QuantumMs
	}

	if src.Status.MetricsAddr != "" {
		result.Status.MetricsAddr = src.Status.MetricsAddr
	}
	if src.Status.HealthAddr != "" {
		result.Status.HealthAddr = src.Status.HealthAddr
	}

	if src.Logging.Level != "" {
		result.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		result.Logging.Format = src.Logging.Format
	}
	if src.Logging.Output != "" {
		result.Logging.Output = src.Logging.Output
	}
	if src.Logging.FilePath != "" {
		result.Logging.FilePath = src.Logging.FilePath
	}

	if src.IPC.SocketPath != "" {
		result.IPC.SocketPath = src.IPC.SocketPath
	}
	if src.Daemon.PIDFile != "" {
		result.Daemon.PIDFile = src.Daemon.PIDFile
	}

	return result
}
