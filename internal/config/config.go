// Package config handles configuration loading and validation for esdmd.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"esdmd/internal/entropy"
)

// Version is the current config schema version. Bump when a field is
// renamed or its meaning changes in a way Load cannot paper over.
const Version = 1

// Config holds the daemon configuration.
type Config struct {
	Version int `toml:"version" json:"version"`

	Sources SourcesConfig `toml:"sources" json:"sources"`
	Policy  PolicyConfig  `toml:"policy" json:"policy"`
	Monitor MonitorConfig `toml:"monitor" json:"monitor"`
	Status  StatusConfig  `toml:"status" json:"status"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	IPC     IPCConfig     `toml:"ipc" json:"ipc"`
	Daemon  DaemonConfig  `toml:"daemon" json:"daemon"`
}

// SourcesConfig toggles individual entropy sources on or off and
// names the TPM device node when enabled.
type SourcesConfig struct {
	Jitter    bool   `toml:"jitter" json:"jitter"`
	Interrupt bool   `toml:"interrupt" json:"interrupt"`
	Scheduler bool   `toml:"scheduler" json:"scheduler"`
	Kernel    bool   `toml:"kernel" json:"kernel"`
	TPM       bool   `toml:"tpm" json:"tpm"`
	TPMDevice string `toml:"tpm_device" json:"tpm_device"`
	Aux       bool   `toml:"aux" json:"aux"`
}

// PolicyConfig mirrors entropy.Policy's tunables so an operator can
// adjust the oversampling regime without a rebuild.
type PolicyConfig struct {
	SecurityStrengthBits  uint32 `toml:"security_strength_bits" json:"security_strength_bits"`
	SP80090CCompliant     bool   `toml:"sp800_90c_compliant" json:"sp800_90c_compliant"`
	SeedBufferInitAddBits uint32 `toml:"seed_buffer_init_add_bits" json:"seed_buffer_init_add_bits"`
	OversamplingRatioNum  uint64 `toml:"oversampling_ratio_num" json:"oversampling_ratio_num"`
	OversamplingRatioDen  uint64 `toml:"oversampling_ratio_den" json:"oversampling_ratio_den"`
	MinSeedEntropyBits    uint32 `toml:"min_seed_entropy_bits" json:"min_seed_entropy_bits"`
	InitEntropyBits       uint32 `toml:"init_entropy_bits" json:"init_entropy_bits"`
	FullSeedEntropyBits   uint32 `toml:"full_seed_entropy_bits" json:"full_seed_entropy_bits"`
	DigestSizeBits        uint32 `toml:"digest_size_bits" json:"digest_size_bits"`
}

// ToPolicy converts the TOML-facing config into entropy.Policy.
func (p PolicyConfig) ToPolicy() entropy.Policy {
	return entropy.Policy{
		SecurityStrengthBits:  entropy.Estimate(p.SecurityStrengthBits),
		SP80090CCompliant:     p.SP80090CCompliant,
		SeedBufferInitAddBits: entropy.Estimate(p.SeedBufferInitAddBits),
		OversamplingRatioNum:  p.OversamplingRatioNum,
		OversamplingRatioDen:  p.OversamplingRatioDen,
		MinSeedEntropyBits:    entropy.Estimate(p.MinSeedEntropyBits),
		InitEntropyBits:       entropy.Estimate(p.InitEntropyBits),
		FullSeedEntropyBits:   entropy.Estimate(p.FullSeedEntropyBits),
		DigestSize:            entropy.Estimate(p.DigestSizeBits),
	}
}

// MonitorConfig bounds the startup monitor.
type MonitorConfig struct {
	DurationSec int `toml:"duration_sec" json:"duration_sec"`
	QuantumMs   int `toml:"quantum_ms" json:"quantum_ms"`
}

// StatusConfig addresses the Prometheus exporter and the health-check
// listener.
type StatusConfig struct {
	MetricsAddr string `toml:"metrics_addr" json:"metrics_addr"`
	HealthAddr  string `toml:"health_addr" json:"health_addr"`
}

// LoggingConfig controls internal/logging's slog handler construction.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level"`
	Format   string `toml:"format" json:"format"`
	Output   string `toml:"output" json:"output"`
	FilePath string `toml:"file_path" json:"file_path"`
}

// IPCConfig names the control socket the CLI's status/reset-state/
// add-entropy subcommands dial.
type IPCConfig struct {
	SocketPath string `toml:"socket_path" json:"socket_path"`
}

// DaemonConfig holds process-lifecycle settings.
type DaemonConfig struct {
	PIDFile string `toml:"pid_file" json:"pid_file"`
}

// DefaultConfig returns a configuration with sensible defaults, derived
// from entropy.DefaultPolicy and DefaultMonitorConfig.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()
	policy := entropy.DefaultPolicy()

	return &Config{
		Version: Version,
		Sources: SourcesConfig{
			Jitter:    true,
			Interrupt: true,
			Scheduler: true,
			Kernel:    true,
			TPM:       HasTPMSupport(paths.TPMDevice),
			TPMDevice: paths.TPMDevice,
			Aux:       true,
		},
		Policy: PolicyConfig{
			SecurityStrengthBits:  uint32(policy.SecurityStrengthBits),
			SP80090CCompliant:     policy.SP80090CCompliant,
			SeedBufferInitAddBits: uint32(policy.SeedBufferInitAddBits),
			OversamplingRatioNum:  policy.OversamplingRatioNum,
			OversamplingRatioDen:  policy.OversamplingRatioDen,
			MinSeedEntropyBits:    uint32(policy.MinSeedEntropyBits),
			InitEntropyBits:       uint32(policy.InitEntropyBits),
			FullSeedEntropyBits:   uint32(policy.FullSeedEntropyBits),
			DigestSizeBits:        uint32(policy.DigestSize),
		},
		Monitor: MonitorConfig{
			DurationSec: 1800,
			QuantumMs:   500,
		},
		Status: StatusConfig{
			MetricsAddr: paths.MetricsAddr,
			HealthAddr:  "127.0.0.1:9396",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		IPC: IPCConfig{
			SocketPath: paths.SocketPath,
		},
		Daemon: DaemonConfig{
			PIDFile: paths.PIDFile,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return GetDefaultPaths().ConfigFile
}

// Load reads configuration from the specified path. If the file
// doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors not already covered by
// the JSON-schema pass in validation.go.
func (c *Config) Validate() error {
	if c.Policy.MinSeedEntropyBits == 0 {
		return errors.New("config: policy.min_seed_entropy_bits must be positive")
	}
	if c.Policy.FullSeedEntropyBits < c.Policy.MinSeedEntropyBits {
		return errors.New("config: policy.full_seed_entropy_bits must be >= min_seed_entropy_bits")
	}
	if c.Policy.OversamplingRatioDen == 0 {
		return errors.New("config: policy.oversampling_ratio_den must be positive")
	}
	if c.Sources.TPM && c.Sources.TPMDevice == "" {
		return errors.New("config: sources.tpm_device is required when sources.tpm is enabled")
	}
	if c.Monitor.DurationSec <= 0 {
		return errors.New("config: monitor.duration_sec must be positive")
	}
	if c.Monitor.QuantumMs <= 0 {
		return errors.New("config: monitor.quantum_ms must be positive")
	}
	return nil
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Daemon.PIDFile),
		filepath.Dir(c.IPC.SocketPath),
	}
	if c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns a deep-enough copy for Merge/hot-reload comparisons.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
