package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Policy.MinSeedEntropyBits != 128 {
		t.Errorf("expected min_seed_entropy_bits 128, got %d", cfg.Policy.MinSeedEntropyBits)
	}
	if cfg.Policy.FullSeedEntropyBits != 256 {
		t.Errorf("expected full_seed_entropy_bits 256, got %d", cfg.Policy.FullSeedEntropyBits)
	}
	if !cfg.Sources.Jitter {
		t.Error("expected jitter source enabled by default")
	}
	if cfg.IPC.SocketPath == "" {
		t.Error("expected a non-empty default socket path")
	}
}

func TestDefaultConfig_ValidatesCleanly(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if err := ValidateSchema(cfg); err != nil {
		t.Errorf("default config should satisfy the schema: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("expected config.toml, got %s", filepath.Base(path))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load on missing file returned error: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected defaults, got version %d", cfg.Version)
	}
}

func TestLoad_ParsesTOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
version = 1

[policy]
min_seed_entropy_bits = 64
full_seed_entropy_bits = 128

[sources]
tpm = false
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Policy.MinSeedEntropyBits != 64 {
		t.Errorf("expected overridden min_seed_entropy_bits 64, got %d", cfg.Policy.MinSeedEntropyBits)
	}
	if cfg.Sources.TPM {
		t.Error("expected sources.tpm overridden to false")
	}
	// Fields untouched by the TOML body keep their defaults.
	if !cfg.Sources.Jitter {
		t.Error("expected sources.jitter to retain its default of true")
	}
}

func TestValidate_RejectsZeroMinSeedEntropy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinSeedEntropyBits = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero min_seed_entropy_bits")
	}
}

func TestValidate_RejectsFullBelowMin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinSeedEntropyBits = 256
	cfg.Policy.FullSeedEntropyBits = 128
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when full_seed_entropy_bits < min_seed_entropy_bits")
	}
}

func TestValidate_RequiresTPMDeviceWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources.TPM = true
	cfg.Sources.TPMDevice = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for tpm enabled without a device path")
	}
}

func TestMerge_OverridesOnlyNonZeroFields(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{}
	src.Policy.MinSeedEntropyBits = 200

	merged := Merge(dst, src)
	if merged.Policy.MinSeedEntropyBits != 200 {
		t.Errorf("expected override to 200, got %d", merged.Policy.MinSeedEntropyBits)
	}
	if merged.Policy.FullSeedEntropyBits != dst.Policy.FullSeedEntropyBits {
		t.Error("expected untouched field to survive merge")
	}
}

func TestPolicyConfig_ToPolicyRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.Policy.ToPolicy()
	if uint32(p.MinSeedEntropyBits) != cfg.Policy.MinSeedEntropyBits {
		t.Errorf("ToPolicy mismatch: %d vs %d", p.MinSeedEntropyBits, cfg.Policy.MinSeedEntropyBits)
	}
	if p.OversamplingRatioNum != cfg.Policy.OversamplingRatioNum {
		t.Error("oversampling ratio numerator did not round-trip")
	}
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Policy.MinSeedEntropyBits = 192
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if reloaded.Policy.MinSeedEntropyBits != 192 {
		t.Errorf("expected 192 after round trip, got %d", reloaded.Policy.MinSeedEntropyBits)
	}
}
