package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InstanceName != "local" {
		t.Fatalf("expected default instance name, got %q", cfg.InstanceName)
	}
	if cfg.Rates.BaseRateBps != 200 || cfg.Rates.SlopeBps != 1_000 || cfg.Rates.SpreadBps != 12_000 {
		t.Fatalf("unexpected default rate curve: %+v", cfg.Rates)
	}
}

func TestLoadFromFile(t *testing.T) {
	raw := `
InstanceName = "chain-a"
VaultAddress = "0x00000000000000000000000000000000000000aa"
Peers = ["chain-b"]

[Rates]
BaseRateBps = 300
SlopeBps = 900
SpreadBps = 11000

[Risk]
MaxLTVBps = 7000
LiquidationThresholdBps = 7500

[Adapters]
chain-b = "relaybus"

[TrustedVaults]
chain-b = "0x00000000000000000000000000000000000000bb"
`
	path := filepath.Join(t.TempDir(), "vault.toml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InstanceName != "chain-a" {
		t.Fatalf("expected chain-a, got %q", cfg.InstanceName)
	}
	if cfg.Rates.BaseRateBps != 300 {
		t.Fatalf("expected overridden base rate, got %d", cfg.Rates.BaseRateBps)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Warp.BaseFeeWei != 1_000 {
		t.Fatalf("expected default warp base fee, got %d", cfg.Warp.BaseFeeWei)
	}
	if cfg.Adapters["chain-b"] != "relaybus" {
		t.Fatalf("unexpected adapter mapping: %v", cfg.Adapters)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"empty instance name":  func(c *Config) { c.InstanceName = " " },
		"malformed vault addr": func(c *Config) { c.VaultAddress = "0x123" },
		"self peer":            func(c *Config) { c.Peers = []string{"local"} },
		"spread under 1x":      func(c *Config) { c.Rates.SpreadBps = 9_999 },
		"zero max ltv":         func(c *Config) { c.Risk.MaxLTVBps = 0 },
		"threshold under ltv":  func(c *Config) { c.Risk.LiquidationThresholdBps = c.Risk.MaxLTVBps - 1 },
		"bad trusted vault":    func(c *Config) { c.TrustedVaults = map[string]string{"chain-b": "nope"} },
		"empty adapter":        func(c *Config) { c.Adapters = map[string]string{"chain-b": " "} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
