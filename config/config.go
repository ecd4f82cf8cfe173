package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// RatesConfig shapes the interest model, in basis points.
type RatesConfig struct {
	BaseRateBps uint64 `toml:"BaseRateBps"`
	SlopeBps    uint64 `toml:"SlopeBps"`
	SpreadBps   uint64 `toml:"SpreadBps"`
}

// RiskConfig shapes the borrowing limits, in basis points.
type RiskConfig struct {
	MaxLTVBps               uint64 `toml:"MaxLTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
}

// WarpConfig prices the generalised messaging transport.
type WarpConfig struct {
	BaseFeeWei    int64 `toml:"BaseFeeWei"`
	PerByteFeeWei int64 `toml:"PerByteFeeWei"`
}

// RelayBusConfig prices the relayer-polled bus transport.
type RelayBusConfig struct {
	FlatFeeWei int64 `toml:"FlatFeeWei"`
}

// Config is the full vaultd configuration.
type Config struct {
	InstanceName  string            `toml:"InstanceName"`
	VaultAddress  string            `toml:"VaultAddress"`
	ListenAddress string            `toml:"ListenAddress"`
	DataDir       string            `toml:"DataDir"`
	Environment   string            `toml:"Environment"`
	FeeBudgetWei  int64             `toml:"FeeBudgetWei"`
	Peers         []string          `toml:"Peers"`
	Rates         RatesConfig       `toml:"Rates"`
	Risk          RiskConfig        `toml:"Risk"`
	Warp          WarpConfig        `toml:"Warp"`
	RelayBus      RelayBusConfig    `toml:"RelayBus"`
	Adapters      map[string]string `toml:"Adapters"`
	TrustedVaults map[string]string `toml:"TrustedVaults"`
}

// Default returns the configuration for a single local instance with the
// documented reference rate curve.
func Default() *Config {
	return &Config{
		InstanceName:  "local",
		ListenAddress: ":8545",
		DataDir:       "./vaultdata",
		FeeBudgetWei:  1_000_000,
		Peers:         []string{},
		Rates:         RatesConfig{BaseRateBps: 200, SlopeBps: 1_000, SpreadBps: 12_000},
		Risk:          RiskConfig{MaxLTVBps: 7_500, LiquidationThresholdBps: 8_000},
		Warp:          WarpConfig{BaseFeeWei: 1_000, PerByteFeeWei: 10},
		RelayBus:      RelayBusConfig{FlatFeeWei: 500},
		Adapters:      map[string]string{},
		TrustedVaults: map[string]string{},
	}
}

// Load reads the configuration from the given path, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working instance.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InstanceName) == "" {
		return fmt.Errorf("config: InstanceName required")
	}
	if c.VaultAddress != "" && !common.IsHexAddress(c.VaultAddress) {
		return fmt.Errorf("config: VaultAddress %q is not a hex address", c.VaultAddress)
	}
	for _, peer := range c.Peers {
		if strings.TrimSpace(peer) == c.InstanceName {
			return fmt.Errorf("config: peer list contains the local instance %q", c.InstanceName)
		}
	}
	if c.Rates.SpreadBps < 10_000 {
		return fmt.Errorf("config: SpreadBps %d below 10000; borrow rate must not undercut supply rate", c.Rates.SpreadBps)
	}
	if c.Risk.MaxLTVBps == 0 || c.Risk.MaxLTVBps > 10_000 {
		return fmt.Errorf("config: MaxLTVBps %d outside (0, 10000]", c.Risk.MaxLTVBps)
	}
	if c.Risk.LiquidationThresholdBps < c.Risk.MaxLTVBps || c.Risk.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("config: LiquidationThresholdBps %d outside [MaxLTVBps, 10000]", c.Risk.LiquidationThresholdBps)
	}
	for instance, addr := range c.TrustedVaults {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: trusted vault for %q is not a hex address", instance)
		}
	}
	for instance, protocol := range c.Adapters {
		if strings.TrimSpace(protocol) == "" {
			return fmt.Errorf("config: empty adapter protocol for %q", instance)
		}
	}
	return nil
}
