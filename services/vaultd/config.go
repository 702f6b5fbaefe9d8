package vaultd

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime settings for vaultd. Values come from an
// optional TOML file with environment overrides applied on top.
type Config struct {
	Listen      string `toml:"listen"`
	DataDir     string `toml:"data_dir"`
	TickSeconds uint64 `toml:"tick_seconds"`

	DepositAsset string `toml:"deposit_asset"`
	RewardAsset  string `toml:"reward_asset"`

	OwnerAddress    string `toml:"owner_address"`
	TreasuryAddress string `toml:"treasury_address"`
	ModuleAddress   string `toml:"module_address"`
	VestingAddress  string `toml:"vesting_address"`

	RewardPerTick   string `toml:"reward_per_tick"`
	MaxRewardRate   string `toml:"max_reward_rate"`
	BootstrapRate   uint64 `toml:"bootstrap_rate"`
	VestingDuration uint64 `toml:"vesting_duration_ticks"`
	TreasuryMint    string `toml:"treasury_mint"`

	Strategy StrategyConfig `toml:"strategy"`
}

// StrategyConfig configures the built-in simulated strategy. A zero custody
// address disables it and the vault runs without deployed capital.
type StrategyConfig struct {
	CustodyAddress  string `toml:"custody_address"`
	DividendAsset   string `toml:"dividend_asset"`
	InterestBps     uint64 `toml:"interest_bps"`
	DividendPerTick string `toml:"dividend_per_tick"`
}

const (
	envListen          = "VAULTD_LISTEN"
	envDataDir         = "VAULTD_DATA_DIR"
	envTickSeconds     = "VAULTD_TICK_SECONDS"
	envOwnerAddress    = "VAULTD_OWNER_ADDRESS"
	envRewardPerTick   = "VAULTD_REWARD_PER_TICK"
	envVestingDuration = "VAULTD_VESTING_DURATION_TICKS"

	defaultListen        = "0.0.0.0:8547"
	defaultTickSeconds   = 60
	defaultBootstrapRate = 1
)

// LoadConfig reads the TOML file when path is non-empty, then applies
// environment overrides and defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Listen:        defaultListen,
		TickSeconds:   defaultTickSeconds,
		BootstrapRate: defaultBootstrapRate,
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("vaultd: decode config %s: %w", path, err)
		}
	}
	cfg.Listen = stringFromEnv(envListen, cfg.Listen)
	cfg.DataDir = stringFromEnv(envDataDir, cfg.DataDir)
	cfg.TickSeconds = uintFromEnv(envTickSeconds, cfg.TickSeconds)
	cfg.OwnerAddress = stringFromEnv(envOwnerAddress, cfg.OwnerAddress)
	cfg.RewardPerTick = stringFromEnv(envRewardPerTick, cfg.RewardPerTick)
	cfg.VestingDuration = uintFromEnv(envVestingDuration, cfg.VestingDuration)
	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = defaultTickSeconds
	}
	if cfg.BootstrapRate == 0 {
		cfg.BootstrapRate = defaultBootstrapRate
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address required")
	}
	if strings.TrimSpace(cfg.DepositAsset) == "" || strings.TrimSpace(cfg.RewardAsset) == "" {
		return fmt.Errorf("deposit and reward assets required")
	}
	if cfg.TickSeconds == 0 {
		return fmt.Errorf("tick_seconds must be positive")
	}
	for name, value := range map[string]string{
		"owner_address":    cfg.OwnerAddress,
		"treasury_address": cfg.TreasuryAddress,
		"module_address":   cfg.ModuleAddress,
		"vesting_address":  cfg.VestingAddress,
	} {
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, value := range map[string]string{
		"reward_per_tick": cfg.RewardPerTick,
		"max_reward_rate": cfg.MaxRewardRate,
		"treasury_mint":   cfg.TreasuryMint,
	} {
		if value == "" {
			continue
		}
		if _, err := ParseAmount(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if cfg.Strategy.CustodyAddress != "" {
		if _, err := ParseAddress(cfg.Strategy.CustodyAddress); err != nil {
			return fmt.Errorf("strategy.custody_address: %w", err)
		}
		if strings.TrimSpace(cfg.Strategy.DividendAsset) == "" {
			return fmt.Errorf("strategy.dividend_asset required when a custody address is set")
		}
	}
	return nil
}

// ParseAddress decodes a 20-byte hex address, with or without a 0x prefix.
func ParseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid address %q", value)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// ParseAmount decodes a non-negative base-10 integer amount.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return parsed, nil
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func uintFromEnv(key string, fallback uint64) uint64 {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
