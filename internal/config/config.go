// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/dmelnik/pairsniper/internal/types"
)

type Config struct {
	// Node endpoint. A single websocket URL serves both the live
	// subscription and regular calls.
	NodeURL string `mapstructure:"node_url"`
	ChainID int64  `mapstructure:"chain_id"`

	// Venue addresses.
	FactoryAddress string `mapstructure:"factory_address"`
	RouterAddress  string `mapstructure:"router_address"`
	BaseAsset      string `mapstructure:"base_asset"` // wrapped network currency

	// Gating thresholds, smallest-denomination units.
	EthLiquidityThreshold   string `mapstructure:"eth_liquidity_threshold"`
	TokenLiquidityThreshold string `mapstructure:"token_liquidity_threshold"`

	// Entry and exit parameters.
	SnipeAmountWei  string  `mapstructure:"snipe_amount_wei"`
	AmountOutMinWei string  `mapstructure:"amount_out_min_wei"` // 0 disables slippage protection
	SlippageMode    string  `mapstructure:"slippage_mode"`      // fixed | percent | none
	SlippagePct     float64 `mapstructure:"slippage_pct"`       // percent mode only
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`

	// Timers, seconds.
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	WatchdogInterval  int `mapstructure:"watchdog_interval"`
	BackfillInterval  int `mapstructure:"backfill_interval"`
	ManageInterval    int `mapstructure:"manage_interval"`

	BackfillWindow uint64 `mapstructure:"backfill_window"` // blocks

	Workers int    `mapstructure:"workers"`
	DBPath  string `mapstructure:"db_path"`

	// Verification oracle.
	OracleURL    string `mapstructure:"oracle_url"`
	OracleAPIKey string `mapstructure:"oracle_api_key"`

	// Signing key, hex without 0x prefix. Environment only.
	PrivateKey string `mapstructure:"private_key"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultHeartbeatInterval = 60
	DefaultWatchdogInterval  = 30
	DefaultBackfillInterval  = 300
	DefaultManageInterval    = 300
	DefaultBackfillWindow    = 10_000
	DefaultWorkers           = 5
	DefaultDBPath            = "sniper.db"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"heartbeat_interval": DefaultHeartbeatInterval,
		"watchdog_interval":  DefaultWatchdogInterval,
		"backfill_interval":  DefaultBackfillInterval,
		"manage_interval":    DefaultManageInterval,
		"backfill_window":    DefaultBackfillWindow,
		"workers":            DefaultWorkers,
		"db_path":            DefaultDBPath,
		"amount_out_min_wei": "0",
		"slippage_mode":      string(types.SlippageFixed),
		"slippage_pct":       1.0,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Secrets never live in the config file.
	if key := v.GetString("PRIVATE_KEY"); key != "" {
		cfg.PrivateKey = key
	}
	if key := v.GetString("ORACLE_API_KEY"); key != "" {
		cfg.OracleAPIKey = key
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.NodeURL == "" {
		return errors.New("missing node_url in configuration")
	}
	if err := validateURL(cfg.NodeURL, "ws"); err != nil {
		return errors.New("node_url must be a websocket endpoint")
	}
	if cfg.ChainID <= 0 {
		return errors.New("invalid chain_id")
	}
	for _, addr := range []struct{ name, value string }{
		{"factory_address", cfg.FactoryAddress},
		{"router_address", cfg.RouterAddress},
		{"base_asset", cfg.BaseAsset},
	} {
		if !common.IsHexAddress(addr.value) {
			return errors.New("invalid " + addr.name)
		}
	}
	for _, amt := range []struct{ name, value string }{
		{"eth_liquidity_threshold", cfg.EthLiquidityThreshold},
		{"token_liquidity_threshold", cfg.TokenLiquidityThreshold},
		{"snipe_amount_wei", cfg.SnipeAmountWei},
		{"amount_out_min_wei", cfg.AmountOutMinWei},
	} {
		if _, ok := new(big.Int).SetString(amt.value, 10); !ok {
			return errors.New("invalid " + amt.name)
		}
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing SNIPER_PRIVATE_KEY in environment")
	}
	if cfg.OracleURL == "" {
		return errors.New("missing oracle_url in configuration")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("invalid heartbeat_interval")
	}
	if cfg.WatchdogInterval <= 0 {
		return errors.New("invalid watchdog_interval")
	}
	if cfg.BackfillInterval <= 0 {
		return errors.New("invalid backfill_interval")
	}
	if cfg.ManageInterval <= 0 {
		return errors.New("invalid manage_interval")
	}
	if cfg.BackfillWindow == 0 {
		return errors.New("invalid backfill_window")
	}
	if cfg.Workers < 0 {
		return errors.New("invalid workers count")
	}
	if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 100 {
		return errors.New("stop_loss_pct must be in (0, 100)")
	}
	if cfg.TakeProfitPct <= 0 {
		return errors.New("take_profit_pct must be positive")
	}
	switch types.SlippageMode(cfg.SlippageMode) {
	case types.SlippageFixed, types.SlippageNone:
	case types.SlippagePercent:
		if cfg.SlippagePct <= 0 || cfg.SlippagePct >= 100 {
			return errors.New("slippage_pct must be in (0, 100)")
		}
	default:
		return errors.New("slippage_mode must be fixed, percent or none")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// Typed accessors for the big-integer amounts. validateConfig has
// already rejected unparseable values.

func (c *Config) SnipeAmount() *big.Int {
	amt, _ := new(big.Int).SetString(c.SnipeAmountWei, 10)
	return amt
}

func (c *Config) AmountOutMin() *big.Int {
	amt, _ := new(big.Int).SetString(c.AmountOutMinWei, 10)
	return amt
}

func (c *Config) EthThreshold() *big.Int {
	amt, _ := new(big.Int).SetString(c.EthLiquidityThreshold, 10)
	return amt
}

func (c *Config) TokenThreshold() *big.Int {
	amt, _ := new(big.Int).SetString(c.TokenLiquidityThreshold, 10)
	return amt
}

func (c *Config) Heartbeat() time.Duration { return time.Duration(c.HeartbeatInterval) * time.Second }
func (c *Config) Watchdog() time.Duration  { return time.Duration(c.WatchdogInterval) * time.Second }
func (c *Config) Backfill() time.Duration  { return time.Duration(c.BackfillInterval) * time.Second }
func (c *Config) Manage() time.Duration    { return time.Duration(c.ManageInterval) * time.Second }

// Slippage assembles the entry-side slippage policy. In fixed mode
// the configured amount_out_min_wei is the floor; the default of 0
// leaves fills unconstrained.
func (c *Config) Slippage() types.SlippagePolicy {
	return types.SlippagePolicy{
		Mode:     types.SlippageMode(c.SlippageMode),
		FixedMin: c.AmountOutMin(),
		Percent:  c.SlippagePct,
	}
}

func (c *Config) Factory() common.Address { return common.HexToAddress(c.FactoryAddress) }
func (c *Config) Router() common.Address  { return common.HexToAddress(c.RouterAddress) }
func (c *Config) Base() common.Address    { return common.HexToAddress(c.BaseAsset) }
