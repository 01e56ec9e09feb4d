// internal/config/config_test.go
package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelnik/pairsniper/internal/types"
)

const validYAML = `
node_url: wss://mainnet.example.org/ws
chain_id: 1
factory_address: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
router_address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
base_asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
eth_liquidity_threshold: "1000000000000000000"
token_liquidity_threshold: "1000000000000000000000"
snipe_amount_wei: "50000000000000000"
stop_loss_pct: 20
take_profit_pct: 100
oracle_url: https://api.etherscan.io/api
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultWatchdogInterval, cfg.WatchdogInterval)
	assert.Equal(t, DefaultBackfillInterval, cfg.BackfillInterval)
	assert.Equal(t, DefaultManageInterval, cfg.ManageInterval)
	assert.Equal(t, uint64(DefaultBackfillWindow), cfg.BackfillWindow)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, "0", cfg.AmountOutMinWei)
	assert.Equal(t, string(types.SlippageFixed), cfg.SlippageMode)

	assert.Equal(t, 60*time.Second, cfg.Heartbeat())
	assert.Equal(t, 30*time.Second, cfg.Watchdog())
	assert.Equal(t, 5*time.Minute, cfg.Backfill())
	assert.Equal(t, 5*time.Minute, cfg.Manage())
}

func TestLoadConfigTypedAmounts(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	want, _ := new(big.Int).SetString("50000000000000000", 10)
	assert.Zero(t, cfg.SnipeAmount().Cmp(want))
	assert.Zero(t, cfg.AmountOutMin().Sign())
	assert.Equal(t, "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", cfg.Factory().Hex())
}

func TestLoadConfigSlippagePolicy(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	contents := validYAML + "slippage_mode: percent\nslippage_pct: 2.5\n"
	cfg, err := LoadConfig(writeConfig(t, contents))
	require.NoError(t, err)

	policy := cfg.Slippage()
	assert.Equal(t, types.SlippagePercent, policy.Mode)
	assert.Equal(t, 2.5, policy.Percent)
	assert.True(t, policy.NeedsQuote())

	// Percent mode demands a sane tolerance.
	_, err = LoadConfig(writeConfig(t, validYAML+"slippage_mode: percent\nslippage_pct: 0\n"))
	require.Error(t, err)
}

func TestLoadConfigPrivateKeyFromEnvOnly(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SNIPER_PRIVATE_KEY")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"http node url", "wss://mainnet.example.org/ws", "https://mainnet.example.org"},
		{"bad factory", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", "notanaddress"},
		{"bad snipe amount", `snipe_amount_wei: "50000000000000000"`, `snipe_amount_wei: "1.5"`},
		{"stop loss too high", "stop_loss_pct: 20", "stop_loss_pct: 150"},
		{"zero take profit", "take_profit_pct: 100", "take_profit_pct: 0"},
		{"missing oracle", "oracle_url: https://api.etherscan.io/api", `oracle_url: ""`},
		{"unknown slippage mode", "oracle_url:", "slippage_mode: greedy\noracle_url:"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			contents := strings.Replace(validYAML, tc.old, tc.new, 1)
			_, err := LoadConfig(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}
