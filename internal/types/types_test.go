// internal/types/types_test.go
package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	other = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestTargetToken(t *testing.T) {
	tests := []struct {
		name   string
		token0 common.Address
		token1 common.Address
		want   common.Address
		ok     bool
	}{
		{"base is token0", weth, other, other, true},
		{"base is token1", other, weth, other, true},
		{"neither side is base", other, common.Address{0x22}, common.Address{}, false},
		{"both sides are base", weth, weth, common.Address{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := PairCandidate{Token0: tt.token0, Token1: tt.token1}
			got, ok := candidate.TargetToken(weth)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlippageFixedMin(t *testing.T) {
	policy := SlippagePolicy{Mode: SlippageFixed, FixedMin: big.NewInt(5_000)}
	assert.False(t, policy.NeedsQuote())
	assert.Equal(t, big.NewInt(5_000), policy.MinAmountOut(nil))

	// A nil floor degrades to unconstrained.
	assert.Zero(t, SlippagePolicy{Mode: SlippageFixed}.MinAmountOut(nil).Sign())
}

func TestSlippagePercentMin(t *testing.T) {
	policy := SlippagePolicy{Mode: SlippagePercent, Percent: 1.5}
	assert.True(t, policy.NeedsQuote())
	assert.Equal(t, big.NewInt(9_850), policy.MinAmountOut(big.NewInt(10_000)))

	wide := SlippagePolicy{Mode: SlippagePercent, Percent: 150}
	assert.Zero(t, wide.MinAmountOut(big.NewInt(10_000)).Sign())
}

func TestSlippageNoneMin(t *testing.T) {
	policy := SlippagePolicy{Mode: SlippageNone}
	assert.False(t, policy.NeedsQuote())
	assert.Zero(t, policy.MinAmountOut(nil).Sign())
}
