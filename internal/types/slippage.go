// internal/types/slippage.go
package types

import "math/big"

// SlippageMode selects how the entry swap's amountOutMin is derived.
type SlippageMode string

const (
	// SlippageFixed uses a configured amountOutMin verbatim. A fixed
	// value of 0 disables slippage protection entirely.
	SlippageFixed SlippageMode = "fixed"
	// SlippagePercent derives amountOutMin from a router quote minus a
	// tolerated percentage.
	SlippagePercent SlippageMode = "percent"
	// SlippageNone never constrains the fill.
	SlippageNone SlippageMode = "none"
)

// SlippagePolicy is the entry-side slippage configuration.
type SlippagePolicy struct {
	Mode     SlippageMode
	FixedMin *big.Int // SlippageFixed only, smallest units
	Percent  float64  // SlippagePercent only, e.g. 1.0 = tolerate 1%
}

// NeedsQuote reports whether MinAmountOut requires an expected-output
// quote from the router.
func (p SlippagePolicy) NeedsQuote() bool {
	return p.Mode == SlippagePercent
}

// MinAmountOut computes the amountOutMin to submit with the entry
// swap. expectedOut is only consulted in percent mode and may be nil
// otherwise. The percent math runs in basis points so the result stays
// integral.
func (p SlippagePolicy) MinAmountOut(expectedOut *big.Int) *big.Int {
	switch p.Mode {
	case SlippageFixed:
		if p.FixedMin == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(p.FixedMin)
	case SlippagePercent:
		bps := int64((100 - p.Percent) * 100)
		if bps < 0 {
			bps = 0
		}
		min := new(big.Int).Mul(expectedOut, big.NewInt(bps))
		return min.Div(min, big.NewInt(10_000))
	default:
		return big.NewInt(0)
	}
}
