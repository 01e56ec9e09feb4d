// internal/types/types.go
package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// DiscoverySource tells how a pair candidate reached the evaluator.
type DiscoverySource string

const (
	SourceLive     DiscoverySource = "live"
	SourceBackfill DiscoverySource = "backfill"
)

// PairCandidate is produced once per discovered pair and consumed
// immediately by the evaluator. It is never persisted.
type PairCandidate struct {
	Token0          common.Address
	Token1          common.Address
	PairAddress     common.Address
	DiscoveryHeight uint64
	Source          DiscoverySource
}

// TargetToken returns the non-base token of the pair. The second
// return value is false when the pair contains no snipeable side:
// either both tokens are the base asset or neither is.
func (c PairCandidate) TargetToken(base common.Address) (common.Address, bool) {
	token0IsBase := c.Token0 == base
	token1IsBase := c.Token1 == base
	switch {
	case token0IsBase && token1IsBase:
		return common.Address{}, false
	case token0IsBase:
		return c.Token1, true
	case token1IsBase:
		return c.Token0, true
	default:
		return common.Address{}, false
	}
}
