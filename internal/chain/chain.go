// internal/chain/chain.go
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PairCreated is a normalized factory pair-creation event.
type PairCreated struct {
	Token0      common.Address
	Token1      common.Address
	Pair        common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

// Reserves is the state of a pair at query time. Token0 identifies
// which side Reserve0 belongs to.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Token0   common.Address
}

// Orient splits the reserves into (baseReserve, tokenReserve) using
// the venue's base-asset address.
func (r *Reserves) Orient(base common.Address) (baseReserve, tokenReserve *big.Int) {
	if r.Token0 == base {
		return r.Reserve0, r.Reserve1
	}
	return r.Reserve1, r.Reserve0
}

// Subscription is a live event stream handle.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}

// Chain is the boundary to the node. All methods are safe for
// concurrent use; submission methods serialize internally so nonces
// stay consistent.
type Chain interface {
	// SubscribePairCreated opens a live stream of pair-creation
	// events into sink. The subscription is owned by the caller.
	SubscribePairCreated(ctx context.Context, sink chan<- PairCreated) (Subscription, error)

	// FilterPairCreated scans historical blocks [fromBlock, toBlock].
	FilterPairCreated(ctx context.Context, fromBlock, toBlock uint64) ([]PairCreated, error)

	// BlockNumber returns the current chain height. Doubles as a
	// liveness probe.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetReserves reads the pair's current reserves.
	GetReserves(ctx context.Context, pair common.Address) (*Reserves, error)

	// QuoteOut prices amountIn along path via the router.
	QuoteOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)

	// PremiumGasPrice is the node's suggestion with the inclusion
	// premium applied.
	PremiumGasPrice(ctx context.Context) (*big.Int, error)

	// Approve grants the router spending rights over token.
	Approve(ctx context.Context, token common.Address, amount, gasPrice *big.Int) (common.Hash, error)

	// SwapBaseForToken spends amountIn of the base asset on token.
	SwapBaseForToken(ctx context.Context, token common.Address, amountIn, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error)

	// SwapTokenForBase sells the wallet's full token balance back to
	// the base asset.
	SwapTokenForBase(ctx context.Context, token common.Address, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error)

	// WaitConfirmed blocks until the transaction is mined
	// successfully, failed, or the wait times out.
	WaitConfirmed(ctx context.Context, txHash common.Hash) error
}
