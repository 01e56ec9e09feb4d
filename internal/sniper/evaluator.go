// internal/sniper/evaluator.go
package sniper

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dmelnik/pairsniper/internal/chain"
	"github.com/dmelnik/pairsniper/internal/logger"
	"github.com/dmelnik/pairsniper/internal/store"
	"github.com/dmelnik/pairsniper/internal/types"
)

// entryDeadline bounds how long a submitted entry swap stays valid.
const entryDeadline = 20 * time.Minute

// maxApproval is an unlimited ERC-20 allowance. The exit sells the
// wallet's full token balance, which for any fill exceeds an
// entry-sized allowance, so the approval must not be bounded by the
// amount spent on entry.
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Chain is the slice of the node boundary the evaluator needs.
type Chain interface {
	GetReserves(ctx context.Context, pair common.Address) (*chain.Reserves, error)
	QuoteOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
	PremiumGasPrice(ctx context.Context) (*big.Int, error)
	Approve(ctx context.Context, token common.Address, amount, gasPrice *big.Int) (common.Hash, error)
	SwapBaseForToken(ctx context.Context, token common.Address, amountIn, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error)
	WaitConfirmed(ctx context.Context, txHash common.Hash) error
}

// Verifier answers the verification gate, normally the read-through
// cache in front of the oracle.
type Verifier interface {
	IsVerified(ctx context.Context, address common.Address) (bool, error)
}

type Config struct {
	BaseAsset      common.Address
	EthThreshold   *big.Int // base-asset reserve floor, inclusive
	TokenThreshold *big.Int // token reserve floor, inclusive
	SnipeAmount    *big.Int // base asset committed per entry
	Slippage       types.SlippagePolicy
	Workers        int
}

// Evaluator consumes discovered pairs and decides whether to commit
// capital. Gates run in a fixed order and short-circuit; every gate
// failure is a logged skip, not an error. Only a confirmed entry swap
// creates a Position.
type Evaluator struct {
	chain    Chain
	verifier Verifier
	store    store.Store
	cfg      Config
	logger   *zap.Logger

	// Tokens with an entry in progress. Claimed before the store is
	// consulted and released after the position row lands (or the
	// candidate is dropped), so two workers sharing a target token
	// cannot both pass the open-position check while the first entry
	// is still confirming.
	tokenMu       sync.Mutex
	tokenInFlight map[common.Address]struct{}
}

func New(c Chain, verifier Verifier, positions store.Store, cfg Config, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		chain:         c,
		verifier:      verifier,
		store:         positions,
		cfg:           cfg,
		logger:        logger.Named("sniper"),
		tokenInFlight: make(map[common.Address]struct{}),
	}
}

// Run drains the candidate feed with a bounded worker pool. Dispatch
// order is arrival order; completion order is not guaranteed.
func (e *Evaluator) Run(ctx context.Context, candidates <-chan types.PairCandidate) {
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
		e.logger.Warn("Invalid workers count, using 1 worker")
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for candidate := range candidates {
				e.Evaluate(ctx, candidate)
			}
		}()
	}
	wg.Wait()
	e.logger.Info("Evaluator finished")
}

// Evaluate runs the full gating pipeline for one candidate.
func (e *Evaluator) Evaluate(ctx context.Context, candidate types.PairCandidate) {
	log := logger.Operation(e.logger, "pair_evaluation").With(
		zap.String("pair", candidate.PairAddress.Hex()),
		zap.String("source", string(candidate.Source)))

	target, ok := candidate.TargetToken(e.cfg.BaseAsset)
	if !ok {
		log.Debug("Skipping pair without a snipeable token")
		return
	}
	log = log.With(zap.String("token", target.Hex()))

	if !e.claimToken(target) {
		log.Info("Skipping token with an entry already in flight")
		return
	}
	defer e.releaseToken(target)

	// At most one open position per token. The in-flight claim covers
	// concurrent workers; the store is the durable ground truth, so a
	// restart cannot double-enter either.
	if open, err := e.hasOpenPosition(ctx, target); err != nil {
		log.Warn("Open-position check failed, dropping candidate", zap.Error(err))
		return
	} else if open {
		log.Info("Skipping token with an open position")
		return
	}

	// Gate 1: verification. An oracle failure counts as not verified.
	verified, err := e.verifier.IsVerified(ctx, target)
	if err != nil {
		log.Warn("Verification lookup failed, treating as unverified", zap.Error(err))
		return
	}
	if !verified {
		log.Info("Skipping unverified token")
		return
	}

	// Gate 2: liquidity, inclusive thresholds on both sides.
	reserves, err := e.chain.GetReserves(ctx, candidate.PairAddress)
	if err != nil {
		log.Warn("Reserve fetch failed, dropping candidate", zap.Error(err))
		return
	}
	baseReserve, tokenReserve := reserves.Orient(e.cfg.BaseAsset)
	if baseReserve.Cmp(e.cfg.EthThreshold) < 0 || tokenReserve.Cmp(e.cfg.TokenThreshold) < 0 {
		log.Info("Skipping pair below liquidity thresholds",
			zap.String("base_reserve", baseReserve.String()),
			zap.String("token_reserve", tokenReserve.String()))
		return
	}

	e.enter(ctx, target, log)
}

func (e *Evaluator) claimToken(token common.Address) bool {
	e.tokenMu.Lock()
	defer e.tokenMu.Unlock()
	if _, busy := e.tokenInFlight[token]; busy {
		return false
	}
	e.tokenInFlight[token] = struct{}{}
	return true
}

func (e *Evaluator) releaseToken(token common.Address) {
	e.tokenMu.Lock()
	defer e.tokenMu.Unlock()
	delete(e.tokenInFlight, token)
}

func (e *Evaluator) hasOpenPosition(ctx context.Context, token common.Address) (bool, error) {
	positions, err := e.store.List(ctx)
	if err != nil {
		return false, err
	}
	for _, position := range positions {
		if common.HexToAddress(position.TokenAddress) == token {
			return true, nil
		}
	}
	return false, nil
}

// enter executes approval + swap and records the position once the
// swap confirms. A confirmed approval followed by a failed swap is an
// accepted leftover: approvals are reusable, nothing is rolled back.
func (e *Evaluator) enter(ctx context.Context, token common.Address, log *zap.Logger) {
	gasPrice, err := e.chain.PremiumGasPrice(ctx)
	if err != nil {
		log.Warn("Gas price fetch failed, aborting entry", zap.Error(err))
		return
	}
	deadline := time.Now().Add(entryDeadline)

	var expectedOut *big.Int
	if e.cfg.Slippage.NeedsQuote() {
		expectedOut, err = e.chain.QuoteOut(ctx, e.cfg.SnipeAmount, []common.Address{e.cfg.BaseAsset, token})
		if err != nil {
			log.Warn("Entry quote failed, aborting entry", zap.Error(err))
			return
		}
	}
	amountOutMin := e.cfg.Slippage.MinAmountOut(expectedOut)

	approveTx, err := e.chain.Approve(ctx, token, maxApproval, gasPrice)
	if err != nil {
		log.Warn("Approval submission failed, aborting entry", zap.Error(err))
		return
	}
	if err := e.chain.WaitConfirmed(ctx, approveTx); err != nil {
		log.Warn("Approval not confirmed, aborting entry",
			zap.String("tx", approveTx.Hex()), zap.Error(err))
		return
	}

	swapTx, err := e.chain.SwapBaseForToken(ctx, token, e.cfg.SnipeAmount, amountOutMin, deadline, gasPrice)
	if err != nil {
		log.Warn("Swap submission failed, aborting entry", zap.Error(err))
		return
	}
	if err := e.chain.WaitConfirmed(ctx, swapTx); err != nil {
		log.Warn("Swap not confirmed, no position recorded",
			zap.String("tx", swapTx.Hex()), zap.Error(err))
		return
	}

	position := &store.Position{
		TokenAddress: token.Hex(),
		AmountIn:     e.cfg.SnipeAmount.String(),
		EntryTxHash:  swapTx.Hex(),
		OpenedAt:     time.Now().UTC(),
	}
	if err := e.store.Insert(ctx, position); err != nil {
		// The swap is on-chain but the row is not: the position is
		// real capital the manager cannot see. Loud log, operator
		// reconciles by hand.
		log.Error("Swap confirmed but position insert failed",
			zap.String("tx", swapTx.Hex()), zap.Error(err))
		return
	}

	log.Info("Position opened",
		zap.Uint("position_id", position.ID),
		zap.String("amount_in", position.AmountIn),
		zap.String("tx", swapTx.Hex()))
}
