// internal/monitor/manager.go
package monitor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmelnik/pairsniper/internal/logger"
	"github.com/dmelnik/pairsniper/internal/store"
)

const (
	// One whole token unit (18 decimals) used as the repricing probe.
	oneTokenUnit = int64(1e18)

	exitDeadline = 20 * time.Minute

	// Bound on concurrently evaluated positions per cycle.
	maxConcurrentEvaluations = 8
)

// Chain is the slice of the node boundary the manager needs.
type Chain interface {
	QuoteOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
	PremiumGasPrice(ctx context.Context) (*big.Int, error)
	SwapTokenForBase(ctx context.Context, token common.Address, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error)
	WaitConfirmed(ctx context.Context, txHash common.Hash) error
}

type Config struct {
	BaseAsset     common.Address
	StopLossPct   float64
	TakeProfitPct float64
	AmountOutMin  *big.Int
	Interval      time.Duration
}

// Manager reprices every open position on a fixed interval and closes
// those crossing an exit threshold. Positions are evaluated
// concurrently and independently; a position with an exit transaction
// in flight is excluded from later cycles until it resolves.
type Manager struct {
	chain  Chain
	store  store.Store
	cfg    Config
	logger *zap.Logger

	inFlightMu sync.Mutex
	inFlight   map[uint]struct{}
}

func New(c Chain, positions store.Store, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		chain:    c,
		store:    positions,
		cfg:      cfg,
		logger:   logger.Named("monitor"),
		inFlight: make(map[uint]struct{}),
	}
}

// Run drives management cycles until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every open position once. Store and per-position
// failures are logged and retried on the next cycle, never fatal.
func (m *Manager) RunCycle(ctx context.Context) {
	positions, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("Position list failed, retrying next cycle", zap.Error(err))
		return
	}
	if len(positions) == 0 {
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEvaluations)
	for _, position := range positions {
		position := position
		g.Go(func() error {
			// Failures are per-position and already logged; returning
			// them would cancel the sibling evaluations.
			m.evaluate(gCtx, position)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) evaluate(ctx context.Context, position *store.Position) {
	if !m.markInFlight(position.ID) {
		return
	}
	defer m.clearInFlight(position.ID)

	log := logger.Operation(m.logger, "position_review").With(
		zap.Uint("position_id", position.ID),
		zap.String("token", position.TokenAddress))

	amountIn, ok := new(big.Int).SetString(position.AmountIn, 10)
	if !ok {
		log.Error("Unparseable amount_in, manual intervention required",
			zap.String("amount_in", position.AmountIn))
		return
	}

	token := common.HexToAddress(position.TokenAddress)
	quote, err := m.chain.QuoteOut(ctx, big.NewInt(oneTokenUnit), []common.Address{token, m.cfg.BaseAsset})
	if err != nil {
		log.Warn("Quote failed, skipping this cycle", zap.Error(err))
		return
	}

	stopLoss, takeProfit := exitThresholds(amountIn, m.cfg.StopLossPct, m.cfg.TakeProfitPct)
	if quote.Cmp(stopLoss) > 0 && quote.Cmp(takeProfit) < 0 {
		log.Debug("Position within exit band",
			zap.String("quote", quote.String()),
			zap.String("stop_loss", stopLoss.String()),
			zap.String("take_profit", takeProfit.String()))
		return
	}

	reason := "take_profit"
	if quote.Cmp(stopLoss) <= 0 {
		reason = "stop_loss"
	}
	m.exit(ctx, position, token, reason, log)
}

// exit sells the full position back to the base asset and deletes the
// row once the sell confirms. A failed sell leaves the row for the
// next cycle; there is no permanent failure state.
func (m *Manager) exit(ctx context.Context, position *store.Position, token common.Address, reason string, log *zap.Logger) {
	log.Info("Exit threshold crossed", zap.String("reason", reason))

	gasPrice, err := m.chain.PremiumGasPrice(ctx)
	if err != nil {
		log.Warn("Gas price fetch failed, retrying next cycle", zap.Error(err))
		return
	}

	sellTx, err := m.chain.SwapTokenForBase(ctx, token, m.cfg.AmountOutMin, time.Now().Add(exitDeadline), gasPrice)
	if err != nil {
		log.Warn("Sell submission failed, retrying next cycle", zap.Error(err))
		return
	}
	if err := m.chain.WaitConfirmed(ctx, sellTx); err != nil {
		log.Warn("Sell not confirmed, retrying next cycle",
			zap.String("tx", sellTx.Hex()), zap.Error(err))
		return
	}

	if err := m.store.Delete(ctx, position.ID); err != nil {
		// Sold but still listed: the next cycle's sell finds a zero
		// balance and fails, so the row survives until the operator
		// or a successful delete clears it.
		log.Error("Sell confirmed but position delete failed", zap.Error(err))
		return
	}

	log.Info("Position closed",
		zap.String("reason", reason),
		zap.String("tx", sellTx.Hex()))
}

func (m *Manager) markInFlight(id uint) bool {
	m.inFlightMu.Lock()
	defer m.inFlightMu.Unlock()
	if _, busy := m.inFlight[id]; busy {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) clearInFlight(id uint) {
	m.inFlightMu.Lock()
	defer m.inFlightMu.Unlock()
	delete(m.inFlight, id)
}

// exitThresholds derives both exit bounds from the position's entry
// amount. The comparison basis is the entry amount, not an entry
// price; the original system behaved this way and positions carry no
// fill data to reconstruct a price from.
func exitThresholds(amountIn *big.Int, stopLossPct, takeProfitPct float64) (stopLoss, takeProfit *big.Int) {
	stopLoss = applyPct(amountIn, 100-stopLossPct)
	takeProfit = applyPct(amountIn, 100+takeProfitPct)
	return stopLoss, takeProfit
}

// applyPct computes amount * pct / 100 in basis points so the math
// stays integral.
func applyPct(amount *big.Int, pct float64) *big.Int {
	bps := int64(pct * 100)
	result := new(big.Int).Mul(amount, big.NewInt(bps))
	return result.Div(result, big.NewInt(10_000))
}
