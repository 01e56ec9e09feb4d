// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmelnik/pairsniper/internal/chain"
	"github.com/dmelnik/pairsniper/internal/config"
	"github.com/dmelnik/pairsniper/internal/monitor"
	"github.com/dmelnik/pairsniper/internal/sniper"
	"github.com/dmelnik/pairsniper/internal/store"
	"github.com/dmelnik/pairsniper/internal/subscriber"
	"github.com/dmelnik/pairsniper/internal/verify"
)

// Runner wires the engine together and owns its lifecycle. Only
// construction failures are fatal; once running, every component
// recovers or retries on its own.
type Runner struct {
	logger      *zap.Logger
	cfg         *config.Config
	positions   store.Store
	chainClient *chain.Client
	subscriber  *subscriber.Subscriber
	evaluator   *sniper.Evaluator
	manager     *monitor.Manager
	shutdownCh  chan os.Signal
}

func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	// The store comes first: trading without capital-at-risk tracking
	// is not an option.
	positions, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open position store: %w", err)
	}

	chainClient, err := chain.NewClient(ctx, chain.ClientConfig{
		NodeURL:    cfg.NodeURL,
		ChainID:    cfg.ChainID,
		Factory:    cfg.Factory(),
		Router:     cfg.Router(),
		Base:       cfg.Base(),
		PrivateKey: cfg.PrivateKey,
	}, logger)
	if err != nil {
		positions.Close()
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	oracle := verify.NewHTTPOracle(cfg.OracleURL, cfg.OracleAPIKey)
	cache := verify.NewCache(oracle, logger)

	sub := subscriber.New(chainClient, subscriber.Config{
		HeartbeatInterval: cfg.Heartbeat(),
		WatchdogInterval:  cfg.Watchdog(),
		BackfillInterval:  cfg.Backfill(),
		BackfillWindow:    cfg.BackfillWindow,
	}, logger)

	evaluator := sniper.New(chainClient, cache, positions, sniper.Config{
		BaseAsset:      cfg.Base(),
		EthThreshold:   cfg.EthThreshold(),
		TokenThreshold: cfg.TokenThreshold(),
		SnipeAmount:    cfg.SnipeAmount(),
		Slippage:       cfg.Slippage(),
		Workers:        cfg.Workers,
	}, logger)

	manager := monitor.New(chainClient, positions, monitor.Config{
		BaseAsset:     cfg.Base(),
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
		AmountOutMin:  cfg.AmountOutMin(),
		Interval:      cfg.Manage(),
	}, logger)

	return &Runner{
		logger:      logger,
		cfg:         cfg,
		positions:   positions,
		chainClient: chainClient,
		subscriber:  sub,
		evaluator:   evaluator,
		manager:     manager,
		shutdownCh:  make(chan os.Signal, 1),
	}, nil
}

func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("📡 Signal received: " + sig.String())
		cancel()
	}()

	r.logger.Info("🚀 Sniper live",
		zap.String("wallet", r.chainClient.From().Hex()),
		zap.String("factory", r.cfg.FactoryAddress),
		zap.String("base_asset", r.cfg.BaseAsset),
		zap.String("snipe_amount_wei", r.cfg.SnipeAmountWei),
		zap.Float64("stop_loss_pct", r.cfg.StopLossPct),
		zap.Float64("take_profit_pct", r.cfg.TakeProfitPct))

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return r.subscriber.Run(gCtx)
	})
	g.Go(func() error {
		// Returns once the subscriber closes the candidate feed.
		r.evaluator.Run(gCtx, r.subscriber.Candidates())
		return nil
	})
	g.Go(func() error {
		return r.manager.Run(gCtx)
	})

	return ignoreCanceled(g.Wait())
}

// ignoreCanceled maps a clean-shutdown cancellation, wrapped or not,
// to a nil error.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) Shutdown() {
	r.logger.Info("👋 Shutting down gracefully")
	r.chainClient.Close()
	if err := r.positions.Close(); err != nil {
		r.logger.Warn("Failed to close position store", zap.Error(err))
	}
}
