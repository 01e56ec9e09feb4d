// internal/subscriber/subscriber.go
package subscriber

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dmelnik/pairsniper/internal/chain"
	"github.com/dmelnik/pairsniper/internal/types"
)

// Chain is the slice of the node boundary the subscriber needs.
type Chain interface {
	SubscribePairCreated(ctx context.Context, sink chan<- chain.PairCreated) (chain.Subscription, error)
	FilterPairCreated(ctx context.Context, fromBlock, toBlock uint64) ([]chain.PairCreated, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// State of the live connection.
type State int32

const (
	Disconnected State = iota
	Subscribing
	Live
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	eventBuffer           = 64
)

type Config struct {
	HeartbeatInterval time.Duration
	WatchdogInterval  time.Duration
	BackfillInterval  time.Duration
	BackfillWindow    uint64 // blocks
}

// Subscriber owns the live pair-creation feed. It reconnects on every
// fault, probes the connection independently of stream errors, and
// periodically backfills a bounded block window so reconnect gaps do
// not lose events. Each pair address is emitted at most once per
// process lifetime, whether it arrived live or via backfill.
type Subscriber struct {
	chain  Chain
	cfg    Config
	logger *zap.Logger

	state atomic.Int32

	// Current connection; swapped atomically under mu on every
	// reconnect so no stale handle leaks out.
	mu     sync.Mutex
	sub    chain.Subscription
	events chan chain.PairCreated

	seenMu sync.Mutex
	seen   map[common.Address]struct{}

	out chan types.PairCandidate
}

func New(c Chain, cfg Config, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		chain:  c,
		cfg:    cfg,
		logger: logger.Named("subscriber"),
		seen:   make(map[common.Address]struct{}),
		out:    make(chan types.PairCandidate, eventBuffer),
	}
}

// Candidates is the subscriber's output feed.
func (s *Subscriber) Candidates() <-chan types.PairCandidate {
	return s.out
}

func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Info("Connection state changed",
			zap.String("from", prev.String()),
			zap.String("to", next.String()))
	}
}

// Run drives the subscriber until ctx is cancelled. Connection faults
// are never fatal; they feed the reconnect loop.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.out)
	defer s.dropConnection()

	watchdog := time.NewTicker(s.cfg.WatchdogInterval)
	defer watchdog.Stop()
	backfill := time.NewTicker(s.cfg.BackfillInterval)
	defer backfill.Stop()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialDelay
	policy.MaxInterval = reconnectMaxDelay

	var heartbeat *time.Ticker

	for {
		if s.State() != Live {
			if err := s.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				delay := policy.NextBackOff()
				s.logger.Warn("Subscribe failed, backing off",
					zap.Duration("retry_in", delay), zap.Error(err))
				if err := s.waitReconnect(ctx, delay, backfill); err != nil {
					return err
				}
				continue
			}
			policy.Reset()
			if heartbeat != nil {
				heartbeat.Stop()
			}
			heartbeat = time.NewTicker(s.cfg.HeartbeatInterval)
		}

		select {
		case <-ctx.Done():
			if heartbeat != nil {
				heartbeat.Stop()
			}
			return ctx.Err()

		case err := <-s.streamErr():
			s.disconnect("stream error", err)

		case event := <-s.currentEvents():
			s.emit(ctx, event, types.SourceLive)

		case <-heartbeat.C:
			if _, err := s.chain.BlockNumber(ctx); err != nil {
				s.disconnect("heartbeat probe failed", err)
			}

		case <-watchdog.C:
			// Independent probe: catches sockets that die without
			// ever raising a stream error.
			if _, err := s.chain.BlockNumber(ctx); err != nil {
				s.disconnect("watchdog probe failed", err)
			}

		case <-backfill.C:
			s.runBackfill(ctx)
		}
	}
}

// waitReconnect sleeps out the backoff delay while still servicing
// backfill ticks, so coverage continues through a sustained outage.
func (s *Subscriber) waitReconnect(ctx context.Context, delay time.Duration, backfill *time.Ticker) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-backfill.C:
			s.runBackfill(ctx)
		}
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	s.setState(Subscribing)

	events := make(chan chain.PairCreated, eventBuffer)
	sub, err := s.chain.SubscribePairCreated(ctx, events)
	if err != nil {
		s.setState(Disconnected)
		return err
	}

	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.sub = sub
	s.events = events
	s.mu.Unlock()

	s.setState(Live)
	return nil
}

func (s *Subscriber) disconnect(reason string, err error) {
	s.logger.Warn("Connection lost", zap.String("reason", reason), zap.Error(err))
	s.dropConnection()
	s.setState(Disconnected)
}

func (s *Subscriber) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
		s.events = nil
	}
}

// streamErr returns the current subscription's error channel, or nil
// (blocking forever in select) when there is no connection.
func (s *Subscriber) streamErr() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Err()
}

func (s *Subscriber) currentEvents() <-chan chain.PairCreated {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// runBackfill scans the trailing block window for pair-creation
// events missed during reconnect gaps. Runs in every connection
// state.
func (s *Subscriber) runBackfill(ctx context.Context) {
	height, err := s.chain.BlockNumber(ctx)
	if err != nil {
		s.logger.Warn("Backfill height probe failed", zap.Error(err))
		return
	}

	from := uint64(0)
	if height > s.cfg.BackfillWindow {
		from = height - s.cfg.BackfillWindow
	}

	events, err := s.chain.FilterPairCreated(ctx, from, height)
	if err != nil {
		s.logger.Warn("Backfill scan failed",
			zap.Uint64("from", from), zap.Uint64("to", height), zap.Error(err))
		return
	}

	forwarded := 0
	for _, event := range events {
		if s.emit(ctx, event, types.SourceBackfill) {
			forwarded++
		}
	}
	if forwarded > 0 {
		s.logger.Info("Backfill recovered events",
			zap.Uint64("from", from), zap.Uint64("to", height),
			zap.Int("forwarded", forwarded))
	}
}

// emit forwards a discovered pair exactly once per process lifetime.
func (s *Subscriber) emit(ctx context.Context, event chain.PairCreated, source types.DiscoverySource) bool {
	s.seenMu.Lock()
	if _, dup := s.seen[event.Pair]; dup {
		s.seenMu.Unlock()
		return false
	}
	s.seen[event.Pair] = struct{}{}
	s.seenMu.Unlock()

	candidate := types.PairCandidate{
		Token0:          event.Token0,
		Token1:          event.Token1,
		PairAddress:     event.Pair,
		DiscoveryHeight: event.BlockNumber,
		Source:          source,
	}

	select {
	case s.out <- candidate:
		s.logger.Info("Pair discovered",
			zap.String("pair", event.Pair.Hex()),
			zap.String("source", string(source)),
			zap.Uint64("height", event.BlockNumber))
		return true
	case <-ctx.Done():
		return false
	}
}
