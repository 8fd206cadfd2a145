// Package watcher follows the chain head and announces new blocks.
//
// It never refreshes the dashboard itself; clients decide whether a new
// block is worth a manual refresh.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/txsentinel/internal/metrics"
)

// HeadReader reads the latest block number.
type HeadReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// BlockFunc is called once per observed head advance, from the poll goroutine.
type BlockFunc func(number uint64)

// Config for the head watcher
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{PollInterval: 12 * time.Second}
}

// Watcher polls the chain head
type Watcher struct {
	head     HeadReader
	config   Config
	onBlock  BlockFunc
	logger   *slog.Logger
	failures atomic.Int64

	lastBlock atomic.Uint64

	// Shutdown
	stop chan struct{}
	done chan struct{}
}

// New creates a new head watcher
func New(cfg Config, head HeadReader, onBlock BlockFunc, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Watcher{
		head:    head,
		config:  cfg,
		onBlock: onBlock,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start records the current head and begins polling. An unreachable node
// is logged, not fatal; polling starts anyway.
func (w *Watcher) Start(ctx context.Context) {
	if block, err := w.head.LatestBlockNumber(ctx); err != nil {
		w.logger.Warn("head watcher: initial block number unavailable", "error", err)
	} else {
		w.lastBlock.Store(block)
		metrics.ChainHeadBlock.Set(float64(block))
	}

	w.logger.Info("head watcher started",
		"interval", w.config.PollInterval,
		"startBlock", w.lastBlock.Load(),
	)

	go w.pollLoop(ctx)
}

// Stop stops the watcher and waits for the poll loop to exit
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

// LastBlock returns the highest block observed, or 0 before the first read.
func (w *Watcher) LastBlock() uint64 {
	return w.lastBlock.Load()
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.check(ctx); err != nil {
				// One line per outage, not per tick.
				if w.failures.Add(1) == 1 {
					w.logger.Error("head check failed", "error", err)
				}
				continue
			}
			if n := w.failures.Swap(0); n > 0 {
				w.logger.Info("head check recovered", "failedPolls", n)
			}
		}
	}
}

func (w *Watcher) check(ctx context.Context) error {
	current, err := w.head.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	// Nothing new, or a node behind the one we saw before
	if current <= w.lastBlock.Load() {
		return nil
	}

	w.lastBlock.Store(current)
	metrics.ChainHeadBlock.Set(float64(current))
	w.logger.Debug("new block", "number", current)
	if w.onBlock != nil {
		w.onBlock(current)
	}
	return nil
}
