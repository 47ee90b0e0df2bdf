package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshInterval is how often the snapshot is proactively refetched.
const DefaultRefreshInterval = 5 * time.Minute

// Refresher periodically refreshes the coupon snapshot ahead of its expiry,
// independent of read traffic.
type Refresher struct {
	manager  *CacheManager
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRefresher creates a Refresher. A zero interval selects DefaultRefreshInterval.
func NewRefresher(manager *CacheManager, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		manager:  manager,
		interval: interval,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// Start launches the background loop. It warms the cache immediately, then ticks.
// Calling Start on a running Refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(ctx, r.done)
	r.logger.Info("coupon cache refresher started", zap.Duration("interval", r.interval))
}

// Stop cancels the loop and waits for the in-flight refresh to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("coupon cache refresher stopped")
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	set, err := r.manager.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("scheduled coupon refresh failed", zap.Error(err))
		}
		return
	}
	r.logger.Debug("scheduled coupon refresh done",
		zap.Int("count", set.Len()),
		zap.Duration("took", time.Since(start)),
	)
}
