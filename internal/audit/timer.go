package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// VerifyTimer periodically sweeps the audit chain offline. A broken chain
// flips the healthy flag, which readiness checks surface.
type VerifyTimer struct {
	ledger   *Ledger
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
	healthy  atomic.Bool
}

// NewVerifyTimer creates a chain verification timer.
func NewVerifyTimer(ledger *Ledger, interval time.Duration, logger *slog.Logger) *VerifyTimer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := &VerifyTimer{
		ledger:   ledger,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	t.healthy.Store(true)
	return t
}

// Running reports whether the timer loop is actively running.
func (t *VerifyTimer) Running() bool {
	return t.running.Load()
}

// Healthy reports whether the last sweep found an intact chain.
func (t *VerifyTimer) Healthy() bool {
	return t.healthy.Load()
}

// Start begins the periodic verification loop. Call in a goroutine.
func (t *VerifyTimer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *VerifyTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *VerifyTimer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in chain verification timer", "panic", fmt.Sprint(r))
		}
	}()

	result, err := t.ledger.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.logger.Warn("chain verification sweep failed", "error", err)
		return
	}
	if !result.Valid {
		t.healthy.Store(false)
		t.logger.Error("audit chain verification failed",
			"broken_at", result.BrokenAt, "from", result.From, "to", result.To)
		return
	}
	t.healthy.Store(true)
	t.logger.Debug("audit chain verified", "checked", result.Checked, "to", result.To)
}
