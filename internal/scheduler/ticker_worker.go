package scheduler

import (
	"context"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/service"
)

// TickFunc is invoked once per interval with the instant the tick fired at.
type TickFunc func(ctx context.Context, now time.Time) error

// TickerWorker runs a TickFunc on a fixed interval until stopped, logging
// (but not propagating) every tick error so one bad tick never kills the
// loop. PhaseManager, AlertManager, and the export/retention jobs are all
// driven this way rather than each owning their own goroutine.
type TickerWorker struct {
	*service.ServiceBase
	name      string
	interval  time.Duration
	fn        TickFunc
	finalTick bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTickerWorker constructs a TickerWorker with the given service name and
// interval. fn runs once immediately on Start, then every interval.
func NewTickerWorker(name string, interval time.Duration, fn TickFunc, log *logger.Logger) *TickerWorker {
	return &TickerWorker{
		ServiceBase: service.NewServiceBase(name, log),
		name:        name,
		interval:    interval,
		fn:          fn,
		done:        make(chan struct{}),
	}
}

// Name returns the service name.
func (w *TickerWorker) Name() string {
	return w.name
}

// WithFinalTick makes Stop run fn once more, synchronously, using the ctx
// passed to Stop, after the periodic loop has been cancelled. Used for
// workers whose last action should observe state that other services only
// finish writing during their own shutdown (the exporter's final pass over
// events the frame worker just drained).
func (w *TickerWorker) WithFinalTick() *TickerWorker {
	w.finalTick = true
	return w
}

// Start begins the ticker loop in the background.
func (w *TickerWorker) Start(ctx context.Context) error {
	w.GetStatus().SetStatus(service.StatusStarting)
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.run()

	w.GetStatus().SetStatus(service.StatusRunning)
	w.LogInfo("ticker worker started", "interval", w.interval)
	return nil
}

// Stop cancels the ticker loop and waits for the in-flight tick to finish.
func (w *TickerWorker) Stop(ctx context.Context) error {
	w.GetStatus().SetStatus(service.StatusStopping)
	w.cancel()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if w.finalTick {
		if err := w.fn(ctx, time.Now()); err != nil {
			w.LogError("final tick failed", err)
		}
	}

	w.GetStatus().SetStatus(service.StatusStopped)
	w.LogInfo("ticker worker stopped")
	return nil
}

func (w *TickerWorker) run() {
	defer close(w.done)

	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *TickerWorker) tick() {
	now := time.Now()
	if err := w.fn(w.ctx, now); err != nil {
		w.LogError("tick failed", err)
	}
}
