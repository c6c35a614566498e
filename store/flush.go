package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/itizir/emotepoll/metrics"
	"github.com/itizir/emotepoll/registry"
)

// Snapshotter is the part of the registry the flusher needs.
type Snapshotter interface {
	State() registry.State
}

// Flusher periodically writes the registry to the store.
type Flusher struct {
	store    *Store
	reg      Snapshotter
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
}

func NewFlusher(store *Store, reg Snapshotter, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Flusher {
	return &Flusher{store: store, reg: reg, clock: clock, interval: interval, logger: logger}
}

func (f *Flusher) Flush(ctx context.Context) error {
	st := f.reg.State()
	if err := f.store.Save(ctx, st); err != nil {
		metrics.FlushTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.FlushTotal.WithLabelValues("ok").Inc()
	f.logger.DebugContext(ctx, "registry flushed", "candidates", len(st.Candidates))
	return nil
}

// Run flushes every interval until ctx is done, then flushes one last time.
func (f *Flusher) Run(ctx context.Context) {
	if f.interval > 0 {
		ticker := f.clock.NewTicker(f.interval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.Chan():
				if err := f.Flush(ctx); err != nil {
					f.logger.ErrorContext(ctx, "periodic flush failed", "error", err)
				}
			}
		}
	} else {
		<-ctx.Done()
	}

	if err := f.Flush(context.WithoutCancel(ctx)); err != nil {
		f.logger.ErrorContext(ctx, "final flush failed", "error", err)
	}
}
