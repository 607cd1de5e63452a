// Package recycler removes expired blobs in the background.
//
// Pinned blobs carry recycle_time = 0 and are never collected; every
// other blob expires once its recycle_time passes. Each sweep runs in
// one store transaction, and the Delete event for the removed rows is
// published only after that transaction commits.
package recycler

import (
	"context"
	"time"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/metrics"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/store"
)

// Recycler periodically deletes blobs whose recycle_time has passed.
type Recycler struct {
	store    *store.Store
	bus      *events.Bus
	register *revision.Register
	interval time.Duration

	stopped chan struct{}
}

// New creates a recycler sweeping at the given interval.
func New(s *store.Store, bus *events.Bus, register *revision.Register, interval time.Duration) *Recycler {
	return &Recycler{
		store:    s,
		bus:      bus,
		register: register,
		interval: interval,
		stopped:  make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled. Sweep errors are
// logged and the loop keeps running.
func (r *Recycler) Start(ctx context.Context) {
	go func() {
		defer close(r.stopped)

		logger.Info("recycler started", "interval", r.interval)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("recycler stopped")
				return
			case <-ticker.C:
				if err := r.Sweep(ctx); err != nil {
					logger.Error("recycle sweep failed", "error", err)
				}
			}
		}
	}()
}

// Done is closed once the sweep loop has exited.
func (r *Recycler) Done() <-chan struct{} {
	return r.stopped
}

// Sweep deletes every expired blob in one transaction.
func (r *Recycler) Sweep(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRecycleSweep)
	defer span.End()

	now := time.Now().Unix()

	err := r.store.Transaction(ctx, func(tx *store.Tx) error {
		expired, err := tx.GetMetadatas(models.MetadataQuery{RecycleBefore: now})
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]int64, len(expired))
		for i, meta := range expired {
			ids[i] = meta.ID
		}
		count, err := tx.DeleteBlobs(ids)
		if err != nil {
			return err
		}
		span.SetAttributes(telemetry.StoreRows(count))

		tx.OnCommit(func() {
			logger.Info("recycled expired blobs", "count", count)
			r.register.Grow()
			r.bus.Publish(models.Event{Type: models.EventDelete, Items: expired})
			metrics.AddRecycledBlobs(count)
		})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}
