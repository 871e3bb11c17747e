package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/services"
)

// Syncer pulls upstream into the local store.
type Syncer interface {
	Sync(ctx context.Context, requestID uuid.UUID) (services.SyncResult, error)
	Run(ctx context.Context) error
}

// RequestConsumer delivers refresh requests until ctx is done.
type RequestConsumer interface {
	ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *amqp.RefreshRequest) error) error
}

// RefreshWorker runs the periodic sync and answers refresh requests.
type RefreshWorker struct {
	syncer   Syncer
	consumer RequestConsumer

	mu            sync.Mutex
	lastSyncStart time.Time
	now           func() time.Time
}

// NewRefreshWorker creates a worker. consumer may be nil, leaving only the
// periodic sync.
func NewRefreshWorker(syncer Syncer, consumer RequestConsumer) *RefreshWorker {
	return &RefreshWorker{
		syncer:   syncer,
		consumer: consumer,
		now:      time.Now,
	}
}

// HandleRefreshRequest syncs for one request. A request issued before the
// start of the last successful sync is already satisfied and skipped, so a
// burst of requests costs one upstream pull.
func (w *RefreshWorker) HandleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequest) error {
	w.mu.Lock()
	last := w.lastSyncStart
	w.mu.Unlock()
	if !last.IsZero() && msg.Timestamp.Before(last) {
		slog.InfoContext(ctx, "Refresh request already satisfied",
			"message_id", msg.ID,
			"reason", msg.Reason)
		return nil
	}

	started := w.now()
	res, err := w.syncer.Sync(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", msg.ID, err)
	}

	w.mu.Lock()
	if started.After(w.lastSyncStart) {
		w.lastSyncStart = started
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Refresh request handled",
		"message_id", msg.ID,
		"reason", msg.Reason,
		"snapshot_version", res.Version,
		"changed", res.Changed)
	return nil
}

// Run blocks until ctx is cancelled or a loop fails.
func (w *RefreshWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.syncer.Run(ctx)
	})

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.ConsumeRefreshRequests(ctx, w.HandleRefreshRequest)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
