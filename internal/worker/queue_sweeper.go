package worker

import (
	"context"
	"database/sql"
	"log"
	"time"
)

const (
	// DefaultSweepInterval is how often the transition queue is swept.
	DefaultSweepInterval = 2 * time.Minute

	// DefaultStaleAge is how long a row may sit in dispatching before the
	// consumer that claimed it is presumed dead.
	DefaultStaleAge = 5 * time.Minute

	// DefaultRetention is how long dispatched rows are kept for auditing.
	DefaultRetention = 7 * 24 * time.Hour
)

// QueueSweeper keeps the transition queue healthy: rows stuck in
// dispatching are returned to pending, and old dispatched rows are purged.
type QueueSweeper struct {
	db        *sql.DB
	interval  time.Duration
	staleAge  time.Duration
	retention time.Duration
}

// NewQueueSweeper creates a sweeper with default timings.
func NewQueueSweeper(db *sql.DB) *QueueSweeper {
	return &QueueSweeper{
		db:        db,
		interval:  DefaultSweepInterval,
		staleAge:  DefaultStaleAge,
		retention: DefaultRetention,
	}
}

// Start begins the sweep loop. It blocks until ctx is cancelled.
func (qs *QueueSweeper) Start(ctx context.Context) {
	log.Printf("[QueueSweeper] Starting (interval=%s, stale_age=%s, retention=%s)",
		qs.interval, qs.staleAge, qs.retention)

	ticker := time.NewTicker(qs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[QueueSweeper] Stopping")
			return
		case <-ticker.C:
			qs.sweep(ctx)
		}
	}
}

// sweep runs one pass of both maintenance queries.
func (qs *QueueSweeper) sweep(ctx context.Context) {
	requeued, err := qs.requeueStale(ctx)
	if err != nil {
		log.Printf("[QueueSweeper] Requeue failed: %v", err)
	} else if requeued > 0 {
		log.Printf("[QueueSweeper] Requeued %d stuck transitions", requeued)
	}

	purged, err := qs.purgeOld(ctx)
	if err != nil {
		log.Printf("[QueueSweeper] Purge failed: %v", err)
	} else if purged > 0 {
		log.Printf("[QueueSweeper] Purged %d dispatched transitions", purged)
	}
}

// requeueStale returns transitions claimed by a dead consumer to pending.
func (qs *QueueSweeper) requeueStale(ctx context.Context) (int64, error) {
	res, err := qs.db.ExecContext(ctx, `
		UPDATE transition_queue
		SET status = 'pending'
		WHERE status = 'dispatching' AND created_at < NOW() - make_interval(secs => $1)`,
		qs.staleAge.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// purgeOld deletes dispatched rows past the retention window.
func (qs *QueueSweeper) purgeOld(ctx context.Context) (int64, error) {
	res, err := qs.db.ExecContext(ctx, `
		DELETE FROM transition_queue
		WHERE status = 'dispatched' AND created_at < NOW() - make_interval(secs => $1)`,
		qs.retention.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
