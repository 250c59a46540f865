package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/reachforge/lead-engine/internal/loop"
)

// DefaultLoopInterval is how often eligible escalation states are advanced.
// The per-lead pacing between cadence steps comes from the engine's step
// delay, not this tick.
const DefaultLoopInterval = 15 * time.Minute

// LoopWorker periodically advances every eligible escalation state, one
// campaign at a time.
type LoopWorker struct {
	db       *sql.DB
	engine   *loop.Engine
	interval time.Duration
}

// NewLoopWorker creates the worker. A zero interval gets the default.
func NewLoopWorker(db *sql.DB, engine *loop.Engine, interval time.Duration) *LoopWorker {
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	return &LoopWorker{db: db, engine: engine, interval: interval}
}

// Start begins the advance loop. It blocks until ctx is cancelled.
func (lw *LoopWorker) Start(ctx context.Context) {
	log.Printf("[LoopWorker] Starting (interval=%s)", lw.interval)

	ticker := time.NewTicker(lw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LoopWorker] Stopping")
			return
		case <-ticker.C:
			lw.runPass(ctx)
		}
	}
}

func (lw *LoopWorker) runPass(ctx context.Context) {
	campaigns, err := lw.activeCampaigns(ctx)
	if err != nil {
		log.Printf("[LoopWorker] Failed to list campaigns: %v", err)
		return
	}

	for _, campaignID := range campaigns {
		results, err := lw.engine.ProcessBatch(ctx, campaignID)
		if err != nil {
			log.Printf("[LoopWorker] Batch failed for campaign %s: %v", campaignID, err)
			continue
		}

		sent, failed := 0, 0
		for _, r := range results {
			switch r.Status {
			case loop.ResultSent:
				sent++
			case loop.ResultTransportFailed, loop.ResultError:
				failed++
			}
		}
		if sent > 0 || failed > 0 {
			log.Printf("[LoopWorker] Campaign %s: %d advanced, %d failed of %d eligible",
				campaignID, sent, failed, len(results))
		}
	}
}

func (lw *LoopWorker) activeCampaigns(ctx context.Context) ([]string, error) {
	rows, err := lw.db.QueryContext(ctx, `
		SELECT DISTINCT campaign_id FROM escalation_states
		WHERE is_completed = false AND is_paused = false
		ORDER BY campaign_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, id)
	}
	return campaigns, rows.Err()
}
