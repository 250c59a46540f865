// Package worker holds the background loops run by cmd/worker: periodic
// scheduler passes, escalation batch advances, and transition queue upkeep.
package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/scheduler"
)

// DefaultSchedulerInterval is how often stage rules are evaluated.
const DefaultSchedulerInterval = 60 * time.Minute

// SchedulerWorker runs an inactivity scheduler pass for every active team
// on a fixed interval.
type SchedulerWorker struct {
	db       *sql.DB
	sched    *scheduler.Scheduler
	rules    []config.TransitionRule
	interval time.Duration
}

// NewSchedulerWorker creates the worker. A zero interval gets the default.
func NewSchedulerWorker(db *sql.DB, sched *scheduler.Scheduler, rules []config.TransitionRule, interval time.Duration) *SchedulerWorker {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	if len(rules) == 0 {
		rules = config.DefaultTransitionRules()
	}
	return &SchedulerWorker{db: db, sched: sched, rules: rules, interval: interval}
}

// Start begins the pass loop. It blocks until ctx is cancelled. The first
// pass runs immediately rather than waiting a full interval.
func (sw *SchedulerWorker) Start(ctx context.Context) {
	log.Printf("[SchedulerWorker] Starting (interval=%s, rules=%d)", sw.interval, len(sw.rules))

	sw.runPass(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SchedulerWorker] Stopping")
			return
		case <-ticker.C:
			sw.runPass(ctx)
		}
	}
}

// runPass evaluates the rules for each team with leads. One team's failure
// never blocks the remaining teams.
func (sw *SchedulerWorker) runPass(ctx context.Context) {
	teams, err := sw.activeTeams(ctx)
	if err != nil {
		log.Printf("[SchedulerWorker] Failed to list teams: %v", err)
		return
	}

	for _, teamID := range teams {
		summary, err := sw.sched.Run(ctx, teamID, sw.rules, false)
		if err != nil {
			log.Printf("[SchedulerWorker] Pass failed for team %s: %v", teamID, err)
			continue
		}
		if summary.Due > 0 {
			log.Printf("[SchedulerWorker] Team %s: %d due, %d moved, %d failed",
				teamID, summary.Due, summary.Moved, summary.Failed)
		}
	}
}

func (sw *SchedulerWorker) activeTeams(ctx context.Context) ([]string, error) {
	rows, err := sw.db.QueryContext(ctx, `SELECT DISTINCT team_id FROM leads ORDER BY team_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		teams = append(teams, id)
	}
	return teams, rows.Err()
}
