// Package scheduler runs the cron-driven inactivity pass: leads sitting in a
// pipeline stage past that stage's threshold are promoted or demoted through
// an external workflow executor. Stage updates are applied locally only
// after the executor confirms, so a failed call is retried by the next pass
// (at-least-once, never a silent success).
package scheduler

import (
	"context"
	"time"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/pkg/logger"
)

// LeadStore is the slice of the lead repository the scheduler needs.
type LeadStore interface {
	SelectInactive(ctx context.Context, teamID, stage string, cutoff time.Time, limit int) ([]domain.Lead, error)
	UpdateStage(ctx context.Context, teamID, stage string, ids []string) error
	StageDistribution(ctx context.Context, teamID string) (map[string]int, error)
}

// Executor is the external workflow executor that performs the actual
// stage-transition workflows.
type Executor interface {
	RequestTransitions(ctx context.Context, teamID, toStage string, leadIDs []string) error
}

// Group is one batched transition request to a target stage.
type Group struct {
	ToStage string   `json:"to_stage"`
	LeadIDs []string `json:"lead_ids"`
	Applied bool     `json:"applied"`
	Error   string   `json:"error,omitempty"`
}

// Summary reports one scheduler pass.
type Summary struct {
	TeamID            string         `json:"team_id"`
	DryRun            bool           `json:"dry_run"`
	Due               int            `json:"due"`
	Moved             int            `json:"moved"`
	Failed            int            `json:"failed"`
	Groups            []Group        `json:"groups"`
	StageDistribution map[string]int `json:"stage_distribution,omitempty"`
}

// Scheduler scans lead stages against inactivity rules.
type Scheduler struct {
	store    LeadStore
	executor Executor
	limit    int
	now      func() time.Time
}

// New creates a scheduler. limit caps leads considered per rule per pass.
func New(store LeadStore, executor Executor, limit int) *Scheduler {
	if limit <= 0 {
		limit = 100
	}
	return &Scheduler{store: store, executor: executor, limit: limit, now: time.Now}
}

// Run executes one pass for a tenant. With dryRun no executor calls and no
// stage writes happen; the summary reports what would move.
func (s *Scheduler) Run(ctx context.Context, teamID string, rules []config.TransitionRule, dryRun bool) (*Summary, error) {
	if len(rules) == 0 {
		rules = config.DefaultTransitionRules()
	}

	// Collect due leads per rule, grouped by target stage across rules.
	byTarget := map[string][]string{}
	due := 0
	for _, rule := range rules {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cutoff := s.now().Add(-time.Duration(rule.InactivityDays) * 24 * time.Hour)
		leads, err := s.store.SelectInactive(ctx, teamID, rule.FromStage, cutoff, s.limit)
		if err != nil {
			return nil, err
		}
		for _, l := range leads {
			byTarget[rule.ToStage] = append(byTarget[rule.ToStage], l.ID)
			due++
		}
	}

	summary := &Summary{TeamID: teamID, DryRun: dryRun, Due: due}
	for toStage, ids := range byTarget {
		group := Group{ToStage: toStage, LeadIDs: ids}
		if dryRun {
			summary.Groups = append(summary.Groups, group)
			continue
		}

		// One downstream request per target-stage group.
		if err := s.executor.RequestTransitions(ctx, teamID, toStage, ids); err != nil {
			group.Error = err.Error()
			summary.Failed += len(ids)
			summary.Groups = append(summary.Groups, group)
			logger.Warn("transition request failed; leads left for next pass",
				"team_id", teamID, "to_stage", toStage, "count", len(ids), "error", err.Error())
			continue
		}

		// Local stage update only after the executor confirmed.
		if err := s.store.UpdateStage(ctx, teamID, toStage, ids); err != nil {
			// Executor succeeded but the local write failed: the next pass
			// re-selects the same leads and the executor must tolerate the
			// repeat (at-least-once).
			group.Error = err.Error()
			summary.Failed += len(ids)
			summary.Groups = append(summary.Groups, group)
			logger.Error("local stage update failed after executor success",
				"team_id", teamID, "to_stage", toStage, "error", err.Error())
			continue
		}

		group.Applied = true
		summary.Moved += len(ids)
		summary.Groups = append(summary.Groups, group)
	}

	logger.Info("scheduler pass finished",
		"team_id", teamID, "due", due, "moved", summary.Moved,
		"failed", summary.Failed, "dry_run", dryRun)
	return summary, nil
}

// Plan is the read-only preview: pending transitions plus the current stage
// distribution, without mutating anything.
func (s *Scheduler) Plan(ctx context.Context, teamID string, rules []config.TransitionRule) (*Summary, error) {
	summary, err := s.Run(ctx, teamID, rules, true)
	if err != nil {
		return nil, err
	}
	dist, err := s.store.StageDistribution(ctx, teamID)
	if err != nil {
		return nil, err
	}
	summary.StageDistribution = dist
	return summary, nil
}
