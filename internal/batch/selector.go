// Package batch selects the bounded daily "next best" slice of untouched
// leads for a tenant and tracks progress toward the stabilization target.
// Preview never mutates; only Commit stamps queue tags, under a per-tenant
// lock so two overlapping selections cannot double-queue a lead.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/pkg/distlock"
	"github.com/reachforge/lead-engine/internal/pkg/logger"
)

// Sentinel errors.
var (
	ErrNoLeads    = errors.New("no unprocessed leads available")
	ErrLockBusy   = errors.New("another batch operation holds the tenant lock")
	ErrEmptyBatch = errors.New("empty lead id list")
)

// LeadStore is the slice of the lead repository the selector needs.
type LeadStore interface {
	SelectUntouched(ctx context.Context, teamID string, limit int, industries []string) ([]domain.Lead, error)
	TagQueued(ctx context.Context, teamID, id, cycleTag string) (bool, error)
	CountQueued(ctx context.Context, teamID string) (int, error)
}

// Selector implements batch preview/commit.
type Selector struct {
	store LeadStore
	rdb   *redis.Client
	db    *sql.DB
	cfg   config.EngineConfig
}

// NewSelector creates a batch selector. rdb may be nil; locking then falls
// back to PG advisory locks and usage counters to the queue-tag count.
func NewSelector(store LeadStore, rdb *redis.Client, db *sql.DB, cfg config.EngineConfig) *Selector {
	return &Selector{store: store, rdb: rdb, db: db, cfg: cfg}
}

// Preview is the read-only selection: progress plus the ranked top slice.
type Preview struct {
	Leads        []domain.Lead  `json:"leads"`
	Tiers        map[string]int `json:"tiers"`
	AverageScore float64        `json:"average_score"`
	Progress     domain.Progress `json:"progress"`
}

// Preview returns up to min(limit, dailyMax) rankable leads with a tier
// breakdown and stabilization progress. No side effects; safe to retry.
func (s *Selector) Preview(ctx context.Context, teamID string, limit int, industries []string) (*Preview, error) {
	if limit <= 0 || limit > s.cfg.DailyBatchMax {
		limit = s.cfg.DailyBatchMax
	}

	progress, err := s.ProgressFor(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if progress.Complete {
		return &Preview{Tiers: map[string]int{}, Progress: *progress}, nil
	}

	leads, err := s.store.SelectUntouched(ctx, teamID, limit, industries)
	if err != nil {
		return nil, err
	}

	tiers, avg := summarize(leads)
	return &Preview{Leads: leads, Tiers: tiers, AverageScore: avg, Progress: *progress}, nil
}

// Commit stamps the cycle tag on the exact lead list a preview returned.
// Tagging is conditional per lead: a lead queued by any cycle, including a
// retried commit of this one, is skipped, never re-queued and never an
// error. Serialized per tenant. The batch summary covers the leads that
// were actually tagged.
func (s *Selector) Commit(ctx context.Context, teamID, campaignID string, leads []domain.Lead) (*domain.Batch, error) {
	if len(leads) == 0 {
		return nil, ErrEmptyBatch
	}

	lock := distlock.NewLock(s.rdb, s.db, "batch:commit:"+teamID, 30*time.Second)
	ok, err := distlock.AcquireWait(ctx, lock, 200*time.Millisecond, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("acquire commit lock: %w", err)
	}
	if !ok {
		return nil, ErrLockBusy
	}
	defer lock.Release(ctx)

	progress, err := s.ProgressFor(ctx, teamID)
	if err != nil {
		return nil, err
	}
	day := progress.Day + 1
	cycleTag := fmt.Sprintf("cycle%d-%s", day, campaignID)

	tagged := make([]domain.Lead, 0, len(leads))
	skipped := 0
	for _, l := range leads {
		applied, err := s.store.TagQueued(ctx, teamID, l.ID, cycleTag)
		if err != nil {
			// Each lead's tag write is independent; a failed write is retried
			// by a later commit of the same list.
			logger.Warn("tag queued failed", "team_id", teamID, "lead_id", l.ID, "error", err.Error())
			continue
		}
		if applied {
			tagged = append(tagged, l)
		} else {
			skipped++
		}
	}

	if len(tagged) > 0 {
		s.recordUsage(ctx, teamID, len(tagged))
	}

	logger.Info("batch committed",
		"team_id", teamID, "campaign_id", campaignID, "cycle_tag", cycleTag,
		"tagged", len(tagged), "skipped", skipped)

	tiers, avg := summarize(tagged)
	return &domain.Batch{
		CycleTag:     cycleTag,
		TeamID:       teamID,
		CampaignID:   campaignID,
		Day:          day,
		Size:         len(tagged),
		Skipped:      skipped,
		Tiers:        tiers,
		AverageScore: avg,
		CommittedAt:  time.Now().UTC(),
	}, nil
}

// ProgressFor derives stabilization progress from the durable queue-tag
// count: day = ceil(cumulative / dailyBatchSize).
func (s *Selector) ProgressFor(ctx context.Context, teamID string) (*domain.Progress, error) {
	cumulative, err := s.store.CountQueued(ctx, teamID)
	if err != nil {
		return nil, err
	}
	target := s.cfg.StabilizationTarget
	day := int(math.Ceil(float64(cumulative) / float64(s.cfg.DailyBatchMax)))
	pct := float64(cumulative) / float64(target) * 100
	if pct > 100 {
		pct = 100
	}
	return &domain.Progress{
		Day:             day,
		Cumulative:      cumulative,
		Target:          target,
		PercentComplete: pct,
		Complete:        cumulative >= target,
	}, nil
}

// DailyUsage reports how many leads this team committed today. Backed by a
// Redis counter so multi-instance deployments share one number; without
// Redis it reports zero and the durable queue-tag count remains the source
// of truth for progress.
func (s *Selector) DailyUsage(ctx context.Context, teamID string) int {
	if s.rdb == nil {
		return 0
	}
	n, err := s.rdb.Get(ctx, usageKey(teamID, time.Now().UTC())).Int()
	if err != nil {
		return 0
	}
	return n
}

func (s *Selector) recordUsage(ctx context.Context, teamID string, n int) {
	if s.rdb == nil {
		return
	}
	key := usageKey(teamID, time.Now().UTC())
	pipe := s.rdb.Pipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("daily usage counter update failed", "team_id", teamID, "error", err.Error())
	}
}

func usageKey(teamID string, day time.Time) string {
	return fmt.Sprintf("batch:usage:%s:%s", teamID, day.Format("2006-01-02"))
}

func summarize(leads []domain.Lead) (map[string]int, float64) {
	tiers := map[string]int{
		domain.TierHot: 0, domain.TierWarm: 0,
		domain.TierLukewarm: 0, domain.TierCold: 0,
	}
	if len(leads) == 0 {
		return tiers, 0
	}
	sum := 0
	for _, l := range leads {
		tiers[domain.TierFor(l.Score)]++
		sum += l.Score
	}
	return tiers, math.Round(float64(sum)/float64(len(leads))*10) / 10
}
