// Package api exposes the engine over HTTP: the SMS webhook, batch
// selection, escalation loop control, and scheduler endpoints.
package api

import (
	"context"

	"github.com/reachforge/lead-engine/internal/batch"
	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/inbound"
	"github.com/reachforge/lead-engine/internal/loop"
	"github.com/reachforge/lead-engine/internal/scheduler"
)

// BatchSelector is the batch preview/commit surface the handlers need.
type BatchSelector interface {
	Preview(ctx context.Context, teamID string, limit int, industries []string) (*batch.Preview, error)
	Commit(ctx context.Context, teamID, campaignID string, leads []domain.Lead) (*domain.Batch, error)
	ProgressFor(ctx context.Context, teamID string) (*domain.Progress, error)
	DailyUsage(ctx context.Context, teamID string) int
}

// LoopEngine is the escalation loop surface the handlers need.
type LoopEngine interface {
	Start(ctx context.Context, lead *domain.Lead, campaignID string) (loop.AdvanceResult, error)
	Advance(ctx context.Context, leadID, campaignID string) (loop.AdvanceResult, error)
	Pause(ctx context.Context, leadID, campaignID string) error
	Resume(ctx context.Context, leadID, campaignID string) error
	Reset(ctx context.Context, leadID, campaignID string) error
	State(ctx context.Context, leadID, campaignID string) (*domain.EscalationState, error)
	ProcessBatch(ctx context.Context, campaignID string) (map[string]loop.AdvanceResult, error)
}

// InboundRouter routes one parsed webhook message.
type InboundRouter interface {
	Handle(ctx context.Context, teamID string, msg inbound.Message) (*inbound.Result, error)
}

// StageScheduler runs and previews inactivity transitions.
type StageScheduler interface {
	Run(ctx context.Context, teamID string, rules []config.TransitionRule, dryRun bool) (*scheduler.Summary, error)
	Plan(ctx context.Context, teamID string, rules []config.TransitionRule) (*scheduler.Summary, error)
}

// LeadGetter resolves a lead for loop start.
type LeadGetter interface {
	Get(ctx context.Context, teamID, id string) (*domain.Lead, error)
}

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	selector     BatchSelector
	engine       LoopEngine
	router       InboundRouter
	scheduler    StageScheduler
	leads        LeadGetter
	rules        []config.TransitionRule
	webhookToken string
}

// NewHandlers creates the handler set.
func NewHandlers(
	selector BatchSelector,
	engine LoopEngine,
	router InboundRouter,
	sched StageScheduler,
	leads LeadGetter,
	rules []config.TransitionRule,
	webhookToken string,
) *Handlers {
	if len(rules) == 0 {
		rules = config.DefaultTransitionRules()
	}
	return &Handlers{
		selector:     selector,
		engine:       engine,
		router:       router,
		scheduler:    sched,
		leads:        leads,
		rules:        rules,
		webhookToken: webhookToken,
	}
}
