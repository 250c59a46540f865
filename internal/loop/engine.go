package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/pkg/logger"
)

// Transport dispatches one rendered message. Implemented by the SMS gateway
// client; tests use a fake.
type Transport interface {
	Send(ctx context.Context, to, message string) (providerID string, err error)
}

// Engine is the escalation loop state machine over the store.
type Engine struct {
	store     *Store
	transport Transport
	renderer  *Renderer
	templates map[string][]Template // campaignID -> cadence, "" = default
	batchMax  int
	stepDelay time.Duration
}

// NewEngine creates an escalation engine with the default cadence and a
// 24-hour minimum gap between cadence steps.
func NewEngine(store *Store, transport Transport, renderer *Renderer) *Engine {
	return &Engine{
		store:     store,
		transport: transport,
		renderer:  renderer,
		templates: map[string][]Template{},
		batchMax:  500,
		stepDelay: 24 * time.Hour,
	}
}

// SetTemplates installs a campaign-specific cadence.
func (e *Engine) SetTemplates(campaignID string, templates []Template) {
	e.templates[campaignID] = templates
}

// SetStepDelay overrides the minimum interval between cadence steps when
// advancing in batches. Zero or negative disables the gap.
func (e *Engine) SetStepDelay(d time.Duration) {
	e.stepDelay = d
}

func (e *Engine) templatesFor(campaignID string) []Template {
	if t, ok := e.templates[campaignID]; ok && len(t) > 0 {
		return t
	}
	return DefaultTemplates
}

// Start creates state at step 0 for the lead and immediately attempts the
// first advance. Starting an already-started loop just re-attempts advance.
func (e *Engine) Start(ctx context.Context, lead *domain.Lead, campaignID string) (AdvanceResult, error) {
	state := &domain.EscalationState{
		LeadID:     lead.ID,
		CampaignID: campaignID,
		TeamID:     lead.TeamID,
		OwnerName:  lead.OwnerName,
		Phone:      lead.Phone,
		Address:    lead.Address,
	}
	if _, err := e.store.Create(ctx, state); err != nil {
		return AdvanceResult{LeadID: lead.ID, Status: ResultError, Error: err.Error()}, err
	}
	return e.Advance(ctx, lead.ID, campaignID)
}

// Advance attempts to send the next cadence step.
//
// Completed and paused states are successful no-ops. A transport failure
// leaves current_step unchanged so the same step is retried on the next
// call; it is reported, never swallowed. The step write is conditional on
// the version read here; a concurrent advance losing the race gets
// ResultConflict with no duplicate send recorded.
func (e *Engine) Advance(ctx context.Context, leadID, campaignID string) (AdvanceResult, error) {
	state, err := e.store.Get(ctx, leadID, campaignID)
	if err != nil {
		return AdvanceResult{LeadID: leadID, Status: ResultError, Error: err.Error()}, err
	}

	templates := e.templatesFor(campaignID)
	total := len(templates)

	if state.IsCompleted || state.CurrentStep >= total {
		return AdvanceResult{LeadID: leadID, Status: ResultCompleted, Step: state.CurrentStep, TotalSteps: total, IsCompleted: true}, nil
	}
	if state.IsPaused {
		return AdvanceResult{LeadID: leadID, Status: ResultPaused, Step: state.CurrentStep, TotalSteps: total}, nil
	}

	// Opt-outs land on the lead row; the state machine must honor them no
	// matter which path triggered the advance.
	suppressed, err := e.store.LeadSuppressed(ctx, leadID)
	if err != nil {
		return AdvanceResult{LeadID: leadID, Status: ResultError, Step: state.CurrentStep, TotalSteps: total, Error: err.Error()}, err
	}
	if suppressed {
		if err := e.store.SetPaused(ctx, leadID, campaignID, true); err != nil && err != ErrStateNotFound {
			logger.Warn("pausing suppressed lead failed", "lead_id", leadID, "campaign_id", campaignID, "error", err.Error())
		}
		logger.Info("escalation halted for suppressed lead", "lead_id", leadID, "campaign_id", campaignID)
		return AdvanceResult{LeadID: leadID, Status: ResultSuppressed, Step: state.CurrentStep, TotalSteps: total}, nil
	}

	step := state.CurrentStep
	message, err := e.renderer.Render(templates[step], state)
	if err != nil {
		return AdvanceResult{LeadID: leadID, Status: ResultError, Step: step, TotalSteps: total, Error: err.Error()}, err
	}

	providerID, err := e.transport.Send(ctx, state.Phone, message)
	if err != nil {
		logger.Warn("escalation send failed",
			"lead_id", leadID, "campaign_id", campaignID, "step", step, "error", err.Error())
		return AdvanceResult{
			LeadID: leadID, Status: ResultTransportFailed, Step: step, TotalSteps: total,
			Error: err.Error(),
		}, fmt.Errorf("dispatch step %d: %w", step, err)
	}

	completed := step == total-1
	if err := e.store.AdvanceStep(ctx, state, step, completed, time.Now().UTC()); err != nil {
		if err == ErrConflict {
			// The message went out but a concurrent advance recorded its own
			// send first. Surface the conflict so the caller knows the step
			// counter is authoritative elsewhere.
			logger.Warn("advance version conflict", "lead_id", leadID, "campaign_id", campaignID, "step", step)
			return AdvanceResult{LeadID: leadID, Status: ResultConflict, Step: step, TotalSteps: total}, err
		}
		return AdvanceResult{LeadID: leadID, Status: ResultError, Step: step, TotalSteps: total, Error: err.Error()}, err
	}

	logger.Info("escalation step sent",
		"lead_id", leadID, "campaign_id", campaignID, "step", step+1,
		"total", total, "provider_id", providerID, "completed", completed)

	return AdvanceResult{
		LeadID: leadID, Status: ResultSent, Step: step + 1, TotalSteps: total,
		Message: message, IsCompleted: completed,
	}, nil
}

// Pause blocks further advances without touching the step counter.
func (e *Engine) Pause(ctx context.Context, leadID, campaignID string) error {
	return e.store.SetPaused(ctx, leadID, campaignID, true)
}

// Resume clears the paused flag.
func (e *Engine) Resume(ctx context.Context, leadID, campaignID string) error {
	return e.store.SetPaused(ctx, leadID, campaignID, false)
}

// Reset returns the loop to step 0. Idempotent; paused flag unchanged.
func (e *Engine) Reset(ctx context.Context, leadID, campaignID string) error {
	return e.store.Reset(ctx, leadID, campaignID)
}

// State exposes the current state for inspection (works while paused).
func (e *Engine) State(ctx context.Context, leadID, campaignID string) (*domain.EscalationState, error) {
	return e.store.Get(ctx, leadID, campaignID)
}

// ProcessBatch advances every eligible state for a campaign independently.
// One lead's failure never aborts the rest; the per-lead result map carries
// each outcome.
func (e *Engine) ProcessBatch(ctx context.Context, campaignID string) (map[string]AdvanceResult, error) {
	states, err := e.store.ListEligible(ctx, campaignID, e.stepDelay, e.batchMax)
	if err != nil {
		return nil, err
	}

	results := make(map[string]AdvanceResult, len(states))
	for _, s := range states {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := e.Advance(ctx, s.LeadID, campaignID)
		if err != nil {
			// Already reflected in res.Status; keep going.
			logger.Debug("batch advance failed", "lead_id", s.LeadID, "status", res.Status)
		}
		results[s.LeadID] = res
	}
	return results, nil
}
