package api

import (
	"net/http"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/pkg/httputil"
)

type schedulerRunRequest struct {
	TeamID string                  `json:"teamId"`
	Rules  []config.TransitionRule `json:"config,omitempty"`
	DryRun bool                    `json:"dryRun,omitempty"`
}

// HandleSchedulerRun executes one scheduler pass for a team.
//
//	POST /api/scheduler/run
//
// A custom rule set in the body overrides the configured rules for this
// pass only. dryRun reports what would move without calling the executor.
func (h *Handlers) HandleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	var req schedulerRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.TeamID == "" {
		httputil.BadRequest(w, "teamId is required")
		return
	}

	rules := req.Rules
	if len(rules) == 0 {
		rules = h.rules
	}
	for _, rule := range rules {
		if rule.FromStage == "" || rule.ToStage == "" || rule.InactivityDays <= 0 {
			httputil.BadRequest(w, "each rule needs fromStage, toStage and positive inactivityDays")
			return
		}
	}

	summary, err := h.scheduler.Run(r.Context(), req.TeamID, rules, req.DryRun)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// HandleSchedulerPreview reports due transitions and the current stage
// distribution without moving anything.
//
//	GET /api/scheduler/preview?teamId=
func (h *Handlers) HandleSchedulerPreview(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if teamID == "" {
		httputil.BadRequest(w, "teamId is required")
		return
	}

	summary, err := h.scheduler.Plan(r.Context(), teamID, h.rules)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}
