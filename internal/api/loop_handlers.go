package api

import (
	"errors"
	"net/http"

	"github.com/reachforge/lead-engine/internal/loop"
	"github.com/reachforge/lead-engine/internal/pkg/httputil"
	"github.com/reachforge/lead-engine/internal/repository/postgres"
)

type loopRequest struct {
	Action     string `json:"action"`
	TeamID     string `json:"team_id"`
	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// HandleLoop is the single control endpoint for the escalation loop.
//
//	POST /api/loop
//
// Actions: start, send_next, pause, resume, reset, status, process_batch.
// Unknown lead state is a 404, unknown action a 400.
func (h *Handlers) HandleLoop(w http.ResponseWriter, r *http.Request) {
	var req loopRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.CampaignID == "" {
		req.CampaignID = "default"
	}

	switch req.Action {
	case "start":
		h.loopStart(w, r, req)
	case "send_next":
		h.loopAdvance(w, r, req)
	case "pause":
		h.loopSetPaused(w, r, req, true)
	case "resume":
		h.loopSetPaused(w, r, req, false)
	case "reset":
		h.loopReset(w, r, req)
	case "status":
		h.loopStatus(w, r, req)
	case "process_batch":
		h.loopProcessBatch(w, r, req)
	case "":
		httputil.BadRequest(w, "action is required")
	default:
		httputil.BadRequest(w, "unknown action: "+req.Action)
	}
}

func (h *Handlers) loopStart(w http.ResponseWriter, r *http.Request, req loopRequest) {
	if req.TeamID == "" || req.LeadID == "" {
		httputil.BadRequest(w, "team_id and lead_id are required")
		return
	}

	lead, err := h.leads.Get(r.Context(), req.TeamID, req.LeadID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	result, err := h.engine.Start(r.Context(), lead, req.CampaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) loopAdvance(w http.ResponseWriter, r *http.Request, req loopRequest) {
	if req.LeadID == "" {
		httputil.BadRequest(w, "lead_id is required")
		return
	}

	result, err := h.engine.Advance(r.Context(), req.LeadID, req.CampaignID)
	if err != nil {
		if errors.Is(err, loop.ErrStateNotFound) {
			httputil.NotFound(w, "no escalation state for lead")
			return
		}
		if errors.Is(err, loop.ErrConflict) {
			httputil.Error(w, http.StatusConflict, "concurrent advance in progress")
			return
		}
		// Transport failures keep the step for retry; surface the result
		// body so the caller sees which step failed.
		if result.Status == loop.ResultTransportFailed {
			httputil.JSON(w, http.StatusBadGateway, result)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handlers) loopSetPaused(w http.ResponseWriter, r *http.Request, req loopRequest, paused bool) {
	if req.LeadID == "" {
		httputil.BadRequest(w, "lead_id is required")
		return
	}

	var err error
	if paused {
		err = h.engine.Pause(r.Context(), req.LeadID, req.CampaignID)
	} else {
		err = h.engine.Resume(r.Context(), req.LeadID, req.CampaignID)
	}
	if err != nil {
		if errors.Is(err, loop.ErrStateNotFound) {
			httputil.NotFound(w, "no escalation state for lead")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"lead_id": req.LeadID, "paused": paused})
}

func (h *Handlers) loopReset(w http.ResponseWriter, r *http.Request, req loopRequest) {
	if req.LeadID == "" {
		httputil.BadRequest(w, "lead_id is required")
		return
	}

	if err := h.engine.Reset(r.Context(), req.LeadID, req.CampaignID); err != nil {
		if errors.Is(err, loop.ErrStateNotFound) {
			httputil.NotFound(w, "no escalation state for lead")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"lead_id": req.LeadID, "reset": true})
}

func (h *Handlers) loopStatus(w http.ResponseWriter, r *http.Request, req loopRequest) {
	if req.LeadID == "" {
		httputil.BadRequest(w, "lead_id is required")
		return
	}

	state, err := h.engine.State(r.Context(), req.LeadID, req.CampaignID)
	if err != nil {
		if errors.Is(err, loop.ErrStateNotFound) {
			httputil.NotFound(w, "no escalation state for lead")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, state)
}

func (h *Handlers) loopProcessBatch(w http.ResponseWriter, r *http.Request, req loopRequest) {
	results, err := h.engine.ProcessBatch(r.Context(), req.CampaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	sent := 0
	for _, res := range results {
		if res.Status == loop.ResultSent {
			sent++
		}
	}
	httputil.OK(w, map[string]any{
		"campaign_id": req.CampaignID,
		"processed":   len(results),
		"sent":        sent,
		"results":     results,
	})
}
