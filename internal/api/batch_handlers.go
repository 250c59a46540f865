package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/reachforge/lead-engine/internal/batch"
	"github.com/reachforge/lead-engine/internal/pkg/httputil"
)

// HandleGetBatch returns stabilization progress and, when preview=true, the
// ranked next-batch slice. Read-only; nothing is queued.
//
//	GET /api/batch?teamId=&preview=&limit=
func (h *Handlers) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	if teamID == "" {
		httputil.BadRequest(w, "teamId is required")
		return
	}

	progress, err := h.selector.ProgressFor(r.Context(), teamID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	resp := map[string]any{
		"progress":    progress,
		"daily_usage": h.selector.DailyUsage(r.Context(), teamID),
	}

	if r.URL.Query().Get("preview") == "true" {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		preview, err := h.selector.Preview(r.Context(), teamID, limit, nil)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		resp["preview"] = preview
	}

	httputil.OK(w, resp)
}

type commitBatchRequest struct {
	TeamID           string   `json:"teamId"`
	CampaignID       string   `json:"campaignId"`
	BatchSize        int      `json:"batchSize"`
	TargetIndustries []string `json:"targetIndustries,omitempty"`
}

// HandleCommitBatch selects and queue-tags a fresh batch.
//
//	POST /api/batch
//
// When the stabilization target is already reached this is a successful
// no-op with complete:true. When no unprocessed leads remain short of the
// target it is a 400.
func (h *Handlers) HandleCommitBatch(w http.ResponseWriter, r *http.Request) {
	var req commitBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.TeamID == "" {
		httputil.BadRequest(w, "teamId is required")
		return
	}
	if req.CampaignID == "" {
		httputil.BadRequest(w, "campaignId is required")
		return
	}

	preview, err := h.selector.Preview(r.Context(), req.TeamID, req.BatchSize, req.TargetIndustries)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	if preview.Progress.Complete {
		httputil.OK(w, map[string]any{
			"complete": true,
			"progress": preview.Progress,
		})
		return
	}

	if len(preview.Leads) == 0 {
		httputil.BadRequest(w, "no unprocessed leads available")
		return
	}

	committed, err := h.selector.Commit(r.Context(), req.TeamID, req.CampaignID, preview.Leads)
	if err != nil {
		if errors.Is(err, batch.ErrLockBusy) {
			httputil.Error(w, http.StatusConflict, "another batch commit is in progress for this team")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"complete": false,
		"batch":    committed,
	})
}
