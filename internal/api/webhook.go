package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/reachforge/lead-engine/internal/inbound"
	"github.com/reachforge/lead-engine/internal/pkg/httputil"
	"github.com/reachforge/lead-engine/internal/pkg/logger"
)

// webhookEnvelope is the SMS gateway's delivery payload.
type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		From      string `json:"from"`
		Message   string `json:"message"`
		MessageID string `json:"messageId,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
		TeamID    string `json:"team_id,omitempty"`
	} `json:"data"`
}

// HandleSMSWebhook ingests gateway events.
//
//	POST /webhooks/sms?token=...&teamId=...
//
// message.received events are classified and routed; any other event is
// acknowledged with 200 so the gateway stops retrying it. Processing
// panics are recovered into a generic 500, never a half-written inbox row
// followed by a crash.
func (h *Handlers) HandleSMSWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("webhook processing panic", "panic", rec)
			httputil.Error(w, http.StatusInternalServerError, "internal server error")
		}
	}()

	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookToken)) != 1 {
		httputil.Unauthorized(w, "invalid webhook token")
		return
	}

	var env webhookEnvelope
	if err := httputil.DecodeJSON(r, &env); err != nil {
		httputil.BadRequest(w, "invalid webhook payload")
		return
	}

	if env.Event != "message.received" {
		logger.Info("ignoring webhook event", "event", env.Event)
		httputil.OK(w, map[string]any{"success": true, "event": env.Event})
		return
	}

	teamID := env.Data.TeamID
	if teamID == "" {
		teamID = r.URL.Query().Get("teamId")
	}
	if teamID == "" {
		teamID = "default"
	}

	receivedAt := time.Now()
	if env.Data.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, env.Data.Timestamp); err == nil {
			receivedAt = ts
		}
	}

	result, err := h.router.Handle(r.Context(), teamID, inbound.Message{
		From:       env.Data.From,
		Text:       env.Data.Message,
		ExternalID: env.Data.MessageID,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		logger.Error("webhook routing failed", "error", err, "team_id", teamID)
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"success": true,
		"event":   env.Event,
		"result":  result,
	})
}
