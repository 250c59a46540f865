// Package loop drives the per-lead escalation cadence: an ordered list of
// message templates advanced one step at a time, with pause/resume/reset and
// a terminal completed state. Advances are serialized per lead with an
// optimistic version check so two concurrent advances can never both send.
package loop

import (
	"errors"
)

// Sentinel errors surfaced to handlers.
var (
	ErrStateNotFound = errors.New("escalation state not found")
	ErrConflict      = errors.New("concurrent advance conflict")
)

// Advance result statuses. Paused, completed, and suppressed are successful
// no-ops; transport_failed leaves the step unchanged for retry.
const (
	ResultSent            = "sent"
	ResultPaused          = "paused"
	ResultCompleted       = "completed"
	ResultSuppressed      = "suppressed"
	ResultTransportFailed = "transport_failed"
	ResultConflict        = "conflict"
	ResultError           = "error"
)

// AdvanceResult reports the outcome of one advance attempt.
type AdvanceResult struct {
	LeadID      string `json:"lead_id"`
	Status      string `json:"status"`
	Step        int    `json:"step,omitempty"`
	TotalSteps  int    `json:"total_steps,omitempty"`
	Message     string `json:"message,omitempty"`
	IsCompleted bool   `json:"is_completed"`
	Error       string `json:"error,omitempty"`
}

// Template is one cadence message. Body is a Liquid template rendered with
// the lead's contact variables.
type Template struct {
	Name string `yaml:"name" json:"name"`
	Body string `yaml:"body" json:"body"`
}

// DefaultTemplates is the built-in five-touch cadence used when a campaign
// has no template list of its own.
var DefaultTemplates = []Template{
	{Name: "intro", Body: "Hi {{ first_name | default: \"there\" }}, this is {{ sender_name }}. I work with property owners in your area - would you consider an offer on {{ address | default: \"your property\" }}?"},
	{Name: "nudge", Body: "Hi {{ first_name | default: \"there\" }}, just checking back. Still happy to put together a no-obligation offer whenever works for you."},
	{Name: "value", Body: "{{ first_name | default: \"Hi\" }}, we buy as-is, cover closing costs, and can close on your timeline. Any interest in a quick number for {{ address | default: \"your property\" }}?"},
	{Name: "scarcity", Body: "Hi {{ first_name | default: \"there\" }}, we're wrapping up purchases in your neighborhood this month. Want me to run a figure by you before we do?"},
	{Name: "final", Body: "{{ first_name | default: \"Hi\" }}, last note from me - if selling ever makes sense, reply here and I'll pick it right up. Thanks for your time."},
}
