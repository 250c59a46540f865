package domain

import "time"

// Classification is the closed set of inbound reply classes.
type Classification string

const (
	ClassificationDNC         Classification = "dnc"
	ClassificationWrongNumber Classification = "wrong_number"
	ClassificationPositive    Classification = "positive"
	ClassificationNeutral     Classification = "neutral"
)

// Priority labels attached to classified responses.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Triage buckets an inbound response lands in.
const (
	BucketDNC       = "legal_dnc"
	BucketPositive  = "positive_responses"
	BucketWrongInfo = "data_quality"
	BucketUniversal = "universal_inbox"
)

// ClassifiedResponse is the immutable inbox record of one inbound message.
// Only the processed flag is ever updated after insert.
type ClassifiedResponse struct {
	ID             string         `json:"id" db:"id"`
	TeamID         string         `json:"team_id" db:"team_id"`
	LeadID         string         `json:"lead_id" db:"lead_id"`
	FromPhone      string         `json:"from_phone" db:"from_phone"`
	Message        string         `json:"message" db:"message"`
	Classification Classification `json:"classification" db:"classification"`
	Priority       Priority       `json:"priority" db:"priority"`
	PriorityScore  int            `json:"priority_score" db:"priority_score"`
	Bucket         string         `json:"bucket" db:"bucket"`
	RequiresReview bool           `json:"requires_review" db:"requires_review"`
	ExternalID     string         `json:"external_id" db:"external_id"`
	ReceivedAt     time.Time      `json:"received_at" db:"received_at"`
	Processed      bool           `json:"processed" db:"processed"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Transition trigger labels emitted by the inbound router, one per message.
const (
	TriggerPositive    = "inbound_sms_positive"
	TriggerDNC         = "dnc_request"
	TriggerWrongNumber = "wrong_number"
	TriggerGeneric     = "inbound_sms"
)

// Transition is one state-transition instruction queued for the downstream
// workflow consumer.
type Transition struct {
	ID        string            `json:"id" db:"id"`
	TeamID    string            `json:"team_id" db:"team_id"`
	LeadID    string            `json:"lead_id" db:"lead_id"`
	Trigger   string            `json:"trigger" db:"trigger"`
	Payload   map[string]string `json:"payload" db:"payload"`
	Status    string            `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
