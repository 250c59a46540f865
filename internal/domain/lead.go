package domain

import (
	"time"
)

// Pipeline status labels assigned by the signal extractor's status waterfall
// and mutated by the inbound router and inactivity scheduler. The column is
// free-form; these are the values the engine itself writes.
const (
	StatusNew        = "new"
	StatusWarm       = "warm"
	StatusHot        = "hot"
	StatusQualified  = "qualified"
	StatusUrgent     = "urgent"
	StatusEngaged    = "engaged"
	StatusFollowUp   = "follow_up"
	StatusNurture    = "nurture"
	StatusCold       = "cold"
	StatusArchive    = "archive"
	StatusSuppressed = "suppressed"
)

// Lead is one contact/property record owned by a team. Enrichment populates
// score/tags/flags, the inbound router mutates status and bucket, the batch
// selector stamps the queue tag.
type Lead struct {
	ID             string            `json:"id" db:"id"`
	TeamID         string            `json:"team_id" db:"team_id"`
	OwnerName      string            `json:"owner_name" db:"owner_name"`
	Phone          string            `json:"phone" db:"phone"`
	Email          string            `json:"email" db:"email"`
	Address        string            `json:"address" db:"address"`
	City           string            `json:"city" db:"city"`
	State          string            `json:"state" db:"state"`
	Industry       string            `json:"industry" db:"industry"`
	PipelineStatus string            `json:"pipeline_status" db:"pipeline_status"`
	Score          int               `json:"score" db:"score"`
	Tags           []string          `json:"tags" db:"tags"`
	Flags          map[string]bool   `json:"flags" db:"flags"`
	Bucket         string            `json:"bucket" db:"bucket"`
	QueueTag       string            `json:"queue_tag" db:"queue_tag"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Suppressed reports whether the lead must never be contacted again.
// Checked by the batch selector and the escalation engine before any send.
func (l *Lead) Suppressed() bool {
	return l.PipelineStatus == StatusSuppressed || l.Flags["doNotCall"]
}

// Queued reports whether the lead is already claimed by a batch cycle.
func (l *Lead) Queued() bool {
	return l.QueueTag != ""
}

// FirstName returns the first word of the owner name for message rendering.
func (l *Lead) FirstName() string {
	for i := 0; i < len(l.OwnerName); i++ {
		if l.OwnerName[i] == ' ' {
			return l.OwnerName[:i]
		}
	}
	return l.OwnerName
}
