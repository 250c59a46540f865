package domain

import "time"

// EscalationState is the cadence state machine record, one per
// (lead, campaign). current_step counts templates already sent; it never
// exceeds the campaign's template count. Version backs optimistic
// concurrency on advance.
type EscalationState struct {
	ID          string     `json:"id" db:"id"`
	LeadID      string     `json:"lead_id" db:"lead_id"`
	CampaignID  string     `json:"campaign_id" db:"campaign_id"`
	TeamID      string     `json:"team_id" db:"team_id"`
	OwnerName   string     `json:"owner_name" db:"owner_name"`
	Phone       string     `json:"phone" db:"phone"`
	Address     string     `json:"address" db:"address"`
	CurrentStep int        `json:"current_step" db:"current_step"`
	LastSentAt  *time.Time `json:"last_sent_at" db:"last_sent_at"`
	IsPaused    bool       `json:"is_paused" db:"is_paused"`
	IsCompleted bool       `json:"is_completed" db:"is_completed"`
	Version     int        `json:"version" db:"version"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Advanceable reports whether the state can take another step.
func (s *EscalationState) Advanceable() bool {
	return !s.IsPaused && !s.IsCompleted
}
