package domain

import "time"

// Score tier bands used for batch breakdowns. Evaluated highest-first.
const (
	TierHot      = "hot"      // score >= 80
	TierWarm     = "warm"     // 60–79
	TierLukewarm = "lukewarm" // 40–59
	TierCold     = "cold"     // < 40
)

// TierFor returns the tier band for a composite score.
func TierFor(score int) string {
	switch {
	case score >= 80:
		return TierHot
	case score >= 60:
		return TierWarm
	case score >= 40:
		return TierLukewarm
	default:
		return TierCold
	}
}

// Batch summarizes one committed daily selection.
type Batch struct {
	CycleTag     string         `json:"cycle_tag"`
	TeamID       string         `json:"team_id"`
	CampaignID   string         `json:"campaign_id"`
	Day          int            `json:"day"`
	Size         int            `json:"size"`
	Skipped      int            `json:"skipped"`
	Tiers        map[string]int `json:"tiers"`
	AverageScore float64        `json:"average_score"`
	CommittedAt  time.Time      `json:"committed_at"`
}

// Progress is derived stabilization progress, never stored.
type Progress struct {
	Day             int     `json:"day"`
	Cumulative      int     `json:"cumulative_selected"`
	Target          int     `json:"stabilization_target"`
	PercentComplete float64 `json:"percent_complete"`
	Complete        bool    `json:"complete"`
}
