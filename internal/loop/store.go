package loop

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reachforge/lead-engine/internal/domain"
)

// Store handles the escalation_states table. All writes that move the step
// counter are conditional on the row version; a lost race surfaces as
// ErrConflict rather than a duplicate send.
type Store struct {
	db *sql.DB
}

// NewStore creates an escalation state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const stateColumns = `id, lead_id, campaign_id, team_id, COALESCE(owner_name,''),
	       COALESCE(phone,''), COALESCE(address,''), current_step, last_sent_at,
	       is_paused, is_completed, version, created_at, updated_at`

func scanState(row interface{ Scan(...any) error }) (*domain.EscalationState, error) {
	s := &domain.EscalationState{}
	err := row.Scan(
		&s.ID, &s.LeadID, &s.CampaignID, &s.TeamID, &s.OwnerName,
		&s.Phone, &s.Address, &s.CurrentStep, &s.LastSentAt,
		&s.IsPaused, &s.IsCompleted, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads the state for one (lead, campaign). Returns ErrStateNotFound.
func (st *Store) Get(ctx context.Context, leadID, campaignID string) (*domain.EscalationState, error) {
	row := st.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM escalation_states WHERE lead_id = $1 AND campaign_id = $2`,
		leadID, campaignID)
	s, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation state: %w", err)
	}
	return s, nil
}

// Create inserts a fresh state at step 0. An existing (lead, campaign) row
// is returned unchanged so Start is idempotent.
func (st *Store) Create(ctx context.Context, s *domain.EscalationState) (*domain.EscalationState, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO escalation_states
			(id, lead_id, campaign_id, team_id, owner_name, phone, address,
			 current_step, is_paused, is_completed, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7, 0, false, false, 1)
		ON CONFLICT (lead_id, campaign_id) DO NOTHING`,
		s.ID, s.LeadID, s.CampaignID, s.TeamID, s.OwnerName, s.Phone, s.Address)
	if err != nil {
		return nil, fmt.Errorf("create escalation state: %w", err)
	}
	return st.Get(ctx, s.LeadID, s.CampaignID)
}

// AdvanceStep records a successful send: step moves to sentStep+1,
// last_sent_at is stamped, and completed is set when the sent step was the
// last template. The update is conditional on the version the caller read;
// zero rows affected means a concurrent advance won and ErrConflict is
// returned.
func (st *Store) AdvanceStep(ctx context.Context, s *domain.EscalationState, sentStep int, completed bool, now time.Time) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE escalation_states
		SET current_step = $1, last_sent_at = $2, is_completed = $3,
		    version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5 AND is_paused = false AND is_completed = false`,
		sentStep+1, now, completed, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	s.CurrentStep = sentStep + 1
	s.LastSentAt = &now
	s.IsCompleted = completed
	s.Version++
	return nil
}

// PauseLead pauses every incomplete loop for a lead across all campaigns.
// Called when the lead opts out; zero matching states is not an error.
func (st *Store) PauseLead(ctx context.Context, leadID string) error {
	_, err := st.db.ExecContext(ctx, `
		UPDATE escalation_states SET is_paused = true, updated_at = NOW()
		WHERE lead_id = $1 AND is_completed = false`,
		leadID)
	if err != nil {
		return fmt.Errorf("pause lead states: %w", err)
	}
	return nil
}

// LeadSuppressed reports whether the lead behind a state has opted out or
// been suppressed. A missing lead row counts as not suppressed.
func (st *Store) LeadSuppressed(ctx context.Context, leadID string) (bool, error) {
	var suppressed bool
	err := st.db.QueryRowContext(ctx, `
		SELECT pipeline_status = 'suppressed' OR COALESCE((flags->>'doNotCall')::boolean, false)
		FROM leads WHERE id = $1`,
		leadID).Scan(&suppressed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lead suppression: %w", err)
	}
	return suppressed, nil
}

// SetPaused toggles the paused flag. current_step is never touched.
func (st *Store) SetPaused(ctx context.Context, leadID, campaignID string, paused bool) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE escalation_states SET is_paused = $1, updated_at = NOW()
		WHERE lead_id = $2 AND campaign_id = $3`,
		paused, leadID, campaignID)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateNotFound
	}
	return nil
}

// Reset returns the state to step 0 with completed cleared. The paused flag
// is left as-is. Resetting an already-reset state is a no-op in effect.
func (st *Store) Reset(ctx context.Context, leadID, campaignID string) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE escalation_states
		SET current_step = 0, is_completed = false, last_sent_at = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE lead_id = $1 AND campaign_id = $2`,
		leadID, campaignID)
	if err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateNotFound
	}
	return nil
}

// ListEligible returns states for a campaign that can advance: not paused,
// not completed, past the per-step delay since their last send, and not
// backed by a suppressed lead. Oldest send first.
func (st *Store) ListEligible(ctx context.Context, campaignID string, stepDelay time.Duration, limit int) ([]domain.EscalationState, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM escalation_states
		WHERE campaign_id = $1 AND is_paused = false AND is_completed = false
		  AND (last_sent_at IS NULL OR last_sent_at < NOW() - make_interval(secs => $2))
		  AND NOT EXISTS (
			SELECT 1 FROM leads
			WHERE leads.id = escalation_states.lead_id
			  AND (leads.pipeline_status = 'suppressed'
			       OR COALESCE((leads.flags->>'doNotCall')::boolean, false))
		  )
		ORDER BY last_sent_at ASC NULLS FIRST
		LIMIT $3`, campaignID, stepDelay.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible states: %w", err)
	}
	defer rows.Close()

	var out []domain.EscalationState
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
