// Package postgres implements the lead repository against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/reachforge/lead-engine/internal/domain"
)

// ErrNotFound is returned when a lead does not exist within the team scope.
var ErrNotFound = errors.New("lead not found")

// LeadRepo provides lead persistence. All queries are team-scoped; there is
// no cross-tenant read path.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, team_id, COALESCE(owner_name,''), COALESCE(phone,''), COALESCE(email,''),
	       COALESCE(address,''), COALESCE(city,''), COALESCE(state,''), COALESCE(industry,''),
	       pipeline_status, score, tags, flags, COALESCE(bucket,''), COALESCE(queue_tag,''),
	       created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*domain.Lead, error) {
	l := &domain.Lead{}
	var flagsJSON []byte
	err := row.Scan(
		&l.ID, &l.TeamID, &l.OwnerName, &l.Phone, &l.Email,
		&l.Address, &l.City, &l.State, &l.Industry,
		&l.PipelineStatus, &l.Score, pq.Array(&l.Tags), &flagsJSON, &l.Bucket, &l.QueueTag,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(flagsJSON) > 0 {
		json.Unmarshal(flagsJSON, &l.Flags)
	}
	return l, nil
}

// Get returns one lead by id within the team.
func (r *LeadRepo) Get(ctx context.Context, teamID, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND team_id = $2`, id, teamID)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// FindByPhone resolves a lead by the last 10 digits of a phone number,
// scoped to the team. A number shared across tenants only ever resolves
// within the caller's team.
func (r *LeadRepo) FindByPhone(ctx context.Context, teamID, phoneLast10 string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE team_id = $1 AND RIGHT(regexp_replace(phone, '\D', '', 'g'), 10) = $2
		ORDER BY updated_at DESC
		LIMIT 1`, teamID, phoneLast10)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead by phone: %w", err)
	}
	return l, nil
}

// Create inserts a lead, generating an id when absent.
func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.PipelineStatus == "" {
		l.PipelineStatus = domain.StatusNew
	}
	flagsJSON, _ := json.Marshal(l.Flags)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads (id, team_id, owner_name, phone, email, address, city, state,
		                   industry, pipeline_status, score, tags, flags, bucket, queue_tag)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		l.ID, l.TeamID, l.OwnerName, l.Phone, l.Email, l.Address, l.City, l.State,
		l.Industry, l.PipelineStatus, l.Score, pq.Array(l.Tags), flagsJSON, l.Bucket, l.QueueTag)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// UpdateEnrichment writes score, tags, flags, and status after extraction.
func (r *LeadRepo) UpdateEnrichment(ctx context.Context, l *domain.Lead) error {
	flagsJSON, _ := json.Marshal(l.Flags)
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET score=$1, tags=$2, flags=$3, pipeline_status=$4, updated_at=NOW()
		WHERE id = $5 AND team_id = $6`,
		l.Score, pq.Array(l.Tags), flagsJSON, l.PipelineStatus, l.ID, l.TeamID)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

// UpdateTriage mutates status/bucket/flags from the inbound router.
func (r *LeadRepo) UpdateTriage(ctx context.Context, teamID, id, status, bucket string, flags map[string]bool) error {
	flagsJSON, _ := json.Marshal(flags)
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET pipeline_status=$1, bucket=$2, flags=$3, updated_at=NOW()
		WHERE id = $4 AND team_id = $5`,
		status, bucket, flagsJSON, id, teamID)
	if err != nil {
		return fmt.Errorf("update triage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SelectUntouched returns leads eligible for batch selection: no queue tag,
// not suppressed, optional industry filter, ranked score DESC with
// created_at ASC tie-break so old leads are never starved.
func (r *LeadRepo) SelectUntouched(ctx context.Context, teamID string, limit int, industries []string) ([]domain.Lead, error) {
	q := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE team_id = $1
		  AND (queue_tag = '' OR queue_tag IS NULL)
		  AND pipeline_status != $2
		  AND NOT COALESCE((flags->>'doNotCall')::boolean, false)`
	args := []interface{}{teamID, domain.StatusSuppressed}
	idx := 3
	if len(industries) > 0 {
		q += fmt.Sprintf(" AND industry = ANY($%d)", idx)
		args = append(args, pq.Array(industries))
		idx++
	}
	q += fmt.Sprintf(" ORDER BY score DESC, created_at ASC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select untouched: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// TagQueued stamps the cycle tag on one lead, conditional on the lead not
// already being queued. Returns true when the tag was applied, false when
// the lead already carries any tag, this cycle's included, so a retried
// commit never double-counts.
func (r *LeadRepo) TagQueued(ctx context.Context, teamID, id, cycleTag string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET queue_tag = $1, updated_at = NOW()
		WHERE id = $2 AND team_id = $3
		  AND (queue_tag = '' OR queue_tag IS NULL)`,
		cycleTag, id, teamID)
	if err != nil {
		return false, fmt.Errorf("tag queued: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountQueued returns how many leads carry any cycle tag for the team,
// the cumulative stabilization progress.
func (r *LeadRepo) CountQueued(ctx context.Context, teamID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE team_id = $1 AND queue_tag != '' AND queue_tag IS NOT NULL`,
		teamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued: %w", err)
	}
	return n, nil
}

// SelectInactive returns up to limit leads in the given stage whose
// updated_at is older than the cutoff. Used by the inactivity scheduler.
func (r *LeadRepo) SelectInactive(ctx context.Context, teamID, stage string, cutoff time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE team_id = $1 AND pipeline_status = $2 AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`, teamID, stage, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select inactive: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// UpdateStage moves a set of leads to a new pipeline stage. Called only
// after the downstream transition request succeeded.
func (r *LeadRepo) UpdateStage(ctx context.Context, teamID, stage string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET pipeline_status = $1, updated_at = NOW()
		WHERE team_id = $2 AND id = ANY($3)`,
		stage, teamID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

// StageDistribution returns lead counts per pipeline stage for the team.
func (r *LeadRepo) StageDistribution(ctx context.Context, teamID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pipeline_status, COUNT(*) FROM leads
		WHERE team_id = $1 GROUP BY pipeline_status`, teamID)
	if err != nil {
		return nil, fmt.Errorf("stage distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		dist[stage] = n
	}
	return dist, rows.Err()
}
