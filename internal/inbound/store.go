// Package inbound consumes classified replies: it writes the inbox record,
// mutates lead triage state, and emits exactly one transition instruction
// per message.
package inbound

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/reachforge/lead-engine/internal/domain"
)

// Store handles the inbound_responses log and the transition_queue table.
type Store struct {
	db *sql.DB
}

// NewStore creates an inbound store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SeenExternalID reports whether a webhook external message id was already
// recorded for the team. Backstop behind the Redis idempotency key.
func (s *Store) SeenExternalID(ctx context.Context, teamID, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbound_responses WHERE team_id = $1 AND external_id = $2`,
		teamID, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check external id: %w", err)
	}
	return n > 0, nil
}

// CreateResponse appends one classified response. The insert is the first
// write of the routing pipeline; the transition enqueue follows only after
// it succeeds.
func (s *Store) CreateResponse(ctx context.Context, r *domain.ClassifiedResponse) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbound_responses
			(id, team_id, lead_id, from_phone, message, classification, priority,
			 priority_score, bucket, requires_review, external_id, received_at, processed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, false)`,
		r.ID, r.TeamID, r.LeadID, r.FromPhone, r.Message, r.Classification, r.Priority,
		r.PriorityScore, r.Bucket, r.RequiresReview, r.ExternalID, r.ReceivedAt)
	if err != nil {
		// The unique index on (team_id, external_id) fires on a duplicate
		// webhook delivery racing past the Redis check.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

// Enqueue appends one transition instruction for the downstream workflow
// consumer. Rows are consumed FIFO by created_at, preserving per-lead
// arrival order.
func (s *Store) Enqueue(ctx context.Context, t *domain.Transition) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	payload, _ := json.Marshal(t.Payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_queue (id, team_id, lead_id, trigger, payload, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.TeamID, t.LeadID, t.Trigger, payload, t.Status)
	if err != nil {
		return fmt.Errorf("enqueue transition: %w", err)
	}
	return nil
}
