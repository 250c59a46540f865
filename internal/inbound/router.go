package inbound

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reachforge/lead-engine/internal/classify"
	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/pkg/distlock"
	"github.com/reachforge/lead-engine/internal/pkg/logger"
	"github.com/reachforge/lead-engine/internal/repository/postgres"
)

// Sentinel errors and result statuses.
var (
	ErrLeadNotFound = errors.New("no lead matches the sending phone")
	ErrDuplicate    = errors.New("duplicate webhook delivery")
)

const (
	StatusRouted    = "routed"
	StatusDropped   = "dropped"
	StatusDuplicate = "duplicate"
)

// LeadResolver is the slice of the lead repository the router needs.
type LeadResolver interface {
	FindByPhone(ctx context.Context, teamID, phoneLast10 string) (*domain.Lead, error)
	UpdateTriage(ctx context.Context, teamID, id, status, bucket string, flags map[string]bool) error
}

// StatePauser halts a lead's escalation loops. Implemented by the loop
// store; nil disables the hookup.
type StatePauser interface {
	PauseLead(ctx context.Context, leadID string) error
}

// Message is one inbound webhook payload after envelope parsing.
type Message struct {
	From       string
	Text       string
	ExternalID string
	ReceivedAt time.Time
}

// Result reports what the router did with one message.
type Result struct {
	Status         string                `json:"status"`
	Classification domain.Classification `json:"classification,omitempty"`
	LeadID         string                `json:"lead_id,omitempty"`
	ResponseID     string                `json:"response_id,omitempty"`
	Trigger        string                `json:"trigger,omitempty"`
}

// Router classifies and routes inbound messages.
type Router struct {
	leads LeadResolver
	store *Store
	loops StatePauser
	rdb   *redis.Client
	db    *sql.DB
}

// NewRouter creates an inbound router. rdb may be nil; idempotency then
// relies on the unique index alone and per-lead serialization on PG
// advisory locks. loops may be nil when no escalation engine runs.
func NewRouter(leads LeadResolver, store *Store, loops StatePauser, rdb *redis.Client, db *sql.DB) *Router {
	return &Router{leads: leads, store: store, loops: loops, rdb: rdb, db: db}
}

// Handle routes one inbound message:
// normalize phone → dedupe → resolve lead → classify → persist inbox row →
// enqueue exactly one transition → update lead triage state.
//
// The inbox write strictly precedes the enqueue so a retried delivery can be
// cut off by the external-id check before any downstream action repeats.
func (r *Router) Handle(ctx context.Context, teamID string, msg Message) (*Result, error) {
	phone := NormalizePhone(msg.From)
	if phone == "" {
		return &Result{Status: StatusDropped}, fmt.Errorf("unparseable from number %q", msg.From)
	}

	if dup, err := r.isDuplicate(ctx, teamID, msg.ExternalID); err != nil {
		return nil, err
	} else if dup {
		logger.Info("duplicate webhook delivery ignored", "team_id", teamID, "external_id", msg.ExternalID)
		return &Result{Status: StatusDuplicate}, nil
	}

	lead, err := r.leads.FindByPhone(ctx, teamID, phone)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) || errors.Is(err, postgres.ErrNotFound) {
			// Unknown sender: drop with a warning, no record, no crash.
			logger.Warn("inbound message from unknown phone dropped",
				"team_id", teamID, "from", msg.From)
			return &Result{Status: StatusDropped}, nil
		}
		// Anything else is transient; surface it so the gateway redelivers.
		return nil, fmt.Errorf("resolve lead by phone: %w", err)
	}

	classification := classify.Classify(msg.Text)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	resp := &domain.ClassifiedResponse{
		TeamID:         teamID,
		LeadID:         lead.ID,
		FromPhone:      phone,
		Message:        msg.Text,
		Classification: classification,
		Priority:       classify.PriorityFor(classification),
		PriorityScore:  classify.PriorityScoreFor(classification),
		Bucket:         classify.BucketFor(classification),
		RequiresReview: classify.RequiresReview(classification),
		ExternalID:     msg.ExternalID,
		ReceivedAt:     receivedAt,
	}

	// Serialize per lead so near-simultaneous replies keep arrival order
	// through the write + enqueue pair.
	lock := distlock.NewLock(r.rdb, r.db, "inbound:lead:"+lead.ID, 10*time.Second)
	if ok, err := distlock.AcquireWait(ctx, lock, 100*time.Millisecond, 3*time.Second); err == nil && ok {
		defer lock.Release(ctx)
	}

	if err := r.store.CreateResponse(ctx, resp); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return &Result{Status: StatusDuplicate}, nil
		}
		return nil, err
	}

	trigger := classify.TriggerFor(classification)
	transition := &domain.Transition{
		TeamID:  teamID,
		LeadID:  lead.ID,
		Trigger: trigger,
		Payload: map[string]string{
			"classification": string(classification),
			"response_id":    resp.ID,
		},
	}
	if err := r.store.Enqueue(ctx, transition); err != nil {
		return nil, err
	}

	// Only a fully recorded message is marked seen; a delivery that failed
	// mid-pipeline must be reprocessed when the gateway retries it.
	r.markSeen(ctx, teamID, msg.ExternalID)

	r.applyTriage(ctx, teamID, lead, classification, resp.Bucket)

	logger.Info("inbound message routed",
		"team_id", teamID, "lead_id", lead.ID,
		"classification", string(classification), "trigger", trigger)

	return &Result{
		Status:         StatusRouted,
		Classification: classification,
		LeadID:         lead.ID,
		ResponseID:     resp.ID,
		Trigger:        trigger,
	}, nil
}

// applyTriage mutates lead status/bucket for classifications that demand it.
// Failures are logged, not fatal: the inbox record and transition are
// already durable.
func (r *Router) applyTriage(ctx context.Context, teamID string, lead *domain.Lead, c domain.Classification, bucket string) {
	status := lead.PipelineStatus
	flags := lead.Flags
	if flags == nil {
		flags = map[string]bool{}
	}

	switch c {
	case domain.ClassificationDNC:
		status = domain.StatusSuppressed
		flags["doNotCall"] = true
	case domain.ClassificationPositive:
		status = domain.StatusEngaged
	default:
		// Neutral and wrong-number replies only touch the bucket.
	}

	if err := r.leads.UpdateTriage(ctx, teamID, lead.ID, status, bucket, flags); err != nil {
		logger.Error("lead triage update failed", "team_id", teamID, "lead_id", lead.ID, "error", err.Error())
	}

	// A lead that opted out or turned out to be a wrong number must stop
	// receiving cadence messages immediately.
	if c == domain.ClassificationDNC || c == domain.ClassificationWrongNumber {
		if r.loops != nil {
			if err := r.loops.PauseLead(ctx, lead.ID); err != nil {
				logger.Error("pausing escalation loops failed", "team_id", teamID, "lead_id", lead.ID, "error", err.Error())
			}
		}
	}
}

// isDuplicate is a read-only check. The Redis key is written by markSeen
// after the pipeline succeeded; setting it up front would let a failed
// delivery's retry short-circuit as duplicate and lose the message.
func (r *Router) isDuplicate(ctx context.Context, teamID, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	if r.rdb != nil {
		n, err := r.rdb.Exists(ctx, seenKey(teamID, externalID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		// Miss or Redis error: fall through to the durable log.
	}
	return r.store.SeenExternalID(ctx, teamID, externalID)
}

func (r *Router) markSeen(ctx context.Context, teamID, externalID string) {
	if externalID == "" || r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, seenKey(teamID, externalID), 1, 24*time.Hour).Err(); err != nil {
		// The unique index still catches the replay.
		logger.Warn("idempotency key write failed", "team_id", teamID, "external_id", externalID, "error", err.Error())
	}
}

func seenKey(teamID, externalID string) string {
	return fmt.Sprintf("webhook:msg:%s:%s", teamID, externalID)
}

// NormalizePhone reduces a phone number to its last 10 digits. Returns ""
// when fewer than 10 digits are present.
func NormalizePhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) < 10 {
		return ""
	}
	return string(digits[len(digits)-10:])
}
