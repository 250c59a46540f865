package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
)

type memStore struct {
	leads       []*domain.Lead
	stageWrites map[string][]string
}

func newMemStore(leads ...*domain.Lead) *memStore {
	return &memStore{leads: leads, stageWrites: map[string][]string{}}
}

func (m *memStore) SelectInactive(_ context.Context, teamID, stage string, cutoff time.Time, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	for _, l := range m.leads {
		if l.TeamID == teamID && l.PipelineStatus == stage && l.UpdatedAt.Before(cutoff) {
			out = append(out, *l)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) UpdateStage(_ context.Context, teamID, stage string, ids []string) error {
	m.stageWrites[stage] = append(m.stageWrites[stage], ids...)
	for _, l := range m.leads {
		for _, id := range ids {
			if l.ID == id {
				l.PipelineStatus = stage
			}
		}
	}
	return nil
}

func (m *memStore) StageDistribution(_ context.Context, teamID string) (map[string]int, error) {
	dist := map[string]int{}
	for _, l := range m.leads {
		if l.TeamID == teamID {
			dist[l.PipelineStatus]++
		}
	}
	return dist, nil
}

type fakeExecutor struct {
	calls    []string
	failFor  string
	received map[string][]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{received: map[string][]string{}}
}

func (f *fakeExecutor) RequestTransitions(_ context.Context, teamID, toStage string, ids []string) error {
	f.calls = append(f.calls, toStage)
	if toStage == f.failFor {
		return errors.New("executor unavailable")
	}
	f.received[toStage] = append(f.received[toStage], ids...)
	return nil
}

func staleLead(id, stage string, ageDays int) *domain.Lead {
	return &domain.Lead{
		ID:             id,
		TeamID:         "team-1",
		PipelineStatus: stage,
		UpdatedAt:      time.Now().Add(-time.Duration(ageDays) * 24 * time.Hour),
	}
}

func rules() []config.TransitionRule {
	return []config.TransitionRule{
		{FromStage: "new", ToStage: "nurture", InactivityDays: 7},
		{FromStage: "engaged", ToStage: "follow_up", InactivityDays: 3},
	}
}

func TestRunMovesDueLeads(t *testing.T) {
	store := newMemStore(
		staleLead("a", "new", 10),   // due
		staleLead("b", "new", 2),    // fresh
		staleLead("c", "engaged", 5), // due
	)
	exec := newFakeExecutor()
	s := New(store, exec, 100)

	summary, err := s.Run(context.Background(), "team-1", rules(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Due != 2 || summary.Moved != 2 || summary.Failed != 0 {
		t.Errorf("due=%d moved=%d failed=%d, want 2/2/0", summary.Due, summary.Moved, summary.Failed)
	}
	if got := store.stageWrites["nurture"]; len(got) != 1 || got[0] != "a" {
		t.Errorf("nurture writes = %v", got)
	}
	if got := store.stageWrites["follow_up"]; len(got) != 1 || got[0] != "c" {
		t.Errorf("follow_up writes = %v", got)
	}
	// One executor call per target-stage group.
	if len(exec.calls) != 2 {
		t.Errorf("executor calls = %d, want 2", len(exec.calls))
	}
}

func TestRunFailedExecutorLeavesStageUntouched(t *testing.T) {
	store := newMemStore(staleLead("a", "new", 10))
	exec := newFakeExecutor()
	exec.failFor = "nurture"
	s := New(store, exec, 100)

	summary, err := s.Run(context.Background(), "team-1", rules(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Moved != 0 {
		t.Errorf("failed=%d moved=%d, want 1/0", summary.Failed, summary.Moved)
	}
	if len(store.stageWrites) != 0 {
		t.Error("stage must not change when the executor call failed")
	}

	// The next pass retries the same lead.
	exec.failFor = ""
	summary, err = s.Run(context.Background(), "team-1", rules(), false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Moved != 1 {
		t.Errorf("retry pass moved=%d, want 1", summary.Moved)
	}
}

func TestRunDryRun(t *testing.T) {
	store := newMemStore(staleLead("a", "new", 10))
	exec := newFakeExecutor()
	s := New(store, exec, 100)

	summary, err := s.Run(context.Background(), "team-1", rules(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Due != 1 {
		t.Errorf("due = %d, want 1", summary.Due)
	}
	if len(exec.calls) != 0 {
		t.Error("dry run must not call the executor")
	}
	if len(store.stageWrites) != 0 {
		t.Error("dry run must not write stages")
	}
}

func TestRunRespectsBatchLimit(t *testing.T) {
	var leads []*domain.Lead
	for i := 0; i < 150; i++ {
		leads = append(leads, staleLead(fmt.Sprintf("lead-%d", i), "new", 10))
	}
	store := newMemStore(leads...)
	exec := newFakeExecutor()
	s := New(store, exec, 100)

	summary, err := s.Run(context.Background(), "team-1", rules(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Due != 100 {
		t.Errorf("due = %d, want capped 100", summary.Due)
	}
}

func TestPlanIncludesDistribution(t *testing.T) {
	store := newMemStore(
		staleLead("a", "new", 10),
		staleLead("b", "cold", 1),
	)
	s := New(store, newFakeExecutor(), 100)

	summary, err := s.Plan(context.Background(), "team-1", rules())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !summary.DryRun {
		t.Error("Plan must be a dry run")
	}
	if summary.StageDistribution["new"] != 1 || summary.StageDistribution["cold"] != 1 {
		t.Errorf("distribution = %v", summary.StageDistribution)
	}
}
