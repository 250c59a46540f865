package batch

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
)

// memStore is an in-memory LeadStore honoring queue-tag exclusion.
type memStore struct {
	leads map[string]*domain.Lead
	order []string
}

func newMemStore(leads ...*domain.Lead) *memStore {
	m := &memStore{leads: map[string]*domain.Lead{}}
	for _, l := range leads {
		m.leads[l.ID] = l
		m.order = append(m.order, l.ID)
	}
	return m
}

func (m *memStore) SelectUntouched(_ context.Context, teamID string, limit int, industries []string) ([]domain.Lead, error) {
	var out []domain.Lead
	// Ranked score DESC with insertion order as the stable tie-break stand-in.
	for score := 100; score >= 0 && len(out) < limit; score-- {
		for _, id := range m.order {
			l := m.leads[id]
			if l.TeamID != teamID || l.Score != score || l.Queued() || l.Suppressed() {
				continue
			}
			if len(industries) > 0 && !containsStr(industries, l.Industry) {
				continue
			}
			out = append(out, *l)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) TagQueued(_ context.Context, teamID, id, cycleTag string) (bool, error) {
	l, ok := m.leads[id]
	if !ok || l.TeamID != teamID {
		return false, nil
	}
	// Any existing tag, this cycle's included, makes the write a skip.
	if l.QueueTag != "" {
		return false, nil
	}
	l.QueueTag = cycleTag
	return true, nil
}

func (m *memStore) slice(ids ...string) []domain.Lead {
	var out []domain.Lead
	for _, id := range ids {
		out = append(out, *m.leads[id])
	}
	return out
}

func (m *memStore) CountQueued(_ context.Context, teamID string) (int, error) {
	n := 0
	for _, l := range m.leads {
		if l.TeamID == teamID && l.QueueTag != "" {
			n++
		}
	}
	return n, nil
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{DailyBatchMax: 3, StabilizationTarget: 6, CycleDays: 2}
}

func lead(id, team string, score int) *domain.Lead {
	return &domain.Lead{ID: id, TeamID: team, Score: score}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPreviewRanksAndCaps(t *testing.T) {
	store := newMemStore(
		lead("a", "t1", 90), lead("b", "t1", 50),
		lead("c", "t1", 70), lead("d", "t1", 95),
		lead("e", "t1", 20),
	)
	sel := NewSelector(store, testRedis(t), nil, testConfig())

	// Requested 10, capped at dailyMax 3.
	p, err := sel.Preview(context.Background(), "t1", 10, nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(p.Leads) != 3 {
		t.Fatalf("got %d leads, want dailyMax 3", len(p.Leads))
	}
	if p.Leads[0].ID != "d" || p.Leads[1].ID != "a" || p.Leads[2].ID != "c" {
		t.Errorf("wrong ranking: %s %s %s", p.Leads[0].ID, p.Leads[1].ID, p.Leads[2].ID)
	}
	if p.Tiers[domain.TierHot] != 2 {
		t.Errorf("hot tier count = %d, want 2", p.Tiers[domain.TierHot])
	}
}

func TestPreviewExcludesSuppressed(t *testing.T) {
	suppressed := lead("s", "t1", 99)
	suppressed.Flags = map[string]bool{"doNotCall": true}
	store := newMemStore(suppressed, lead("a", "t1", 40))
	sel := NewSelector(store, testRedis(t), nil, testConfig())

	p, err := sel.Preview(context.Background(), "t1", 10, nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	for _, l := range p.Leads {
		if l.ID == "s" {
			t.Fatal("suppressed lead must never be selected")
		}
	}
}

func TestCommitThenPreviewNoOverlap(t *testing.T) {
	store := newMemStore(
		lead("a", "t1", 90), lead("b", "t1", 80),
		lead("c", "t1", 70), lead("d", "t1", 60),
	)
	sel := NewSelector(store, testRedis(t), nil, testConfig())
	ctx := context.Background()

	first, err := sel.Preview(ctx, "t1", 2, nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	committed := map[string]bool{}
	for _, l := range first.Leads {
		committed[l.ID] = true
	}

	b, err := sel.Commit(ctx, "t1", "camp-1", first.Leads)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if b.Size != 2 {
		t.Errorf("batch size = %d, want 2", b.Size)
	}

	second, err := sel.Preview(ctx, "t1", 10, nil)
	if err != nil {
		t.Fatalf("second Preview: %v", err)
	}
	for _, l := range second.Leads {
		if committed[l.ID] {
			t.Errorf("lead %s reappeared after commit", l.ID)
		}
	}
}

func TestCommitIdempotentSkip(t *testing.T) {
	store := newMemStore(lead("a", "t1", 90), lead("b", "t1", 80))
	rdb := testRedis(t)
	sel := NewSelector(store, rdb, nil, testConfig())
	ctx := context.Background()

	if _, err := sel.Commit(ctx, "t1", "camp-1", store.slice("a", "b")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	// Re-committing the same list must be a no-op, not an error, and must
	// not inflate the batch size or the usage counter.
	b, err := sel.Commit(ctx, "t1", "camp-1", store.slice("a", "b"))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if b.Size != 0 || b.Skipped != 2 {
		t.Errorf("second commit size=%d skipped=%d, want 0/2", b.Size, b.Skipped)
	}
	if got := sel.DailyUsage(ctx, "t1"); got != 2 {
		t.Errorf("daily usage after retried commit = %d, want 2", got)
	}
}

func TestCommitEmptyList(t *testing.T) {
	sel := NewSelector(newMemStore(), testRedis(t), nil, testConfig())
	if _, err := sel.Commit(context.Background(), "t1", "camp-1", nil); err != ErrEmptyBatch {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestCommitSummarizesScoreDistribution(t *testing.T) {
	store := newMemStore(
		lead("a", "t1", 90), lead("b", "t1", 62), lead("c", "t1", 40),
	)
	sel := NewSelector(store, testRedis(t), nil, testConfig())

	b, err := sel.Commit(context.Background(), "t1", "camp-1", store.slice("a", "b", "c"))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if b.Tiers[domain.TierHot] != 1 || b.Tiers[domain.TierWarm] != 1 || b.Tiers[domain.TierLukewarm] != 1 {
		t.Errorf("tiers = %v, want one hot, one warm, one lukewarm", b.Tiers)
	}
	if b.AverageScore != 64.0 {
		t.Errorf("average score = %v, want 64.0", b.AverageScore)
	}
}

func TestProgressAndCompletion(t *testing.T) {
	// Target 6, dailyMax 3. Queue all 6 leads across two commits.
	store := newMemStore(
		lead("a", "t1", 90), lead("b", "t1", 85), lead("c", "t1", 80),
		lead("d", "t1", 75), lead("e", "t1", 70), lead("f", "t1", 65),
	)
	sel := NewSelector(store, testRedis(t), nil, testConfig())
	ctx := context.Background()

	sel.Commit(ctx, "t1", "camp-1", store.slice("a", "b", "c"))
	p, _ := sel.ProgressFor(ctx, "t1")
	if p.Day != 1 || p.Complete {
		t.Errorf("after day 1: day=%d complete=%v", p.Day, p.Complete)
	}

	sel.Commit(ctx, "t1", "camp-1", store.slice("d", "e", "f"))
	p, _ = sel.ProgressFor(ctx, "t1")
	if p.Day != 2 || !p.Complete || p.PercentComplete != 100 {
		t.Errorf("after day 2: day=%d complete=%v pct=%v", p.Day, p.Complete, p.PercentComplete)
	}

	// Preview once complete: capacity reached is a successful empty result.
	pv, err := sel.Preview(ctx, "t1", 10, nil)
	if err != nil {
		t.Fatalf("Preview after completion: %v", err)
	}
	if len(pv.Leads) != 0 || !pv.Progress.Complete {
		t.Error("completed target must return empty preview with complete flag")
	}
}

func TestDailyUsageCounter(t *testing.T) {
	store := newMemStore(lead("a", "t1", 90), lead("b", "t1", 80))
	rdb := testRedis(t)
	sel := NewSelector(store, rdb, nil, testConfig())
	ctx := context.Background()

	if _, err := sel.Commit(ctx, "t1", "camp-1", store.slice("a", "b")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := sel.DailyUsage(ctx, "t1"); got != 2 {
		t.Errorf("DailyUsage = %d, want 2", got)
	}
	if got := sel.DailyUsage(ctx, "t2"); got != 0 {
		t.Errorf("DailyUsage for other team = %d, want 0", got)
	}
}

func TestTenantIsolation(t *testing.T) {
	store := newMemStore(lead("a", "t1", 90), lead("x", "t2", 95))
	sel := NewSelector(store, testRedis(t), nil, testConfig())

	p, err := sel.Preview(context.Background(), "t1", 10, nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	for _, l := range p.Leads {
		if l.TeamID != "t1" {
			t.Fatalf("cross-tenant lead %s leaked into preview", l.ID)
		}
	}
}
