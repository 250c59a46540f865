package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reachforge/lead-engine/internal/batch"
	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/domain"
	"github.com/reachforge/lead-engine/internal/inbound"
	"github.com/reachforge/lead-engine/internal/loop"
	"github.com/reachforge/lead-engine/internal/repository/postgres"
	"github.com/reachforge/lead-engine/internal/scheduler"
)

type fakeSelector struct {
	preview    *batch.Preview
	previewErr error
	committed  *domain.Batch
	commitErr  error
	commitIDs  []string
	progress   *domain.Progress
}

func (f *fakeSelector) Preview(_ context.Context, teamID string, limit int, industries []string) (*batch.Preview, error) {
	return f.preview, f.previewErr
}

func (f *fakeSelector) Commit(_ context.Context, teamID, campaignID string, leads []domain.Lead) (*domain.Batch, error) {
	for _, l := range leads {
		f.commitIDs = append(f.commitIDs, l.ID)
	}
	return f.committed, f.commitErr
}

func (f *fakeSelector) ProgressFor(_ context.Context, teamID string) (*domain.Progress, error) {
	if f.progress == nil {
		return &domain.Progress{Target: 20000}, nil
	}
	return f.progress, nil
}

func (f *fakeSelector) DailyUsage(_ context.Context, teamID string) int { return 0 }

type fakeEngine struct {
	result    loop.AdvanceResult
	resultErr error
	state     *domain.EscalationState
	stateErr  error
	actions   []string
}

func (f *fakeEngine) Start(_ context.Context, lead *domain.Lead, campaignID string) (loop.AdvanceResult, error) {
	f.actions = append(f.actions, "start")
	return f.result, f.resultErr
}

func (f *fakeEngine) Advance(_ context.Context, leadID, campaignID string) (loop.AdvanceResult, error) {
	f.actions = append(f.actions, "advance")
	return f.result, f.resultErr
}

func (f *fakeEngine) Pause(_ context.Context, leadID, campaignID string) error {
	f.actions = append(f.actions, "pause")
	return f.stateErr
}

func (f *fakeEngine) Resume(_ context.Context, leadID, campaignID string) error {
	f.actions = append(f.actions, "resume")
	return f.stateErr
}

func (f *fakeEngine) Reset(_ context.Context, leadID, campaignID string) error {
	f.actions = append(f.actions, "reset")
	return f.stateErr
}

func (f *fakeEngine) State(_ context.Context, leadID, campaignID string) (*domain.EscalationState, error) {
	return f.state, f.stateErr
}

func (f *fakeEngine) ProcessBatch(_ context.Context, campaignID string) (map[string]loop.AdvanceResult, error) {
	return map[string]loop.AdvanceResult{"lead-1": f.result}, f.resultErr
}

type fakeRouter struct {
	result *inbound.Result
	err    error
	teamID string
	msg    inbound.Message
	called bool
}

func (f *fakeRouter) Handle(_ context.Context, teamID string, msg inbound.Message) (*inbound.Result, error) {
	f.called = true
	f.teamID = teamID
	f.msg = msg
	return f.result, f.err
}

type fakeScheduler struct {
	summary *scheduler.Summary
	err     error
	rules   []config.TransitionRule
	dryRun  bool
}

func (f *fakeScheduler) Run(_ context.Context, teamID string, rules []config.TransitionRule, dryRun bool) (*scheduler.Summary, error) {
	f.rules = rules
	f.dryRun = dryRun
	return f.summary, f.err
}

func (f *fakeScheduler) Plan(_ context.Context, teamID string, rules []config.TransitionRule) (*scheduler.Summary, error) {
	f.rules = rules
	return f.summary, f.err
}

type fakeLeads struct {
	lead *domain.Lead
	err  error
}

func (f *fakeLeads) Get(_ context.Context, teamID, id string) (*domain.Lead, error) {
	return f.lead, f.err
}

type testDeps struct {
	selector *fakeSelector
	engine   *fakeEngine
	router   *fakeRouter
	sched    *fakeScheduler
	leads    *fakeLeads
}

func newTestServer(t *testing.T) (*httptest.Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		selector: &fakeSelector{},
		engine:   &fakeEngine{},
		router:   &fakeRouter{result: &inbound.Result{Status: inbound.StatusRouted}},
		sched:    &fakeScheduler{summary: &scheduler.Summary{TeamID: "team-1"}},
		leads:    &fakeLeads{},
	}
	h := NewHandlers(deps.selector, deps.engine, deps.router, deps.sched, deps.leads, nil, "secret")
	server := httptest.NewServer(SetupRoutes(h, nil))
	t.Cleanup(server.Close)
	return server, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestWebhookBadToken(t *testing.T) {
	server, deps := newTestServer(t)

	resp := postJSON(t, server.URL+"/webhooks/sms?token=wrong", map[string]any{
		"event": "message.received",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if deps.router.called {
		t.Error("router must not run on a bad token")
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	server, deps := newTestServer(t)

	resp := postJSON(t, server.URL+"/webhooks/sms?token=secret", map[string]any{
		"event": "message.delivered",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["success"] != true || body["event"] != "message.delivered" {
		t.Errorf("body = %v", body)
	}
	if deps.router.called {
		t.Error("unknown events must not be routed")
	}
}

func TestWebhookMessageReceived(t *testing.T) {
	server, deps := newTestServer(t)

	resp := postJSON(t, server.URL+"/webhooks/sms?token=secret&teamId=team-9", map[string]any{
		"event": "message.received",
		"data": map[string]any{
			"from":      "+15551234567",
			"message":   "yes, tell me more",
			"messageId": "msg-7",
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !deps.router.called {
		t.Fatal("router was not called")
	}
	if deps.router.teamID != "team-9" {
		t.Errorf("teamID = %q, want %q", deps.router.teamID, "team-9")
	}
	if deps.router.msg.ExternalID != "msg-7" {
		t.Errorf("external id = %q, want %q", deps.router.msg.ExternalID, "msg-7")
	}
}

func TestCommitBatchNoLeads(t *testing.T) {
	server, deps := newTestServer(t)
	deps.selector.preview = &batch.Preview{Progress: domain.Progress{Target: 20000}}

	resp := postJSON(t, server.URL+"/api/batch", map[string]any{
		"teamId":     "team-1",
		"campaignId": "camp-1",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCommitBatchTargetReached(t *testing.T) {
	server, deps := newTestServer(t)
	deps.selector.preview = &batch.Preview{
		Progress: domain.Progress{Cumulative: 20000, Target: 20000, Complete: true},
	}

	resp := postJSON(t, server.URL+"/api/batch", map[string]any{
		"teamId":     "team-1",
		"campaignId": "camp-1",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["complete"] != true {
		t.Errorf("complete = %v, want true", body["complete"])
	}
	if deps.selector.commitIDs != nil {
		t.Error("nothing must be committed once the target is reached")
	}
}

func TestCommitBatchSuccess(t *testing.T) {
	server, deps := newTestServer(t)
	deps.selector.preview = &batch.Preview{
		Leads:    []domain.Lead{{ID: "a"}, {ID: "b"}},
		Progress: domain.Progress{Cumulative: 10, Target: 20000},
	}
	deps.selector.committed = &domain.Batch{CycleTag: "cycle1-camp-1", Size: 2}

	resp := postJSON(t, server.URL+"/api/batch", map[string]any{
		"teamId":     "team-1",
		"campaignId": "camp-1",
		"batchSize":  2,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(deps.selector.commitIDs) != 2 {
		t.Errorf("committed ids = %v, want the previewed pair", deps.selector.commitIDs)
	}
}

func TestLoopUnknownAction(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "destroy",
		"lead_id": "a",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoopStartUnknownLead(t *testing.T) {
	server, deps := newTestServer(t)
	deps.leads.err = postgres.ErrNotFound

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "start",
		"team_id": "team-1",
		"lead_id": "missing",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLoopSendNextUnknownState(t *testing.T) {
	server, deps := newTestServer(t)
	deps.engine.resultErr = loop.ErrStateNotFound

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "send_next",
		"lead_id": "a",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLoopSendNext(t *testing.T) {
	server, deps := newTestServer(t)
	deps.engine.result = loop.AdvanceResult{LeadID: "a", Status: loop.ResultSent, Step: 1, TotalSteps: 5}

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "send_next",
		"lead_id": "a",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var result loop.AdvanceResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != loop.ResultSent || result.Step != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestLoopTransportFailure(t *testing.T) {
	server, deps := newTestServer(t)
	deps.engine.result = loop.AdvanceResult{LeadID: "a", Status: loop.ResultTransportFailed, Step: 2}
	deps.engine.resultErr = errors.New("dispatch step 2: gateway timeout")

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "send_next",
		"lead_id": "a",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestLoopPause(t *testing.T) {
	server, deps := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/loop", map[string]any{
		"action":  "pause",
		"lead_id": "a",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(deps.engine.actions) != 1 || deps.engine.actions[0] != "pause" {
		t.Errorf("actions = %v", deps.engine.actions)
	}
}

func TestSchedulerRunValidatesRules(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/scheduler/run", map[string]any{
		"teamId": "team-1",
		"config": []map[string]any{{"fromStage": "new", "toStage": "", "inactivityDays": 7}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSchedulerRunDefaultsRules(t *testing.T) {
	server, deps := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/scheduler/run", map[string]any{
		"teamId": "team-1",
		"dryRun": true,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !deps.sched.dryRun {
		t.Error("dryRun flag not forwarded")
	}
	if len(deps.sched.rules) == 0 {
		t.Error("default rules not applied")
	}
}

func TestSchedulerPreview(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/scheduler/preview?teamId=team-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetBatchRequiresTeam(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/batch")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
