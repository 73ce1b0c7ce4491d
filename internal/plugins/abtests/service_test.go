package abtests

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/lock"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/outcome"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
	"github.com/keyxmakerx/adpilot/internal/plugins/automations"
)

// --- Mocks ---

// mockPlatform implements Platform. Ads are numbered ad-1, ad-2, ... in
// creation order.
type mockPlatform struct {
	mu         sync.Mutex
	created    []metaads.AdParams
	statuses   map[string]metaads.Status
	failCreate int // 1-based index of the CreateAd call to fail; 0 never.
	failStatus map[string]bool
	insights   map[string]metaads.Insights
	insightErr map[string]error
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		statuses:   map[string]metaads.Status{},
		failStatus: map[string]bool{},
		insights:   map[string]metaads.Insights{},
		insightErr: map[string]error{},
	}
}

func (m *mockPlatform) CreateAd(_ context.Context, _ metaads.Credentials, _ string, p metaads.AdParams) (*metaads.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate == len(m.created)+1 {
		return nil, &metaads.APIError{Code: 100, Message: "Invalid parameter"}
	}
	m.created = append(m.created, p)
	return &metaads.Object{ID: fmt.Sprintf("ad-%d", len(m.created)), Status: p.Status}, nil
}

func (m *mockPlatform) UpdateStatus(_ context.Context, _ metaads.Credentials, id string, s metaads.Status) (*metaads.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatus[id] {
		return nil, &metaads.APIError{Code: 2, Message: "Service temporarily unavailable"}
	}
	m.statuses[id] = s
	return &metaads.Object{ID: id, Status: s}, nil
}

func (m *mockPlatform) GetInsights(_ context.Context, _ metaads.Credentials, target, preset string, _ []string) (metaads.Insights, error) {
	if preset != evaluationPreset {
		return nil, fmt.Errorf("unexpected preset %q", preset)
	}
	if err := m.insightErr[target]; err != nil {
		return nil, err
	}
	return m.insights[target], nil
}

// mockProvider implements generator.Provider; only variants are used.
type mockProvider struct {
	variantsFn func(count int) ([]generator.Variant, error)
}

func (m *mockProvider) GenerateCopy(context.Context, generator.Context) (*creative.Copy, error) {
	return nil, errors.New("not used")
}

func (m *mockProvider) GenerateAudience(context.Context, generator.Context) (*generator.Audience, error) {
	return nil, errors.New("not used")
}

func (m *mockProvider) GenerateImage(context.Context, string, string) (*generator.Image, error) {
	return nil, errors.New("not used")
}

func (m *mockProvider) GenerateVariants(_ context.Context, _ generator.Context, count int) ([]generator.Variant, error) {
	return m.variantsFn(count)
}

func (m *mockProvider) AnalyzeMetrics(context.Context, map[string]any, string) (*generator.Analysis, error) {
	return nil, errors.New("not used")
}

func (m *mockProvider) Enabled() bool     { return true }
func (m *mockProvider) TextModel() string { return "test-model" }
func (m *mockProvider) Close() error      { return nil }

type resultRecorder struct {
	results []*analytics.ABResult
}

func (r *resultRecorder) RecordABResult(_ context.Context, res *analytics.ABResult) error {
	r.results = append(r.results, res)
	return nil
}

// --- Helpers ---

type fixture struct {
	svc      ABTestService
	repo     TestRepository
	registry automations.Registry
	platform *mockPlatform
	provider *mockProvider
	results  *resultRecorder
	clock    time.Time
}

func newFixture(t *testing.T, locks *lock.Locker) *fixture {
	t.Helper()
	store := docstore.NewMemory()
	reg := automations.NewRegistry(automations.NewAutomationRepository(store, "automations"), nil)
	_, err := reg.Register(context.Background(), automations.RegisterRequest{
		ID: "shop-1", AdAccountID: "42", AccessToken: "tok", AppID: "app", AppSecret: "sec",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	f := &fixture{
		repo:     NewTestRepository(store, "ab_tests"),
		registry: reg,
		platform: newMockPlatform(),
		provider: &mockProvider{},
		results:  &resultRecorder{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc := NewABTestService(f.repo, reg, f.platform, f.provider, locks, f.results)
	svc.(*abTestService).now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func variants(n int) []VariantInput {
	out := make([]VariantInput, n)
	for i := range out {
		name := string(rune('A' + i))
		out[i] = VariantInput{Name: name, Copy: creative.Copy{Headline: "Headline " + name, CTA: "Shop Now"}}
	}
	return out
}

func createRequest(n int, metric string) CreateRequest {
	return CreateRequest{
		AutomationID:       "shop-1",
		CampaignID:         "cmp-1",
		AdSetID:            "as-1",
		PageID:             "page-1",
		LinkURL:            "https://acme.test",
		Name:               "Spring copy",
		Variants:           variants(n),
		OptimizationMetric: metric,
	}
}

func (f *fixture) create(t *testing.T, n int, metric string) *Test {
	t.Helper()
	res, err := f.svc.Create(context.Background(), createRequest(n, metric))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res.Test
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func boolPtr(b bool) *bool { return &b }

// --- Create ---

func TestCreate_VariantCountBounds(t *testing.T) {
	for _, n := range []int{0, 1, 6} {
		t.Run(fmt.Sprintf("%d variants", n), func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.Create(context.Background(), createRequest(n, ""))
			assertAppError(t, err, http.StatusUnprocessableEntity)
			if len(f.platform.created) != 0 {
				t.Error("no ad may be created for an invalid count")
			}
		})
	}
}

func TestCreate_UnknownMetric(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), createRequest(2, "likes"))
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestCreate_MissingHeadline(t *testing.T) {
	f := newFixture(t, nil)
	req := createRequest(2, "")
	req.Variants[1].Copy.Headline = " "
	_, err := f.svc.Create(context.Background(), req)
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestCreate_Success(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Create(context.Background(), createRequest(3, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	test := res.Test

	if !strings.HasPrefix(test.ID, "ab_") || len(test.ID) != 15 {
		t.Errorf("unexpected test id %q", test.ID)
	}
	if len(f.platform.created) != 3 {
		t.Fatalf("expected 3 ads, got %d", len(f.platform.created))
	}
	for i, p := range f.platform.created {
		if p.Status != metaads.StatusPaused {
			t.Errorf("ad %d: expected paused creation, got %s", i, p.Status)
		}
		want := fmt.Sprintf("[A/B %s] %s", test.ID, string(rune('A'+i)))
		if p.Name != want {
			t.Errorf("ad %d: expected name %q, got %q", i, want, p.Name)
		}
		if p.Creative.ObjectStorySpec.LinkData.CallToAction.Type != "SHOP_NOW" {
			t.Errorf("ad %d: unexpected cta", i)
		}
	}

	stored, err := f.svc.Get(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusActive || len(stored.Variants) != 3 {
		t.Fatalf("unexpected stored test %+v", stored)
	}
	for i, v := range stored.Variants {
		if v.Index != i || v.AdID != fmt.Sprintf("ad-%d", i+1) {
			t.Errorf("variant %d out of order: %+v", i, v)
		}
	}
	if stored.OptimizationMetric != DefaultMetric || !stored.AutoApplyWinner {
		t.Errorf("expected defaults, got metric %q auto %v", stored.OptimizationMetric, stored.AutoApplyWinner)
	}
	if !stored.EndAt.Equal(f.clock.Add(24 * time.Hour)) {
		t.Errorf("unexpected end_at %v", stored.EndAt)
	}

	if res.Activation.Status() != outcome.StatusSuccess {
		t.Errorf("expected all activated, got %+v", res.Activation)
	}
	for _, v := range stored.Variants {
		if f.platform.statuses[v.AdID] != metaads.StatusActive {
			t.Errorf("ad %s not activated", v.AdID)
		}
	}

	logs, _ := f.registry.AuditLog(context.Background(), "shop-1")
	if len(logs) != 1 || logs[0].Action != "create_ab_test" {
		t.Errorf("unexpected audit %+v", logs)
	}
}

func TestCreate_VariantFailureAbortsWithoutRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.failCreate = 2

	_, err := f.svc.Create(context.Background(), createRequest(3, ""))
	assertAppError(t, err, http.StatusBadGateway)

	if len(f.platform.created) != 1 {
		t.Errorf("expected creation to stop after the failure, got %d ads", len(f.platform.created))
	}
	tests, _ := f.svc.List(context.Background(), "shop-1")
	if len(tests) != 0 {
		t.Errorf("expected no stored test, got %d", len(tests))
	}
	logs, _ := f.registry.AuditLog(context.Background(), "shop-1")
	if len(logs) != 1 || logs[0].Error == "" {
		t.Errorf("expected failure audited, got %+v", logs)
	}
}

func TestCreate_ActivationFailureIsPartial(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.failStatus["ad-2"] = true

	res, err := f.svc.Create(context.Background(), createRequest(3, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Activation.Status() != outcome.StatusPartial {
		t.Errorf("expected partial activation, got %s", res.Activation.Status())
	}
	if failed := res.Activation.Failed(); len(failed) != 1 || failed[0].Key != "ad-2" {
		t.Errorf("unexpected failures %+v", failed)
	}
	if f.platform.statuses["ad-3"] != metaads.StatusActive {
		t.Error("activation must continue past a failure")
	}
}

func TestCreate_UnknownAutomation(t *testing.T) {
	f := newFixture(t, nil)
	req := createRequest(2, "")
	req.AutomationID = "ghost"
	_, err := f.svc.Create(context.Background(), req)
	assertAppError(t, err, http.StatusNotFound)
}

// --- CreateWithAI ---

func generateRequest(n int) GenerateRequest {
	return GenerateRequest{
		AutomationID: "shop-1",
		CampaignID:   "cmp-1",
		AdSetID:      "as-1",
		PageID:       "page-1",
		LinkURL:      "https://acme.test",
		Context:      generator.Context{ProductName: "Acme Coffee"},
		NumVariants:  n,
	}
}

func TestCreateWithAI_MapsVariants(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.variantsFn = func(count int) ([]generator.Variant, error) {
		out := make([]generator.Variant, count)
		for i := range out {
			out[i] = generator.Variant{
				Name:     fmt.Sprintf("Variant %c", 'A'+i),
				Approach: generator.Approaches[i].Key,
				Copy:     creative.Copy{Headline: fmt.Sprintf("H%d", i)},
			}
		}
		return out, nil
	}

	res, err := f.svc.CreateWithAI(context.Background(), generateRequest(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AIGenerated || len(res.AIVariants) != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Test.Name != "A/B Test: Acme Coffee" {
		t.Errorf("unexpected name %q", res.Test.Name)
	}
	if res.Test.Variants[1].Approach != "urgency" {
		t.Errorf("expected approach kept, got %+v", res.Test.Variants[1])
	}
}

func TestCreateWithAI_NoVariants(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.variantsFn = func(int) ([]generator.Variant, error) { return nil, nil }

	_, err := f.svc.CreateWithAI(context.Background(), generateRequest(2))
	assertAppError(t, err, http.StatusBadGateway)
	if len(f.platform.created) != 0 {
		t.Error("no ad may be created")
	}
}

func TestCreateWithAI_NotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.variantsFn = func(int) ([]generator.Variant, error) { return nil, generator.ErrNotConfigured }

	_, err := f.svc.CreateWithAI(context.Background(), generateRequest(2))
	assertAppError(t, err, http.StatusServiceUnavailable)
}

func TestCreateWithAI_CountBounds(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateWithAI(context.Background(), generateRequest(5))
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

// --- Evaluate ---

func TestEvaluate_LowerIsBetter(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 3, "cpc")
	f.platform.insights["ad-1"] = metaads.Insights{"cpc": "3.0"}
	f.platform.insights["ad-2"] = metaads.Insights{"cpc": "1.0"}
	f.platform.insights["ad-3"] = metaads.Insights{"cpc": "2.0"}

	ev, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Winner.AdID != "ad-2" || ev.Winner.Value != 1.0 {
		t.Errorf("expected ad-2 to win, got %+v", ev.Winner)
	}
	order := []string{ev.Ranking[0].AdID, ev.Ranking[1].AdID, ev.Ranking[2].AdID}
	if strings.Join(order, ",") != "ad-2,ad-3,ad-1" {
		t.Errorf("unexpected ranking %v", order)
	}
	if ev.Ranking[2].Rank != 3 {
		t.Errorf("expected ranks assigned, got %+v", ev.Ranking[2])
	}
}

func TestEvaluate_HigherIsBetter(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 3, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "3.0"}
	f.platform.insights["ad-2"] = metaads.Insights{"ctr": "1.0"}
	f.platform.insights["ad-3"] = metaads.Insights{"ctr": "2.0"}

	ev, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Winner.AdID != "ad-1" {
		t.Errorf("expected ad-1 to win, got %+v", ev.Winner)
	}
	if ev.DeltaPct == nil || *ev.DeltaPct != 50 {
		t.Errorf("expected 50%% margin, got %v", ev.DeltaPct)
	}
	if ev.SignificanceChecked {
		t.Error("significance is never checked")
	}
}

func TestEvaluate_TiesKeepCreationOrder(t *testing.T) {
	for _, metric := range []string{"ctr", "cpc"} {
		t.Run(metric, func(t *testing.T) {
			f := newFixture(t, nil)
			test := f.create(t, 4, metric)
			for i := 1; i <= 4; i++ {
				f.platform.insights[fmt.Sprintf("ad-%d", i)] = metaads.Insights{metric: "1.5"}
			}

			ev, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, r := range ev.Ranking {
				if r.AdID != fmt.Sprintf("ad-%d", i+1) {
					t.Errorf("rank %d: expected ad-%d, got %s", i+1, i+1, r.AdID)
				}
			}
			if ev.DeltaPct == nil || *ev.DeltaPct != 0 {
				t.Errorf("expected zero margin, got %v", ev.DeltaPct)
			}
		})
	}
}

func TestEvaluate_FetchErrorRanksAsZero(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 3, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "0.5"}
	f.platform.insightErr["ad-2"] = &metaads.APIError{Code: 100, Message: "Unsupported get request"}
	f.platform.insights["ad-3"] = metaads.Insights{"ctr": "1.2"}

	ev, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := ev.Ranking[2]
	if last.AdID != "ad-2" || last.Value != 0 || last.FetchError == "" {
		t.Errorf("expected failed variant last with zero value, got %+v", last)
	}
}

func TestEvaluate_NoUsableMetrics(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 2, "ctr")

	_, err := f.svc.Evaluate(context.Background(), test.ID, nil)
	assertAppError(t, err, http.StatusServiceUnavailable)

	stored, _ := f.svc.Get(context.Background(), test.ID)
	if stored.Status != StatusActive {
		t.Errorf("test must stay active, got %s", stored.Status)
	}
}

func TestEvaluate_AllFetchesFailed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	test := f.create(t, 2, "ctr")
	expired := &metaads.APIError{Code: 190, Message: "Error validating access token"}
	f.platform.insightErr["ad-1"] = expired
	f.platform.insightErr["ad-2"] = expired
	before, _ := f.registry.AuditLog(ctx, test.AutomationID)

	_, err := f.svc.Evaluate(ctx, test.ID, nil)
	assertAppError(t, err, http.StatusBadGateway)
	if !strings.Contains(apperror.SafeMessage(err), "Error validating access token") {
		t.Errorf("expected the platform reason in the message, got %q", apperror.SafeMessage(err))
	}

	logs, _ := f.registry.AuditLog(ctx, test.AutomationID)
	if len(logs) != len(before)+1 {
		t.Fatalf("expected one new audit entry, got %d", len(logs)-len(before))
	}
	last := logs[len(logs)-1]
	if last.Action != "evaluate_ab_test" || last.Error == "" {
		t.Errorf("expected failed evaluation audited, got %+v", last)
	}

	stored, _ := f.svc.Get(ctx, test.ID)
	if stored.Status != StatusActive {
		t.Errorf("test must stay active, got %s", stored.Status)
	}
}

func TestEvaluate_AutoApplyPausesLosers(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 3, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "2.0"}
	f.platform.insights["ad-2"] = metaads.Insights{"ctr": "1.0"}
	f.platform.insights["ad-3"] = metaads.Insights{"ctr": "0.5"}
	f.platform.failStatus["ad-2"] = true

	ev, err := f.svc.Evaluate(context.Background(), test.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.AutoApplied {
		t.Error("expected stored auto-apply flag used")
	}
	if ev.Pauses.Status() != outcome.StatusPartial {
		t.Errorf("expected partial pause report, got %s", ev.Pauses.Status())
	}
	if f.platform.statuses["ad-3"] != metaads.StatusPaused {
		t.Error("remaining losers must still be paused")
	}
	if f.platform.statuses["ad-1"] != metaads.StatusActive {
		t.Error("winner must stay active")
	}
	if len(ev.ActionsApplied) != 1 {
		t.Errorf("expected one applied action, got %v", ev.ActionsApplied)
	}

	stored, _ := f.svc.Get(context.Background(), test.ID)
	if stored.Status != StatusCompleted || stored.Winner == nil || stored.Winner.AdID != "ad-1" {
		t.Errorf("expected completed test with winner, got %+v", stored)
	}
	if len(stored.Results) != 3 || stored.EvaluatedAt == nil {
		t.Errorf("expected frozen results, got %+v", stored.Results)
	}
}

func TestEvaluate_OverrideDisablesAutoApply(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 2, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "2.0"}
	f.platform.insights["ad-2"] = metaads.Insights{"ctr": "1.0"}

	ev, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.AutoApplied || ev.Pauses != nil {
		t.Errorf("expected no pauses, got %+v", ev)
	}
	if f.platform.statuses["ad-2"] != metaads.StatusActive {
		t.Error("loser must not be paused")
	}
}

func TestEvaluate_RecordsResultAndAudit(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 2, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "1.0"}
	f.platform.insights["ad-2"] = metaads.Insights{"ctr": "4.0"}

	if _, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.results.results) != 1 {
		t.Fatalf("expected one result, got %d", len(f.results.results))
	}
	r := f.results.results[0]
	if r.TestID != test.ID || r.WinnerAdID != "ad-2" || r.MetricUsed != "ctr" || r.DeltaPct == nil || *r.DeltaPct != 300 {
		t.Errorf("unexpected result %+v", r)
	}
	logs, _ := f.registry.AuditLog(context.Background(), "shop-1")
	if logs[len(logs)-1].Action != "evaluate_ab_test" {
		t.Errorf("expected evaluation audited, got %+v", logs[len(logs)-1])
	}
}

func TestEvaluate_CompletedOnce(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 2, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "1.0"}

	if _, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false)); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	_, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false))
	assertAppError(t, err, http.StatusConflict)
}

func TestEvaluate_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Evaluate(context.Background(), "ab_missing", nil)
	assertAppError(t, err, http.StatusNotFound)
}

func TestEvaluate_LockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	locks := lock.New(rdb, time.Minute)

	f := newFixture(t, locks)
	test := f.create(t, 2, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "1.0"}

	held, err := locks.Acquire(context.Background(), "abtest:"+test.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = f.svc.Evaluate(context.Background(), test.ID, nil)
	assertAppError(t, err, http.StatusConflict)

	if err := held.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false)); err != nil {
		t.Fatalf("evaluation after release: %v", err)
	}
}

// --- Listing and sweeping ---

func TestList_OmitsResults(t *testing.T) {
	f := newFixture(t, nil)
	test := f.create(t, 2, "ctr")
	f.platform.insights["ad-1"] = metaads.Insights{"ctr": "1.0"}
	if _, err := f.svc.Evaluate(context.Background(), test.ID, boolPtr(false)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	tests, err := f.svc.List(context.Background(), "shop-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tests) != 1 || tests[0].Results != nil {
		t.Errorf("expected results omitted, got %+v", tests)
	}

	_, err = f.svc.List(context.Background(), "")
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestEvaluateDue_OnlyPastEndTime(t *testing.T) {
	f := newFixture(t, nil)
	due := f.create(t, 2, "ctr")

	f.clock = f.clock.Add(12 * time.Hour)
	notDue := f.create(t, 2, "ctr")

	for i := 1; i <= 4; i++ {
		f.platform.insights[fmt.Sprintf("ad-%d", i)] = metaads.Insights{"ctr": "1.0"}
	}

	f.clock = f.clock.Add(13 * time.Hour)
	n, err := f.svc.EvaluateDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one evaluation, got %d", n)
	}

	a, _ := f.svc.Get(context.Background(), due.ID)
	b, _ := f.svc.Get(context.Background(), notDue.ID)
	if a.Status != StatusCompleted || b.Status != StatusActive {
		t.Errorf("unexpected statuses %s / %s", a.Status, b.Status)
	}
}

func TestSweeper_Disabled(t *testing.T) {
	s := NewSweeper(nil, 0)
	if s.Enabled() {
		t.Fatal("zero interval must disable the sweeper")
	}
	s.Run(context.Background())
}

func TestRank_Direction(t *testing.T) {
	values := func() []Ranked {
		return []Ranked{{AdID: "a", Value: 3}, {AdID: "b", Value: 1}, {AdID: "c", Value: 2}}
	}

	lower := values()
	Rank(lower, "cpm")
	if lower[0].AdID != "b" {
		t.Errorf("cpm: expected b first, got %s", lower[0].AdID)
	}

	higher := values()
	Rank(higher, "clicks")
	if higher[0].AdID != "a" {
		t.Errorf("clicks: expected a first, got %s", higher[0].AdID)
	}
}

func TestMetricValue_CostPerAction(t *testing.T) {
	ins := metaads.Insights{"cost_per_action_type": []any{
		map[string]any{"action_type": "link_click", "value": "0.42"},
	}}
	if got := metricValue(ins, "cpa"); got != 0.42 {
		t.Errorf("expected 0.42, got %v", got)
	}
}
