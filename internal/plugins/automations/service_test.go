package automations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// --- Test Helpers ---

// recordingErrors implements ErrorRecorder.
type recordingErrors struct {
	calls []string
}

func (r *recordingErrors) RecordError(_ context.Context, automationID, operation, message string) {
	r.calls = append(r.calls, automationID+"|"+operation+"|"+message)
}

// newTestRegistry returns a registry over the in-memory store with a clock
// that advances one second per call.
func newTestRegistry(t *testing.T, rec ErrorRecorder) (*registry, docstore.Store) {
	t.Helper()
	store := docstore.NewMemory()
	s := NewRegistry(NewAutomationRepository(store, "tenants/ads/automations"), rec).(*registry)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, store
}

func validRegister() RegisterRequest {
	return RegisterRequest{
		ID:          "shop-1",
		AdAccountID: "123456",
		AccessToken: "token",
		AppID:       "app-1",
		AppSecret:   "secret",
	}
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

// --- Register / Upsert ---

func TestRegister_CreatesWithDefaults(t *testing.T) {
	s, _ := newTestRegistry(t, nil)

	a, err := s.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AdAccountID != "act_123456" {
		t.Errorf("expected normalized account id, got %q", a.AdAccountID)
	}
	if a.Status != StatusActive {
		t.Errorf("expected status active, got %q", a.Status)
	}
	if a.CampaignID != "" {
		t.Errorf("expected no campaign, got %q", a.CampaignID)
	}
	if a.Logs.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", a.Logs.Len())
	}
}

func TestRegister_RejectsShortID(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	req := validRegister()
	req.ID = "ab"
	_, err := s.Register(context.Background(), req)
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestRegister_RejectsMissingToken(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	req := validRegister()
	req.AccessToken = "  "
	_, err := s.Register(context.Background(), req)
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestUpsert_Idempotent(t *testing.T) {
	s, store := newTestRegistry(t, nil)
	ctx := context.Background()

	first, err := s.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := s.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("second register: %v", err)
	}

	docs, err := store.Query(ctx, "tenants/ads/automations", docstore.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one stored record, got %d", len(docs))
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v then %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on upsert: %v then %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestUpsert_MergesCredentialsKeepsState(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.SetCampaignReference(ctx, "shop-1", "cmp-9"); err != nil {
		t.Fatalf("set campaign: %v", err)
	}

	req := validRegister()
	req.AccessToken = "rotated"
	a, err := s.Register(ctx, req)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if a.AccessToken != "rotated" {
		t.Errorf("expected rotated token, got %q", a.AccessToken)
	}
	if a.CampaignID != "cmp-9" {
		t.Errorf("expected campaign reference kept, got %q", a.CampaignID)
	}
}

func TestCreate_Conflict(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if err := s.Create(ctx, &Automation{ID: "dup"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	assertAppError(t, s.Create(ctx, &Automation{ID: "dup"}), http.StatusConflict)
}

// --- Get / Require / Update ---

func TestGet_MissingReturnsNil(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	a, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestRequire_Missing(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	_, err := s.Require(context.Background(), "nope")
	assertAppError(t, err, http.StatusNotFound)
}

func TestUpdate_Missing(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	err := s.Update(context.Background(), "nope", map[string]any{"status": "paused"})
	assertAppError(t, err, http.StatusNotFound)
}

func TestSetStatus(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.SetStatus(ctx, "shop-1", StatusPaused); err != nil {
		t.Fatalf("set status: %v", err)
	}
	a, _ := s.Require(ctx, "shop-1")
	if a.Status != StatusPaused {
		t.Errorf("expected paused, got %q", a.Status)
	}

	assertAppError(t, s.SetStatus(ctx, "shop-1", "deleted"), http.StatusUnprocessableEntity)
}

func TestUpdateMetricsSnapshot_Stamps(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.UpdateMetricsSnapshot(ctx, "shop-1", map[string]any{"ctr": "1.5"}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	a, _ := s.Require(ctx, "shop-1")
	if a.MetricsSnapshot["ctr"] != "1.5" {
		t.Errorf("expected ctr kept, got %v", a.MetricsSnapshot)
	}
	if _, ok := a.MetricsSnapshot["snapshot_at"]; !ok {
		t.Error("expected snapshot_at stamp")
	}
}

// --- Audit log ---

func TestAppendAuditLog_BoundedOldestEvicted(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	const total = AuditCapacity + 25
	for i := 0; i < total; i++ {
		if err := s.AppendAuditLog(ctx, "shop-1", fmt.Sprintf("action-%d", i), nil, ""); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := s.AuditLog(ctx, "shop-1")
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(entries) != AuditCapacity {
		t.Fatalf("expected %d entries, got %d", AuditCapacity, len(entries))
	}
	if entries[0].Action != "action-25" {
		t.Errorf("expected oldest kept entry action-25, got %q", entries[0].Action)
	}
	if entries[len(entries)-1].Action != fmt.Sprintf("action-%d", total-1) {
		t.Errorf("expected newest entry last, got %q", entries[len(entries)-1].Action)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entries out of insertion order at %d", i)
		}
	}
}

func TestAppendAuditLog_MissingAutomationIsNoop(t *testing.T) {
	s, store := newTestRegistry(t, nil)
	ctx := context.Background()

	if err := s.AppendAuditLog(ctx, "ghost", "create_campaign", nil, ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	docs, _ := store.Query(ctx, "tenants/ads/automations", docstore.Query{})
	if len(docs) != 0 {
		t.Errorf("expected nothing created, got %d docs", len(docs))
	}
}

func TestAppendAuditLog_KeepsErrorAndResult(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.AppendAuditLog(ctx, "shop-1", "list_campaigns", map[string]any{"count": 3}, "boom"); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, _ := s.AuditLog(ctx, "shop-1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Error != "boom" {
		t.Errorf("expected error kept, got %q", entries[0].Error)
	}
	result, ok := entries[0].Result.(map[string]any)
	if !ok || result["count"] != float64(3) {
		t.Errorf("unexpected result %#v", entries[0].Result)
	}
}

// --- List / Delete ---

func TestList_FilterAndOrder(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		if err := s.Create(ctx, &Automation{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.SetStatus(ctx, "second", StatusPaused); err != nil {
		t.Fatalf("set status: %v", err)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "third" {
		t.Errorf("expected newest first, got %+v", all)
	}

	paused, err := s.List(ctx, StatusPaused)
	if err != nil {
		t.Fatalf("list paused: %v", err)
	}
	if len(paused) != 1 || paused[0].ID != "second" {
		t.Errorf("expected only second, got %+v", paused)
	}

	_, err = s.List(ctx, "bogus")
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestDelete(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if err := s.Create(ctx, &Automation{ID: "gone"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertAppError(t, s.Delete(ctx, "gone"), http.StatusNotFound)
}

// --- RecordFailure ---

func TestRecordFailure_AuditsAndReturnsRemote(t *testing.T) {
	rec := &recordingErrors{}
	s, _ := newTestRegistry(t, rec)
	ctx := context.Background()
	if _, err := s.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	apiErr := &metaads.APIError{Code: 190, Message: "token expired"}
	err := s.RecordFailure(ctx, "shop-1", "create_campaign", apiErr)
	assertAppError(t, err, http.StatusBadGateway)
	if !errors.Is(err, apiErr) {
		t.Error("expected original error kept for logging")
	}

	entries, _ := s.AuditLog(ctx, "shop-1")
	if len(entries) != 1 || entries[0].Action != "create_campaign" {
		t.Fatalf("expected one create_campaign entry, got %+v", entries)
	}
	if entries[0].Error != apiErr.Describe() {
		t.Errorf("expected decoded reason in audit, got %q", entries[0].Error)
	}
	if len(rec.calls) != 1 {
		t.Errorf("expected one error record, got %d", len(rec.calls))
	}
}

func TestRecordFailure_MissingCredentials(t *testing.T) {
	s, _ := newTestRegistry(t, nil)
	err := s.RecordFailure(context.Background(), "shop-1", "create_ad", metaads.ErrMissingCredentials)
	assertAppError(t, err, http.StatusBadRequest)
}
