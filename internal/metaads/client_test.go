package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testCreds = Credentials{AppID: "1234567890", AppSecret: "s3cret", AccessToken: "tok-a"}

// fastPolicy keeps retry tests from sleeping on real intervals.
var fastPolicy = RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{GraphURL: srv.URL, APIVersion: "v20.0", Retry: fastPolicy})
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg, "type": "OAuthException"},
	})
}

func TestRetry_ExhaustsAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, 17, "User request limit reached")
	})

	_, err := c.GetInsights(context.Background(), testCreds, "c1", "last_7d", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 17 {
		t.Errorf("expected code 17 propagated, got %d", apiErr.Code)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestRetry_OAuthFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, 190, "Invalid OAuth access token")
	})

	_, err := c.UpdateStatus(context.Background(), testCreds, "c1", StatusPaused)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.OAuth() {
		t.Fatalf("expected OAuth error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestRetry_InvalidParameterNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, 100, "Invalid parameter")
	})

	_, err := c.GetCampaign(context.Background(), testCreds, "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
	if !strings.Contains(Describe(err), "Check the fields sent") {
		t.Errorf("expected parameter hint, got %q", Describe(err))
	}
}

func TestRetry_RecoversAfterTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeError(w, http.StatusServiceUnavailable, 2, "Service temporarily unavailable")
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"clicks":"42","ctr":"1.5"}]}`))
	})

	ins, err := c.GetInsights(context.Background(), testCreds, "c1", "last_7d", []string{"clicks", "ctr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.Float("clicks") != 42 {
		t.Errorf("expected clicks 42, got %v", ins.Float("clicks"))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRetry_ServerErrorWithoutCode(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GetCampaign(context.Background(), testCreds, "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 5xx to be retried 3 times, got %d", calls.Load())
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		writeError(w, http.StatusBadRequest, 4, "Application request limit reached")
	})

	if _, err := c.GetCampaign(ctx, testCreds, "c1"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retry after cancel, got %d attempts", calls.Load())
	}
}

func TestGetInsights_EmptyIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	ins, err := c.GetInsights(context.Background(), testCreds, "c1", "yesterday", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins == nil || !ins.Empty() {
		t.Errorf("expected empty non-nil insights, got %v", ins)
	}
}

func TestGetInsights_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v20.0/ad1/insights" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("date_preset") != "maximum" {
			t.Errorf("expected date_preset maximum, got %q", q.Get("date_preset"))
		}
		if q.Get("fields") != "ctr,cpc" {
			t.Errorf("expected fields ctr,cpc, got %q", q.Get("fields"))
		}
		_, _ = w.Write([]byte(`{"data":[{"ctr":"2.5"}]}`))
	})

	ins, err := c.GetInsights(context.Background(), testCreds, "ad1", "maximum", []string{"ctr", "cpc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.Float("ctr") != 2.5 {
		t.Errorf("expected ctr 2.5, got %v", ins.Float("ctr"))
	}
	if ins.Float("cpc") != 0 {
		t.Errorf("absent metric must read as 0, got %v", ins.Float("cpc"))
	}
}

func TestCredentials_PerCall(t *testing.T) {
	tokens := make(chan string, 2)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		tokens <- r.Form.Get("access_token") + "|" + r.Form.Get("appsecret_proof")
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	other := Credentials{AppID: "999", AccessToken: "tok-b"}
	if _, err := c.UpdateStatus(context.Background(), testCreds, "c1", StatusActive); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.UpdateStatus(context.Background(), other, "c2", StatusActive); err != nil {
		t.Fatalf("second call: %v", err)
	}

	first, second := <-tokens, <-tokens
	if !strings.HasPrefix(first, "tok-a|") || strings.HasSuffix(first, "|") {
		t.Errorf("expected tenant A token with proof, got %q", first)
	}
	if second != "tok-b|" {
		t.Errorf("expected tenant B token without proof, got %q", second)
	}
}

func TestCall_MissingCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.GetCampaign(context.Background(), Credentials{AppID: "1"}, "c1")
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestCreateCampaign_NormalizesAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v20.0/act_42/campaigns" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.Form.Get("daily_budget") != "5000" {
			t.Errorf("expected daily_budget 5000, got %q", r.Form.Get("daily_budget"))
		}
		if r.Form.Get("special_ad_categories") != "[]" {
			t.Errorf("expected empty categories, got %q", r.Form.Get("special_ad_categories"))
		}
		if r.Form.Has("lifetime_budget") {
			t.Error("lifetime_budget must be omitted")
		}
		_, _ = w.Write([]byte(`{"id":"120"}`))
	})

	daily := int64(5000)
	obj, err := c.CreateCampaign(context.Background(), testCreds, "42", CampaignParams{
		Name:        "Spring",
		Objective:   "OUTCOME_TRAFFIC",
		Status:      StatusPaused,
		DailyBudget: &daily,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.ID != "120" || obj.Status != StatusPaused {
		t.Errorf("unexpected object %+v", obj)
	}
}

func TestCreateAd_SendsCreativeWithExtra(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		var creative map[string]any
		if err := json.Unmarshal([]byte(r.Form.Get("creative")), &creative); err != nil {
			t.Errorf("creative is not JSON: %v", err)
			return
		}
		if creative["degrees_of_freedom_spec"] == nil {
			t.Error("expected extra creative key to be sent")
		}
		story := creative["object_story_spec"].(map[string]any)
		link := story["link_data"].(map[string]any)
		if link["name"] != "Headline" {
			t.Errorf("expected headline in link_data.name, got %v", link["name"])
		}
		_, _ = w.Write([]byte(`{"id":"ad9"}`))
	})

	spec := CreativeSpec{
		ObjectStorySpec: &ObjectStorySpec{
			PageID:   "p1",
			LinkData: &LinkData{Link: "https://example.com", Name: "Headline"},
		},
		Extra: map[string]any{"degrees_of_freedom_spec": map[string]any{"x": 1}},
	}
	obj, err := c.CreateAd(context.Background(), testCreds, "act_1", AdParams{
		AdSetID: "as1", Name: "ad", Creative: spec, Status: StatusPaused,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.ID != "ad9" || obj.AdSetID != "as1" {
		t.Errorf("unexpected object %+v", obj)
	}
}

func TestListCampaigns_FollowsCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			_, _ = w.Write([]byte(`{"data":[{"id":"1","daily_budget":"1000"}],"paging":{"cursors":{"after":"x"},"next":"https://next"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"2"}],"paging":{"cursors":{"after":"y"}}}`))
	})

	camps, err := c.ListCampaigns(context.Background(), testCreds, "act_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(camps) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(camps))
	}
	if camps[0].DailyBudgetMinor() != 1000 || camps[1].DailyBudgetMinor() != 0 {
		t.Errorf("unexpected budgets %+v", camps)
	}
}

func TestUpdateBudget_RequiresAValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.UpdateBudget(context.Background(), testCreds, "c1", BudgetUpdate{}); err == nil {
		t.Fatal("expected error for empty budget update")
	}
}

func TestUpdateStatus_RejectsArchival(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.UpdateStatus(context.Background(), testCreds, "c1", StatusArchived); err == nil {
		t.Fatal("expected error for archival status")
	}
}
