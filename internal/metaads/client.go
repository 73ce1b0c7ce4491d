// Package metaads is the client for the Meta Marketing (Graph) API.
//
// The Client is safe for concurrent use by many tenants: it holds no
// credentials. Every call takes the tenant's Credentials explicitly, so two
// requests for different ad accounts can never observe each other's token.
// Calls failing with a temporary platform error are retried per RetryPolicy.
package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxResponseSize caps how much of a response body is read (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxListPages bounds cursor pagination when listing campaigns.
	maxListPages = 50
)

// DefaultInsightFields are requested when the caller does not name any.
var DefaultInsightFields = []string{
	"impressions", "reach", "clicks", "spend", "cpm", "cpc", "ctr",
	"actions", "cost_per_action_type", "frequency",
}

var campaignFields = []string{
	"id", "name", "status", "objective", "daily_budget", "lifetime_budget",
	"created_time", "start_time", "stop_time",
}

// Config holds client settings.
type Config struct {
	// GraphURL is the API base without the version, e.g. https://graph.facebook.com.
	GraphURL string

	// APIVersion is the version path segment, e.g. v20.0.
	APIVersion string

	Retry RetryPolicy

	// CallsPerSecond paces outbound attempts per app id. Zero disables pacing.
	CallsPerSecond float64

	// HTTPTimeout bounds a single attempt.
	HTTPTimeout time.Duration
}

// Client talks to the Graph API.
type Client struct {
	http    *http.Client
	baseURL string
	retry   RetryPolicy
	cps     float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy
	}

	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(cfg.GraphURL, "/") + "/" + strings.Trim(cfg.APIVersion, "/"),
		retry:    policy,
		cps:      cfg.CallsPerSecond,
		limiters: make(map[string]*rate.Limiter),
	}
}

// --- Campaigns ---

// CreateCampaign creates a campaign under the ad account.
func (c *Client) CreateCampaign(ctx context.Context, creds Credentials, accountID string, p CampaignParams) (*Object, error) {
	params := url.Values{}
	params.Set("name", p.Name)
	params.Set("objective", p.Objective)
	params.Set("status", string(p.Status))
	categories := p.SpecialAdCategories
	if categories == nil {
		categories = []string{}
	}
	if err := setJSON(params, "special_ad_categories", categories); err != nil {
		return nil, err
	}
	if p.DailyBudget != nil {
		params.Set("daily_budget", strconv.FormatInt(*p.DailyBudget, 10))
	}
	if p.LifetimeBudget != nil {
		params.Set("lifetime_budget", strconv.FormatInt(*p.LifetimeBudget, 10))
	}

	var resp struct {
		ID string `json:"id"`
	}
	path := "/" + NormalizeAccountID(accountID) + "/campaigns"
	if err := c.call(ctx, "create_campaign", creds, http.MethodPost, path, params, &resp); err != nil {
		return nil, err
	}

	slog.Info("campaign created on ad platform",
		slog.String("campaign_id", resp.ID),
		slog.String("name", p.Name),
	)
	return &Object{
		ID:             resp.ID,
		Name:           p.Name,
		Status:         p.Status,
		DailyBudget:    p.DailyBudget,
		LifetimeBudget: p.LifetimeBudget,
	}, nil
}

// ListCampaigns returns every campaign in the ad account, following cursors.
func (c *Client) ListCampaigns(ctx context.Context, creds Credentials, accountID string) ([]Campaign, error) {
	path := "/" + NormalizeAccountID(accountID) + "/campaigns"
	var all []Campaign
	after := ""

	for page := 0; page < maxListPages; page++ {
		params := url.Values{}
		params.Set("fields", strings.Join(campaignFields, ","))
		params.Set("limit", "100")
		if after != "" {
			params.Set("after", after)
		}

		var resp struct {
			Data   []Campaign `json:"data"`
			Paging struct {
				Cursors struct {
					After string `json:"after"`
				} `json:"cursors"`
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := c.call(ctx, "list_campaigns", creds, http.MethodGet, path, params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			break
		}
		after = resp.Paging.Cursors.After
	}

	slog.Info("campaigns listed",
		slog.String("account_id", NormalizeAccountID(accountID)),
		slog.Int("total", len(all)),
	)
	return all, nil
}

// GetCampaign reads a campaign's status and budgets.
func (c *Client) GetCampaign(ctx context.Context, creds Credentials, campaignID string) (*Campaign, error) {
	params := url.Values{}
	params.Set("fields", "id,name,status,daily_budget,lifetime_budget")

	var camp Campaign
	if err := c.call(ctx, "get_campaign", creds, http.MethodGet, "/"+campaignID, params, &camp); err != nil {
		return nil, err
	}
	return &camp, nil
}

// UpdateStatus sets the status of a campaign, ad set or ad.
func (c *Client) UpdateStatus(ctx context.Context, creds Credentials, objectID string, status Status) (*Object, error) {
	if !status.Writable() {
		return nil, fmt.Errorf("status %q cannot be set", status)
	}
	params := url.Values{}
	params.Set("status", string(status))

	if err := c.call(ctx, "update_status", creds, http.MethodPost, "/"+objectID, params, nil); err != nil {
		return nil, err
	}

	slog.Info("object status updated",
		slog.String("object_id", objectID),
		slog.String("status", string(status)),
	)
	return &Object{ID: objectID, Status: status}, nil
}

// UpdateBudget changes a campaign's daily and/or lifetime budget.
func (c *Client) UpdateBudget(ctx context.Context, creds Credentials, campaignID string, b BudgetUpdate) (*Object, error) {
	if b.Empty() {
		return nil, errors.New("no budget given for update")
	}
	params := url.Values{}
	if b.DailyBudget != nil {
		params.Set("daily_budget", strconv.FormatInt(*b.DailyBudget, 10))
	}
	if b.LifetimeBudget != nil {
		params.Set("lifetime_budget", strconv.FormatInt(*b.LifetimeBudget, 10))
	}

	if err := c.call(ctx, "update_budget", creds, http.MethodPost, "/"+campaignID, params, nil); err != nil {
		return nil, err
	}

	slog.Info("campaign budget updated", slog.String("campaign_id", campaignID))
	return &Object{ID: campaignID, DailyBudget: b.DailyBudget, LifetimeBudget: b.LifetimeBudget}, nil
}

// --- Ad sets and ads ---

// CreateAdSet creates an ad set under a campaign.
func (c *Client) CreateAdSet(ctx context.Context, creds Credentials, accountID string, p AdSetParams) (*Object, error) {
	params := url.Values{}
	params.Set("name", p.Name)
	params.Set("campaign_id", p.CampaignID)
	params.Set("daily_budget", strconv.FormatInt(p.DailyBudget, 10))
	params.Set("billing_event", p.BillingEvent)
	params.Set("optimization_goal", p.OptimizationGoal)
	params.Set("status", string(p.Status))
	if err := setJSON(params, "targeting", p.Targeting); err != nil {
		return nil, err
	}
	if p.StartTime != "" {
		params.Set("start_time", p.StartTime)
	}
	if p.EndTime != "" {
		params.Set("end_time", p.EndTime)
	}

	var resp struct {
		ID string `json:"id"`
	}
	path := "/" + NormalizeAccountID(accountID) + "/adsets"
	if err := c.call(ctx, "create_adset", creds, http.MethodPost, path, params, &resp); err != nil {
		return nil, err
	}

	slog.Info("ad set created on ad platform",
		slog.String("adset_id", resp.ID),
		slog.String("name", p.Name),
	)
	return &Object{ID: resp.ID, Name: p.Name, Status: p.Status, CampaignID: p.CampaignID}, nil
}

// CreateAd creates an ad with an inline creative under an ad set.
func (c *Client) CreateAd(ctx context.Context, creds Credentials, accountID string, p AdParams) (*Object, error) {
	params := url.Values{}
	params.Set("name", p.Name)
	params.Set("adset_id", p.AdSetID)
	params.Set("status", string(p.Status))
	if err := setJSON(params, "creative", p.Creative); err != nil {
		return nil, err
	}

	var resp struct {
		ID string `json:"id"`
	}
	path := "/" + NormalizeAccountID(accountID) + "/ads"
	if err := c.call(ctx, "create_ad", creds, http.MethodPost, path, params, &resp); err != nil {
		return nil, err
	}

	slog.Info("ad created on ad platform",
		slog.String("ad_id", resp.ID),
		slog.String("name", p.Name),
	)
	return &Object{ID: resp.ID, Name: p.Name, Status: p.Status, AdSetID: p.AdSetID}, nil
}

// --- Insights ---

// GetInsights returns the first insights row for a campaign, ad set or ad.
// A period without data yields an empty Insights and a nil error.
func (c *Client) GetInsights(ctx context.Context, creds Credentials, targetID, datePreset string, fields []string) (Insights, error) {
	if len(fields) == 0 {
		fields = DefaultInsightFields
	}
	params := url.Values{}
	params.Set("date_preset", datePreset)
	params.Set("fields", strings.Join(fields, ","))

	var resp struct {
		Data []Insights `json:"data"`
	}
	if err := c.call(ctx, "get_insights", creds, http.MethodGet, "/"+targetID+"/insights", params, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || resp.Data[0] == nil {
		slog.Warn("no insights for period",
			slog.String("target_id", targetID),
			slog.String("date_preset", datePreset),
		)
		return Insights{}, nil
	}
	return resp.Data[0], nil
}

// --- Transport ---

// call performs one logical API call with retries and decodes the JSON
// response into out (when non-nil).
func (c *Client) call(ctx context.Context, op string, creds Credentials, method, path string, params url.Values, out any) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	return c.retry.retry(ctx, op, func(ctx context.Context) error {
		if err := c.wait(ctx, creds.AppID); err != nil {
			return err
		}
		body, err := c.send(ctx, creds, method, path, params)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", op, err)
		}
		return nil
	})
}

// send performs a single HTTP attempt. It returns *APIError for platform
// errors and *transportError for network failures.
func (c *Client) send(ctx context.Context, creds Credentials, method, path string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("access_token", creds.AccessToken)
	if proof := creds.appSecretProof(); proof != "" {
		q.Set("appsecret_proof", proof)
	}

	endpoint := c.baseURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+q.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(q.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full URL, token included. Keep only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, &transportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, &transportError{Err: err}
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response body too large (max %d bytes)", maxResponseSize)
	}

	slog.Debug("graph api call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("app_id", creds.LogID()),
	)

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

// decodeError turns an error response into *APIError.
func decodeError(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = status
		return envelope.Error
	}
	return &APIError{HTTPStatus: status, Message: http.StatusText(status)}
}

// wait paces attempts per app id when pacing is enabled.
func (c *Client) wait(ctx context.Context, appID string) error {
	if c.cps <= 0 {
		return nil
	}

	c.mu.Lock()
	lim, ok := c.limiters[appID]
	if !ok {
		burst := int(c.cps)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.cps), burst)
		c.limiters[appID] = lim
	}
	c.mu.Unlock()

	return lim.Wait(ctx)
}

func setJSON(params url.Values, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	params.Set(key, string(b))
	return nil
}
