// Package analytics keeps write-once records of what the system did and how
// it turned out: content generations, A/B results, optimizer actions, remote
// errors and metrics snapshots. Each record is stored in its own collection
// and published as an event. Only AI generations change after creation, when
// real metrics are attached as feedback.
package analytics

import "time"

// Record kinds. Each kind is a collection and an event topic suffix.
const (
	KindAIGenerations    = "ai_generations"
	KindABResults        = "ab_results"
	KindOptimizerActions = "optimizer_actions"
	KindAdErrors         = "ad_errors"
	KindMetricsHistory   = "metrics_history"
)

// Generation types.
const (
	GenerationCopy     = "copy"
	GenerationAudience = "audience"
	GenerationImage    = "image"
	GenerationVariants = "variants"
	GenerationFullAd   = "full_ad"
)

// ErrorTypeMetaAPI marks errors returned by the ad platform.
const ErrorTypeMetaAPI = "meta_api_error"

// List limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// AIGeneration is one content generation and, later, how the ad it produced
// performed.
type AIGeneration struct {
	ID             string         `json:"doc_id"`
	AutomationID   string         `json:"automation_id"`
	GenerationType string         `json:"generation_type"`
	Context        any            `json:"context,omitempty"`
	Output         any            `json:"output,omitempty"`
	Overrides      map[string]any `json:"overrides,omitempty"`
	AIFields       []string       `json:"ai_fields_generated"`
	OverrodeFields []string       `json:"user_overrode_fields"`
	Model          string         `json:"model,omitempty"`
	AdID           string         `json:"ad_id,omitempty"`
	CampaignID     string         `json:"campaign_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Set by feedback.
	Metrics          map[string]any `json:"metrics,omitempty"`
	PerformanceScore *float64       `json:"performance_score,omitempty"`
	FeedbackAt       *time.Time     `json:"feedback_at,omitempty"`
}

// ABResult is the outcome of one A/B evaluation, keyed by test id.
type ABResult struct {
	TestID         string    `json:"test_id"`
	AutomationID   string    `json:"automation_id"`
	WinnerName     string    `json:"winner_name"`
	WinnerApproach string    `json:"winner_approach,omitempty"`
	WinnerAdID     string    `json:"winner_ad_id"`
	WinnerValue    float64   `json:"winner_value"`
	WinnerCopy     any       `json:"winner_copy,omitempty"`
	AllVariants    any       `json:"all_variants"`
	MetricUsed     string    `json:"metric_used"`
	DeltaPct       *float64  `json:"delta_pct,omitempty"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// OptimizerAction is one triggered rule from one optimize call, dry runs
// included.
type OptimizerAction struct {
	ID              string    `json:"doc_id"`
	AutomationID    string    `json:"automation_id"`
	CampaignID      string    `json:"campaign_id"`
	Rule            any       `json:"rule"`
	MetricTriggered string    `json:"metric_triggered"`
	MetricValue     float64   `json:"metric_value"`
	ActionTaken     string    `json:"action_taken"`
	Outcome         string    `json:"outcome,omitempty"`
	DryRun          bool      `json:"dry_run"`
	BeforeBudget    *int64    `json:"before_budget,omitempty"`
	AfterBudget     *int64    `json:"after_budget,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// AdError is one failed remote call.
type AdError struct {
	ID           string         `json:"doc_id"`
	AutomationID string         `json:"automation_id"`
	ErrorType    string         `json:"error_type"`
	ErrorCode    *int           `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message"`
	Context      map[string]any `json:"context,omitempty"`
	AdID         string         `json:"ad_id,omitempty"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// MetricsSnapshot is one point in a campaign's metrics history. The headline
// metrics are copied to top-level fields so they can be filtered on.
type MetricsSnapshot struct {
	ID           string         `json:"doc_id"`
	AutomationID string         `json:"automation_id" validate:"required"`
	CampaignID   string         `json:"campaign_id" validate:"required"`
	AdID         string         `json:"ad_id,omitempty"`
	AdSetID      string         `json:"adset_id,omitempty"`
	Metrics      map[string]any `json:"metrics" validate:"required"`
	CTR          any            `json:"ctr,omitempty"`
	CPC          any            `json:"cpc,omitempty"`
	CPM          any            `json:"cpm,omitempty"`
	Spend        any            `json:"spend,omitempty"`
	Impressions  any            `json:"impressions,omitempty"`
	Clicks       any            `json:"clicks,omitempty"`
	Conversions  any            `json:"conversions,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	AutomationID   string
	CampaignID     string
	GenerationType string
	ErrorType      string
	Limit          int
}

// Summary aggregates one automation's records.
type Summary struct {
	AutomationID          string         `json:"automation_id"`
	TotalAIGenerations    int            `json:"total_ai_generations"`
	TotalABTestsEvaluated int            `json:"total_ab_tests_evaluated"`
	TotalOptimizerActions int            `json:"total_optimizer_actions"`
	TotalErrors           int            `json:"total_errors"`
	AIOverrideRatePct     float64        `json:"ai_override_rate_pct"`
	AIFieldBreakdown      map[string]int `json:"ai_field_breakdown"`
}

// FeedbackRequest attaches real metrics to a generation.
type FeedbackRequest struct {
	Metrics          map[string]any `json:"metrics" validate:"required"`
	PerformanceScore *float64       `json:"performance_score"`
}
