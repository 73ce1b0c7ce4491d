// Package abtests runs A/B tests of ad copy. A test creates one ad per
// variant under a shared ad set, lets the platform split delivery, and later
// ranks the variants by one metric. Evaluation completes the test exactly
// once and can pause the losing ads.
package abtests

import (
	"time"

	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/outcome"
)

// Test statuses. Evaluating and cancelled are reserved.
const (
	StatusActive     = "active"
	StatusEvaluating = "evaluating"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Variant count limits.
const (
	MinVariants = 2
	MaxVariants = 5
)

// Defaults applied at creation.
const (
	DefaultMetric        = "ctr"
	DefaultDurationHours = 24
)

// evaluationPreset reads lifetime insights for each variant ad.
const evaluationPreset = "maximum"

// evaluationFields are the insights fetched per variant.
var evaluationFields = []string{"impressions", "reach", "clicks", "spend", "ctr", "cpc", "cpm", "actions", "cost_per_action_type"}

// knownMetrics are the metrics a test may optimize for.
var knownMetrics = map[string]bool{
	"ctr":                  true,
	"cpc":                  true,
	"cpm":                  true,
	"cpa":                  true,
	"clicks":               true,
	"reach":                true,
	"impressions":          true,
	"cost_per_action_type": true,
}

// lowerIsBetter lists cost metrics, where the smallest value wins.
var lowerIsBetter = map[string]bool{
	"cpc":                  true,
	"cpm":                  true,
	"cpa":                  true,
	"cost_per_action_type": true,
}

// LowerIsBetter reports whether the smallest value of metric wins.
func LowerIsBetter(metric string) bool {
	return lowerIsBetter[metric]
}

// Variant is one ad of a test. Immutable once created.
type Variant struct {
	Index    int           `json:"variant_index"`
	Name     string        `json:"name"`
	Approach string        `json:"approach,omitempty"`
	AdID     string        `json:"ad_id"`
	Copy     creative.Copy `json:"copy"`
}

// Winner is the first-ranked variant of a completed test.
type Winner struct {
	Name   string  `json:"name"`
	AdID   string  `json:"ad_id"`
	Metric string  `json:"metric"`
	Value  float64 `json:"metric_value"`
}

// Test is one A/B test record, keyed by test id.
type Test struct {
	ID                 string                      `json:"test_id"`
	AutomationID       string                      `json:"automation_id"`
	CampaignID         string                      `json:"campaign_id"`
	AdSetID            string                      `json:"adset_id"`
	PageID             string                      `json:"page_id"`
	Name               string                      `json:"name"`
	Status             string                      `json:"status"`
	Variants           []Variant                   `json:"variants"`
	OptimizationMetric string                      `json:"optimization_metric"`
	DurationHours      int                         `json:"duration_hours"`
	AutoApplyWinner    bool                        `json:"auto_apply_winner"`
	Winner             *Winner                     `json:"winner"`
	Results            map[string]metaads.Insights `json:"results,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	EndAt              time.Time                   `json:"end_at"`
	EvaluatedAt        *time.Time                  `json:"evaluated_at,omitempty"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// Due reports whether an active test has passed its end time.
func (t *Test) Due(now time.Time) bool {
	return t.Status == StatusActive && !t.EndAt.After(now)
}

// --- Request DTOs ---

// VariantInput is one manually written variant.
type VariantInput struct {
	Name     string        `json:"name" validate:"required,max=100"`
	Approach string        `json:"approach,omitempty"`
	Copy     creative.Copy `json:"copy"`
}

// CreateRequest creates a test from manual variants.
type CreateRequest struct {
	AutomationID       string         `json:"automation_id" validate:"required"`
	CampaignID         string         `json:"campaign_id" validate:"required"`
	AdSetID            string         `json:"adset_id" validate:"required"`
	PageID             string         `json:"page_id" validate:"required"`
	LinkURL            string         `json:"link_url" validate:"required,url"`
	ImageURL           string         `json:"image_url,omitempty"`
	Name               string         `json:"name" validate:"required,max=200"`
	Variants           []VariantInput `json:"variants"`
	OptimizationMetric string         `json:"optimization_metric"`
	DurationHours      int            `json:"duration_hours" validate:"gte=0"`
	AutoApplyWinner    *bool          `json:"auto_apply_winner"`
}

// GenerateRequest creates a test from provider-written variants.
type GenerateRequest struct {
	AutomationID       string            `json:"automation_id" validate:"required"`
	CampaignID         string            `json:"campaign_id" validate:"required"`
	AdSetID            string            `json:"adset_id" validate:"required"`
	PageID             string            `json:"page_id" validate:"required"`
	LinkURL            string            `json:"link_url" validate:"required,url"`
	ImageURL           string            `json:"image_url,omitempty"`
	Context            generator.Context `json:"context"`
	NumVariants        int               `json:"num_variants"`
	OptimizationMetric string            `json:"optimization_metric"`
	DurationHours      int               `json:"duration_hours" validate:"gte=0"`
	AutoApplyWinner    *bool             `json:"auto_apply_winner"`
}

// CreateResult is returned by both create paths.
type CreateResult struct {
	Test        *Test               `json:"test"`
	Activation  *outcome.Report     `json:"activation"`
	AIGenerated bool                `json:"ai_generated"`
	AIVariants  []generator.Variant `json:"ai_variants_raw,omitempty"`
}

// Ranked is one variant's place in an evaluation.
type Ranked struct {
	Rank       int              `json:"rank"`
	Name       string           `json:"name"`
	AdID       string           `json:"ad_id"`
	Value      float64          `json:"metric_value"`
	Metrics    metaads.Insights `json:"metrics"`
	FetchError string           `json:"fetch_error,omitempty"`
}

// Evaluation is the result of ranking a test's variants.
type Evaluation struct {
	TestID      string   `json:"test_id"`
	Winner      Winner   `json:"winner"`
	Ranking     []Ranked `json:"ranking"`
	AutoApplied bool     `json:"auto_applied"`

	// ActionsApplied lists the losers paused. Pauses carries every attempt.
	ActionsApplied []string        `json:"actions_applied"`
	Pauses         *outcome.Report `json:"pauses,omitempty"`

	// DeltaPct is the winner's margin over the runner-up, when one exists
	// and is non-zero.
	DeltaPct *float64 `json:"delta_pct,omitempty"`

	// SignificanceChecked is always false: the winner is the first-ranked
	// variant however small its margin.
	SignificanceChecked bool `json:"significance_checked"`
}
