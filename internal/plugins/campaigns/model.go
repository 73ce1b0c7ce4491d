// Package campaigns is the campaign orchestrator. It composes ad platform
// calls into create and update workflows for one automation at a time,
// records every step in the automation's audit log, and builds complete ads
// from generated content.
package campaigns

import (
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// Campaign objectives the platform accepts.
var objectives = map[string]bool{
	"OUTCOME_AWARENESS":     true,
	"OUTCOME_TRAFFIC":       true,
	"OUTCOME_ENGAGEMENT":    true,
	"OUTCOME_LEADS":         true,
	"OUTCOME_APP_PROMOTION": true,
	"OUTCOME_SALES":         true,
}

var billingEvents = map[string]bool{
	"IMPRESSIONS":  true,
	"LINK_CLICKS":  true,
	"APP_INSTALLS": true,
	"NONE":         true,
}

var optimizationGoals = map[string]bool{
	"REACH":              true,
	"IMPRESSIONS":        true,
	"LINK_CLICKS":        true,
	"LANDING_PAGE_VIEWS": true,
	"LEAD_GENERATION":    true,
	"CONVERSIONS":        true,
	"APP_INSTALLS":       true,
	"VALUE":              true,
	"THRUPLAY":           true,
}

// Defaults for a full ad.
const (
	DefaultFullAdBudget    = 5000
	DefaultFullAdObjective = "OUTCOME_TRAFFIC"
)

// CreateCampaignRequest creates a campaign. Exactly one budget is set.
type CreateCampaignRequest struct {
	AutomationID        string         `json:"automation_id" validate:"required"`
	Name                string         `json:"name" validate:"required,max=200"`
	Objective           string         `json:"objective" validate:"required"`
	Status              metaads.Status `json:"status"`
	SpecialAdCategories []string       `json:"special_ad_categories"`
	DailyBudget         *int64         `json:"daily_budget"`
	LifetimeBudget      *int64         `json:"lifetime_budget"`
}

// CreateAdSetRequest creates an ad set under a campaign.
type CreateAdSetRequest struct {
	AutomationID     string         `json:"automation_id" validate:"required"`
	CampaignID       string         `json:"campaign_id" validate:"required"`
	Name             string         `json:"name" validate:"required,max=200"`
	DailyBudget      int64          `json:"daily_budget" validate:"gt=0"`
	BillingEvent     string         `json:"billing_event"`
	OptimizationGoal string         `json:"optimization_goal"`
	Targeting        map[string]any `json:"targeting" validate:"required"`
	StartTime        string         `json:"start_time"`
	EndTime          string         `json:"end_time"`
	Status           metaads.Status `json:"status"`
}

// CreateAdRequest creates an ad from an inline creative.
type CreateAdRequest struct {
	AutomationID string               `json:"automation_id" validate:"required"`
	AdSetID      string               `json:"adset_id" validate:"required"`
	Name         string               `json:"name" validate:"required,max=200"`
	Creative     metaads.CreativeSpec `json:"creative"`
	Status       metaads.Status       `json:"status"`
}

// InsightsQuery selects the period and fields of an insights read.
type InsightsQuery struct {
	DatePreset string
	Fields     []string
}

// FullAdRequest builds campaign, ad set, creative and ad in one call. Any
// custom field replaces the generated one.
type FullAdRequest struct {
	AutomationID string            `json:"automation_id" validate:"required"`
	Context      generator.Context `json:"context"`
	PageID       string            `json:"page_id" validate:"required"`
	LinkURL      string            `json:"link_url" validate:"required,url"`

	DailyBudget       int64          `json:"daily_budget" validate:"gte=0"`
	CampaignObjective string         `json:"campaign_objective"`
	CampaignStatus    metaads.Status `json:"campaign_status"`
	GenerateImage     *bool          `json:"generate_image"`

	CustomCopy         *creative.Copy `json:"custom_copy"`
	CustomTargeting    map[string]any `json:"custom_targeting"`
	CustomImageURL     string         `json:"custom_image_url"`
	CustomCampaignName string         `json:"custom_campaign_name"`
}

// AudienceInfo describes a generated audience.
type AudienceInfo struct {
	Description        string   `json:"description"`
	SuggestedInterests []string `json:"suggested_interests"`
	EstimatedReach     string   `json:"estimated_reach"`
}

// ImageInfo is the image attached to a full ad.
type ImageInfo struct {
	URL           string `json:"url"`
	Source        string `json:"source"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Model         string `json:"model,omitempty"`
	Archived      bool   `json:"archived"`
	ObjectKey     string `json:"object_key,omitempty"`
}

// Content is the prepared content of a full ad.
type Content struct {
	Copy              creative.Copy  `json:"copy"`
	Targeting         map[string]any `json:"targeting"`
	Image             *ImageInfo     `json:"image"`
	AIGeneratedFields []string       `json:"ai_generated_fields"`
	AudienceInfo      *AudienceInfo  `json:"audience_info,omitempty"`
}

// PlatformResults are the ids created for a full ad.
type PlatformResults struct {
	CampaignID   string         `json:"campaign_id"`
	CampaignName string         `json:"campaign_name"`
	AdSetID      string         `json:"adset_id"`
	AdID         string         `json:"ad_id"`
	Status       metaads.Status `json:"status"`
}

// FullAdResult is returned by CreateFullAd.
type FullAdResult struct {
	AIGenerated Content         `json:"ai_generated"`
	MetaResults PlatformResults `json:"meta_results"`
	AIHistoryID string          `json:"ai_history_id,omitempty"`
}
