package campaigns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/imagestore"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
	"github.com/keyxmakerx/adpilot/internal/plugins/automations"
	"github.com/keyxmakerx/adpilot/internal/sanitize"
)

// Platform is the part of the ad platform client the orchestrator uses.
// *metaads.Client satisfies it.
type Platform interface {
	CreateCampaign(ctx context.Context, creds metaads.Credentials, accountID string, p metaads.CampaignParams) (*metaads.Object, error)
	ListCampaigns(ctx context.Context, creds metaads.Credentials, accountID string) ([]metaads.Campaign, error)
	UpdateStatus(ctx context.Context, creds metaads.Credentials, objectID string, status metaads.Status) (*metaads.Object, error)
	UpdateBudget(ctx context.Context, creds metaads.Credentials, campaignID string, b metaads.BudgetUpdate) (*metaads.Object, error)
	CreateAdSet(ctx context.Context, creds metaads.Credentials, accountID string, p metaads.AdSetParams) (*metaads.Object, error)
	CreateAd(ctx context.Context, creds metaads.Credentials, accountID string, p metaads.AdParams) (*metaads.Object, error)
	GetInsights(ctx context.Context, creds metaads.Credentials, targetID, datePreset string, fields []string) (metaads.Insights, error)
}

// ImageArchiver copies a generated image to durable storage. A nil
// *imagestore.Store satisfies it and passes URLs through.
type ImageArchiver interface {
	Archive(ctx context.Context, sourceURL, owner string) (*imagestore.Archived, error)
}

// Recorder stores the analytics records the orchestrator produces.
type Recorder interface {
	RecordAIGeneration(ctx context.Context, g *analytics.AIGeneration) (string, error)
	RecordMetricsSnapshot(ctx context.Context, s *analytics.MetricsSnapshot) (string, error)
}

// CampaignService composes platform calls for one automation. Every
// successful step is audited; every platform failure goes through the
// registry's failure handling.
type CampaignService interface {
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*metaads.Object, error)
	CreateAdSet(ctx context.Context, req CreateAdSetRequest) (*metaads.Object, error)
	CreateAd(ctx context.Context, req CreateAdRequest) (*metaads.Object, error)
	ListCampaigns(ctx context.Context, automationID string) ([]metaads.Campaign, error)
	PauseCampaign(ctx context.Context, automationID, campaignID string) (*metaads.Object, error)
	ActivateCampaign(ctx context.Context, automationID, campaignID string) (*metaads.Object, error)
	GetInsights(ctx context.Context, automationID, campaignID string, q InsightsQuery) (metaads.Insights, error)
	UpdateBudget(ctx context.Context, automationID, campaignID string, b metaads.BudgetUpdate) (*metaads.Object, error)

	// CreateFullAd prepares copy, targeting and image (generated unless
	// overridden), then creates campaign, ad set and ad.
	CreateFullAd(ctx context.Context, req FullAdRequest) (*FullAdResult, error)
}

type campaignService struct {
	registry  automations.Registry
	platform  Platform
	content   generator.Provider
	images    ImageArchiver
	analytics Recorder
}

// NewCampaignService creates the orchestrator. images and recorder may be nil.
func NewCampaignService(registry automations.Registry, platform Platform, content generator.Provider, images ImageArchiver, recorder Recorder) CampaignService {
	if images == nil {
		images = (*imagestore.Store)(nil)
	}
	return &campaignService{
		registry:  registry,
		platform:  platform,
		content:   content,
		images:    images,
		analytics: recorder,
	}
}

// audit appends a log entry. A failed write is logged, never returned: the
// platform call it describes has already happened.
func (s *campaignService) audit(ctx context.Context, id, action string, result any) {
	if err := s.registry.AppendAuditLog(ctx, id, action, result, ""); err != nil {
		slog.Warn("audit entry not written",
			slog.String("automation_id", id),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// writableStatus defaults to PAUSED and rejects archival states.
func writableStatus(s metaads.Status) (metaads.Status, error) {
	if s == "" {
		return metaads.StatusPaused, nil
	}
	s = metaads.Status(strings.ToUpper(string(s)))
	if !s.Writable() {
		return "", apperror.NewValidation(fmt.Sprintf("status must be ACTIVE or PAUSED, got %q", s))
	}
	return s, nil
}

func (s *campaignService) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*metaads.Object, error) {
	status, err := writableStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if !objectives[req.Objective] {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown objective %q", req.Objective))
	}
	if err := exactlyOneBudget(req.DailyBudget, req.LifetimeBudget); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperror.NewValidation("name is required")
	}

	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}

	obj, err := s.platform.CreateCampaign(ctx, a.Credentials(), a.AdAccountID, metaads.CampaignParams{
		Name:                strings.TrimSpace(req.Name),
		Objective:           req.Objective,
		Status:              status,
		SpecialAdCategories: req.SpecialAdCategories,
		DailyBudget:         req.DailyBudget,
		LifetimeBudget:      req.LifetimeBudget,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "create_campaign", err)
	}

	if err := s.registry.SetCampaignReference(ctx, a.ID, obj.ID); err != nil {
		slog.Warn("campaign reference not stored",
			slog.String("automation_id", a.ID),
			slog.String("campaign_id", obj.ID),
			slog.Any("error", err),
		)
	}
	s.audit(ctx, a.ID, "create_campaign", obj)
	return obj, nil
}

// exactlyOneBudget enforces one positive budget.
func exactlyOneBudget(daily, lifetime *int64) error {
	switch {
	case daily == nil && lifetime == nil:
		return apperror.NewValidation("set daily_budget or lifetime_budget")
	case daily != nil && lifetime != nil:
		return apperror.NewValidation("set only one of daily_budget and lifetime_budget")
	case daily != nil && *daily <= 0, lifetime != nil && *lifetime <= 0:
		return apperror.NewValidation("budget must be greater than zero")
	}
	return nil
}

func (s *campaignService) CreateAdSet(ctx context.Context, req CreateAdSetRequest) (*metaads.Object, error) {
	status, err := writableStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if req.DailyBudget <= 0 {
		return nil, apperror.NewValidation("daily_budget must be greater than zero")
	}
	if len(req.Targeting) == 0 {
		return nil, apperror.NewValidation("targeting is required")
	}
	billing := req.BillingEvent
	if billing == "" {
		billing = "IMPRESSIONS"
	}
	if !billingEvents[billing] {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown billing_event %q", billing))
	}
	goal := req.OptimizationGoal
	if goal == "" {
		goal = "REACH"
	}
	if !optimizationGoals[goal] {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown optimization_goal %q", goal))
	}

	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}

	obj, err := s.platform.CreateAdSet(ctx, a.Credentials(), a.AdAccountID, metaads.AdSetParams{
		CampaignID:       req.CampaignID,
		Name:             req.Name,
		DailyBudget:      req.DailyBudget,
		BillingEvent:     billing,
		OptimizationGoal: goal,
		Targeting:        req.Targeting,
		Status:           status,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "create_adset", err)
	}
	s.audit(ctx, a.ID, "create_adset", obj)
	return obj, nil
}

func (s *campaignService) CreateAd(ctx context.Context, req CreateAdRequest) (*metaads.Object, error) {
	status, err := writableStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if req.Creative.ObjectStorySpec == nil && len(req.Creative.Extra) == 0 {
		return nil, apperror.NewValidation("creative is required")
	}

	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}

	obj, err := s.platform.CreateAd(ctx, a.Credentials(), a.AdAccountID, metaads.AdParams{
		AdSetID:  req.AdSetID,
		Name:     req.Name,
		Creative: req.Creative,
		Status:   status,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "create_ad", err)
	}
	s.audit(ctx, a.ID, "create_ad", obj)
	return obj, nil
}

func (s *campaignService) ListCampaigns(ctx context.Context, automationID string) ([]metaads.Campaign, error) {
	a, err := s.registry.Require(ctx, automationID)
	if err != nil {
		return nil, err
	}

	list, err := s.platform.ListCampaigns(ctx, a.Credentials(), a.AdAccountID)
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "list_campaigns", err)
	}
	if list == nil {
		list = []metaads.Campaign{}
	}
	s.audit(ctx, a.ID, "list_campaigns", map[string]any{"count": len(list)})
	return list, nil
}

func (s *campaignService) PauseCampaign(ctx context.Context, automationID, campaignID string) (*metaads.Object, error) {
	return s.setCampaignStatus(ctx, automationID, campaignID, metaads.StatusPaused, automations.StatusPaused, "pause_campaign")
}

func (s *campaignService) ActivateCampaign(ctx context.Context, automationID, campaignID string) (*metaads.Object, error) {
	return s.setCampaignStatus(ctx, automationID, campaignID, metaads.StatusActive, automations.StatusActive, "activate_campaign")
}

// setCampaignStatus changes the remote status and mirrors it on the
// automation.
func (s *campaignService) setCampaignStatus(ctx context.Context, automationID, campaignID string, remote metaads.Status, local, action string) (*metaads.Object, error) {
	if campaignID == "" {
		return nil, apperror.NewValidation("campaign id is required")
	}
	a, err := s.registry.Require(ctx, automationID)
	if err != nil {
		return nil, err
	}

	obj, err := s.platform.UpdateStatus(ctx, a.Credentials(), campaignID, remote)
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, action, err)
	}
	if err := s.registry.SetStatus(ctx, a.ID, local); err != nil {
		slog.Warn("automation status not updated",
			slog.String("automation_id", a.ID),
			slog.Any("error", err),
		)
	}
	s.audit(ctx, a.ID, action, obj)
	return obj, nil
}

func (s *campaignService) GetInsights(ctx context.Context, automationID, campaignID string, q InsightsQuery) (metaads.Insights, error) {
	preset := q.DatePreset
	if preset == "" {
		preset = metaads.DefaultDatePreset
	}
	if !metaads.ValidDatePreset(preset) {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown date_preset %q", preset))
	}
	fields := q.Fields
	if len(fields) == 0 {
		fields = metaads.DefaultInsightFields
	}

	a, err := s.registry.Require(ctx, automationID)
	if err != nil {
		return nil, err
	}

	insights, err := s.platform.GetInsights(ctx, a.Credentials(), campaignID, preset, fields)
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "get_insights", err)
	}
	if insights == nil {
		insights = metaads.Insights{}
	}

	// The snapshot is stored even when empty: it records that the campaign
	// was checked.
	if err := s.registry.UpdateMetricsSnapshot(ctx, a.ID, insights); err != nil {
		slog.Warn("metrics snapshot not stored", slog.String("automation_id", a.ID), slog.Any("error", err))
	}
	if !insights.Empty() && s.analytics != nil {
		_, err := s.analytics.RecordMetricsSnapshot(ctx, &analytics.MetricsSnapshot{
			AutomationID: a.ID,
			CampaignID:   campaignID,
			Metrics:      insights,
		})
		if err != nil {
			slog.Warn("metrics history not recorded", slog.String("automation_id", a.ID), slog.Any("error", err))
		}
	}
	s.audit(ctx, a.ID, "get_insights", insights)
	return insights, nil
}

func (s *campaignService) UpdateBudget(ctx context.Context, automationID, campaignID string, b metaads.BudgetUpdate) (*metaads.Object, error) {
	if b.Empty() {
		return nil, apperror.NewValidation("set daily_budget or lifetime_budget")
	}
	if (b.DailyBudget != nil && *b.DailyBudget <= 0) || (b.LifetimeBudget != nil && *b.LifetimeBudget <= 0) {
		return nil, apperror.NewValidation("budget must be greater than zero")
	}

	a, err := s.registry.Require(ctx, automationID)
	if err != nil {
		return nil, err
	}

	obj, err := s.platform.UpdateBudget(ctx, a.Credentials(), campaignID, b)
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "update_budget", err)
	}
	s.audit(ctx, a.ID, "update_budget", obj)
	return obj, nil
}

// --- Full ad ---

func (s *campaignService) CreateFullAd(ctx context.Context, req FullAdRequest) (*FullAdResult, error) {
	if req.DailyBudget == 0 {
		req.DailyBudget = DefaultFullAdBudget
	}
	if req.DailyBudget < 0 {
		return nil, apperror.NewValidation("daily_budget must be greater than zero")
	}
	if req.CampaignObjective == "" {
		req.CampaignObjective = DefaultFullAdObjective
	}
	if !objectives[req.CampaignObjective] {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown objective %q", req.CampaignObjective))
	}
	status, err := writableStatus(req.CampaignStatus)
	if err != nil {
		return nil, err
	}
	if req.PageID == "" || req.LinkURL == "" {
		return nil, apperror.NewValidation("page_id and link_url are required")
	}

	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}

	content, err := s.prepareContent(ctx, a.ID, req)
	if err != nil {
		return nil, err
	}

	gctx := req.Context.WithDefaults()
	campaignName := content.Copy.CampaignName
	if campaignName == "" {
		campaignName = "Camp_" + sanitize.Truncate(gctx.ProductName, 20)
	}
	creds := a.Credentials()
	budget := req.DailyBudget

	campaign, err := s.platform.CreateCampaign(ctx, creds, a.AdAccountID, metaads.CampaignParams{
		Name:        campaignName,
		Objective:   req.CampaignObjective,
		Status:      status,
		DailyBudget: &budget,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "ai_create_full_ad", err)
	}

	adset, err := s.platform.CreateAdSet(ctx, creds, a.AdAccountID, metaads.AdSetParams{
		CampaignID:       campaign.ID,
		Name:             "AdSet_" + sanitize.Truncate(gctx.ProductName, 20),
		DailyBudget:      budget,
		BillingEvent:     "IMPRESSIONS",
		OptimizationGoal: "REACH",
		Targeting:        content.Targeting,
		Status:           status,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "ai_create_full_ad", err)
	}

	imageURL := ""
	if content.Image != nil {
		imageURL = content.Image.URL
	}
	adName := content.Copy.Headline
	if adName == "" {
		adName = "AI ad"
	}
	ad, err := s.platform.CreateAd(ctx, creds, a.AdAccountID, metaads.AdParams{
		AdSetID:  adset.ID,
		Name:     sanitize.Truncate(adName, 100),
		Creative: creative.LinkAd(content.Copy, req.PageID, req.LinkURL, imageURL),
		Status:   status,
	})
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "ai_create_full_ad", err)
	}

	if err := s.registry.SetCampaignReference(ctx, a.ID, campaign.ID); err != nil {
		slog.Warn("campaign reference not stored", slog.String("automation_id", a.ID), slog.Any("error", err))
	}
	s.audit(ctx, a.ID, "ai_create_full_ad", map[string]any{
		"campaign_id":         campaign.ID,
		"adset_id":            adset.ID,
		"ad_id":               ad.ID,
		"ai_generated_fields": content.AIGeneratedFields,
	})

	result := &FullAdResult{
		AIGenerated: *content,
		MetaResults: PlatformResults{
			CampaignID:   campaign.ID,
			CampaignName: campaignName,
			AdSetID:      adset.ID,
			AdID:         ad.ID,
			Status:       status,
		},
	}
	if s.analytics != nil {
		id, err := s.analytics.RecordAIGeneration(ctx, &analytics.AIGeneration{
			AutomationID:   a.ID,
			GenerationType: analytics.GenerationFullAd,
			Context:        gctx,
			Output:         content,
			Overrides:      overrides(req),
			AIFields:       content.AIGeneratedFields,
			Model:          s.content.TextModel(),
			AdID:           ad.ID,
			CampaignID:     campaign.ID,
		})
		if err != nil {
			slog.Warn("ai generation not recorded", slog.String("automation_id", a.ID), slog.Any("error", err))
		}
		result.AIHistoryID = id
	}

	slog.Info("full ad created",
		slog.String("automation_id", a.ID),
		slog.String("campaign_id", campaign.ID),
		slog.String("ad_id", ad.ID),
		slog.Any("ai_generated_fields", content.AIGeneratedFields),
	)
	return result, nil
}

// prepareContent generates whatever the request does not override.
func (s *campaignService) prepareContent(ctx context.Context, automationID string, req FullAdRequest) (*Content, error) {
	c := &Content{AIGeneratedFields: []string{}}

	if req.CustomCopy != nil {
		if strings.TrimSpace(req.CustomCopy.Headline) == "" {
			return nil, apperror.NewValidation("custom_copy.headline is required")
		}
		c.Copy = req.CustomCopy.Clean()
	} else {
		cp, err := s.content.GenerateCopy(ctx, req.Context)
		if err != nil {
			return nil, s.providerFailure(ctx, automationID, err)
		}
		c.Copy = *cp
		c.AIGeneratedFields = append(c.AIGeneratedFields, "copy")
	}
	if name := strings.TrimSpace(req.CustomCampaignName); name != "" {
		c.Copy.CampaignName = name
	}

	if len(req.CustomTargeting) > 0 {
		c.Targeting = req.CustomTargeting
	} else {
		aud, err := s.content.GenerateAudience(ctx, req.Context)
		if err != nil {
			return nil, s.providerFailure(ctx, automationID, err)
		}
		c.Targeting = aud.Targeting
		c.AudienceInfo = &AudienceInfo{
			Description:        aud.Description,
			SuggestedInterests: aud.SuggestedInterests,
			EstimatedReach:     aud.EstimatedReach,
		}
		c.AIGeneratedFields = append(c.AIGeneratedFields, "targeting")
	}

	generate := req.GenerateImage == nil || *req.GenerateImage
	switch {
	case req.CustomImageURL != "":
		c.Image = &ImageInfo{URL: req.CustomImageURL, Source: "manual"}
	case generate:
		prompt := c.Copy.ImagePrompt
		if prompt == "" {
			prompt = "Professional ad image for " + req.Context.ProductName
		}
		img, err := s.content.GenerateImage(ctx, prompt, generator.SizeSquare)
		if err != nil {
			return nil, s.providerFailure(ctx, automationID, err)
		}
		c.Image = &ImageInfo{
			URL:           img.URL,
			Source:        "generated",
			RevisedPrompt: img.RevisedPrompt,
			Model:         img.Model,
		}
		s.archive(ctx, automationID, c.Image)
		c.AIGeneratedFields = append(c.AIGeneratedFields, "image")
	}
	return c, nil
}

// archive replaces a short-lived provider URL with a durable one. On
// failure the provider URL is kept.
func (s *campaignService) archive(ctx context.Context, automationID string, img *ImageInfo) {
	archived, err := s.images.Archive(ctx, img.URL, automationID)
	if err != nil {
		slog.Warn("image archive failed, using provider url",
			slog.String("automation_id", automationID),
			slog.Any("error", err),
		)
		return
	}
	img.URL = archived.URL
	img.Archived = archived.Archived
	img.ObjectKey = archived.Object
}

// providerFailure audits a content provider failure and translates it.
func (s *campaignService) providerFailure(ctx context.Context, automationID string, err error) error {
	if generator.IsProviderFailure(err) {
		slog.Error("content provider failed",
			slog.String("automation_id", automationID),
			slog.Any("error", err),
		)
		if aerr := s.registry.AppendAuditLog(context.WithoutCancel(ctx), automationID, "ai_create_full_ad", nil, err.Error()); aerr != nil {
			slog.Warn("audit entry not written", slog.Any("error", aerr))
		}
	}
	return generator.AsAppError(err)
}

// overrides lists the custom fields the caller supplied.
func overrides(req FullAdRequest) map[string]any {
	out := map[string]any{}
	if req.CustomCopy != nil {
		out["custom_copy"] = req.CustomCopy
	}
	if len(req.CustomTargeting) > 0 {
		out["custom_targeting"] = req.CustomTargeting
	}
	if req.CustomImageURL != "" {
		out["custom_image_url"] = req.CustomImageURL
	}
	if req.CustomCampaignName != "" {
		out["custom_campaign_name"] = req.CustomCampaignName
	}
	return out
}
