package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/events"
)

// AnalyticsService records and queries analytics. Recording methods store
// the record first, then publish it; a failed publish is logged and does not
// fail the call.
type AnalyticsService interface {
	// RecordAIGeneration stores a generation and returns its id for later
	// feedback.
	RecordAIGeneration(ctx context.Context, g *AIGeneration) (string, error)
	AttachFeedback(ctx context.Context, id string, req FeedbackRequest) error

	RecordABResult(ctx context.Context, r *ABResult) error
	RecordOptimizerAction(ctx context.Context, a *OptimizerAction) error
	RecordAdError(ctx context.Context, e *AdError) error
	RecordMetricsSnapshot(ctx context.Context, s *MetricsSnapshot) (string, error)

	// RecordError stores an ad platform failure. Errors are logged, not
	// returned, so failure handling never fails twice.
	RecordError(ctx context.Context, automationID, operation, message string)

	ListAIGenerations(ctx context.Context, f Filter) ([]AIGeneration, error)
	ListABResults(ctx context.Context, f Filter) ([]ABResult, error)
	ListOptimizerActions(ctx context.Context, f Filter) ([]OptimizerAction, error)
	ListErrors(ctx context.Context, f Filter) ([]AdError, error)
	MetricsHistory(ctx context.Context, f Filter) ([]MetricsSnapshot, error)

	Summary(ctx context.Context, automationID string) (*Summary, error)
}

type analyticsService struct {
	repo      AnalyticsRepository
	publisher events.Publisher
	now       func() time.Time
}

// NewAnalyticsService creates the analytics service. A nil publisher is
// replaced by events.Noop.
func NewAnalyticsService(repo AnalyticsRepository, publisher events.Publisher) AnalyticsService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &analyticsService{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// newID returns prefix followed by n hex characters.
func newID(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + hex[:n]
}

// store saves and publishes one record.
func (s *analyticsService) store(ctx context.Context, kind, id, automationID string, doc any) error {
	if err := s.repo.Save(ctx, kind, id, doc); err != nil {
		return apperror.NewInternal(err)
	}
	// Publish failures are logged and counted by the publisher.
	_ = s.publisher.Publish(ctx, kind, automationID, doc)
	return nil
}

func (s *analyticsService) RecordAIGeneration(ctx context.Context, g *AIGeneration) (string, error) {
	g.ID = newID("ai_", 16)
	g.CreatedAt = s.now()
	if g.AIFields == nil {
		g.AIFields = []string{}
	}
	g.OverrodeFields = overrodeFields(g.Overrides)

	if err := s.store(ctx, KindAIGenerations, g.ID, g.AutomationID, g); err != nil {
		return "", err
	}
	slog.Info("ai generation recorded",
		slog.String("id", g.ID),
		slog.String("type", g.GenerationType),
	)
	return g.ID, nil
}

// overrodeFields lists the override keys that carry a value.
func overrodeFields(overrides map[string]any) []string {
	out := []string{}
	for k, v := range overrides {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s *analyticsService) AttachFeedback(ctx context.Context, id string, req FeedbackRequest) error {
	if len(req.Metrics) == 0 {
		return apperror.NewValidation("metrics are required")
	}
	fields := map[string]any{
		"metrics":           req.Metrics,
		"performance_score": req.PerformanceScore,
		"feedback_at":       s.now(),
	}
	if err := s.repo.Update(ctx, KindAIGenerations, id, fields); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.NewInternal(err)
	}
	return nil
}

func (s *analyticsService) RecordABResult(ctx context.Context, r *ABResult) error {
	r.EvaluatedAt = s.now()
	return s.store(ctx, KindABResults, r.TestID, r.AutomationID, r)
}

func (s *analyticsService) RecordOptimizerAction(ctx context.Context, a *OptimizerAction) error {
	a.ID = newID("opt_", 12)
	a.ExecutedAt = s.now()
	return s.store(ctx, KindOptimizerActions, a.ID, a.AutomationID, a)
}

func (s *analyticsService) RecordAdError(ctx context.Context, e *AdError) error {
	e.ID = newID("err_", 12)
	e.OccurredAt = s.now()
	if e.ErrorType == "" {
		e.ErrorType = ErrorTypeMetaAPI
	}
	return s.store(ctx, KindAdErrors, e.ID, e.AutomationID, e)
}

func (s *analyticsService) RecordMetricsSnapshot(ctx context.Context, snap *MetricsSnapshot) (string, error) {
	if snap.AutomationID == "" || snap.CampaignID == "" {
		return "", apperror.NewValidation("automation_id and campaign_id are required")
	}
	snap.ID = newID("snap_", 12)
	snap.RecordedAt = s.now()
	m := snap.Metrics
	snap.CTR, snap.CPC, snap.CPM = m["ctr"], m["cpc"], m["cpm"]
	snap.Spend, snap.Impressions = m["spend"], m["impressions"]
	snap.Clicks, snap.Conversions = m["clicks"], m["conversions"]

	if err := s.store(ctx, KindMetricsHistory, snap.ID, snap.AutomationID, snap); err != nil {
		return "", err
	}
	return snap.ID, nil
}

func (s *analyticsService) RecordError(ctx context.Context, automationID, operation, message string) {
	err := s.RecordAdError(ctx, &AdError{
		AutomationID: automationID,
		ErrorType:    ErrorTypeMetaAPI,
		ErrorMessage: message,
		Context:      map[string]any{"operation": operation},
	})
	if err != nil {
		slog.Warn("recording ad error failed",
			slog.String("automation_id", automationID),
			slog.Any("error", err),
		)
	}
}

// --- Queries ---

// normalizeLimit applies the default and rejects out-of-range limits.
func normalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, apperror.NewValidation(fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}
	return limit, nil
}

// filters turns the non-empty fields of f into equality filters.
func (f Filter) filters() []docstore.Filter {
	var out []docstore.Filter
	add := func(field, value string) {
		if value != "" {
			out = append(out, docstore.Filter{Field: field, Value: value})
		}
	}
	add("automation_id", f.AutomationID)
	add("campaign_id", f.CampaignID)
	add("generation_type", f.GenerationType)
	add("error_type", f.ErrorType)
	return out
}

func list[T any](ctx context.Context, repo AnalyticsRepository, kind string, f Filter) ([]T, error) {
	limit, err := normalizeLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	docs, err := repo.List(ctx, kind, f.filters(), limit)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	out, err := docstore.DecodeAll[T](docs)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (s *analyticsService) ListAIGenerations(ctx context.Context, f Filter) ([]AIGeneration, error) {
	return list[AIGeneration](ctx, s.repo, KindAIGenerations, Filter{
		AutomationID: f.AutomationID, GenerationType: f.GenerationType, Limit: f.Limit,
	})
}

func (s *analyticsService) ListABResults(ctx context.Context, f Filter) ([]ABResult, error) {
	return list[ABResult](ctx, s.repo, KindABResults, Filter{AutomationID: f.AutomationID, Limit: f.Limit})
}

func (s *analyticsService) ListOptimizerActions(ctx context.Context, f Filter) ([]OptimizerAction, error) {
	return list[OptimizerAction](ctx, s.repo, KindOptimizerActions, Filter{
		AutomationID: f.AutomationID, CampaignID: f.CampaignID, Limit: f.Limit,
	})
}

func (s *analyticsService) ListErrors(ctx context.Context, f Filter) ([]AdError, error) {
	return list[AdError](ctx, s.repo, KindAdErrors, Filter{
		AutomationID: f.AutomationID, ErrorType: f.ErrorType, Limit: f.Limit,
	})
}

func (s *analyticsService) MetricsHistory(ctx context.Context, f Filter) ([]MetricsSnapshot, error) {
	if f.CampaignID == "" {
		return nil, apperror.NewValidation("campaign_id is required")
	}
	return list[MetricsSnapshot](ctx, s.repo, KindMetricsHistory, Filter{CampaignID: f.CampaignID, Limit: f.Limit})
}

func (s *analyticsService) Summary(ctx context.Context, automationID string) (*Summary, error) {
	if automationID == "" {
		return nil, apperror.NewValidation("automation_id is required")
	}
	byAutomation := []docstore.Filter{{Field: "automation_id", Value: automationID}}

	count := func(kind string) (int, error) {
		docs, err := s.repo.List(ctx, kind, byAutomation, 0)
		if err != nil {
			return 0, apperror.NewInternal(err)
		}
		return len(docs), nil
	}

	genDocs, err := s.repo.List(ctx, KindAIGenerations, byAutomation, 0)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	gens, err := docstore.DecodeAll[AIGeneration](genDocs)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	sum := &Summary{
		AutomationID:       automationID,
		TotalAIGenerations: len(gens),
		AIFieldBreakdown:   map[string]int{"copy": 0, "targeting": 0, "image": 0},
	}
	if sum.TotalABTestsEvaluated, err = count(KindABResults); err != nil {
		return nil, err
	}
	if sum.TotalOptimizerActions, err = count(KindOptimizerActions); err != nil {
		return nil, err
	}
	if sum.TotalErrors, err = count(KindAdErrors); err != nil {
		return nil, err
	}

	overrides, generated := 0, 0
	for _, g := range gens {
		overrides += len(g.OverrodeFields)
		generated += len(g.AIFields)
		for _, f := range g.AIFields {
			if _, ok := sum.AIFieldBreakdown[f]; ok {
				sum.AIFieldBreakdown[f]++
			}
		}
	}
	if generated > 0 {
		sum.AIOverrideRatePct = math.Round(float64(overrides)/float64(generated)*1000) / 10
	}
	return sum, nil
}
