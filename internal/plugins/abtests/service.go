package abtests

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/lock"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/metrics"
	"github.com/keyxmakerx/adpilot/internal/outcome"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
	"github.com/keyxmakerx/adpilot/internal/plugins/automations"
)

// Platform is the part of the ad platform client the A/B engine uses.
type Platform interface {
	CreateAd(ctx context.Context, creds metaads.Credentials, accountID string, p metaads.AdParams) (*metaads.Object, error)
	UpdateStatus(ctx context.Context, creds metaads.Credentials, objectID string, status metaads.Status) (*metaads.Object, error)
	GetInsights(ctx context.Context, creds metaads.Credentials, targetID, datePreset string, fields []string) (metaads.Insights, error)
}

// ResultRecorder stores evaluation results.
type ResultRecorder interface {
	RecordABResult(ctx context.Context, r *analytics.ABResult) error
}

// ABTestService creates and evaluates A/B tests.
type ABTestService interface {
	// Create builds one paused ad per variant. Any failed ad aborts the
	// whole creation and nothing is stored. Once every ad exists the test
	// is stored and each ad is activated on a best-effort basis.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// CreateWithAI asks the content provider for variants, then creates.
	CreateWithAI(ctx context.Context, req GenerateRequest) (*CreateResult, error)

	Get(ctx context.Context, id string) (*Test, error)

	// List returns an automation's tests without their results maps.
	List(ctx context.Context, automationID string) ([]Test, error)

	// Evaluate ranks the variants and completes the test. autoApply, when
	// set, overrides the test's stored flag.
	Evaluate(ctx context.Context, id string, autoApply *bool) (*Evaluation, error)

	// EvaluateDue evaluates every active test past its end time and
	// returns how many completed.
	EvaluateDue(ctx context.Context) (int, error)
}

type abTestService struct {
	repo     TestRepository
	registry automations.Registry
	platform Platform
	content  generator.Provider
	locks    *lock.Locker // Nil without Redis.
	results  ResultRecorder
	now      func() time.Time
}

// NewABTestService creates the A/B engine. locks and results may be nil.
func NewABTestService(repo TestRepository, registry automations.Registry, platform Platform, content generator.Provider, locks *lock.Locker, results ResultRecorder) ABTestService {
	return &abTestService{
		repo:     repo,
		registry: registry,
		platform: platform,
		content:  content,
		locks:    locks,
		results:  results,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newTestID() string {
	return "ab_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func resolveMetric(m string) (string, error) {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return DefaultMetric, nil
	}
	if !knownMetrics[m] {
		return "", apperror.NewValidation(fmt.Sprintf("unknown optimization_metric %q", m))
	}
	return m, nil
}

func resolveDuration(hours int) (int, error) {
	switch {
	case hours == 0:
		return DefaultDurationHours, nil
	case hours < 0:
		return 0, apperror.NewValidation("duration_hours must be positive")
	}
	return hours, nil
}

// autoApplyDefault is true unless the caller says otherwise.
func autoApplyDefault(v *bool) bool {
	return v == nil || *v
}

func (s *abTestService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if n := len(req.Variants); n < MinVariants || n > MaxVariants {
		return nil, apperror.NewValidation(fmt.Sprintf("a test needs %d to %d variants, got %d", MinVariants, MaxVariants, n))
	}
	for i, v := range req.Variants {
		if strings.TrimSpace(v.Name) == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("variant %d: name is required", i+1))
		}
		if strings.TrimSpace(v.Copy.Headline) == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("variant %q: headline is required", v.Name))
		}
	}
	if req.AdSetID == "" || req.PageID == "" || req.LinkURL == "" {
		return nil, apperror.NewValidation("adset_id, page_id and link_url are required")
	}
	metric, err := resolveMetric(req.OptimizationMetric)
	if err != nil {
		return nil, err
	}
	hours, err := resolveDuration(req.DurationHours)
	if err != nil {
		return nil, err
	}

	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}
	creds := a.Credentials()
	testID := newTestID()

	variants := make([]Variant, 0, len(req.Variants))
	_, err = outcome.Run(ctx, outcome.Propagate, req.Variants,
		func(v VariantInput) string { return v.Name },
		func(ctx context.Context, v VariantInput) (string, error) {
			cp := v.Copy.Clean()
			ad, err := s.platform.CreateAd(ctx, creds, a.AdAccountID, metaads.AdParams{
				AdSetID:  req.AdSetID,
				Name:     fmt.Sprintf("[A/B %s] %s", testID, v.Name),
				Creative: creative.LinkAd(cp, req.PageID, req.LinkURL, req.ImageURL),
				Status:   metaads.StatusPaused,
			})
			if err != nil {
				return "", err
			}
			variants = append(variants, Variant{
				Index:    len(variants),
				Name:     v.Name,
				Approach: v.Approach,
				AdID:     ad.ID,
				Copy:     cp,
			})
			return ad.ID, nil
		})
	if err != nil {
		var itemErr *outcome.ItemError
		if !errors.As(err, &itemErr) {
			return nil, err
		}
		// Ads created before the failure stay on the platform, paused.
		slog.Error("variant creation failed, test aborted",
			slog.String("test_id", testID),
			slog.String("variant", itemErr.Key),
			slog.Int("orphaned_ads", len(variants)),
		)
		return nil, s.registry.RecordFailure(ctx, a.ID, "create_ab_test", itemErr.Err)
	}

	now := s.now()
	test := &Test{
		ID:                 testID,
		AutomationID:       a.ID,
		CampaignID:         req.CampaignID,
		AdSetID:            req.AdSetID,
		PageID:             req.PageID,
		Name:               strings.TrimSpace(req.Name),
		Status:             StatusActive,
		Variants:           variants,
		OptimizationMetric: metric,
		DurationHours:      hours,
		AutoApplyWinner:    autoApplyDefault(req.AutoApplyWinner),
		CreatedAt:          now,
		EndAt:              now.Add(time.Duration(hours) * time.Hour),
		UpdatedAt:          now,
	}
	if err := s.repo.Save(ctx, test); err != nil {
		return nil, apperror.NewInternal(err)
	}

	activation, err := outcome.Run(ctx, outcome.CollectAndContinue, variants,
		func(v Variant) string { return v.AdID },
		func(ctx context.Context, v Variant) (string, error) {
			if _, err := s.platform.UpdateStatus(ctx, creds, v.AdID, metaads.StatusActive); err != nil {
				slog.Warn("variant not activated",
					slog.String("test_id", testID),
					slog.String("ad_id", v.AdID),
					slog.String("reason", metaads.Describe(err)),
				)
				return "", err
			}
			return "activated " + v.Name, nil
		})
	if err != nil {
		slog.Warn("activation interrupted", slog.String("test_id", testID), slog.Any("error", err))
	}

	s.audit(ctx, a.ID, "create_ab_test", map[string]any{
		"test_id":    testID,
		"variants":   len(variants),
		"activation": activation.Status(),
	})
	slog.Info("ab test created",
		slog.String("test_id", testID),
		slog.String("automation_id", a.ID),
		slog.Int("variants", len(variants)),
	)
	return &CreateResult{Test: test, Activation: activation}, nil
}

func (s *abTestService) CreateWithAI(ctx context.Context, req GenerateRequest) (*CreateResult, error) {
	n := req.NumVariants
	if n == 0 {
		n = generator.MinVariants
	}
	if n < generator.MinVariants || n > generator.MaxVariants {
		return nil, apperror.NewValidation(fmt.Sprintf("num_variants must be between %d and %d", generator.MinVariants, generator.MaxVariants))
	}
	if _, err := resolveMetric(req.OptimizationMetric); err != nil {
		return nil, err
	}
	if _, err := resolveDuration(req.DurationHours); err != nil {
		return nil, err
	}
	if _, err := s.registry.Require(ctx, req.AutomationID); err != nil {
		return nil, err
	}

	generated, err := s.content.GenerateVariants(ctx, req.Context, n)
	if err != nil {
		return nil, generator.AsAppError(err)
	}
	if len(generated) == 0 {
		return nil, generator.AsAppError(fmt.Errorf("%w: no variants returned", generator.ErrMalformedResponse))
	}

	inputs := make([]VariantInput, len(generated))
	for i, v := range generated {
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("Variant %d", i+1)
		}
		inputs[i] = VariantInput{Name: name, Approach: v.Approach, Copy: v.Copy}
	}

	res, err := s.Create(ctx, CreateRequest{
		AutomationID:       req.AutomationID,
		CampaignID:         req.CampaignID,
		AdSetID:            req.AdSetID,
		PageID:             req.PageID,
		LinkURL:            req.LinkURL,
		ImageURL:           req.ImageURL,
		Name:               "A/B Test: " + req.Context.ProductName,
		Variants:           inputs,
		OptimizationMetric: req.OptimizationMetric,
		DurationHours:      req.DurationHours,
		AutoApplyWinner:    req.AutoApplyWinner,
	})
	if err != nil {
		return nil, err
	}
	res.AIGenerated = true
	res.AIVariants = generated
	return res, nil
}

func (s *abTestService) Get(ctx context.Context, id string) (*Test, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if t == nil {
		return nil, apperror.NewNotFound(fmt.Sprintf("test %q not found", id))
	}
	return t, nil
}

func (s *abTestService) List(ctx context.Context, automationID string) ([]Test, error) {
	if automationID == "" {
		return nil, apperror.NewValidation("automation_id is required")
	}
	tests, err := s.repo.ListByAutomation(ctx, automationID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	for i := range tests {
		tests[i].Results = nil
	}
	return tests, nil
}

// --- Evaluation ---

func (s *abTestService) Evaluate(ctx context.Context, id string, autoApply *bool) (*Evaluation, error) {
	var ev *Evaluation
	err := s.locks.WithLock(ctx, "abtest:"+id, func(ctx context.Context) error {
		var err error
		ev, err = s.evaluate(ctx, id, autoApply)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		err = apperror.NewConflict(fmt.Sprintf("test %q is being evaluated", id))
	}
	if err != nil {
		label := "error"
		if apperror.SafeCode(err) == http.StatusConflict {
			label = "conflict"
		}
		metrics.ABTestEvaluationsTotal.WithLabelValues(label).Inc()
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			return nil, apperror.NewInternal(err)
		}
		return nil, err
	}
	metrics.ABTestEvaluationsTotal.WithLabelValues(StatusCompleted).Inc()
	return ev, nil
}

func (s *abTestService) evaluate(ctx context.Context, id string, autoApply *bool) (*Evaluation, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCompleted {
		return nil, apperror.NewConflict(fmt.Sprintf("test %q is already completed", id))
	}
	a, err := s.registry.Require(ctx, t.AutomationID)
	if err != nil {
		return nil, err
	}
	creds := a.Credentials()

	metric := t.OptimizationMetric
	if metric == "" {
		metric = DefaultMetric
	}
	apply := t.AutoApplyWinner
	if autoApply != nil {
		apply = *autoApply
	}

	// A variant whose insights cannot be read ranks with a zero value.
	ranking := make([]Ranked, 0, len(t.Variants))
	usable := 0
	var fetchErr error
	for _, v := range t.Variants {
		r := Ranked{Name: v.Name, AdID: v.AdID, Metrics: metaads.Insights{}}
		ins, err := s.platform.GetInsights(ctx, creds, v.AdID, evaluationPreset, evaluationFields)
		switch {
		case err != nil:
			if fetchErr == nil {
				fetchErr = err
			}
			r.FetchError = metaads.Describe(err)
			slog.Warn("variant metrics unavailable",
				slog.String("test_id", t.ID),
				slog.String("ad_id", v.AdID),
				slog.String("reason", r.FetchError),
			)
		case !ins.Empty():
			r.Metrics = ins
			r.Value = metricValue(ins, metric)
			usable++
		}
		ranking = append(ranking, r)
	}
	if usable == 0 && fetchErr != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "evaluate_ab_test", fetchErr)
	}
	if usable == 0 {
		return nil, apperror.NewConfiguration("no variant has metrics yet, wait until the test has impressions")
	}

	Rank(ranking, metric)
	best := ranking[0]
	winner := Winner{Name: best.Name, AdID: best.AdID, Metric: metric, Value: best.Value}

	ev := &Evaluation{
		TestID:         t.ID,
		Winner:         winner,
		Ranking:        ranking,
		AutoApplied:    apply,
		ActionsApplied: []string{},
		DeltaPct:       deltaPct(ranking),
	}
	if apply && len(ranking) > 1 {
		pauses, err := outcome.Run(ctx, outcome.CollectAndContinue, ranking[1:],
			func(r Ranked) string { return r.AdID },
			func(ctx context.Context, r Ranked) (string, error) {
				if _, err := s.platform.UpdateStatus(ctx, creds, r.AdID, metaads.StatusPaused); err != nil {
					slog.Warn("losing variant not paused",
						slog.String("test_id", t.ID),
						slog.String("ad_id", r.AdID),
						slog.String("reason", metaads.Describe(err)),
					)
					return "", err
				}
				return fmt.Sprintf("paused %s (ad_id=%s)", r.Name, r.AdID), nil
			})
		if err != nil {
			slog.Warn("pausing losers interrupted", slog.String("test_id", t.ID), slog.Any("error", err))
		}
		ev.Pauses = pauses
		ev.ActionsApplied = pauses.Details()
	}

	now := s.now()
	results := make(map[string]metaads.Insights, len(ranking))
	for _, r := range ranking {
		results[r.AdID] = r.Metrics
	}
	err = s.repo.Update(ctx, t.ID, map[string]any{
		"status":       StatusCompleted,
		"winner":       winner,
		"results":      results,
		"evaluated_at": now,
		"updated_at":   now,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.NewInternal(err)
	}

	s.audit(ctx, a.ID, "evaluate_ab_test", map[string]any{
		"test_id": t.ID,
		"winner":  winner.Name,
		"metric":  metric,
	})
	s.recordResult(ctx, t, ev)

	slog.Info("ab test evaluated",
		slog.String("test_id", t.ID),
		slog.String("winner", winner.Name),
		slog.String("metric", metric),
		slog.Float64("value", winner.Value),
		slog.Bool("auto_applied", apply),
	)
	return ev, nil
}

// Rank orders variants best first by metric. Equal values keep their
// creation order. Ranks are assigned from 1.
func Rank(ranking []Ranked, metric string) {
	lower := LowerIsBetter(metric)
	slices.SortStableFunc(ranking, func(x, y Ranked) int {
		if lower {
			return cmp.Compare(x.Value, y.Value)
		}
		return cmp.Compare(y.Value, x.Value)
	})
	for i := range ranking {
		ranking[i].Rank = i + 1
	}
}

// metricValue reads metric from one insights row. Cost per action comes
// back as a list; the first entry is used.
func metricValue(ins metaads.Insights, metric string) float64 {
	if metric != "cpa" && metric != "cost_per_action_type" {
		return ins.Float(metric)
	}
	list, ok := ins["cost_per_action_type"].([]any)
	if !ok || len(list) == 0 {
		return ins.Float("cpa")
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return 0
	}
	return metaads.Insights(first).Float("value")
}

// deltaPct is the winner's margin over the runner-up as a percentage of the
// runner-up's value, rounded to two places.
func deltaPct(ranking []Ranked) *float64 {
	if len(ranking) < 2 || ranking[1].Value == 0 {
		return nil
	}
	best := decimal.NewFromFloat(ranking[0].Value)
	next := decimal.NewFromFloat(ranking[1].Value)
	pct, _ := best.Sub(next).Div(next).Mul(decimal.NewFromInt(100)).Abs().Round(2).Float64()
	return &pct
}

func (s *abTestService) recordResult(ctx context.Context, t *Test, ev *Evaluation) {
	if s.results == nil {
		return
	}
	r := &analytics.ABResult{
		TestID:       t.ID,
		AutomationID: t.AutomationID,
		WinnerName:   ev.Winner.Name,
		WinnerAdID:   ev.Winner.AdID,
		WinnerValue:  ev.Winner.Value,
		AllVariants:  ev.Ranking,
		MetricUsed:   ev.Winner.Metric,
		DeltaPct:     ev.DeltaPct,
	}
	for _, v := range t.Variants {
		if v.AdID == ev.Winner.AdID {
			r.WinnerApproach = v.Approach
			r.WinnerCopy = v.Copy
		}
	}
	if err := s.results.RecordABResult(ctx, r); err != nil {
		slog.Warn("ab result not recorded", slog.String("test_id", t.ID), slog.Any("error", err))
	}
}

func (s *abTestService) EvaluateDue(ctx context.Context) (int, error) {
	tests, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, apperror.NewInternal(err)
	}
	now := s.now()
	completed := 0
	for i := range tests {
		t := &tests[i]
		if !t.Due(now) {
			continue
		}
		if _, err := s.Evaluate(ctx, t.ID, nil); err != nil {
			slog.Warn("due test not evaluated",
				slog.String("test_id", t.ID),
				slog.String("reason", apperror.SafeMessage(err)),
			)
			continue
		}
		completed++
	}
	return completed, nil
}

// audit appends a log entry. A failed write is logged, never returned.
func (s *abTestService) audit(ctx context.Context, id, action string, result any) {
	if err := s.registry.AppendAuditLog(ctx, id, action, result, ""); err != nil {
		slog.Warn("audit entry not written",
			slog.String("automation_id", id),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
