package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/lock"
	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/metrics"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
	"github.com/keyxmakerx/adpilot/internal/plugins/automations"
)

// insightFields are read for every optimize call.
var insightFields = []string{
	"impressions", "reach", "clicks", "spend",
	"ctr", "cpc", "cpm", "frequency",
	"actions", "cost_per_action_type",
}

// budgetFactors are the multipliers of the budget actions.
var budgetFactors = map[string]decimal.Decimal{
	ActionIncreaseBudget10: decimal.RequireFromString("1.10"),
	ActionIncreaseBudget20: decimal.RequireFromString("1.20"),
	ActionDecreaseBudget10: decimal.RequireFromString("0.90"),
	ActionDecreaseBudget20: decimal.RequireFromString("0.80"),
}

// Platform is the part of the ad platform client the optimizer uses.
type Platform interface {
	GetInsights(ctx context.Context, creds metaads.Credentials, targetID, datePreset string, fields []string) (metaads.Insights, error)
	GetCampaign(ctx context.Context, creds metaads.Credentials, campaignID string) (*metaads.Campaign, error)
	UpdateStatus(ctx context.Context, creds metaads.Credentials, objectID string, status metaads.Status) (*metaads.Object, error)
	UpdateBudget(ctx context.Context, creds metaads.Credentials, campaignID string, b metaads.BudgetUpdate) (*metaads.Object, error)
}

// Analyzer reads metrics and suggests actions.
type Analyzer interface {
	AnalyzeMetrics(ctx context.Context, metrics map[string]any, scope string) (*generator.Analysis, error)
}

// ActionRecorder stores one record per triggered rule.
type ActionRecorder interface {
	RecordOptimizerAction(ctx context.Context, a *analytics.OptimizerAction) error
}

// OptimizerService runs rule sets against live campaign metrics.
type OptimizerService interface {
	// Optimize evaluates every rule and, unless req.DryRun, executes the
	// actions of those that trigger. An action failure becomes that rule's
	// outcome and never stops the others.
	Optimize(ctx context.Context, req OptimizeRequest, useAI bool) (*Result, error)
}

type optimizerService struct {
	registry automations.Registry
	platform Platform
	analyzer Analyzer // May be nil.
	locks    *lock.Locker
	actions  ActionRecorder // May be nil.
}

// NewOptimizerService creates the optimizer. analyzer, locks and recorder
// may be nil.
func NewOptimizerService(registry automations.Registry, platform Platform, analyzer Analyzer, locks *lock.Locker, recorder ActionRecorder) OptimizerService {
	return &optimizerService{
		registry: registry,
		platform: platform,
		analyzer: analyzer,
		locks:    locks,
		actions:  recorder,
	}
}

func validate(req *OptimizeRequest) error {
	if len(req.Rules) == 0 {
		return apperror.NewValidation("at least one rule is required")
	}
	for i, r := range req.Rules {
		if strings.TrimSpace(r.Metric) == "" {
			return apperror.NewValidation(fmt.Sprintf("rule %d: metric is required", i+1))
		}
		if r.Condition != GreaterThan && r.Condition != LessThan {
			return apperror.NewValidation(fmt.Sprintf("rule %d: unknown condition %q", i+1, r.Condition))
		}
		if !actions[r.Action] {
			return apperror.NewValidation(fmt.Sprintf("rule %d: unknown action %q", i+1, r.Action))
		}
	}
	if req.DatePreset == "" {
		req.DatePreset = metaads.DefaultDatePreset
	}
	if !metaads.ValidDatePreset(req.DatePreset) {
		return apperror.NewValidation(fmt.Sprintf("unknown date_preset %q", req.DatePreset))
	}
	if req.CampaignID == "" {
		return apperror.NewValidation("campaign_id is required")
	}
	return nil
}

func (s *optimizerService) Optimize(ctx context.Context, req OptimizeRequest, useAI bool) (*Result, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var res *Result
	err := s.locks.WithLock(ctx, "optimize:"+req.CampaignID, func(ctx context.Context) error {
		var err error
		res, err = s.optimize(ctx, req, useAI)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperror.NewConflict(fmt.Sprintf("campaign %q is already being optimized", req.CampaignID))
	}
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.NewInternal(err)
	}
	return res, nil
}

func (s *optimizerService) optimize(ctx context.Context, req OptimizeRequest, useAI bool) (*Result, error) {
	a, err := s.registry.Require(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}
	creds := a.Credentials()

	insights, err := s.platform.GetInsights(ctx, creds, req.CampaignID, req.DatePreset, insightFields)
	if err != nil {
		return nil, s.registry.RecordFailure(ctx, a.ID, "auto_optimize", err)
	}

	res := &Result{
		CampaignID:     req.CampaignID,
		DatePreset:     req.DatePreset,
		DryRun:         req.DryRun,
		Insights:       insights,
		RulesEvaluated: []RuleResult{},
		ActionsTaken:   []TakenAction{},
	}
	if insights.Empty() {
		res.Insights = metaads.Insights{}
		res.Message = fmt.Sprintf("no metrics for period %q, the campaign may have had no impressions", req.DatePreset)
		if !req.DryRun {
			s.audit(ctx, a.ID, req, map[string]any{"no_data": true, "triggered": 0, "actions_taken": 0})
		}
		return res, nil
	}
	res.Success = true

	triggered := 0
	dryRun := strconv.FormatBool(req.DryRun)
	for _, rule := range req.Rules {
		value := insights.Float(rule.Metric)
		rr := RuleResult{
			Metric:      rule.Metric,
			Condition:   rule.Condition,
			Threshold:   rule.Threshold,
			ActualValue: value,
			Triggered:   rule.Matches(value),
			Action:      rule.Action,
		}
		if !rr.Triggered {
			res.RulesEvaluated = append(res.RulesEvaluated, rr)
			continue
		}

		triggered++
		metrics.OptimizerRulesTriggeredTotal.WithLabelValues(rule.Action, dryRun).Inc()
		record := &analytics.OptimizerAction{
			AutomationID:    a.ID,
			CampaignID:      req.CampaignID,
			Rule:            rule,
			MetricTriggered: rule.Metric,
			MetricValue:     value,
			ActionTaken:     rule.Action,
			DryRun:          req.DryRun,
		}

		if req.DryRun {
			rr.Outcome = "dry run, not executed"
			slog.Info("rule triggered (dry run)",
				slog.String("campaign_id", req.CampaignID),
				slog.String("metric", rule.Metric),
				slog.Float64("value", value),
				slog.String("action", rule.Action),
			)
		} else {
			out, before, after := s.execute(ctx, creds, req.CampaignID, rule.Action)
			rr.Outcome = out
			record.BeforeBudget, record.AfterBudget = before, after
			res.ActionsTaken = append(res.ActionsTaken, TakenAction{
				Action: rule.Action,
				Reason: fmt.Sprintf("%s (%.2f) %s %g", rule.Metric, value, rule.Condition, rule.Threshold),
				Result: out,
			})
		}
		record.Outcome = rr.Outcome
		s.record(ctx, record)
		res.RulesEvaluated = append(res.RulesEvaluated, rr)
	}

	if useAI && s.analyzer != nil {
		res.AIAnalysis = s.analyze(ctx, req, insights)
	}

	if !req.DryRun {
		s.audit(ctx, a.ID, req, map[string]any{"triggered": triggered, "actions_taken": len(res.ActionsTaken)})
	}

	if req.DryRun {
		res.Summary = fmt.Sprintf("%d of %d rule(s) triggered. %d action(s) simulated.", triggered, len(req.Rules), triggered)
	} else {
		res.Summary = fmt.Sprintf("%d of %d rule(s) triggered. %d action(s) executed.", triggered, len(req.Rules), len(res.ActionsTaken))
	}

	slog.Info("optimization finished",
		slog.String("automation_id", a.ID),
		slog.String("campaign_id", req.CampaignID),
		slog.Int("rules", len(req.Rules)),
		slog.Int("triggered", triggered),
		slog.Bool("dry_run", req.DryRun),
	)
	return res, nil
}

// execute performs one action and describes the outcome. For budget
// actions it also returns the budgets before and after.
func (s *optimizerService) execute(ctx context.Context, creds metaads.Credentials, campaignID, action string) (string, *int64, *int64) {
	switch action {
	case ActionPause:
		if _, err := s.platform.UpdateStatus(ctx, creds, campaignID, metaads.StatusPaused); err != nil {
			return actionFailed(action, err), nil, nil
		}
		return "campaign paused", nil, nil

	case ActionNotify:
		return "notification recorded in the audit log", nil, nil
	}

	factor := budgetFactors[action]
	campaign, err := s.platform.GetCampaign(ctx, creds, campaignID)
	if err != nil {
		return actionFailed(action, err), nil, nil
	}
	current := campaign.DailyBudgetMinor()
	if current == 0 {
		return "budget adjustment unavailable: the campaign uses a lifetime or ad set budget", nil, nil
	}

	next := AdjustBudget(current, factor)
	if _, err := s.platform.UpdateBudget(ctx, creds, campaignID, metaads.BudgetUpdate{DailyBudget: &next}); err != nil {
		return actionFailed(action, err), &current, nil
	}

	direction := "increased"
	if factor.LessThan(decimal.NewFromInt(1)) {
		direction = "decreased"
	}
	pct := factor.Sub(decimal.NewFromInt(1)).Abs().Mul(decimal.NewFromInt(100)).StringFixed(0)
	return fmt.Sprintf("daily budget %s by %s%%: %s to %s", direction, pct, minorUnits(current), minorUnits(next)), &current, &next
}

// AdjustBudget applies factor to a daily budget in minor units, floors the
// result and clamps it to MinDailyBudget.
func AdjustBudget(current int64, factor decimal.Decimal) int64 {
	next := decimal.NewFromInt(current).Mul(factor).Floor().IntPart()
	if next < MinDailyBudget {
		return MinDailyBudget
	}
	return next
}

// minorUnits formats an amount in minor units as a decimal major amount.
func minorUnits(n int64) string {
	return decimal.New(n, -2).StringFixed(2)
}

func actionFailed(action string, err error) string {
	slog.Error("optimizer action failed",
		slog.String("action", action),
		slog.Any("error", err),
	)
	return fmt.Sprintf("ad platform error while executing %s: %s", action, metaads.Describe(err))
}

func (s *optimizerService) analyze(ctx context.Context, req OptimizeRequest, insights metaads.Insights) *Analysis {
	scope := fmt.Sprintf("Campaign ID: %s | Automation: %s | Period: %s", req.CampaignID, req.AutomationID, req.DatePreset)
	analysis, err := s.analyzer.AnalyzeMetrics(ctx, insights, scope)
	if err != nil {
		slog.Warn("metrics analysis failed", slog.String("campaign_id", req.CampaignID), slog.Any("error", err))
		return &Analysis{Error: apperror.SafeMessage(generator.AsAppError(err))}
	}
	return &Analysis{Analysis: analysis}
}

func (s *optimizerService) record(ctx context.Context, a *analytics.OptimizerAction) {
	if s.actions == nil {
		return
	}
	if err := s.actions.RecordOptimizerAction(ctx, a); err != nil {
		slog.Warn("optimizer action not recorded",
			slog.String("campaign_id", a.CampaignID),
			slog.Any("error", err),
		)
	}
}

// audit appends the auto_optimize entry for a real run. counts is merged
// over the request fields.
func (s *optimizerService) audit(ctx context.Context, automationID string, req OptimizeRequest, counts map[string]any) {
	entry := map[string]any{
		"campaign_id": req.CampaignID,
		"date_preset": req.DatePreset,
		"dry_run":     false,
		"rules_count": len(req.Rules),
	}
	for k, v := range counts {
		entry[k] = v
	}
	if err := s.registry.AppendAuditLog(ctx, automationID, "auto_optimize", entry, ""); err != nil {
		slog.Warn("audit entry not written", slog.String("automation_id", automationID), slog.Any("error", err))
	}
}
