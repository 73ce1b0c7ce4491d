// Package optimizer evaluates budget and pause rules against a campaign's
// live metrics and applies the actions of the rules that trigger. Nothing
// is persisted between calls apart from the audit and analytics records.
package optimizer

import (
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// Rule conditions. Both are strict.
const (
	GreaterThan = "greater_than"
	LessThan    = "less_than"
)

// Rule actions.
const (
	ActionPause            = "pause"
	ActionIncreaseBudget10 = "increase_budget_10pct"
	ActionIncreaseBudget20 = "increase_budget_20pct"
	ActionDecreaseBudget10 = "decrease_budget_10pct"
	ActionDecreaseBudget20 = "decrease_budget_20pct"
	ActionNotify           = "notify"
)

var actions = map[string]bool{
	ActionPause:            true,
	ActionIncreaseBudget10: true,
	ActionIncreaseBudget20: true,
	ActionDecreaseBudget10: true,
	ActionDecreaseBudget20: true,
	ActionNotify:           true,
}

// MinDailyBudget is the floor for any adjusted budget, in minor units.
const MinDailyBudget = 100

// Rule is "if metric condition threshold, then action".
type Rule struct {
	Metric    string  `json:"metric" validate:"required"`
	Condition string  `json:"condition" validate:"required,oneof=greater_than less_than"`
	Threshold float64 `json:"threshold"`
	Action    string  `json:"action" validate:"required"`
}

// Matches reports whether value triggers the rule.
func (r Rule) Matches(value float64) bool {
	switch r.Condition {
	case GreaterThan:
		return value > r.Threshold
	case LessThan:
		return value < r.Threshold
	default:
		return false
	}
}

// OptimizeRequest runs a rule set against one campaign.
type OptimizeRequest struct {
	AutomationID string `json:"automation_id" validate:"required"`
	CampaignID   string `json:"campaign_id" validate:"required"`
	Rules        []Rule `json:"rules" validate:"required,min=1,dive"`
	DatePreset   string `json:"date_preset"`
	DryRun       bool   `json:"dry_run"`
}

// RuleResult is the evaluation trace of one rule.
type RuleResult struct {
	Metric      string  `json:"metric"`
	Condition   string  `json:"condition"`
	Threshold   float64 `json:"threshold"`
	ActualValue float64 `json:"actual_value"`
	Triggered   bool    `json:"triggered"`
	Action      string  `json:"action"`
	Outcome     string  `json:"outcome,omitempty"`
}

// TakenAction is an action actually executed.
type TakenAction struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	Result string `json:"result"`
}

// Analysis is the optional provider read of the metrics. On failure only
// Error is set.
type Analysis struct {
	*generator.Analysis
	Error string `json:"error,omitempty"`
}

// Result is the full report of one optimize call.
type Result struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message,omitempty"`
	CampaignID     string           `json:"campaign_id"`
	DatePreset     string           `json:"date_preset"`
	DryRun         bool             `json:"dry_run"`
	Insights       metaads.Insights `json:"insights"`
	RulesEvaluated []RuleResult     `json:"rules_evaluated"`
	ActionsTaken   []TakenAction    `json:"actions_taken"`
	AIAnalysis     *Analysis        `json:"ai_analysis,omitempty"`
	Summary        string           `json:"summary,omitempty"`
}
