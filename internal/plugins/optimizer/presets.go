package optimizer

import "maps"

// DefaultPreset is returned for unknown preset names.
const DefaultPreset = "balanced"

var presets = map[string][]Rule{
	"conservative": {
		{Metric: "cpc", Condition: GreaterThan, Threshold: 5.0, Action: ActionDecreaseBudget10},
		{Metric: "ctr", Condition: LessThan, Threshold: 0.5, Action: ActionNotify},
	},
	"balanced": {
		{Metric: "cpc", Condition: GreaterThan, Threshold: 3.0, Action: ActionDecreaseBudget10},
		{Metric: "ctr", Condition: LessThan, Threshold: 1.0, Action: ActionDecreaseBudget10},
		{Metric: "ctr", Condition: GreaterThan, Threshold: 3.0, Action: ActionIncreaseBudget10},
	},
	"aggressive": {
		{Metric: "cpc", Condition: GreaterThan, Threshold: 2.0, Action: ActionPause},
		{Metric: "ctr", Condition: LessThan, Threshold: 0.8, Action: ActionPause},
		{Metric: "ctr", Condition: GreaterThan, Threshold: 3.0, Action: ActionIncreaseBudget20},
		{Metric: "cpm", Condition: GreaterThan, Threshold: 50.0, Action: ActionDecreaseBudget20},
	},
}

// Preset returns the named rule set and the name actually used. Unknown
// names fall back to balanced.
func Preset(name string) (string, []Rule) {
	if _, ok := presets[name]; !ok {
		name = DefaultPreset
	}
	return name, clone(presets[name])
}

// Presets returns every rule set.
func Presets() map[string][]Rule {
	out := maps.Clone(presets)
	for k, v := range out {
		out[k] = clone(v)
	}
	return out
}

func clone(rules []Rule) []Rule {
	return append([]Rule(nil), rules...)
}
