package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/ksj/cloud-doctor/internal/rules"
)

// RuleParams resolves the thresholds r evaluates with under cfg. Every
// default the rule declares, such as max_age_days on IAM_ACCESS_KEY_AGE, is
// replaced by rules.<ID>.params.<key> when the policy sets it. Keys the rule
// does not declare are ignored. A rule without params yields nil.
func RuleParams(r rules.Rule, cfg *PolicyConfig) map[string]float64 {
	if len(r.Params) == 0 {
		return nil
	}
	out := make(map[string]float64, len(r.Params))
	for key, def := range r.Params {
		out[key] = def
		if v, ok := paramOverride(cfg, r.ID, key); ok {
			out[key] = v
		}
	}
	return out
}

func paramOverride(cfg *PolicyConfig, ruleID, key string) (float64, bool) {
	if cfg == nil {
		return 0, false
	}
	v, ok := cfg.Rules[ruleID].Params[key]
	return v, ok
}

// paramErrors reports overrides no threshold accepts: negative, NaN or
// infinite values. Errors are ordered by rule ID, then key.
func paramErrors(cfg *PolicyConfig) []error {
	var paths []string
	for ruleID, rc := range cfg.Rules {
		for key, v := range rc.Params {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				paths = append(paths, fmt.Sprintf("rules.%s.params.%s", ruleID, key))
			}
		}
	}
	sort.Strings(paths)
	errs := make([]error, 0, len(paths))
	for _, p := range paths {
		errs = append(errs, fmt.Errorf("%s: must be a finite, non-negative number", p))
	}
	return errs
}
