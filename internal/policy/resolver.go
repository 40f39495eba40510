package policy

import (
	"strings"

	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/rules"
)

// ApplyPolicy returns the rules to evaluate under cfg: disabled categories
// and rules are dropped, severity overrides replace the rule severity and
// configured params override rule defaults. Registration order is kept.
func ApplyPolicy(rs []rules.Rule, cfg *PolicyConfig) []rules.Rule {
	if cfg == nil {
		return rs
	}

	result := make([]rules.Rule, 0, len(rs))

	for _, r := range rs {
		// Category-level disable
		if c, ok := lookupCategory(cfg, r.Category); ok && c.Enabled != nil && !*c.Enabled {
			continue
		}

		ruleCfg, hasRule := cfg.Rules[r.ID]

		// Rule-level disable
		if hasRule && ruleCfg.Enabled != nil && !*ruleCfg.Enabled {
			continue
		}

		// Severity override
		if hasRule && ruleCfg.Severity != "" {
			r = r.WithSeverity(models.Severity(strings.ToUpper(ruleCfg.Severity)))
		}

		if params := RuleParams(r, cfg); params != nil {
			r = r.WithParams(params)
		}

		result = append(result, r)
	}

	return result
}

// lookupCategory matches category keys case-insensitively.
func lookupCategory(cfg *PolicyConfig, c models.Category) (CategoryConfig, bool) {
	if cc, ok := cfg.Categories[string(c)]; ok {
		return cc, true
	}
	for name, cc := range cfg.Categories {
		if strings.EqualFold(name, string(c)) {
			return cc, true
		}
	}
	return CategoryConfig{}, false
}
