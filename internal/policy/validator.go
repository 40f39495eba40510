package policy

import (
	"fmt"
	"strings"

	"github.com/ksj/cloud-doctor/internal/models"
)

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - category names must be known checklist categories
//   - category weights must not be negative
//   - rule IDs must appear in availableRuleIDs
//   - rule severity overrides must be valid severity values if set
//   - rule params must be finite and not negative
//   - severity weights must name known severities and stay monotonic
//   - enforcement fail_on_severity must be a valid severity value if set
//
// All errors are collected before returning; Validate never stops at the first error.
func Validate(cfg *PolicyConfig, availableRuleIDs []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	knownIDs := make(map[string]struct{}, len(availableRuleIDs))
	for _, id := range availableRuleIDs {
		knownIDs[id] = struct{}{}
	}

	var errs []error

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}

	for name, ccfg := range cfg.Categories {
		if _, err := models.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("categories.%s: unknown category", name))
		}
		if ccfg.Weight < 0 {
			errs = append(errs, fmt.Errorf("categories.%s.weight: must not be negative", name))
		}
	}

	for ruleID, rcfg := range cfg.Rules {
		if _, ok := knownIDs[ruleID]; !ok {
			errs = append(errs, fmt.Errorf("rules.%s: unknown rule ID", ruleID))
		}
		if rcfg.Severity != "" {
			if _, err := models.ParseSeverity(rcfg.Severity); err != nil {
				errs = append(errs, fmt.Errorf("rules.%s.severity: %w", ruleID, err))
			}
		}
	}

	errs = append(errs, paramErrors(cfg)...)

	weightsOK := true
	for name := range cfg.Weights.Severity {
		if _, err := models.ParseSeverity(name); err != nil {
			errs = append(errs, fmt.Errorf("weights.severity.%s: %w", name, err))
			weightsOK = false
		}
	}
	if weightsOK {
		if err := Weights(cfg).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("weights: %s", strings.TrimPrefix(err.Error(), "invalid weights:\n  ")))
		}
	}

	if s := cfg.Enforcement.FailOnSeverity; s != "" {
		if _, err := models.ParseSeverity(s); err != nil {
			errs = append(errs, fmt.Errorf("enforcement.fail_on_severity: %w", err))
		}
	}

	return errs
}
