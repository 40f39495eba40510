package policy

import (
	"github.com/ksj/cloud-doctor/internal/models"
)

// ShouldFail reports whether any FAIL finding has a severity at or above
// the configured fail_on_severity threshold.
//
// It returns false when:
//   - cfg is nil (no policy loaded)
//   - fail_on_severity is empty or an unrecognised value
//   - no finding has status FAIL
func ShouldFail(findings []models.Finding, cfg *PolicyConfig) bool {
	if cfg == nil || cfg.Enforcement.FailOnSeverity == "" {
		return false
	}
	threshold, err := models.ParseSeverity(cfg.Enforcement.FailOnSeverity)
	if err != nil {
		return false
	}
	return FailsAt(findings, threshold)
}

// FailsAt reports whether any FAIL finding is at or above threshold.
// PASS, NOT_APPLICABLE and ERROR findings never trigger.
func FailsAt(findings []models.Finding, threshold models.Severity) bool {
	for _, f := range findings {
		if f.Status == models.StatusFail && f.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}
