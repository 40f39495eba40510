package policy

import (
	"testing"

	"github.com/ksj/cloud-doctor/internal/models"
)

func failing(sev models.Severity) models.Finding {
	return models.Finding{Severity: sev, Status: models.StatusFail}
}

func TestShouldFail_NilConfig(t *testing.T) {
	if ShouldFail([]models.Finding{failing(models.SeverityCritical)}, nil) {
		t.Error("nil cfg must return false")
	}
}

func TestShouldFail_NoEnforcementBlock(t *testing.T) {
	cfg := &PolicyConfig{Version: 1}
	if ShouldFail([]models.Finding{failing(models.SeverityCritical)}, cfg) {
		t.Error("absent enforcement block must return false")
	}
}

func TestShouldFail_InvalidSeverityIgnored(t *testing.T) {
	cfg := &PolicyConfig{Enforcement: EnforcementConfig{FailOnSeverity: "BOGUS"}}
	if ShouldFail([]models.Finding{failing(models.SeverityCritical)}, cfg) {
		t.Error("unrecognised fail_on_severity must return false")
	}
}

func TestShouldFail_Thresholds(t *testing.T) {
	cases := []struct {
		threshold string
		finding   models.Finding
		want      bool
	}{
		{"HIGH", failing(models.SeverityHigh), true},
		{"high", failing(models.SeverityCritical), true},
		{"HIGH", failing(models.SeverityMedium), false},
		{"CRITICAL", failing(models.SeverityHigh), false},
		{"LOW", failing(models.SeverityLow), true},
		{"LOW", models.Finding{Severity: models.SeverityCritical, Status: models.StatusPass}, false},
		{"LOW", models.Finding{Severity: models.SeverityCritical, Status: models.StatusError}, false},
		{"LOW", models.Finding{Severity: models.SeverityCritical, Status: models.StatusNotApplicable}, false},
	}
	for _, tc := range cases {
		cfg := &PolicyConfig{Enforcement: EnforcementConfig{FailOnSeverity: tc.threshold}}
		got := ShouldFail([]models.Finding{tc.finding}, cfg)
		if got != tc.want {
			t.Errorf("fail_on=%s finding=%s/%s: got %v; want %v",
				tc.threshold, tc.finding.Severity, tc.finding.Status, got, tc.want)
		}
	}
}

func TestShouldFail_MixedFindings_AnyMatchTriggers(t *testing.T) {
	cfg := &PolicyConfig{Enforcement: EnforcementConfig{FailOnSeverity: "HIGH"}}
	findings := []models.Finding{
		failing(models.SeverityLow),
		failing(models.SeverityMedium),
		failing(models.SeverityCritical), // this one triggers
	}
	if !ShouldFail(findings, cfg) {
		t.Error("any finding at or above threshold must trigger ShouldFail")
	}
}
