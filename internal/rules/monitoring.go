package rules

import (
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// GuardDutyRule flags regions without an enabled GuardDuty detector.
func GuardDutyRule() Rule {
	return Rule{
		ID:           "GUARDDUTY_DISABLED",
		Version:      1,
		Title:        "GuardDuty is enabled in every region",
		Category:     models.CategoryMonitoring,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceRegion,
		Requires:     []string{evidence.AttrGuardDutyEnabled},
		Remediation:  "guide/monitoring/guardduty",
		Check: boolCheck(evidence.AttrGuardDutyEnabled, false,
			"%s has no enabled GuardDuty detector",
			"%s has GuardDuty enabled"),
	}
}

// AWSConfigRule flags regions where no configuration recorder is recording.
func AWSConfigRule() Rule {
	return Rule{
		ID:           "AWS_CONFIG_DISABLED",
		Version:      1,
		Title:        "AWS Config is recording in every region",
		Category:     models.CategoryMonitoring,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceRegion,
		Requires:     []string{evidence.AttrConfigRecording},
		Remediation:  "guide/monitoring/aws-config",
		Check: boolCheck(evidence.AttrConfigRecording, false,
			"%s has no active AWS Config recorder",
			"%s has AWS Config recording"),
	}
}

// CloudWatchAlarmsRule flags regions with no CloudWatch metric alarms.
func CloudWatchAlarmsRule() Rule {
	return Rule{
		ID:           "CLOUDWATCH_NO_ALARMS",
		Version:      1,
		Title:        "CloudWatch alarms are configured",
		Category:     models.CategoryMonitoring,
		Severity:     models.SeverityLow,
		ResourceType: models.ResourceRegion,
		Requires:     []string{evidence.AttrAlarmCount},
		Remediation:  "guide/monitoring/cloudwatch-alarms",
		Params:       map[string]float64{"min_alarms": 1},
		Check: func(ctx CheckContext) (Outcome, error) {
			n, err := numberAttr(ctx.Resource, evidence.AttrAlarmCount)
			if err != nil {
				return Outcome{}, err
			}
			min := ctx.Param("min_alarms", 1)
			if n < min {
				return Fail("%s has %.0f CloudWatch alarms (want at least %.0f)", ctx.Resource.ID(), n, min), nil
			}
			return Pass("%s has %.0f CloudWatch alarms", ctx.Resource.ID(), n), nil
		},
	}
}
