package rules

import (
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// CloudTrailMultiRegionRule flags accounts with no multi-region trail. It
// targets the account rather than trails so an account with zero trails
// FAILs instead of being not applicable.
func CloudTrailMultiRegionRule() Rule {
	return Rule{
		ID:           "CLOUDTRAIL_NOT_MULTI_REGION",
		Version:      1,
		Title:        "A multi-region CloudTrail trail is configured",
		Category:     models.CategoryLogging,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceAccount,
		Requires:     []string{evidence.AttrMultiRegionTrail},
		Remediation:  "guide/logging/cloudtrail-multi-region",
		Check: boolCheck(evidence.AttrMultiRegionTrail, false,
			"account %s has no multi-region CloudTrail trail",
			"account %s has a multi-region CloudTrail trail"),
	}
}

// CloudTrailLogValidationRule flags trails without log file integrity
// validation.
func CloudTrailLogValidationRule() Rule {
	return Rule{
		ID:           "CLOUDTRAIL_LOG_VALIDATION",
		Version:      1,
		Title:        "CloudTrail log file validation is enabled",
		Category:     models.CategoryLogging,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceTrail,
		Requires:     []string{evidence.AttrLogFileValidation},
		Remediation:  "guide/logging/cloudtrail-log-validation",
		Check: boolCheck(evidence.AttrLogFileValidation, false,
			"trail %s has log file validation disabled",
			"trail %s validates log files"),
	}
}

// LoadBalancerAccessLogsRule flags load balancers without access logging.
func LoadBalancerAccessLogsRule() Rule {
	return Rule{
		ID:           "ELB_ACCESS_LOGS_DISABLED",
		Version:      1,
		Title:        "Load balancer access logs are enabled",
		Category:     models.CategoryLogging,
		Severity:     models.SeverityLow,
		ResourceType: models.ResourceLoadBalancer,
		Requires:     []string{evidence.AttrAccessLogsEnabled},
		Remediation:  "guide/logging/elb-access-logs",
		Check: boolCheck(evidence.AttrAccessLogsEnabled, false,
			"load balancer %s has access logs disabled",
			"load balancer %s writes access logs"),
	}
}
