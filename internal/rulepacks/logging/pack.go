// Package logging provides the Logging category rule pack.
package logging

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Logging rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.CloudTrailMultiRegionRule(),   // HIGH
		rules.CloudTrailLogValidationRule(), // MEDIUM
		rules.LoadBalancerAccessLogsRule(),  // LOW
	}
}
