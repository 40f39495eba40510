// Package monitoring provides the Monitoring category rule pack.
// Its rules target the per-region pseudo resource.
package monitoring

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Monitoring rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.GuardDutyRule(),        // HIGH
		rules.AWSConfigRule(),        // MEDIUM
		rules.CloudWatchAlarmsRule(), // LOW
	}
}
