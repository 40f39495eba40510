// Package deployment provides the Deployment category rule pack: instance
// metadata hardening and image, snapshot and cluster exposure.
package deployment

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Deployment rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.EBSSnapshotPublicRule(), // CRITICAL
		rules.EC2IMDSv2Rule(),         // HIGH
		rules.AMIPublicRule(),         // HIGH
		rules.EKSPublicEndpointRule(), // HIGH
	}
}
