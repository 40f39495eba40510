// Package network provides the Network category rule pack.
package network

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Network rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.SecurityGroupOpenAdminRule(),   // HIGH
		rules.RDSPublicAccessRule(),          // HIGH
		rules.EC2PublicIPRule(),              // MEDIUM
		rules.LoadBalancerHTTPListenerRule(), // MEDIUM
	}
}
