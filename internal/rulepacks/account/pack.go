// Package account provides the Account category rule pack: root user
// hygiene and IAM credential checks.
package account

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Account rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.RootAccessKeyRule(), // CRITICAL
		rules.RootMFARule(),       // CRITICAL
		rules.IAMUserMFARule(),    // MEDIUM
		rules.AccessKeyAgeRule(),  // MEDIUM
	}
}
