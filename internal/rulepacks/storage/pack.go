// Package storage provides the Storage category rule pack.
// Every rule targets s3_bucket resources.
package storage

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Storage rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.S3BucketPolicyPublicRule(), // CRITICAL
		rules.S3PublicReadRule(),         // HIGH
		rules.S3ACLPublicRule(),          // HIGH
		rules.S3PublicAccessBlockRule(),  // MEDIUM
		rules.S3ReplicationRoleRule(),    // MEDIUM
	}
}
