// Package encryption provides the Encryption category rule pack.
// It groups encryption-at-rest checks for S3, EBS, RDS and EKS secrets.
package encryption

import "github.com/ksj/cloud-doctor/internal/rules"

// New returns the Encryption rules ordered by severity.
func New() []rules.Rule {
	return []rules.Rule{
		rules.EBSEncryptionRule(),        // HIGH
		rules.RDSEncryptionRule(),        // HIGH
		rules.S3DefaultEncryptionRule(),  // MEDIUM
		rules.EKSSecretsEncryptionRule(), // MEDIUM
	}
}
