package rules

import (
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// S3DefaultEncryptionRule flags buckets without a default server-side
// encryption configuration.
func S3DefaultEncryptionRule() Rule {
	return Rule{
		ID:           "S3_DEFAULT_ENCRYPTION_MISSING",
		Version:      1,
		Title:        "S3 buckets have default encryption",
		Category:     models.CategoryEncryption,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrEncryptionEnabled},
		Remediation:  "guide/encryption/s3-default-encryption",
		Check: boolCheck(evidence.AttrEncryptionEnabled, false,
			"bucket %s has no default encryption",
			"bucket %s is encrypted by default"),
	}
}

// EBSEncryptionRule flags unencrypted EBS volumes.
func EBSEncryptionRule() Rule {
	return Rule{
		ID:           "EBS_UNENCRYPTED",
		Version:      1,
		Title:        "EBS volumes are encrypted",
		Category:     models.CategoryEncryption,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceEBSVolume,
		Requires:     []string{evidence.AttrEncrypted},
		Remediation:  "guide/encryption/ebs-encryption",
		Check: boolCheck(evidence.AttrEncrypted, false,
			"volume %s is not encrypted",
			"volume %s is encrypted"),
	}
}

// RDSEncryptionRule flags database instances without storage encryption.
func RDSEncryptionRule() Rule {
	return Rule{
		ID:           "RDS_UNENCRYPTED",
		Version:      1,
		Title:        "RDS storage is encrypted",
		Category:     models.CategoryEncryption,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceRDSInstance,
		Requires:     []string{evidence.AttrEncrypted},
		Remediation:  "guide/encryption/rds-encryption",
		Check: boolCheck(evidence.AttrEncrypted, false,
			"database %s storage is not encrypted",
			"database %s storage is encrypted"),
	}
}

// EKSSecretsEncryptionRule flags clusters without envelope encryption of
// Kubernetes secrets.
func EKSSecretsEncryptionRule() Rule {
	return Rule{
		ID:           "EKS_SECRETS_ENCRYPTION_DISABLED",
		Version:      1,
		Title:        "EKS secrets are envelope-encrypted with KMS",
		Category:     models.CategoryEncryption,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceEKSCluster,
		Requires:     []string{evidence.AttrSecretsEncrypted},
		Remediation:  "guide/encryption/eks-secrets",
		Check: boolCheck(evidence.AttrSecretsEncrypted, false,
			"cluster %s does not encrypt secrets with KMS",
			"cluster %s encrypts secrets with KMS"),
	}
}
