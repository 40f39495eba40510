package evidence

// Attribute names shared by collectors and rules.
const (
	// aws_account
	AttrRootAccessKeysPresent = "rootAccessKeysPresent"
	AttrRootMFAEnabled        = "rootMfaEnabled"
	AttrMultiRegionTrail      = "multiRegionTrail"

	// iam_user
	AttrConsoleAccess = "consoleAccess"
	AttrMFAEnabled    = "mfaEnabled"

	// iam_access_key
	AttrKeyUser    = "user"
	AttrKeyStatus  = "status"
	AttrKeyAgeDays = "ageDays"

	// s3_bucket
	AttrPublicRead        = "publicRead"
	AttrBucketPolicy      = "policy"
	AttrACLGrants         = "aclGrants"
	AttrPublicAccessBlock = "publicAccessBlock"
	AttrEncryptionEnabled = "encryptionEnabled"
	AttrReplication       = "replication"

	// security_group
	AttrIngress = "ingress"

	// ec2_instance
	AttrPublicIP       = "publicIp"
	AttrIMDSv2Required = "imdsV2Required"

	// ebs_volume, rds_instance
	AttrEncrypted = "encrypted"

	// ebs_snapshot, ami
	AttrPublic = "public"

	// load_balancer
	AttrLBType            = "type"
	AttrListeners         = "listeners"
	AttrAccessLogsEnabled = "accessLogsEnabled"

	// rds_instance
	AttrPubliclyAccessible = "publiclyAccessible"

	// cloudtrail_trail
	AttrIsMultiRegion     = "isMultiRegion"
	AttrLogFileValidation = "logFileValidation"

	// aws_region
	AttrGuardDutyEnabled = "guardDutyEnabled"
	AttrConfigRecording  = "configRecording"
	AttrAlarmCount       = "alarmCount"

	// eks_cluster
	AttrEndpointPublic    = "endpointPublicAccess"
	AttrPublicAccessCIDRs = "publicAccessCidrs"
	AttrSecretsEncrypted  = "secretsEncrypted"
)

// Record field names used inside list and record attributes.
const (
	FieldFromPort         = "fromPort"
	FieldToPort           = "toPort"
	FieldProtocol         = "protocol"
	FieldCIDR             = "cidr"
	FieldGrantee          = "grantee"
	FieldPermission       = "permission"
	FieldPort             = "port"
	FieldRedirectsToHTTPS = "redirectsToHttps"
	FieldRole             = "role"
	FieldDestination      = "destination"
	FieldRolePolicies     = "rolePolicies"
)

// RegionResourceID returns the evidence id of the per-region pseudo resource.
func RegionResourceID(region string) string {
	return "region:" + region
}

// AccountResourceID returns the evidence id of the account pseudo resource.
func AccountResourceID(accountID string) string {
	return "account:" + accountID
}
