package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ekssvc "github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2svc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3APIClient is the narrow S3 interface used by the collector. It covers
// listing plus every bucket sub-resource the storage rules inspect.
type s3APIClient interface {
	ListBuckets(ctx context.Context, params *s3svc.ListBucketsInput, optFns ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3svc.GetBucketPolicyStatusInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error)
	GetBucketPolicy(ctx context.Context, params *s3svc.GetBucketPolicyInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error)
	GetBucketAcl(ctx context.Context, params *s3svc.GetBucketAclInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3svc.GetPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
	GetBucketReplication(ctx context.Context, params *s3svc.GetBucketReplicationInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketReplicationOutput, error)
}

// ec2SecurityAPIClient is the narrow EC2 interface used for network and
// deployment evidence. The embedded paginator clients let the SDK paginators
// drive it directly.
type ec2SecurityAPIClient interface {
	ec2svc.DescribeSecurityGroupsAPIClient
	ec2svc.DescribeInstancesAPIClient
	ec2svc.DescribeVolumesAPIClient
	ec2svc.DescribeSnapshotsAPIClient
	DescribeSnapshotAttribute(ctx context.Context, params *ec2svc.DescribeSnapshotAttributeInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotAttributeOutput, error)
	DescribeImages(ctx context.Context, params *ec2svc.DescribeImagesInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeImagesOutput, error)
}

// iamAPIClient is the narrow IAM interface used for user, key and account
// evidence. It embeds ListUsersAPIClient so the SDK paginator can be used
// directly.
type iamAPIClient interface {
	iamsvc.ListUsersAPIClient
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
	ListRolePolicies(ctx context.Context, params *iamsvc.ListRolePoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListRolePoliciesOutput, error)
	GetRolePolicy(ctx context.Context, params *iamsvc.GetRolePolicyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetRolePolicyOutput, error)
}

// cloudTrailAPIClient is the narrow CloudTrail interface for trail
// configuration.
type cloudTrailAPIClient interface {
	DescribeTrails(ctx context.Context, params *cloudtrailsvc.DescribeTrailsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error)
}

// guardDutyAPIClient is the narrow GuardDuty interface for checking detector
// status. ListDetectors returns detector IDs; GetDetector returns the status.
type guardDutyAPIClient interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guardduty.GetDetectorInput, optFns ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error)
}

// awsConfigAPIClient is the narrow AWS Config interface for checking recorder
// status.
type awsConfigAPIClient interface {
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configsvc.DescribeConfigurationRecorderStatusInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error)
}

type cloudWatchAPIClient interface {
	cloudwatchsvc.DescribeAlarmsAPIClient
}

type rdsAPIClient interface {
	rdssvc.DescribeDBInstancesAPIClient
}

// elbv2APIClient covers load balancer listing plus the listener and
// attribute lookups done per load balancer.
type elbv2APIClient interface {
	elbv2svc.DescribeLoadBalancersAPIClient
	DescribeListeners(ctx context.Context, params *elbv2svc.DescribeListenersInput, optFns ...func(*elbv2svc.Options)) (*elbv2svc.DescribeListenersOutput, error)
	DescribeLoadBalancerAttributes(ctx context.Context, params *elbv2svc.DescribeLoadBalancerAttributesInput, optFns ...func(*elbv2svc.Options)) (*elbv2svc.DescribeLoadBalancerAttributesOutput, error)
}

// eksAPIClient is the minimal EKS interface: list clusters, then describe
// each one.
type eksAPIClient interface {
	ekssvc.ListClustersAPIClient
	DescribeCluster(ctx context.Context, params *ekssvc.DescribeClusterInput, optFns ...func(*ekssvc.Options)) (*ekssvc.DescribeClusterOutput, error)
}

// secClients bundles all AWS service clients used by the collector.
type secClients struct {
	S3         s3APIClient
	EC2        ec2SecurityAPIClient
	IAM        iamAPIClient
	CloudTrail cloudTrailAPIClient
	GuardDuty  guardDutyAPIClient
	Config     awsConfigAPIClient
	CloudWatch cloudWatchAPIClient
	RDS        rdsAPIClient
	ELBv2      elbv2APIClient
	EKS        eksAPIClient
}

// secClientFactory creates secClients from an AWS config.
// Injection point: tests replace this with a function returning fake clients.
type secClientFactory func(cfg aws.Config) *secClients

// newDefaultSecClients creates production AWS SDK clients from the given config.
func newDefaultSecClients(cfg aws.Config) *secClients {
	return &secClients{
		S3:         s3svc.NewFromConfig(cfg),
		EC2:        ec2svc.NewFromConfig(cfg),
		IAM:        iamsvc.NewFromConfig(cfg),
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		GuardDuty:  guardduty.NewFromConfig(cfg),
		Config:     configsvc.NewFromConfig(cfg),
		CloudWatch: cloudwatchsvc.NewFromConfig(cfg),
		RDS:        rdssvc.NewFromConfig(cfg),
		ELBv2:      elbv2svc.NewFromConfig(cfg),
		EKS:        ekssvc.NewFromConfig(cfg),
	}
}
