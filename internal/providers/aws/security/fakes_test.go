package awssecurity

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	configtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	ekssvc "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	elbv2svc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	guarddutytypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

type fakeProvider struct {
	account string
	regions []string
	loadErr error
	assumed string
}

func (p *fakeProvider) LoadProfile(_ context.Context, profile string) (*common.ProfileConfig, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return &common.ProfileConfig{ProfileName: "default", AccountID: p.account, Region: "us-east-1"}, nil
}

func (p *fakeProvider) LoadAllProfiles(ctx context.Context) ([]*common.ProfileConfig, error) {
	pc, err := p.LoadProfile(ctx, "")
	if err != nil {
		return nil, err
	}
	return []*common.ProfileConfig{pc}, nil
}

func (p *fakeProvider) AssumeRole(_ context.Context, base *common.ProfileConfig, roleARN, _ string) (*common.ProfileConfig, error) {
	out := *base
	out.RoleARN = roleARN
	out.AccountID = p.assumed
	return &out, nil
}

func (p *fakeProvider) GetActiveRegions(context.Context, *common.ProfileConfig) ([]string, error) {
	return p.regions, nil
}

func (p *fakeProvider) ConfigForRegion(_ *common.ProfileConfig, region string) aws.Config {
	return aws.Config{Region: region}
}

// ---------------------------------------------------------------------------
// S3
// ---------------------------------------------------------------------------

type fakeS3 struct {
	buckets     []s3types.Bucket
	listErr     error
	public      map[string]bool
	policies    map[string]string
	grants      map[string][]s3types.Grant
	pab         map[string]bool
	encrypted   map[string]bool
	replication map[string]*s3types.ReplicationConfiguration
}

func (f *fakeS3) ListBuckets(context.Context, *s3svc.ListBucketsInput, ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &s3svc.ListBucketsOutput{Buckets: f.buckets}, nil
}

func (f *fakeS3) GetBucketPolicyStatus(_ context.Context, in *s3svc.GetBucketPolicyStatusInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error) {
	public, ok := f.public[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr(codeNoSuchBucketPolicy)
	}
	return &s3svc.GetBucketPolicyStatusOutput{PolicyStatus: &s3types.PolicyStatus{IsPublic: aws.Bool(public)}}, nil
}

func (f *fakeS3) GetBucketPolicy(_ context.Context, in *s3svc.GetBucketPolicyInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error) {
	doc, ok := f.policies[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr(codeNoSuchBucketPolicy)
	}
	return &s3svc.GetBucketPolicyOutput{Policy: aws.String(doc)}, nil
}

func (f *fakeS3) GetBucketAcl(_ context.Context, in *s3svc.GetBucketAclInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error) {
	return &s3svc.GetBucketAclOutput{Grants: f.grants[aws.ToString(in.Bucket)]}, nil
}

func (f *fakeS3) GetPublicAccessBlock(_ context.Context, in *s3svc.GetPublicAccessBlockInput, _ ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error) {
	on, ok := f.pab[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr(codeNoSuchPublicAccess)
	}
	return &s3svc.GetPublicAccessBlockOutput{PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
		BlockPublicAcls:       aws.Bool(on),
		IgnorePublicAcls:      aws.Bool(on),
		BlockPublicPolicy:     aws.Bool(on),
		RestrictPublicBuckets: aws.Bool(on),
	}}, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, in *s3svc.GetBucketEncryptionInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error) {
	if !f.encrypted[aws.ToString(in.Bucket)] {
		return nil, apiErr(codeNoEncryptionConfig)
	}
	return &s3svc.GetBucketEncryptionOutput{}, nil
}

func (f *fakeS3) GetBucketReplication(_ context.Context, in *s3svc.GetBucketReplicationInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketReplicationOutput, error) {
	cfg, ok := f.replication[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr(codeNoReplicationConfig)
	}
	return &s3svc.GetBucketReplicationOutput{ReplicationConfiguration: cfg}, nil
}

// ---------------------------------------------------------------------------
// IAM
// ---------------------------------------------------------------------------

type fakeIAM struct {
	mu       sync.Mutex
	calls    int
	users    []iamtypes.User
	listErr  error
	mfa      map[string]bool
	console  map[string]bool
	keys     map[string][]iamtypes.AccessKeyMetadata
	summary  map[string]int32
	policies map[string]map[string]string
}

func (f *fakeIAM) called() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeIAM) ListUsers(context.Context, *iamsvc.ListUsersInput, ...func(*iamsvc.Options)) (*iamsvc.ListUsersOutput, error) {
	f.called()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &iamsvc.ListUsersOutput{Users: f.users}, nil
}

func (f *fakeIAM) ListMFADevices(_ context.Context, in *iamsvc.ListMFADevicesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error) {
	f.called()
	out := &iamsvc.ListMFADevicesOutput{}
	if f.mfa[aws.ToString(in.UserName)] {
		out.MFADevices = []iamtypes.MFADevice{{UserName: in.UserName}}
	}
	return out, nil
}

func (f *fakeIAM) GetLoginProfile(_ context.Context, in *iamsvc.GetLoginProfileInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error) {
	f.called()
	if !f.console[aws.ToString(in.UserName)] {
		return nil, apiErr(codeNoSuchEntity)
	}
	return &iamsvc.GetLoginProfileOutput{}, nil
}

func (f *fakeIAM) ListAccessKeys(_ context.Context, in *iamsvc.ListAccessKeysInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error) {
	f.called()
	return &iamsvc.ListAccessKeysOutput{AccessKeyMetadata: f.keys[aws.ToString(in.UserName)]}, nil
}

func (f *fakeIAM) GetAccountSummary(context.Context, *iamsvc.GetAccountSummaryInput, ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error) {
	f.called()
	if f.summary == nil {
		return nil, apiErr("AccessDenied")
	}
	return &iamsvc.GetAccountSummaryOutput{SummaryMap: f.summary}, nil
}

func (f *fakeIAM) ListRolePolicies(_ context.Context, in *iamsvc.ListRolePoliciesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListRolePoliciesOutput, error) {
	f.called()
	out := &iamsvc.ListRolePoliciesOutput{}
	for name := range f.policies[aws.ToString(in.RoleName)] {
		out.PolicyNames = append(out.PolicyNames, name)
	}
	return out, nil
}

func (f *fakeIAM) GetRolePolicy(_ context.Context, in *iamsvc.GetRolePolicyInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetRolePolicyOutput, error) {
	f.called()
	doc, ok := f.policies[aws.ToString(in.RoleName)][aws.ToString(in.PolicyName)]
	if !ok {
		return nil, apiErr(codeNoSuchEntity)
	}
	return &iamsvc.GetRolePolicyOutput{PolicyDocument: aws.String(doc)}, nil
}

// ---------------------------------------------------------------------------
// EC2
// ---------------------------------------------------------------------------

type fakeEC2 struct {
	groups    []ec2types.SecurityGroup
	sgErr     error
	instances []ec2types.Instance
	volumes   []ec2types.Volume
	snapshots []ec2types.Snapshot
	public    map[string]bool
	images    []ec2types.Image
}

func (f *fakeEC2) DescribeSecurityGroups(context.Context, *ec2svc.DescribeSecurityGroupsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error) {
	if f.sgErr != nil {
		return nil, f.sgErr
	}
	return &ec2svc.DescribeSecurityGroupsOutput{SecurityGroups: f.groups}, nil
}

func (f *fakeEC2) DescribeInstances(context.Context, *ec2svc.DescribeInstancesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeInstancesOutput, error) {
	return &ec2svc.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: f.instances}}}, nil
}

func (f *fakeEC2) DescribeVolumes(context.Context, *ec2svc.DescribeVolumesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVolumesOutput, error) {
	return &ec2svc.DescribeVolumesOutput{Volumes: f.volumes}, nil
}

func (f *fakeEC2) DescribeSnapshots(_ context.Context, in *ec2svc.DescribeSnapshotsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotsOutput, error) {
	if len(in.OwnerIds) != 1 || in.OwnerIds[0] != "self" {
		return nil, errors.New("snapshots must be filtered to self")
	}
	return &ec2svc.DescribeSnapshotsOutput{Snapshots: f.snapshots}, nil
}

func (f *fakeEC2) DescribeSnapshotAttribute(_ context.Context, in *ec2svc.DescribeSnapshotAttributeInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotAttributeOutput, error) {
	out := &ec2svc.DescribeSnapshotAttributeOutput{}
	if f.public[aws.ToString(in.SnapshotId)] {
		out.CreateVolumePermissions = []ec2types.CreateVolumePermission{{Group: ec2types.PermissionGroupAll}}
	}
	return out, nil
}

func (f *fakeEC2) DescribeImages(context.Context, *ec2svc.DescribeImagesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeImagesOutput, error) {
	return &ec2svc.DescribeImagesOutput{Images: f.images}, nil
}

// ---------------------------------------------------------------------------
// Regional services
// ---------------------------------------------------------------------------

type fakeCloudTrail struct {
	trails []cloudtrailtypes.Trail
	err    error
}

func (f *fakeCloudTrail) DescribeTrails(context.Context, *cloudtrailsvc.DescribeTrailsInput, ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &cloudtrailsvc.DescribeTrailsOutput{TrailList: f.trails}, nil
}

type fakeGuardDuty struct{ enabled bool }

func (f *fakeGuardDuty) ListDetectors(context.Context, *guardduty.ListDetectorsInput, ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error) {
	if !f.enabled {
		return &guardduty.ListDetectorsOutput{}, nil
	}
	return &guardduty.ListDetectorsOutput{DetectorIds: []string{"det-1"}}, nil
}

func (f *fakeGuardDuty) GetDetector(context.Context, *guardduty.GetDetectorInput, ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error) {
	return &guardduty.GetDetectorOutput{Status: guarddutytypes.DetectorStatusEnabled}, nil
}

type fakeConfig struct{ recording bool }

func (f *fakeConfig) DescribeConfigurationRecorderStatus(context.Context, *configsvc.DescribeConfigurationRecorderStatusInput, ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error) {
	return &configsvc.DescribeConfigurationRecorderStatusOutput{
		ConfigurationRecordersStatus: []configtypes.ConfigurationRecorderStatus{{Recording: f.recording}},
	}, nil
}

type fakeCloudWatch struct{ alarms int }

func (f *fakeCloudWatch) DescribeAlarms(context.Context, *cloudwatchsvc.DescribeAlarmsInput, ...func(*cloudwatchsvc.Options)) (*cloudwatchsvc.DescribeAlarmsOutput, error) {
	return &cloudwatchsvc.DescribeAlarmsOutput{MetricAlarms: make([]cwtypes.MetricAlarm, f.alarms)}, nil
}

type fakeRDS struct{ instances []rdstypes.DBInstance }

func (f *fakeRDS) DescribeDBInstances(context.Context, *rdssvc.DescribeDBInstancesInput, ...func(*rdssvc.Options)) (*rdssvc.DescribeDBInstancesOutput, error) {
	return &rdssvc.DescribeDBInstancesOutput{DBInstances: f.instances}, nil
}

type fakeELBv2 struct {
	lbs        []elbv2types.LoadBalancer
	listeners  map[string][]elbv2types.Listener
	accessLogs map[string]bool
}

func (f *fakeELBv2) DescribeLoadBalancers(context.Context, *elbv2svc.DescribeLoadBalancersInput, ...func(*elbv2svc.Options)) (*elbv2svc.DescribeLoadBalancersOutput, error) {
	return &elbv2svc.DescribeLoadBalancersOutput{LoadBalancers: f.lbs}, nil
}

func (f *fakeELBv2) DescribeListeners(_ context.Context, in *elbv2svc.DescribeListenersInput, _ ...func(*elbv2svc.Options)) (*elbv2svc.DescribeListenersOutput, error) {
	return &elbv2svc.DescribeListenersOutput{Listeners: f.listeners[aws.ToString(in.LoadBalancerArn)]}, nil
}

func (f *fakeELBv2) DescribeLoadBalancerAttributes(_ context.Context, in *elbv2svc.DescribeLoadBalancerAttributesInput, _ ...func(*elbv2svc.Options)) (*elbv2svc.DescribeLoadBalancerAttributesOutput, error) {
	value := "false"
	if f.accessLogs[aws.ToString(in.LoadBalancerArn)] {
		value = "true"
	}
	return &elbv2svc.DescribeLoadBalancerAttributesOutput{Attributes: []elbv2types.LoadBalancerAttribute{
		{Key: aws.String("deletion_protection.enabled"), Value: aws.String("true")},
		{Key: aws.String(attrKeyAccessLogs), Value: aws.String(value)},
	}}, nil
}

type fakeEKS struct{ clusters map[string]*ekstypes.Cluster }

func (f *fakeEKS) ListClusters(context.Context, *ekssvc.ListClustersInput, ...func(*ekssvc.Options)) (*ekssvc.ListClustersOutput, error) {
	out := &ekssvc.ListClustersOutput{}
	for name := range f.clusters {
		out.Clusters = append(out.Clusters, name)
	}
	return out, nil
}

func (f *fakeEKS) DescribeCluster(_ context.Context, in *ekssvc.DescribeClusterInput, _ ...func(*ekssvc.Options)) (*ekssvc.DescribeClusterOutput, error) {
	c, ok := f.clusters[aws.ToString(in.Name)]
	if !ok {
		return nil, apiErr("ResourceNotFoundException")
	}
	return &ekssvc.DescribeClusterOutput{Cluster: c}, nil
}

// emptyClients returns clients that report an account with nothing in it.
func emptyClients() *secClients {
	return &secClients{
		S3:         &fakeS3{},
		EC2:        &fakeEC2{},
		IAM:        &fakeIAM{summary: map[string]int32{}},
		CloudTrail: &fakeCloudTrail{},
		GuardDuty:  &fakeGuardDuty{},
		Config:     &fakeConfig{},
		CloudWatch: &fakeCloudWatch{},
		RDS:        &fakeRDS{},
		ELBv2:      &fakeELBv2{},
		EKS:        &fakeEKS{},
	}
}
