package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

// S3 error codes for bucket sub-resources that simply are not configured.
const (
	codeNoSuchBucketPolicy  = "NoSuchBucketPolicy"
	codeNoSuchPublicAccess  = "NoSuchPublicAccessBlockConfiguration"
	codeNoEncryptionConfig  = "ServerSideEncryptionConfigurationNotFoundError"
	codeNoReplicationConfig = "ReplicationConfigurationNotFoundError"
)

// collectS3 lists every bucket and records its access and data-protection
// configuration. A failed lookup for one attribute leaves that attribute
// out, so dependent rules report NOT_APPLICABLE instead of guessing.
func (r *collection) collectS3(ctx context.Context, c *secClients) error {
	if !r.wants(models.ResourceS3Bucket) {
		return nil
	}
	out, err := c.S3.ListBuckets(ctx, &s3svc.ListBucketsInput{})
	if err != nil {
		return r.record("s3", "", fmt.Errorf("list S3 buckets: %w", err), models.ResourceS3Bucket)
	}

	for _, b := range out.Buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := aws.ToString(b.Name)
		region := aws.ToString(b.BucketRegion)
		attrs, err := bucketAttributes(ctx, c, name, region)
		if err != nil {
			return r.record("s3", region, err, models.ResourceS3Bucket)
		}
		r.builder.Add(evidence.NewResource(bucketARN(name), models.ResourceS3Bucket, region, attrs))
	}
	return nil
}

func bucketARN(name string) string {
	return "arn:aws:s3:::" + name
}

// bucketAttributes reads the sub-resources of one bucket. Only credential,
// network and context errors are returned; everything else drops the
// attribute.
func bucketAttributes(ctx context.Context, c *secClients, name, region string) (map[string]evidence.Value, error) {
	attrs := make(map[string]evidence.Value)
	bucket := aws.String(name)
	inRegion := func(o *s3svc.Options) {
		if region != "" {
			o.Region = region
		}
	}

	fatal := func(err error) bool {
		return ctx.Err() != nil || common.IsCredentialError(err) || common.IsUnreachable(err)
	}

	status, err := c.S3.GetBucketPolicyStatus(ctx, &s3svc.GetBucketPolicyStatusInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil:
		public := status.PolicyStatus != nil && aws.ToBool(status.PolicyStatus.IsPublic)
		attrs[evidence.AttrPublicRead] = evidence.Bool(public)
	case common.IsNotFound(err, codeNoSuchBucketPolicy):
		attrs[evidence.AttrPublicRead] = evidence.Bool(false)
	case fatal(err):
		return nil, fmt.Errorf("get bucket policy status %s: %w", name, err)
	}

	policy, err := c.S3.GetBucketPolicy(ctx, &s3svc.GetBucketPolicyInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil:
		attrs[evidence.AttrBucketPolicy] = evidence.String(aws.ToString(policy.Policy))
	case common.IsNotFound(err, codeNoSuchBucketPolicy):
		attrs[evidence.AttrBucketPolicy] = evidence.String("")
	case fatal(err):
		return nil, fmt.Errorf("get bucket policy %s: %w", name, err)
	}

	acl, err := c.S3.GetBucketAcl(ctx, &s3svc.GetBucketAclInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil:
		grants := make([]evidence.Value, 0, len(acl.Grants))
		for _, g := range acl.Grants {
			grantee := ""
			if g.Grantee != nil {
				grantee = aws.ToString(g.Grantee.URI)
				if grantee == "" {
					grantee = aws.ToString(g.Grantee.ID)
				}
			}
			grants = append(grants, evidence.Record(map[string]evidence.Value{
				evidence.FieldGrantee:    evidence.String(grantee),
				evidence.FieldPermission: evidence.String(string(g.Permission)),
			}))
		}
		attrs[evidence.AttrACLGrants] = evidence.List(grants...)
	case fatal(err):
		return nil, fmt.Errorf("get bucket ACL %s: %w", name, err)
	}

	pab, err := c.S3.GetPublicAccessBlock(ctx, &s3svc.GetPublicAccessBlockInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil:
		cfg := pab.PublicAccessBlockConfiguration
		all := cfg != nil &&
			aws.ToBool(cfg.BlockPublicAcls) &&
			aws.ToBool(cfg.IgnorePublicAcls) &&
			aws.ToBool(cfg.BlockPublicPolicy) &&
			aws.ToBool(cfg.RestrictPublicBuckets)
		attrs[evidence.AttrPublicAccessBlock] = evidence.Bool(all)
	case common.IsNotFound(err, codeNoSuchPublicAccess):
		attrs[evidence.AttrPublicAccessBlock] = evidence.Bool(false)
	case fatal(err):
		return nil, fmt.Errorf("get public access block %s: %w", name, err)
	}

	_, err = c.S3.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil:
		attrs[evidence.AttrEncryptionEnabled] = evidence.Bool(true)
	case common.IsNotFound(err, codeNoEncryptionConfig):
		attrs[evidence.AttrEncryptionEnabled] = evidence.Bool(false)
	case fatal(err):
		return nil, fmt.Errorf("get bucket encryption %s: %w", name, err)
	}

	repl, err := c.S3.GetBucketReplication(ctx, &s3svc.GetBucketReplicationInput{Bucket: bucket}, inRegion)
	switch {
	case err == nil && repl.ReplicationConfiguration != nil:
		v, rerr := replicationRecord(ctx, c.IAM, repl)
		if rerr != nil {
			if fatal(rerr) {
				return nil, rerr
			}
			break
		}
		attrs[evidence.AttrReplication] = v
	case err != nil && !common.IsNotFound(err, codeNoReplicationConfig) && fatal(err):
		return nil, fmt.Errorf("get bucket replication %s: %w", name, err)
	}

	return attrs, nil
}

// replicationRecord describes the replication role and the inline policies
// attached to it. Only the first rule's destination is recorded.
func replicationRecord(ctx context.Context, iam iamAPIClient, out *s3svc.GetBucketReplicationOutput) (evidence.Value, error) {
	cfg := out.ReplicationConfiguration
	role := aws.ToString(cfg.Role)
	dest := ""
	for _, rule := range cfg.Rules {
		if rule.Destination != nil && rule.Destination.Bucket != nil {
			dest = aws.ToString(rule.Destination.Bucket)
			break
		}
	}
	if dest == "" {
		return evidence.Value{}, fmt.Errorf("replication for role %s has no destination", role)
	}

	policies, err := rolePolicies(ctx, iam, roleNameFromARN(role))
	if err != nil {
		return evidence.Value{}, err
	}
	return evidence.Record(map[string]evidence.Value{
		evidence.FieldRole:         evidence.String(role),
		evidence.FieldDestination:  evidence.String(dest),
		evidence.FieldRolePolicies: evidence.Strings(policies...),
	}), nil
}
