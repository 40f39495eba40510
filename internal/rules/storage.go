package rules

import (
	"fmt"
	"strings"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

const (
	allUsersURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	authenticatedUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// S3PublicReadRule flags buckets whose effective policy status is public.
func S3PublicReadRule() Rule {
	return Rule{
		ID:           "S3_PUBLIC_READ",
		Version:      1,
		Title:        "S3 buckets are not publicly readable",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrPublicRead},
		Remediation:  "guide/storage/s3-public-read",
		Check: boolCheck(evidence.AttrPublicRead, true,
			"bucket %s is publicly readable",
			"bucket %s is not publicly readable"),
	}
}

// S3BucketPolicyPublicRule flags bucket policies with an unconditioned Allow
// statement granting object read or write to any principal. An empty policy
// attribute means the bucket has no policy.
func S3BucketPolicyPublicRule() Rule {
	return Rule{
		ID:           "S3_BUCKET_POLICY_PUBLIC",
		Version:      1,
		Title:        "Bucket policies do not grant public object access",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityCritical,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrBucketPolicy},
		Remediation:  "guide/storage/s3-bucket-policy",
		Check: func(ctx CheckContext) (Outcome, error) {
			raw, err := stringAttr(ctx.Resource, evidence.AttrBucketPolicy)
			if err != nil {
				return Outcome{}, err
			}
			if strings.TrimSpace(raw) == "" {
				return Pass("bucket %s has no bucket policy", ctx.Resource.ID()), nil
			}
			doc, err := parsePolicy(raw)
			if err != nil {
				return Outcome{}, err
			}
			for i, st := range doc.Statement {
				if st.Effect != "Allow" || !st.Principal.Wildcard || len(st.Condition) > 0 {
					continue
				}
				if actionMatches(st.Action, "s3:GetObject", "s3:PutObject") {
					return Fail("bucket %s policy statement %d allows public object access", ctx.Resource.ID(), i), nil
				}
			}
			return Pass("bucket %s policy grants no public object access", ctx.Resource.ID()), nil
		},
	}
}

// S3ACLPublicRule flags bucket ACL grants to the AllUsers or
// AuthenticatedUsers groups.
func S3ACLPublicRule() Rule {
	return Rule{
		ID:           "S3_ACL_PUBLIC",
		Version:      1,
		Title:        "Bucket ACLs do not grant access to everyone",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrACLGrants},
		Remediation:  "guide/storage/s3-acl",
		Check: func(ctx CheckContext) (Outcome, error) {
			grants, err := listAttr(ctx.Resource, evidence.AttrACLGrants)
			if err != nil {
				return Outcome{}, err
			}
			for _, g := range grants {
				grantee := stringField(g, evidence.FieldGrantee)
				if grantee != allUsersURI && grantee != authenticatedUsersURI {
					continue
				}
				perm := stringField(g, evidence.FieldPermission)
				group := grantee[strings.LastIndex(grantee, "/")+1:]
				return Fail("bucket %s ACL grants %s to %s", ctx.Resource.ID(), perm, group), nil
			}
			return Pass("bucket %s ACL has no public grants", ctx.Resource.ID()), nil
		},
	}
}

// S3PublicAccessBlockRule flags buckets without all four public access
// block settings enabled.
func S3PublicAccessBlockRule() Rule {
	return Rule{
		ID:           "S3_PUBLIC_ACCESS_BLOCK",
		Version:      1,
		Title:        "S3 Block Public Access is enabled",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrPublicAccessBlock},
		Remediation:  "guide/storage/s3-block-public-access",
		Check: boolCheck(evidence.AttrPublicAccessBlock, false,
			"bucket %s does not block public access",
			"bucket %s blocks public access"),
	}
}

// S3ReplicationRoleRule checks that a bucket's replication role may only
// replicate into objects of the configured destination bucket. Buckets
// without replication lack the attribute and are not applicable.
func S3ReplicationRoleRule() Rule {
	return Rule{
		ID:           "S3_REPLICATION_ROLE_SCOPE",
		Version:      1,
		Title:        "Replication roles are scoped to the destination bucket",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrReplication},
		Remediation:  "guide/storage/s3-replication-role",
		Check: func(ctx CheckContext) (Outcome, error) {
			repl, _ := ctx.Resource.Attr(evidence.AttrReplication)
			if repl.Kind() != evidence.KindRecord {
				return Outcome{}, fmt.Errorf("attribute %q: want record, got %s", evidence.AttrReplication, repl.Kind())
			}
			role := stringField(repl, evidence.FieldRole)
			dest := stringField(repl, evidence.FieldDestination)
			if dest == "" {
				return Outcome{}, fmt.Errorf("replication record has no destination")
			}
			policiesVal, _ := repl.Field(evidence.FieldRolePolicies)
			policies, _ := policiesVal.AsStrings()

			allowed := dest + "/*"
			granted := false
			for _, raw := range policies {
				doc, err := parsePolicy(raw)
				if err != nil {
					return Outcome{}, err
				}
				for _, st := range doc.Statement {
					if st.Effect != "Allow" || !actionMatches(st.Action, "s3:ReplicateObject", "s3:ReplicateDelete") {
						continue
					}
					granted = true
					for _, res := range st.Resource {
						if res != allowed {
							return Fail("replication role %s of bucket %s may replicate to %s", role, ctx.Resource.ID(), res), nil
						}
					}
				}
			}
			if !granted {
				return NotApplicable("replication role %s grants no replication actions inline", role), nil
			}
			return Pass("replication role %s is scoped to %s", role, allowed), nil
		},
	}
}
