package rules

import (
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// EC2IMDSv2Rule flags instances that still accept IMDSv1 requests.
func EC2IMDSv2Rule() Rule {
	return Rule{
		ID:           "EC2_IMDSV2_NOT_REQUIRED",
		Version:      1,
		Title:        "EC2 instances require IMDSv2",
		Category:     models.CategoryDeployment,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceEC2Instance,
		Requires:     []string{evidence.AttrIMDSv2Required},
		Remediation:  "guide/deployment/ec2-imdsv2",
		Check: boolCheck(evidence.AttrIMDSv2Required, false,
			"instance %s does not require IMDSv2 session tokens",
			"instance %s requires IMDSv2"),
	}
}

// AMIPublicRule flags account-owned AMIs shared publicly.
func AMIPublicRule() Rule {
	return Rule{
		ID:           "AMI_PUBLIC",
		Version:      1,
		Title:        "AMIs are not publicly shared",
		Category:     models.CategoryDeployment,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceAMI,
		Requires:     []string{evidence.AttrPublic},
		Remediation:  "guide/deployment/ami-private",
		Check: boolCheck(evidence.AttrPublic, true,
			"image %s is public",
			"image %s is private"),
	}
}

// EBSSnapshotPublicRule flags account-owned snapshots restorable by anyone.
func EBSSnapshotPublicRule() Rule {
	return Rule{
		ID:           "EBS_SNAPSHOT_PUBLIC",
		Version:      1,
		Title:        "EBS snapshots are not public",
		Category:     models.CategoryDeployment,
		Severity:     models.SeverityCritical,
		ResourceType: models.ResourceEBSSnapshot,
		Requires:     []string{evidence.AttrPublic},
		Remediation:  "guide/deployment/ebs-snapshot-private",
		Check: boolCheck(evidence.AttrPublic, true,
			"snapshot %s is publicly restorable",
			"snapshot %s is private"),
	}
}

// EKSPublicEndpointRule flags clusters whose API endpoint is reachable from
// 0.0.0.0/0.
func EKSPublicEndpointRule() Rule {
	return Rule{
		ID:           "EKS_PUBLIC_ENDPOINT",
		Version:      1,
		Title:        "EKS API endpoints are not open to the internet",
		Category:     models.CategoryDeployment,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceEKSCluster,
		Requires:     []string{evidence.AttrEndpointPublic},
		Remediation:  "guide/deployment/eks-endpoint",
		Check: func(ctx CheckContext) (Outcome, error) {
			public, err := boolAttr(ctx.Resource, evidence.AttrEndpointPublic)
			if err != nil {
				return Outcome{}, err
			}
			if !public {
				return Pass("cluster %s endpoint is private", ctx.Resource.ID()), nil
			}
			cidrs := []string{"0.0.0.0/0"}
			if v, ok := ctx.Resource.Attr(evidence.AttrPublicAccessCIDRs); ok {
				if list, ok := v.AsStrings(); ok {
					cidrs = list
				}
			}
			for _, c := range cidrs {
				if c == "0.0.0.0/0" {
					return Fail("cluster %s endpoint is public to 0.0.0.0/0", ctx.Resource.ID()), nil
				}
			}
			return Pass("cluster %s public endpoint is restricted by CIDR", ctx.Resource.ID()), nil
		},
	}
}
