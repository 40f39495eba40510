package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ekssvc "github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectEKS records each cluster's API endpoint exposure and whether
// Kubernetes secrets are envelope-encrypted with KMS.
func (r *collection) collectEKS(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceEKSCluster) {
		return nil
	}
	paginator := ekssvc.NewListClustersPaginator(c.EKS, &ekssvc.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return r.record("eks", region, fmt.Errorf("list clusters: %w", err), models.ResourceEKSCluster)
		}
		for _, name := range page.Clusters {
			out, err := c.EKS.DescribeCluster(ctx, &ekssvc.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return r.record("eks", region, fmt.Errorf("describe cluster %s: %w", name, err), models.ResourceEKSCluster)
			}
			if out.Cluster == nil {
				continue
			}
			r.builder.Add(evidence.NewResource(aws.ToString(out.Cluster.Arn), models.ResourceEKSCluster, region,
				clusterAttributes(out)))
		}
	}
	return nil
}

func clusterAttributes(out *ekssvc.DescribeClusterOutput) map[string]evidence.Value {
	attrs := make(map[string]evidence.Value, 3)
	cluster := out.Cluster
	if vpc := cluster.ResourcesVpcConfig; vpc != nil {
		attrs[evidence.AttrEndpointPublic] = evidence.Bool(vpc.EndpointPublicAccess)
		attrs[evidence.AttrPublicAccessCIDRs] = evidence.Strings(vpc.PublicAccessCidrs...)
	}
	secrets := false
	for _, enc := range cluster.EncryptionConfig {
		for _, res := range enc.Resources {
			if res == "secrets" {
				secrets = true
			}
		}
	}
	attrs[evidence.AttrSecretsEncrypted] = evidence.Bool(secrets)
	return attrs
}
