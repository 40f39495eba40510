package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectRDS records every DB instance with its public accessibility and
// storage encryption flags.
func (r *collection) collectRDS(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceRDSInstance) {
		return nil
	}
	paginator := rdssvc.NewDescribeDBInstancesPaginator(c.RDS, &rdssvc.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return r.record("rds", region, fmt.Errorf("describe DB instances: %w", err), models.ResourceRDSInstance)
		}
		for _, db := range page.DBInstances {
			id := aws.ToString(db.DBInstanceArn)
			if id == "" {
				id = aws.ToString(db.DBInstanceIdentifier)
			}
			r.builder.Add(evidence.NewResource(id, models.ResourceRDSInstance, region, map[string]evidence.Value{
				evidence.AttrPubliclyAccessible: evidence.Bool(aws.ToBool(db.PubliclyAccessible)),
				evidence.AttrEncrypted:          evidence.Bool(aws.ToBool(db.StorageEncrypted)),
			}))
		}
	}
	return nil
}
