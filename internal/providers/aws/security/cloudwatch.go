package awssecurity

import (
	"context"
	"fmt"

	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectCloudWatch sets alarmCount on the region resource. Metric and
// composite alarms both count.
func (r *collection) collectCloudWatch(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceRegion) {
		return nil
	}
	paginator := cloudwatchsvc.NewDescribeAlarmsPaginator(c.CloudWatch, &cloudwatchsvc.DescribeAlarmsInput{})
	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return r.record("cloudwatch", region, fmt.Errorf("describe alarms: %w", err))
		}
		count += len(page.MetricAlarms) + len(page.CompositeAlarms)
	}
	r.builder.Set(evidence.RegionResourceID(region), models.ResourceRegion, region,
		evidence.AttrAlarmCount, evidence.Number(float64(count)))
	return nil
}
