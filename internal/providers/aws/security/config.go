package awssecurity

import (
	"context"
	"fmt"

	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectConfig sets configRecording on the region resource: true when at
// least one configuration recorder is actively recording.
func (r *collection) collectConfig(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceRegion) {
		return nil
	}
	out, err := c.Config.DescribeConfigurationRecorderStatus(ctx, &configsvc.DescribeConfigurationRecorderStatusInput{})
	if err != nil {
		return r.record("config", region, fmt.Errorf("describe configuration recorder status: %w", err))
	}

	recording := false
	for _, status := range out.ConfigurationRecordersStatus {
		if status.Recording {
			recording = true
		}
	}
	r.builder.Set(evidence.RegionResourceID(region), models.ResourceRegion, region,
		evidence.AttrConfigRecording, evidence.Bool(recording))
	return nil
}
