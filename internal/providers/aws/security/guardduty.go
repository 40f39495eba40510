package awssecurity

import (
	"context"
	"fmt"

	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	guarddutytype "github.com/aws/aws-sdk-go-v2/service/guardduty/types"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectGuardDuty sets guardDutyEnabled on the region resource. It first
// lists detectors; if none exist, GuardDuty is not enabled. If a detector
// exists, GetDetector verifies its status is ENABLED.
func (r *collection) collectGuardDuty(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceRegion) {
		return nil
	}
	enabled, err := guardDutyEnabled(ctx, c.GuardDuty)
	if err != nil {
		return r.record("guardduty", region, err)
	}
	r.builder.Set(evidence.RegionResourceID(region), models.ResourceRegion, region,
		evidence.AttrGuardDutyEnabled, evidence.Bool(enabled))
	return nil
}

func guardDutyEnabled(ctx context.Context, client guardDutyAPIClient) (bool, error) {
	listOut, err := client.ListDetectors(ctx, &guardduty.ListDetectorsInput{})
	if err != nil {
		return false, fmt.Errorf("list detectors: %w", err)
	}
	if len(listOut.DetectorIds) == 0 {
		return false, nil
	}

	// Check the first (usually only) detector's status.
	detOut, err := client.GetDetector(ctx, &guardduty.GetDetectorInput{
		DetectorId: &listOut.DetectorIds[0],
	})
	if err != nil {
		return false, fmt.Errorf("get detector: %w", err)
	}
	return detOut.Status == guarddutytype.DetectorStatusEnabled, nil
}
