package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// collectCloudTrail records the trails whose home region is region.
// IncludeShadowTrails is false so a multi-region trail is reported once, by
// its home region. The account-level multiRegionTrail flag is derived from
// all regions in finish.
func (r *collection) collectCloudTrail(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceTrail, models.ResourceAccount) {
		return nil
	}
	out, err := c.CloudTrail.DescribeTrails(ctx, &cloudtrailsvc.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		r.mu.Lock()
		r.trailFailures++
		r.mu.Unlock()
		return r.record("cloudtrail", region, fmt.Errorf("describe trails: %w", err), models.ResourceTrail)
	}

	multi := false
	for _, trail := range out.TrailList {
		isMulti := aws.ToBool(trail.IsMultiRegionTrail)
		multi = multi || isMulti
		if !r.wants(models.ResourceTrail) {
			continue
		}
		home := aws.ToString(trail.HomeRegion)
		if home == "" {
			home = region
		}
		r.builder.Add(evidence.NewResource(aws.ToString(trail.TrailARN), models.ResourceTrail, home,
			map[string]evidence.Value{
				evidence.AttrIsMultiRegion:     evidence.Bool(isMulti),
				evidence.AttrLogFileValidation: evidence.Bool(aws.ToBool(trail.LogFileValidationEnabled)),
			}))
	}

	r.mu.Lock()
	r.trailRegions++
	r.multiRegion = r.multiRegion || multi
	r.mu.Unlock()
	return nil
}
