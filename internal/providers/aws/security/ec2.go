package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

// collectEC2 records security groups, instances, volumes, and the
// snapshots and images this account owns in region.
func (r *collection) collectEC2(ctx context.Context, c *secClients, region string) error {
	steps := []struct {
		typ models.ResourceType
		fn  func(context.Context, ec2SecurityAPIClient, string) error
	}{
		{models.ResourceSecurityGroup, r.collectSecurityGroups},
		{models.ResourceEC2Instance, r.collectInstances},
		{models.ResourceEBSVolume, r.collectVolumes},
		{models.ResourceEBSSnapshot, r.collectSnapshots},
		{models.ResourceAMI, r.collectImages},
	}
	for _, s := range steps {
		if !r.wants(s.typ) {
			continue
		}
		if err := s.fn(ctx, c.EC2, region); err != nil {
			if rerr := r.record("ec2", region, err, s.typ); rerr != nil {
				return rerr
			}
		}
	}
	return nil
}

// collectSecurityGroups stores one ingress record per CIDR range of every
// inbound permission. Both IPv4 and IPv6 ranges are included. Missing ports
// (protocol -1) are left out of the record.
func (r *collection) collectSecurityGroups(ctx context.Context, client ec2SecurityAPIClient, region string) error {
	paginator := ec2svc.NewDescribeSecurityGroupsPaginator(client, &ec2svc.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("describe security groups in %s: %w", region, err)
		}
		for _, sg := range page.SecurityGroups {
			var ingress []evidence.Value
			for _, perm := range sg.IpPermissions {
				for _, ipRange := range perm.IpRanges {
					ingress = append(ingress, ingressRecord(perm, aws.ToString(ipRange.CidrIp)))
				}
				for _, ipv6Range := range perm.Ipv6Ranges {
					ingress = append(ingress, ingressRecord(perm, aws.ToString(ipv6Range.CidrIpv6)))
				}
			}
			r.builder.Set(aws.ToString(sg.GroupId), models.ResourceSecurityGroup, region,
				evidence.AttrIngress, evidence.List(ingress...))
		}
	}
	return nil
}

func ingressRecord(perm ec2types.IpPermission, cidr string) evidence.Value {
	fields := map[string]evidence.Value{
		evidence.FieldProtocol: evidence.String(aws.ToString(perm.IpProtocol)),
		evidence.FieldCIDR:     evidence.String(cidr),
	}
	if perm.FromPort != nil {
		fields[evidence.FieldFromPort] = evidence.Number(float64(aws.ToInt32(perm.FromPort)))
	}
	if perm.ToPort != nil {
		fields[evidence.FieldToPort] = evidence.Number(float64(aws.ToInt32(perm.ToPort)))
	}
	return evidence.Record(fields)
}

// collectInstances records the public IPv4 address (empty when none) and
// whether the metadata service requires session tokens.
func (r *collection) collectInstances(ctx context.Context, client ec2SecurityAPIClient, region string) error {
	paginator := ec2svc.NewDescribeInstancesPaginator(client, &ec2svc.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("describe instances in %s: %w", region, err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				attrs := map[string]evidence.Value{
					evidence.AttrPublicIP: evidence.String(aws.ToString(inst.PublicIpAddress)),
				}
				if inst.MetadataOptions != nil {
					attrs[evidence.AttrIMDSv2Required] = evidence.Bool(
						inst.MetadataOptions.HttpTokens == ec2types.HttpTokensStateRequired)
				}
				r.builder.Add(evidence.NewResource(aws.ToString(inst.InstanceId), models.ResourceEC2Instance, region, attrs))
			}
		}
	}
	return nil
}

func (r *collection) collectVolumes(ctx context.Context, client ec2SecurityAPIClient, region string) error {
	paginator := ec2svc.NewDescribeVolumesPaginator(client, &ec2svc.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("describe volumes in %s: %w", region, err)
		}
		for _, v := range page.Volumes {
			r.builder.Set(aws.ToString(v.VolumeId), models.ResourceEBSVolume, region,
				evidence.AttrEncrypted, evidence.Bool(aws.ToBool(v.Encrypted)))
		}
	}
	return nil
}

// collectSnapshots records snapshots owned by this account. A snapshot is
// public when its createVolumePermission includes the group "all".
func (r *collection) collectSnapshots(ctx context.Context, client ec2SecurityAPIClient, region string) error {
	paginator := ec2svc.NewDescribeSnapshotsPaginator(client, &ec2svc.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("describe snapshots in %s: %w", region, err)
		}
		for _, s := range page.Snapshots {
			id := aws.ToString(s.SnapshotId)
			attrs := make(map[string]evidence.Value, 1)
			out, err := client.DescribeSnapshotAttribute(ctx, &ec2svc.DescribeSnapshotAttributeInput{
				SnapshotId: s.SnapshotId,
				Attribute:  ec2types.SnapshotAttributeNameCreateVolumePermission,
			})
			switch {
			case err == nil:
				public := false
				for _, p := range out.CreateVolumePermissions {
					if p.Group == ec2types.PermissionGroupAll {
						public = true
					}
				}
				attrs[evidence.AttrPublic] = evidence.Bool(public)
			case ctx.Err() != nil || common.IsCredentialError(err) || common.IsUnreachable(err):
				return fmt.Errorf("describe snapshot attribute %s: %w", id, err)
			}
			r.builder.Add(evidence.NewResource(id, models.ResourceEBSSnapshot, region, attrs))
		}
	}
	return nil
}

func (r *collection) collectImages(ctx context.Context, client ec2SecurityAPIClient, region string) error {
	out, err := client.DescribeImages(ctx, &ec2svc.DescribeImagesInput{Owners: []string{"self"}})
	if err != nil {
		return fmt.Errorf("describe images in %s: %w", region, err)
	}
	for _, img := range out.Images {
		r.builder.Set(aws.ToString(img.ImageId), models.ResourceAMI, region,
			evidence.AttrPublic, evidence.Bool(aws.ToBool(img.Public)))
	}
	return nil
}
