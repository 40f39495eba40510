package awssecurity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2svc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

const attrKeyAccessLogs = "access_logs.s3.enabled"

// collectELBv2 records load balancers with their type, listeners and
// access-log setting.
func (r *collection) collectELBv2(ctx context.Context, c *secClients, region string) error {
	if !r.wants(models.ResourceLoadBalancer) {
		return nil
	}
	paginator := elbv2svc.NewDescribeLoadBalancersPaginator(c.ELBv2, &elbv2svc.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return r.record("elbv2", region, fmt.Errorf("describe load balancers: %w", err), models.ResourceLoadBalancer)
		}
		for _, lb := range page.LoadBalancers {
			attrs, err := loadBalancerAttributes(ctx, c.ELBv2, lb)
			if err != nil {
				return r.record("elbv2", region, err, models.ResourceLoadBalancer)
			}
			r.builder.Add(evidence.NewResource(aws.ToString(lb.LoadBalancerArn), models.ResourceLoadBalancer, region, attrs))
		}
	}
	return nil
}

func loadBalancerAttributes(ctx context.Context, client elbv2APIClient, lb elbv2types.LoadBalancer) (map[string]evidence.Value, error) {
	arn := lb.LoadBalancerArn
	attrs := map[string]evidence.Value{
		evidence.AttrLBType: evidence.String(string(lb.Type)),
	}
	fatal := func(err error) bool {
		return ctx.Err() != nil || common.IsCredentialError(err) || common.IsUnreachable(err)
	}

	listeners, err := client.DescribeListeners(ctx, &elbv2svc.DescribeListenersInput{LoadBalancerArn: arn})
	switch {
	case err == nil:
		list := make([]evidence.Value, 0, len(listeners.Listeners))
		for _, l := range listeners.Listeners {
			list = append(list, evidence.Record(map[string]evidence.Value{
				evidence.FieldProtocol:         evidence.String(string(l.Protocol)),
				evidence.FieldPort:             evidence.Number(float64(aws.ToInt32(l.Port))),
				evidence.FieldRedirectsToHTTPS: evidence.Bool(redirectsToHTTPS(l.DefaultActions)),
			}))
		}
		attrs[evidence.AttrListeners] = evidence.List(list...)
	case fatal(err):
		return nil, fmt.Errorf("describe listeners %s: %w", aws.ToString(arn), err)
	}

	lbAttrs, err := client.DescribeLoadBalancerAttributes(ctx, &elbv2svc.DescribeLoadBalancerAttributesInput{LoadBalancerArn: arn})
	switch {
	case err == nil:
		enabled := false
		for _, a := range lbAttrs.Attributes {
			if aws.ToString(a.Key) == attrKeyAccessLogs {
				enabled = strings.EqualFold(aws.ToString(a.Value), "true")
			}
		}
		attrs[evidence.AttrAccessLogsEnabled] = evidence.Bool(enabled)
	case fatal(err):
		return nil, fmt.Errorf("describe load balancer attributes %s: %w", aws.ToString(arn), err)
	}
	return attrs, nil
}

func redirectsToHTTPS(actions []elbv2types.Action) bool {
	for _, a := range actions {
		if a.Type == elbv2types.ActionTypeEnumRedirect && a.RedirectConfig != nil &&
			strings.EqualFold(aws.ToString(a.RedirectConfig.Protocol), "HTTPS") {
			return true
		}
	}
	return false
}
