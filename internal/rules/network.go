package rules

import (
	"strings"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

const (
	sshPort = 22
	rdpPort = 3389
)

// SecurityGroupOpenAdminRule flags security groups that allow SSH (22) or
// RDP (3389) from 0.0.0.0/0 or ::/0. Port ranges and the all-protocols
// rule ("-1") are expanded.
func SecurityGroupOpenAdminRule() Rule {
	return Rule{
		ID:           "SG_OPEN_ADMIN_PORTS",
		Version:      1,
		Title:        "Security groups do not expose SSH or RDP to the internet",
		Category:     models.CategoryNetwork,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceSecurityGroup,
		Requires:     []string{evidence.AttrIngress},
		Remediation:  "guide/network/security-group-admin-ports",
		Check: func(ctx CheckContext) (Outcome, error) {
			ingress, err := listAttr(ctx.Resource, evidence.AttrIngress)
			if err != nil {
				return Outcome{}, err
			}
			for _, perm := range ingress {
				cidr := stringField(perm, evidence.FieldCIDR)
				if cidr != "0.0.0.0/0" && cidr != "::/0" {
					continue
				}
				for _, port := range []int{sshPort, rdpPort} {
					if permCovers(perm, port) {
						return Fail("security group %s allows port %d from %s", ctx.Resource.ID(), port, cidr), nil
					}
				}
			}
			return Pass("security group %s does not expose admin ports", ctx.Resource.ID()), nil
		},
	}
}

// permCovers reports whether an ingress permission includes TCP port.
func permCovers(perm evidence.Value, port int) bool {
	proto := stringField(perm, evidence.FieldProtocol)
	if proto == "-1" {
		return true
	}
	if proto != "" && proto != "tcp" && proto != "6" {
		return false
	}
	from, ok := numberField(perm, evidence.FieldFromPort)
	if !ok {
		return true
	}
	to, ok := numberField(perm, evidence.FieldToPort)
	if !ok {
		to = from
	}
	return float64(port) >= from && float64(port) <= to
}

// EC2PublicIPRule flags instances with a public IPv4 address.
func EC2PublicIPRule() Rule {
	return Rule{
		ID:           "EC2_PUBLIC_IP",
		Version:      1,
		Title:        "EC2 instances have no public IP address",
		Category:     models.CategoryNetwork,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceEC2Instance,
		Requires:     []string{evidence.AttrPublicIP},
		Remediation:  "guide/network/ec2-public-ip",
		Check: func(ctx CheckContext) (Outcome, error) {
			ip, err := stringAttr(ctx.Resource, evidence.AttrPublicIP)
			if err != nil {
				return Outcome{}, err
			}
			if ip != "" {
				return Fail("instance %s has public IP %s", ctx.Resource.ID(), ip), nil
			}
			return Pass("instance %s has no public IP", ctx.Resource.ID()), nil
		},
	}
}

// LoadBalancerHTTPListenerRule flags application load balancers with a
// plain HTTP listener that does not redirect to HTTPS.
func LoadBalancerHTTPListenerRule() Rule {
	return Rule{
		ID:           "ELB_HTTP_LISTENER",
		Version:      1,
		Title:        "Load balancers serve traffic over HTTPS",
		Category:     models.CategoryNetwork,
		Severity:     models.SeverityMedium,
		ResourceType: models.ResourceLoadBalancer,
		Requires:     []string{evidence.AttrLBType, evidence.AttrListeners},
		Remediation:  "guide/network/elb-https",
		Check: func(ctx CheckContext) (Outcome, error) {
			typ, err := stringAttr(ctx.Resource, evidence.AttrLBType)
			if err != nil {
				return Outcome{}, err
			}
			if typ != "application" {
				return NotApplicable("load balancer %s is type %s", ctx.Resource.ID(), typ), nil
			}
			listeners, err := listAttr(ctx.Resource, evidence.AttrListeners)
			if err != nil {
				return Outcome{}, err
			}
			for _, l := range listeners {
				if !strings.EqualFold(stringField(l, evidence.FieldProtocol), "HTTP") {
					continue
				}
				if boolField(l, evidence.FieldRedirectsToHTTPS) {
					continue
				}
				port, _ := numberField(l, evidence.FieldPort)
				return Fail("load balancer %s serves plain HTTP on port %.0f", ctx.Resource.ID(), port), nil
			}
			return Pass("load balancer %s has no plain HTTP listeners", ctx.Resource.ID()), nil
		},
	}
}

// RDSPublicAccessRule flags publicly accessible database instances.
func RDSPublicAccessRule() Rule {
	return Rule{
		ID:           "RDS_PUBLIC_ACCESS",
		Version:      1,
		Title:        "RDS instances are not publicly accessible",
		Category:     models.CategoryNetwork,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceRDSInstance,
		Requires:     []string{evidence.AttrPubliclyAccessible},
		Remediation:  "guide/network/rds-public-access",
		Check: boolCheck(evidence.AttrPubliclyAccessible, true,
			"database %s is publicly accessible",
			"database %s is not publicly accessible"),
	}
}
