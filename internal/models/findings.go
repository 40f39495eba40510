package models

import (
	"fmt"
	"strings"
)

// Severity represents the impact level of a rule.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// severityRank orders severities for threshold comparisons.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Rank returns the ordinal of s (CRITICAL=4 … LOW=1). Unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity converts a case-insensitive severity name into a Severity.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid severity %q; valid values: CRITICAL, HIGH, MEDIUM, LOW", v)
	}
	return s, nil
}

// Category groups rules on the checklist.
type Category string

const (
	CategoryAccount    Category = "Account"
	CategoryStorage    Category = "Storage"
	CategoryNetwork    Category = "Network"
	CategoryLogging    Category = "Logging"
	CategoryEncryption Category = "Encryption"
	CategoryMonitoring Category = "Monitoring"
	CategoryDeployment Category = "Deployment"
)

// Categories lists every category in checklist order. Scoring and rendering
// iterate this slice, never a map, so output order is stable.
var Categories = []Category{
	CategoryAccount,
	CategoryStorage,
	CategoryNetwork,
	CategoryLogging,
	CategoryEncryption,
	CategoryMonitoring,
	CategoryDeployment,
}

// ParseCategory resolves a case-insensitive category name.
func ParseCategory(v string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(v)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", v)
}

// Status is the outcome of one rule against one resource.
type Status string

const (
	StatusPass          Status = "PASS"
	StatusFail          Status = "FAIL"
	StatusNotApplicable Status = "NOT_APPLICABLE"
	StatusError         Status = "ERROR"
)

// Applicable reports whether the status participates in scoring.
func (s Status) Applicable() bool {
	return s == StatusPass || s == StatusFail
}

// ResourceType identifies the kind of resource a rule targets.
type ResourceType string

const (
	ResourceAccount       ResourceType = "aws_account"
	ResourceRegion        ResourceType = "aws_region"
	ResourceS3Bucket      ResourceType = "s3_bucket"
	ResourceIAMUser       ResourceType = "iam_user"
	ResourceAccessKey     ResourceType = "iam_access_key"
	ResourceSecurityGroup ResourceType = "security_group"
	ResourceEC2Instance   ResourceType = "ec2_instance"
	ResourceEBSVolume     ResourceType = "ebs_volume"
	ResourceEBSSnapshot   ResourceType = "ebs_snapshot"
	ResourceAMI           ResourceType = "ami"
	ResourceLoadBalancer  ResourceType = "load_balancer"
	ResourceRDSInstance   ResourceType = "rds_instance"
	ResourceTrail         ResourceType = "cloudtrail_trail"
	ResourceEKSCluster    ResourceType = "eks_cluster"
)

// Finding is the outcome of one rule evaluated against one resource.
// ResourceID is empty when the rule had no resource in scope.
type Finding struct {
	RuleID       string       `json:"rule_id"`
	RuleVersion  int          `json:"rule_version"`
	Title        string       `json:"title"`
	Category     Category     `json:"category"`
	Severity     Severity     `json:"severity"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceType ResourceType `json:"resource_type"`
	Region       string       `json:"region,omitempty"`
	Status       Status       `json:"status"`
	Message      string       `json:"message,omitempty"`
	Remediation  string       `json:"remediation,omitempty"`
	Diagnostic   string       `json:"diagnostic,omitempty"`
}

// Key returns the (rule, resource) identity used to match findings across
// reports.
func (f Finding) Key() FindingKey {
	return FindingKey{RuleID: f.RuleID, ResourceID: f.ResourceID}
}

// FindingKey identifies a finding independent of its outcome.
type FindingKey struct {
	RuleID     string
	ResourceID string
}

// String renders the key as "rule|resource".
func (k FindingKey) String() string {
	return k.RuleID + "|" + k.ResourceID
}
