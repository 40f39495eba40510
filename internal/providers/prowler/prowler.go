// Package prowler turns Prowler scan results into evidence. Prowler's
// PASS/FAIL verdicts for known checks become boolean attributes that the
// built-in rules evaluate like live evidence.
package prowler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
)

// Name is the evidence source recorded for Prowler imports.
const Name = "prowler"

// Finding is the subset of a Prowler OCSF detection finding that is read.
// The legacy JSON fields (CheckID, Status, ResourceArn, Region, AccountId)
// are accepted as a fallback.
type Finding struct {
	Metadata struct {
		EventCode string `json:"event_code"`
	} `json:"metadata"`
	StatusCode string `json:"status_code"`
	Time       int64  `json:"time"`
	Cloud      struct {
		Account struct {
			UID string `json:"uid"`
		} `json:"account"`
		Region string `json:"region"`
	} `json:"cloud"`
	Resources []struct {
		UID    string `json:"uid"`
		Region string `json:"region"`
	} `json:"resources"`

	CheckID     string `json:"CheckID"`
	Status      string `json:"Status"`
	ResourceArn string `json:"ResourceArn"`
	Region      string `json:"Region"`
	AccountID   string `json:"AccountId"`
}

func (f Finding) checkID() string {
	if f.Metadata.EventCode != "" {
		return f.Metadata.EventCode
	}
	return f.CheckID
}

func (f Finding) status() string {
	if f.StatusCode != "" {
		return strings.ToUpper(f.StatusCode)
	}
	return strings.ToUpper(f.Status)
}

func (f Finding) account() string {
	if f.Cloud.Account.UID != "" {
		return f.Cloud.Account.UID
	}
	return f.AccountID
}

func (f Finding) resource() (uid, region string) {
	region = f.Cloud.Region
	if region == "" {
		region = f.Region
	}
	if len(f.Resources) > 0 {
		uid = f.Resources[0].UID
		if f.Resources[0].Region != "" {
			region = f.Resources[0].Region
		}
		return uid, region
	}
	return f.ResourceArn, region
}

// Collector reads a Prowler JSON file from Scope.Path.
type Collector struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCollector returns a Collector. A nil logger uses slog.Default.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger, now: time.Now}
}

// Name implements providers.Collector.
func (c *Collector) Name() string { return Name }

// Collect maps the findings for accountID. Findings for other accounts and
// for unmapped checks are skipped and reported as warnings.
func (c *Collector) Collect(ctx context.Context, accountID string, scope providers.Scope) (*evidence.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(scope.Path)
	if err != nil {
		return nil, &providers.CollectionError{Kind: providers.ErrorUnreachable, Source: Name, Err: err}
	}
	defer f.Close()

	findings, err := Decode(f)
	if err != nil {
		return nil, &providers.CollectionError{Kind: providers.ErrorUnreachable, Source: Name, Err: err}
	}
	return c.Map(accountID, findings, scope)
}

// Map converts decoded findings into evidence. When accountID is empty the
// account of the first finding is used.
func (c *Collector) Map(accountID string, findings []Finding, scope providers.Scope) (*evidence.Evidence, error) {
	if accountID == "" {
		for _, f := range findings {
			if a := f.account(); a != "" {
				accountID = a
				break
			}
		}
	}
	if accountID == "" {
		return nil, &providers.CollectionError{
			Kind:   providers.ErrorCredentials,
			Source: Name,
			Err:    errors.New("no account id in findings"),
		}
	}

	b := evidence.NewBuilder(accountID, c.collectedAt(findings)).WithSource(Name)
	m := newMerger(b)
	var foreign, unmapped, unresolved, mapped int
	unmappedChecks := make(map[string]bool)
	for _, f := range findings {
		if a := f.account(); a != "" && a != accountID {
			foreign++
			continue
		}
		status := f.status()
		if status != "PASS" && status != "FAIL" {
			continue
		}
		mp, ok := checkMappings[f.checkID()]
		if !ok {
			unmapped++
			unmappedChecks[f.checkID()] = true
			continue
		}
		if !scope.Wants(mp.Type) {
			continue
		}
		uid, region := f.resource()
		if len(scope.Regions) > 0 && region != "" && !contains(scope.Regions, region) {
			continue
		}
		id := mp.resourceID(accountID, uid, region)
		if id == "" {
			unresolved++
			continue
		}
		m.apply(id, mp, region, status == "PASS")
		mapped++
	}

	var warnings []string
	if foreign > 0 {
		warnings = append(warnings, fmt.Sprintf("prowler: skipped %d findings for other accounts", foreign))
	}
	if unmapped > 0 {
		warnings = append(warnings, fmt.Sprintf("prowler: skipped %d findings of %d unmapped checks", unmapped, len(unmappedChecks)))
	}
	if unresolved > 0 {
		warnings = append(warnings, fmt.Sprintf("prowler: skipped %d findings without a resource id", unresolved))
	}
	c.logger.Info("mapped prowler findings", "account", accountID, "mapped", mapped, "unmapped", unmapped, "unresolved", unresolved)
	if len(unmappedChecks) > 0 {
		c.logger.Debug("unmapped prowler checks", "checks", slices.Sorted(maps.Keys(unmappedChecks)))
	}
	if mapped == 0 {
		return nil, &providers.CollectionError{
			Kind:     providers.ErrorUnreachable,
			Source:   Name,
			Warnings: warnings,
			Err:      fmt.Errorf("no usable findings for account %s", accountID),
		}
	}
	return b.Build(), providers.Partial(Name, warnings)
}

// collectedAt is the newest finding time, or now when findings carry none.
func (c *Collector) collectedAt(findings []Finding) time.Time {
	var newest int64
	for _, f := range findings {
		if f.Time > newest {
			newest = f.Time
		}
	}
	if newest == 0 {
		return c.now()
	}
	return time.Unix(newest, 0).UTC()
}

// Decode reads either a JSON array of findings or newline-delimited JSON.
func Decode(r io.Reader) ([]Finding, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read prowler output: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var out []Finding
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode prowler output: %w", err)
		}
		return out, nil
	}

	var out []Finding
	for {
		var f Finding
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode prowler finding %d: %w", len(out)+1, err)
		}
		out = append(out, f)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if strings.IndexByte(" \t\r\n", b) < 0 {
			return b, br.UnreadByte()
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// merger writes mapped verdicts. When several findings touch the same
// attribute the failing value wins.
type merger struct {
	b      *evidence.Builder
	failed map[string]bool
}

func newMerger(b *evidence.Builder) *merger {
	return &merger{b: b, failed: make(map[string]bool)}
}

func (m *merger) apply(id string, mp mapping, region string, pass bool) {
	key := id + "|" + mp.Attr
	if m.failed[key] {
		return
	}
	if !pass {
		m.failed[key] = true
	}
	value := mp.PassValue
	if !pass {
		value = !mp.PassValue
	}
	attrs := map[string]evidence.Value{mp.Attr: evidence.Bool(value)}
	for k, v := range mp.Extra {
		attrs[k] = v
	}
	m.b.Add(evidence.NewResource(id, mp.Type, region, attrs))
}

// mapping describes how one Prowler check becomes an attribute.
type mapping struct {
	Type      models.ResourceType
	Attr      string
	PassValue bool
	Extra     map[string]evidence.Value
}

// resourceID picks the evidence id for a finding. Account and region checks
// map to the pseudo resources used by live collection.
func (mp mapping) resourceID(accountID, uid, region string) string {
	switch mp.Type {
	case models.ResourceAccount:
		return evidence.AccountResourceID(accountID)
	case models.ResourceRegion:
		if region == "" {
			return ""
		}
		return evidence.RegionResourceID(region)
	}
	return uid
}

var checkMappings = map[string]mapping{
	"iam_root_mfa_enabled":                   {Type: models.ResourceAccount, Attr: evidence.AttrRootMFAEnabled, PassValue: true},
	"iam_no_root_access_key":                 {Type: models.ResourceAccount, Attr: evidence.AttrRootAccessKeysPresent, PassValue: false},
	"cloudtrail_multi_region_enabled":        {Type: models.ResourceAccount, Attr: evidence.AttrMultiRegionTrail, PassValue: true},
	"cloudtrail_log_file_validation_enabled": {Type: models.ResourceTrail, Attr: evidence.AttrLogFileValidation, PassValue: true},
	"iam_user_mfa_enabled_console_access": {
		Type:      models.ResourceIAMUser,
		Attr:      evidence.AttrMFAEnabled,
		PassValue: true,
		Extra:     map[string]evidence.Value{evidence.AttrConsoleAccess: evidence.Bool(true)},
	},
	"s3_bucket_public_access":                           {Type: models.ResourceS3Bucket, Attr: evidence.AttrPublicRead, PassValue: false},
	"s3_bucket_default_encryption":                      {Type: models.ResourceS3Bucket, Attr: evidence.AttrEncryptionEnabled, PassValue: true},
	"s3_bucket_level_public_access_block":               {Type: models.ResourceS3Bucket, Attr: evidence.AttrPublicAccessBlock, PassValue: true},
	"ec2_ebs_volume_encryption":                         {Type: models.ResourceEBSVolume, Attr: evidence.AttrEncrypted, PassValue: true},
	"ec2_ebs_public_snapshot":                           {Type: models.ResourceEBSSnapshot, Attr: evidence.AttrPublic, PassValue: false},
	"ec2_ami_public":                                    {Type: models.ResourceAMI, Attr: evidence.AttrPublic, PassValue: false},
	"ec2_instance_imdsv2_enabled":                       {Type: models.ResourceEC2Instance, Attr: evidence.AttrIMDSv2Required, PassValue: true},
	"rds_instance_no_public_access":                     {Type: models.ResourceRDSInstance, Attr: evidence.AttrPubliclyAccessible, PassValue: false},
	"rds_instance_storage_encrypted":                    {Type: models.ResourceRDSInstance, Attr: evidence.AttrEncrypted, PassValue: true},
	"elbv2_logging_enabled":                             {Type: models.ResourceLoadBalancer, Attr: evidence.AttrAccessLogsEnabled, PassValue: true},
	"eks_cluster_kms_cmk_encryption_in_secrets_enabled": {Type: models.ResourceEKSCluster, Attr: evidence.AttrSecretsEncrypted, PassValue: true},
	"guardduty_is_enabled":                              {Type: models.ResourceRegion, Attr: evidence.AttrGuardDutyEnabled, PassValue: true},
	"config_recorder_all_regions_enabled":               {Type: models.ResourceRegion, Attr: evidence.AttrConfigRecording, PassValue: true},
}
