package prowler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
)

const ocsf = `[
  {
    "metadata": {"event_code": "s3_bucket_public_access"},
    "status_code": "FAIL",
    "time": 1772323200,
    "cloud": {"account": {"uid": "123456789012"}, "region": "us-east-1"},
    "resources": [{"uid": "arn:aws:s3:::open", "region": "us-east-1"}]
  },
  {
    "metadata": {"event_code": "s3_bucket_default_encryption"},
    "status_code": "PASS",
    "cloud": {"account": {"uid": "123456789012"}, "region": "us-east-1"},
    "resources": [{"uid": "arn:aws:s3:::open"}]
  },
  {
    "metadata": {"event_code": "iam_root_mfa_enabled"},
    "status_code": "PASS",
    "cloud": {"account": {"uid": "123456789012"}, "region": "us-east-1"},
    "resources": [{"uid": "arn:aws:iam::123456789012:root"}]
  },
  {
    "metadata": {"event_code": "guardduty_is_enabled"},
    "status_code": "FAIL",
    "cloud": {"account": {"uid": "123456789012"}, "region": "eu-west-1"},
    "resources": [{"uid": "arn:aws:guardduty:eu-west-1:123456789012:detector/x", "region": "eu-west-1"}]
  },
  {
    "metadata": {"event_code": "some_unmapped_check"},
    "status_code": "FAIL",
    "cloud": {"account": {"uid": "123456789012"}},
    "resources": [{"uid": "x"}]
  },
  {
    "metadata": {"event_code": "s3_bucket_public_access"},
    "status_code": "PASS",
    "cloud": {"account": {"uid": "999999999999"}},
    "resources": [{"uid": "arn:aws:s3:::other"}]
  }
]`

func newTestCollector() *Collector {
	return NewCollector(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prowler.ocsf.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func boolAttr(t *testing.T, ev *evidence.Evidence, id, key string) bool {
	t.Helper()
	r, ok := ev.Resource(id)
	if !ok {
		t.Fatalf("resource %s missing", id)
	}
	v, ok := r.Attr(key)
	if !ok {
		t.Fatalf("%s: attribute %s missing", id, key)
	}
	b, ok := v.AsBool()
	if !ok {
		t.Fatalf("%s.%s: not a bool", id, key)
	}
	return b
}

func TestCollect_OCSF(t *testing.T) {
	ev, err := newTestCollector().Collect(context.Background(), "123456789012", providers.Scope{Path: writeFile(t, ocsf)})

	var ce *providers.CollectionError
	if !errors.As(err, &ce) || ce.Kind != providers.ErrorPartial {
		t.Fatalf("err: got %v; want partial warning for foreign account", err)
	}
	if ev.Source() != Name {
		t.Errorf("source: got %q", ev.Source())
	}
	if !boolAttr(t, ev, "arn:aws:s3:::open", evidence.AttrPublicRead) {
		t.Error("publicRead: FAIL on s3_bucket_public_access should map to true")
	}
	if !boolAttr(t, ev, "arn:aws:s3:::open", evidence.AttrEncryptionEnabled) {
		t.Error("encryptionEnabled: PASS should map to true")
	}
	if !boolAttr(t, ev, evidence.AccountResourceID("123456789012"), evidence.AttrRootMFAEnabled) {
		t.Error("rootMfaEnabled: want true")
	}
	if boolAttr(t, ev, evidence.RegionResourceID("eu-west-1"), evidence.AttrGuardDutyEnabled) {
		t.Error("guardDutyEnabled: FAIL should map to false")
	}
	if _, ok := ev.Resource("arn:aws:s3:::other"); ok {
		t.Error("finding for another account must be skipped")
	}
	if got := ev.CollectedAt().Unix(); got != 1772323200 {
		t.Errorf("CollectedAt: got %d; want newest finding time", got)
	}
	want := []string{
		"prowler: skipped 1 findings for other accounts",
		"prowler: skipped 1 findings of 1 unmapped checks",
	}
	if strings.Join(ce.Warnings, "|") != strings.Join(want, "|") {
		t.Errorf("warnings: got %q; want %q", ce.Warnings, want)
	}
}

func TestMap_UnmappedChecksAreWarnings(t *testing.T) {
	var mapped, u1, u2, u3 Finding
	mapped.CheckID, mapped.Status, mapped.ResourceArn, mapped.AccountID = "ec2_ami_public", "PASS", "ami-1", "1"
	u1.CheckID, u1.Status, u1.ResourceArn, u1.AccountID = "iam_password_policy_symbol", "FAIL", "x", "1"
	u2.CheckID, u2.Status, u2.ResourceArn, u2.AccountID = "iam_password_policy_symbol", "PASS", "y", "1"
	u3.CheckID, u3.Status, u3.ResourceArn, u3.AccountID = "cloudfront_distributions_https_enabled", "FAIL", "z", "1"

	ev, err := newTestCollector().Map("", []Finding{mapped, u1, u2, u3}, providers.Scope{})
	var ce *providers.CollectionError
	if !errors.As(err, &ce) || ce.Fatal() {
		t.Fatalf("err: got %v; want a partial CollectionError", err)
	}
	if len(ce.Warnings) != 1 || ce.Warnings[0] != "prowler: skipped 3 findings of 2 unmapped checks" {
		t.Errorf("warnings: got %q", ce.Warnings)
	}
	if ev.Len() != 1 {
		t.Errorf("resources: got %d; want only the mapped AMI", ev.Len())
	}
}

func TestMap_FailWins(t *testing.T) {
	var a, b Finding
	a.CheckID, a.Status, a.ResourceArn, a.AccountID = "ec2_ebs_volume_encryption", "FAIL", "vol-1", "1"
	b.CheckID, b.Status, b.ResourceArn, b.AccountID = "ec2_ebs_volume_encryption", "PASS", "vol-1", "1"

	ev, err := newTestCollector().Map("", []Finding{a, b}, providers.Scope{})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if boolAttr(t, ev, "vol-1", evidence.AttrEncrypted) {
		t.Error("a later PASS must not override an earlier FAIL")
	}
}

func TestMap_ScopeFilters(t *testing.T) {
	findings, err := Decode(strings.NewReader(ocsf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ev, err := newTestCollector().Map("123456789012", findings, providers.Scope{
		ResourceTypes: []models.ResourceType{models.ResourceRegion},
	})
	if err != nil && !errors.As(err, new(*providers.CollectionError)) {
		t.Fatalf("Map: %v", err)
	}
	if ev.Len() != 1 {
		t.Errorf("resources: got %d; want only the region resource", ev.Len())
	}
}

func TestMap_NothingUsable(t *testing.T) {
	var f Finding
	f.CheckID, f.Status, f.AccountID = "unknown_check", "FAIL", "1"
	_, err := newTestCollector().Map("", []Finding{f}, providers.Scope{})
	var ce *providers.CollectionError
	if !errors.As(err, &ce) || !ce.Fatal() {
		t.Fatalf("err: got %v; want fatal CollectionError", err)
	}
}

func TestDecode_NDJSON(t *testing.T) {
	in := `{"CheckID":"ec2_ami_public","Status":"PASS","ResourceArn":"ami-1","AccountId":"1"}
{"CheckID":"ec2_ami_public","Status":"FAIL","ResourceArn":"ami-2","AccountId":"1"}
`
	findings, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(findings) != 2 || findings[1].checkID() != "ec2_ami_public" || findings[1].status() != "FAIL" {
		t.Errorf("got %+v", findings)
	}
}

func TestDecode_Empty(t *testing.T) {
	findings, err := Decode(strings.NewReader("  \n"))
	if err != nil || findings != nil {
		t.Errorf("got %v, %v; want nil, nil", findings, err)
	}
}
