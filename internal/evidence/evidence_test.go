package evidence

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ksj/cloud-doctor/internal/models"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBuilder_OfTypeSortedByID(t *testing.T) {
	e := NewBuilder("123456789012", testTime).
		Set("bucket-b", models.ResourceS3Bucket, "", "publicRead", Bool(false)).
		Set("bucket-a", models.ResourceS3Bucket, "", "publicRead", Bool(true)).
		Set("sg-1", models.ResourceSecurityGroup, "us-east-1", "ingress", List()).
		Build()

	got := e.OfType(models.ResourceS3Bucket)
	if len(got) != 2 {
		t.Fatalf("OfType: got %d resources; want 2", len(got))
	}
	if got[0].ID() != "bucket-a" || got[1].ID() != "bucket-b" {
		t.Errorf("OfType order: got %q, %q; want bucket-a, bucket-b", got[0].ID(), got[1].ID())
	}
	if e.Len() != 3 {
		t.Errorf("Len: got %d; want 3", e.Len())
	}
}

func TestBuilder_MergesAttributes(t *testing.T) {
	e := NewBuilder("acct", testTime).
		Set("b1", models.ResourceS3Bucket, "us-east-1", "publicRead", Bool(false)).
		Set("b1", models.ResourceS3Bucket, "", "encrypted", Bool(true)).
		Set("b1", models.ResourceS3Bucket, "", "publicRead", Bool(true)).
		Build()

	r, ok := e.Resource("b1")
	if !ok {
		t.Fatal("Resource b1 not found")
	}
	if v, _ := r.Attr("publicRead"); v.String() != "true" {
		t.Errorf("publicRead: got %s; want true (later write wins)", v)
	}
	if !r.Has("publicRead", "encrypted") {
		t.Errorf("Has: got keys %v; want publicRead and encrypted", r.Keys())
	}
	if r.Region() != "us-east-1" {
		t.Errorf("Region: got %q; want us-east-1", r.Region())
	}
}

func TestBuilder_TypeConflictKeepsFirstType(t *testing.T) {
	e := NewBuilder("acct", testTime).
		Set("res-1", models.ResourceS3Bucket, "", "publicRead", Bool(false)).
		Set("res-1", models.ResourceEBSVolume, "", "encrypted", Bool(true)).
		Set("res-1", models.ResourceRDSInstance, "", "encrypted", Bool(false)).
		Set("b2", models.ResourceS3Bucket, "", "publicRead", Bool(true)).
		Build()

	r, _ := e.Resource("res-1")
	if r.Type() != models.ResourceS3Bucket {
		t.Errorf("Type: got %s; want %s", r.Type(), models.ResourceS3Bucket)
	}
	if len(e.OfType(models.ResourceEBSVolume)) != 0 {
		t.Error("conflicting type must not get its own resource")
	}
	got := e.Conflicts()
	if len(got) != 1 {
		t.Fatalf("Conflicts: got %q; want one entry for res-1", got)
	}
	if !strings.Contains(got[0], "res-1") || !strings.Contains(got[0], string(models.ResourceEBSVolume)) {
		t.Errorf("Conflicts[0]: got %q", got[0])
	}
	got[0] = "changed"
	if e.Conflicts()[0] == "changed" {
		t.Error("Conflicts must return a copy")
	}
}

func TestBuilder_MarkUnavailableKeepsFirstReason(t *testing.T) {
	e := NewBuilder("acct", testTime).
		MarkUnavailable(models.ResourceIAMUser, "AccessDenied").
		MarkUnavailable(models.ResourceIAMUser, "Throttling").
		Build()

	reason, ok := e.Unavailable(models.ResourceIAMUser)
	if !ok || reason != "AccessDenied" {
		t.Errorf("Unavailable: got (%q, %v); want (AccessDenied, true)", reason, ok)
	}
	if _, ok := e.Unavailable(models.ResourceS3Bucket); ok {
		t.Error("Unavailable(s3_bucket): got true; want false")
	}
}

func TestEvidence_ImmutableAfterBuild(t *testing.T) {
	attrs := map[string]Value{"publicRead": Bool(false)}
	b := NewBuilder("acct", testTime)
	b.Add(NewResource("b1", models.ResourceS3Bucket, "", attrs))
	e := b.Build()

	attrs["publicRead"] = Bool(true)
	b.Set("b1", models.ResourceS3Bucket, "", "publicRead", Bool(true))

	r, _ := e.Resource("b1")
	v, _ := r.Attr("publicRead")
	if got, _ := v.AsBool(); got {
		t.Error("evidence changed after Build; want snapshot isolation")
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	in := Record(map[string]Value{
		"enabled": Bool(true),
		"name":    String("trail"),
		"age":     Number(91),
		"ports":   List(Number(22), Number(3389)),
	})
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"age":91,"enabled":true,"name":"trail","ports":[22,3389]}`
	if string(data) != want {
		t.Errorf("Marshal: got %s; want %s", data, want)
	}

	var out Value
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Kind() != KindRecord || out.Len() != 4 {
		t.Fatalf("Unmarshal: got kind %s len %d; want record len 4", out.Kind(), out.Len())
	}
	ports, _ := out.Field("ports")
	if ports.Kind() != KindList || ports.Len() != 2 {
		t.Errorf("ports: got %s; want list of 2", ports)
	}
}

func TestValue_NullRejected(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte("null"), &v); err == nil {
		t.Error("Unmarshal(null): got nil error; want error")
	}
}

func TestSnapshotValidator_Decode(t *testing.T) {
	v, err := NewSnapshotValidator()
	if err != nil {
		t.Fatalf("NewSnapshotValidator: %v", err)
	}

	doc := `{
		"account_id": "123456789012",
		"collected_at": "2026-03-01T12:00:00Z",
		"resources": [
			{"id": "bucket1", "type": "s3_bucket", "attributes": {"publicRead": true}}
		],
		"unavailable": {"iam_user": "AccessDenied"}
	}`
	e, err := v.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.AccountID() != "123456789012" {
		t.Errorf("AccountID: got %q", e.AccountID())
	}
	r, ok := e.Resource("bucket1")
	if !ok {
		t.Fatal("bucket1 missing")
	}
	if b, ok := mustAttr(t, r, "publicRead").AsBool(); !ok || !b {
		t.Errorf("publicRead: got (%v, %v); want (true, true)", b, ok)
	}
	if _, ok := e.Unavailable(models.ResourceIAMUser); !ok {
		t.Error("iam_user should be unavailable")
	}
}

func TestSnapshotValidator_RejectsInvalid(t *testing.T) {
	v, err := NewSnapshotValidator()
	if err != nil {
		t.Fatalf("NewSnapshotValidator: %v", err)
	}
	cases := map[string]string{
		"missing account":  `{"resources": []}`,
		"resource no type": `{"account_id": "a", "resources": [{"id": "x"}]}`,
		"null attribute":   `{"account_id": "a", "resources": [{"id": "x", "type": "s3_bucket", "attributes": {"k": null}}]}`,
		"not json":         `{`,
	}
	for name, doc := range cases {
		if _, err := v.Decode(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: got nil error; want error", name)
		}
	}
}

func TestDump_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := NewBuilder("acct", testTime).
		WithSource("aws").
		Set("b1", models.ResourceS3Bucket, "", "publicRead", Bool(true)).
		MarkUnavailable(models.ResourceTrail, "AccessDenied").
		Build()

	path, err := WriteDump(dir, "scan-1", e)
	if err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	if !strings.HasSuffix(path, DumpFileName("scan-1")) {
		t.Errorf("path: got %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open dump: %v", err)
	}
	defer f.Close()
	got, err := ReadDump(f)
	if err != nil {
		t.Fatalf("ReadDump: %v", err)
	}
	if got.Source() != "aws" || got.Len() != 1 {
		t.Errorf("ReadDump: got source %q len %d; want aws 1", got.Source(), got.Len())
	}
	if _, ok := got.Unavailable(models.ResourceTrail); !ok {
		t.Error("ReadDump lost unavailable marker")
	}
}

func mustAttr(t *testing.T, r Resource, key string) Value {
	t.Helper()
	v, ok := r.Attr(key)
	if !ok {
		t.Fatalf("attribute %q missing", key)
	}
	return v
}
