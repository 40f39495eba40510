package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

var collectedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// publicReadCheck is the rule used by the public-bucket scenarios.
func publicReadCheck() Rule {
	return Rule{
		ID:           "S3-public-read-check",
		Version:      1,
		Title:        "bucket is not publicly readable",
		Category:     models.CategoryStorage,
		Severity:     models.SeverityHigh,
		ResourceType: models.ResourceS3Bucket,
		Requires:     []string{evidence.AttrPublicRead},
		Check: boolCheck(evidence.AttrPublicRead, true,
			"bucket %s is public", "bucket %s is private"),
	}
}

func faultingRule(id string, panics bool) Rule {
	r := stubRule(id)
	r.Check = func(CheckContext) (Outcome, error) {
		if panics {
			panic("boom")
		}
		return Outcome{}, errors.New("predicate exploded")
	}
	return r
}

func bucketEvidence(buckets map[string]bool) *evidence.Evidence {
	b := evidence.NewBuilder("123456789012", collectedAt)
	for name, public := range buckets {
		b.Set(name, models.ResourceS3Bucket, "", evidence.AttrPublicRead, evidence.Bool(public))
	}
	return b.Build()
}

func TestEvaluate_PublicBucketScenario(t *testing.T) {
	ev := bucketEvidence(map[string]bool{"bucket1": true})
	findings, err := Evaluate(context.Background(), ev, []Rule{publicReadCheck()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings; want 1", len(findings))
	}
	f := findings[0]
	if f.RuleID != "S3-public-read-check" || f.ResourceID != "bucket1" || f.Status != models.StatusFail {
		t.Errorf("got {%s %s %s}; want {S3-public-read-check bucket1 FAIL}", f.RuleID, f.ResourceID, f.Status)
	}
	if f.Severity != models.SeverityHigh || f.Category != models.CategoryStorage {
		t.Errorf("severity/category not copied from rule: %s/%s", f.Severity, f.Category)
	}
}

func TestEvaluate_EmptyEvidenceIsNotApplicable(t *testing.T) {
	ev := evidence.NewBuilder("acct", collectedAt).Build()
	findings, err := Evaluate(context.Background(), ev, []Rule{publicReadCheck()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(findings) != 1 || findings[0].Status != models.StatusNotApplicable {
		t.Fatalf("got %+v; want one NOT_APPLICABLE finding", findings)
	}
	if findings[0].ResourceID != "" {
		t.Errorf("ResourceID: got %q; want empty", findings[0].ResourceID)
	}
}

func TestEvaluate_MissingKeyIsNotApplicableNeverFail(t *testing.T) {
	ev := evidence.NewBuilder("acct", collectedAt).
		Set("bucket1", models.ResourceS3Bucket, "", "somethingElse", evidence.Bool(true)).
		Build()
	findings, err := Evaluate(context.Background(), ev, []Rule{publicReadCheck()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings; want 1", len(findings))
	}
	if findings[0].Status != models.StatusNotApplicable {
		t.Errorf("status: got %s; want NOT_APPLICABLE", findings[0].Status)
	}
	if !strings.Contains(findings[0].Message, evidence.AttrPublicRead) {
		t.Errorf("message should name missing key; got %q", findings[0].Message)
	}
}

func TestEvaluate_UnavailableTypeIsNotApplicable(t *testing.T) {
	ev := evidence.NewBuilder("acct", collectedAt).
		MarkUnavailable(models.ResourceS3Bucket, "AccessDenied").
		Build()
	findings, err := Evaluate(context.Background(), ev, []Rule{publicReadCheck()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(findings) != 1 || findings[0].Status != models.StatusNotApplicable {
		t.Fatalf("got %+v; want one NOT_APPLICABLE finding", findings)
	}
	if !strings.Contains(findings[0].Message, "AccessDenied") {
		t.Errorf("message should carry reason; got %q", findings[0].Message)
	}
}

func TestEvaluate_Totality(t *testing.T) {
	ev := bucketEvidence(map[string]bool{"a": true, "b": false, "c": true})
	rs := []Rule{publicReadCheck(), RootMFARule(), faultingRule("FAULT", false), S3PublicAccessBlockRule()}

	findings, err := Evaluate(context.Background(), ev, rs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	perRule := make(map[string]int)
	for _, f := range findings {
		perRule[f.RuleID]++
	}
	want := map[string]int{
		"S3-public-read-check":      3, // one per bucket
		"ROOT_ACCOUNT_MFA_DISABLED": 1, // no account resource: single NOT_APPLICABLE
		"FAULT":                     3,
		"S3_PUBLIC_ACCESS_BLOCK":    3, // missing key on every bucket
	}
	for id, n := range want {
		if perRule[id] != n {
			t.Errorf("rule %s: got %d findings; want %d", id, perRule[id], n)
		}
	}
}

func TestEvaluate_FaultIsolation(t *testing.T) {
	ev := bucketEvidence(map[string]bool{"a": true, "b": false})
	base := []Rule{publicReadCheck()}

	clean, err := Evaluate(context.Background(), ev, base)
	if err != nil {
		t.Fatalf("Evaluate clean: %v", err)
	}

	for _, panics := range []bool{false, true} {
		withFault := []Rule{faultingRule("FAULT", panics), publicReadCheck()}
		got, err := Evaluate(context.Background(), ev, withFault)
		if err != nil {
			t.Fatalf("Evaluate with fault: %v", err)
		}
		var others []models.Finding
		for _, f := range got {
			if f.RuleID == "FAULT" {
				if f.Status != models.StatusError {
					t.Errorf("panics=%v: fault status got %s; want ERROR", panics, f.Status)
				}
				if f.Diagnostic == "" {
					t.Errorf("panics=%v: empty diagnostic", panics)
				}
				continue
			}
			others = append(others, f)
		}
		if fmt.Sprint(others) != fmt.Sprint(clean) {
			t.Errorf("panics=%v: other findings changed:\n got %v\nwant %v", panics, others, clean)
		}
	}
}

func TestEvaluate_InvalidOutcomeIsError(t *testing.T) {
	r := stubRule("BAD")
	r.Check = func(CheckContext) (Outcome, error) { return Outcome{Status: models.StatusError}, nil }
	findings, err := Evaluate(context.Background(), bucketEvidence(map[string]bool{"a": true}), []Rule{r})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if findings[0].Status != models.StatusError || !strings.Contains(findings[0].Diagnostic, "invalid status") {
		t.Errorf("got %s %q; want ERROR with invalid status diagnostic", findings[0].Status, findings[0].Diagnostic)
	}
}

func TestEvaluate_DeterministicOrderAcrossWorkerCounts(t *testing.T) {
	buckets := make(map[string]bool)
	for i := 0; i < 20; i++ {
		buckets[fmt.Sprintf("bucket-%02d", i)] = i%3 == 0
	}
	ev := bucketEvidence(buckets)

	var rs []Rule
	for i := 0; i < 30; i++ {
		r := publicReadCheck()
		r.ID = fmt.Sprintf("R%02d", 29-i)
		rs = append(rs, r)
	}

	want, err := NewEvaluator(1).Evaluate(context.Background(), ev, rs)
	if err != nil {
		t.Fatalf("Evaluate serial: %v", err)
	}
	for _, workers := range []int{2, 8, 64} {
		got, err := NewEvaluator(workers).Evaluate(context.Background(), ev, rs)
		if err != nil {
			t.Fatalf("Evaluate workers=%d: %v", workers, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("workers=%d: output differs from serial run", workers)
		}
	}
	if want[0].RuleID != "R29" || want[0].ResourceID != "bucket-00" {
		t.Errorf("first finding: got %s/%s; want R29/bucket-00", want[0].RuleID, want[0].ResourceID)
	}
}

func TestEvaluate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	findings, err := Evaluate(ctx, bucketEvidence(map[string]bool{"a": true}), []Rule{publicReadCheck()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err: got %v; want context.Canceled", err)
	}
	if findings != nil {
		t.Errorf("findings: got %d; want nil on cancellation", len(findings))
	}
}

func TestEvaluate_WrongKindIsError(t *testing.T) {
	ev := evidence.NewBuilder("acct", collectedAt).
		Set("bucket1", models.ResourceS3Bucket, "", evidence.AttrPublicRead, evidence.String("yes")).
		Build()
	findings, err := Evaluate(context.Background(), ev, []Rule{publicReadCheck()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if findings[0].Status != models.StatusError {
		t.Errorf("status: got %s; want ERROR for wrong attribute kind", findings[0].Status)
	}
}

func TestRunCheck_WrapsErrorsInRuleFault(t *testing.T) {
	ev := bucketEvidence(map[string]bool{"a": true})
	cc := CheckContext{Resource: ev.OfType(models.ResourceS3Bucket)[0], Evidence: ev}

	_, err := runCheck(faultingRule("F", false), cc)
	var fault *RuleFault
	if !errors.As(err, &fault) {
		t.Fatalf("err: got %T; want *RuleFault", err)
	}
	if fault.RuleID != "F" || fault.ResourceID != "a" || fault.Err == nil {
		t.Errorf("fault: got %+v", fault)
	}

	_, err = runCheck(faultingRule("P", true), cc)
	if !errors.As(err, &fault) || fault.Panic == nil {
		t.Fatalf("panic: got %v; want *RuleFault with Panic set", err)
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("panic message: got %q", err.Error())
	}
}
