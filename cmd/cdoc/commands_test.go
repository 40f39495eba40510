package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ksj/cloud-doctor/internal/aggregate"
	"github.com/ksj/cloud-doctor/internal/config"
	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/store"
)

const testAccount = "123456789012"

// ── helpers ───────────────────────────────────────────────────────────────────

// writeConfig writes a minimal cdoc.yaml into dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "cdoc.yaml")
	body := "log:\n  level: error\nstore:\n  driver: memory\n  cache_size: 0\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeEvidence writes a snapshot with a root account lacking MFA and one
// public bucket.
func writeEvidence(t *testing.T, dir string) string {
	t.Helper()
	ev := evidence.NewBuilder(testAccount, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)).
		WithSource("aws").
		Set(evidence.AccountResourceID(testAccount), models.ResourceAccount, "", evidence.AttrRootMFAEnabled, evidence.Bool(false)).
		Set("arn:aws:s3:::public", models.ResourceS3Bucket, "us-east-1", evidence.AttrPublicRead, evidence.Bool(true)).
		Build()
	data, err := json.Marshal(ev.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "snapshot.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.awsProvider = goodMockAWS()

	var out, errOut bytes.Buffer
	root := newRootCmdWith(a)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func scanArgs(t *testing.T, extra ...string) []string {
	t.Helper()
	dir := t.TempDir()
	args := []string{
		"scan",
		"--config", writeConfig(t, dir),
		"--policy", filepath.Join(dir, "none.yaml"),
		"--source", "file",
		"--input", writeEvidence(t, dir),
		"--account", testAccount,
	}
	return append(args, extra...)
}

// ── scan ──────────────────────────────────────────────────────────────────────

func TestScanCmd_JSONReport(t *testing.T) {
	// An explicit but missing policy path is an error, so point at a real one.
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	args := scanArgs(t, "--format", "json")
	args[4] = pol
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("scan returned error: %v", err)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	if report.AccountID != testAccount {
		t.Errorf("account_id: got %q; want %q", report.AccountID, testAccount)
	}
	if report.Source != "file" {
		t.Errorf("source: got %q; want file", report.Source)
	}
	if report.ID == "" || report.Digest == "" {
		t.Errorf("report must carry an ID and digest; got id=%q digest=%q", report.ID, report.Digest)
	}

	failing := map[string]bool{}
	for _, f := range report.Findings {
		if f.Status == models.StatusFail {
			failing[f.RuleID] = true
		}
	}
	for _, id := range []string{"ROOT_ACCOUNT_MFA_DISABLED", "S3_PUBLIC_READ"} {
		if !failing[id] {
			t.Errorf("expected a FAIL finding for %s", id)
		}
	}
	if !report.Scores.Scored {
		t.Error("overall score should be scored")
	}
}

func TestScanCmd_FailOnExitCode(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	args := scanArgs(t, "--fail-on", "HIGH")
	args[4] = pol

	out, err := execute(t, args...)
	var ee *exitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *exitError; got %v", err)
	}
	if ee.code != 2 {
		t.Errorf("exit code: got %d; want 2", ee.code)
	}
	if !strings.Contains(out, "ROOT_ACCOUNT_MFA_DISABLED") {
		t.Errorf("report should still be printed before failing; got:\n%s", out)
	}
}

func TestScanCmd_FailOnInvalidSeverity(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	args := scanArgs(t, "--fail-on", "SEVERE")
	args[4] = pol

	_, err := execute(t, args...)
	if err == nil || !strings.Contains(err.Error(), "--fail-on") {
		t.Errorf("expected --fail-on error; got %v", err)
	}
}

func TestScanCmd_PolicyEnforcement(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	body := "version: 1\nenforcement:\n  fail_on_severity: CRITICAL\n"
	if err := os.WriteFile(pol, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	args := scanArgs(t)
	args[4] = pol

	_, err := execute(t, args...)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Errorf("expected exit code 2 from policy enforcement; got %v", err)
	}
}

func TestScanCmd_WritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "report.json")
	args := scanArgs(t, "--output", outPath)
	args[4] = pol

	if _, err := execute(t, args...); err != nil {
		t.Fatalf("scan returned error: %v", err)
	}
	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("output file is not JSON: %v", err)
	}
	if report.AccountID != testAccount {
		t.Errorf("account_id: got %q; want %q", report.AccountID, testAccount)
	}
}

func TestScanCmd_MissingPolicyFile(t *testing.T) {
	_, err := execute(t, scanArgs(t)...)
	if err == nil || !strings.Contains(err.Error(), "load policy") {
		t.Errorf("expected load policy error for a missing explicit path; got %v", err)
	}
}

func TestScanCmd_InvalidFormat(t *testing.T) {
	_, err := execute(t, scanArgs(t, "--format", "xml")...)
	if err == nil || !strings.Contains(err.Error(), "invalid --format") {
		t.Errorf("expected invalid --format error; got %v", err)
	}
}

func TestScanCmd_AccountRequiredForFileSource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t,
		"scan",
		"--config", writeConfig(t, dir),
		"--source", "file",
		"--input", writeEvidence(t, dir),
	)
	if err == nil || !strings.Contains(err.Error(), "--account is required") {
		t.Errorf("expected --account error; got %v", err)
	}
}

func TestScanCmd_ScanID(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	const scanID = "7f1c6a1e-3b5d-4f2a-9c8e-0d4b2a6e1f35"
	args := scanArgs(t, "--format", "json", "--scan-id", scanID)
	args[4] = pol

	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("scan returned error: %v", err)
	}
	var report models.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a JSON report: %v", err)
	}
	if report.ScanID != scanID || report.ID != engine.ReportID(scanID) {
		t.Errorf("ids: got scan=%s report=%s; want scan=%s report=%s", report.ScanID, report.ID, scanID, engine.ReportID(scanID))
	}
}

func TestScanCmd_InvalidScanID(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(pol, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	args := scanArgs(t, "--scan-id", "retry-1")
	args[4] = pol

	_, err := execute(t, args...)
	if !errors.Is(err, engine.ErrInvalidScanID) {
		t.Errorf("expected ErrInvalidScanID; got %v", err)
	}
}

func TestAppScope_ConfiguredRegions(t *testing.T) {
	a := newApp()
	a.cfg = &config.Config{AWS: config.AWSConfig{Regions: []string{"eu-west-1", "eu-central-1"}}}

	sc := a.scope(nil, []string{"s3_bucket"}, "")
	if strings.Join(sc.Regions, ",") != "eu-west-1,eu-central-1" {
		t.Errorf("default regions: got %v; want [eu-west-1 eu-central-1]", sc.Regions)
	}
	if len(sc.ResourceTypes) != 1 || sc.ResourceTypes[0] != models.ResourceS3Bucket {
		t.Errorf("resource types: got %v", sc.ResourceTypes)
	}

	sc = a.scope([]string{"us-west-2"}, nil, "in.json")
	if strings.Join(sc.Regions, ",") != "us-west-2" || sc.Path != "in.json" {
		t.Errorf("explicit scope: got regions=%v path=%q", sc.Regions, sc.Path)
	}

	sc = a.scope(nil, nil, "")
	sc.Regions[0] = "changed"
	if a.cfg.AWS.Regions[0] != "eu-west-1" {
		t.Error("scope must not alias the configured regions")
	}
}

// ── report / diff / rules ─────────────────────────────────────────────────────

func TestReportLatestCmd_RequiresAccount(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "report", "latest", "--config", writeConfig(t, dir))
	if err == nil || !strings.Contains(err.Error(), "--account is required") {
		t.Errorf("expected --account error; got %v", err)
	}
}

func TestReportLatestCmd_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "report", "latest", "--config", writeConfig(t, dir), "--account", testAccount)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound; got %v", err)
	}
}

func TestReportListCmd_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "report", "list", "--config", writeConfig(t, dir), "--account", testAccount)
	if err != nil {
		t.Fatalf("report list returned error: %v", err)
	}
	if !strings.Contains(out, "No reports.") {
		t.Errorf("expected 'No reports.'; got:\n%s", out)
	}
}

func TestRescored_BecomesLatest(t *testing.T) {
	ctx := context.Background()
	scannedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	findings := []models.Finding{{
		RuleID: "S3_PUBLIC_READ", RuleVersion: 1, Category: models.CategoryStorage,
		Severity: models.SeverityHigh, ResourceID: "arn:aws:s3:::public",
		ResourceType: models.ResourceS3Bucket, Status: models.StatusFail,
	}}
	orig := &models.Report{
		ID:        engine.ReportID("3a6c1d2e-0f4b-4c5d-8e9f-a0b1c2d3e4f5"),
		AccountID: testAccount,
		ScanID:    "3a6c1d2e-0f4b-4c5d-8e9f-a0b1c2d3e4f5",
		ScannedAt: scannedAt,
		Source:    "aws",
		Findings:  findings,
		Scores:    aggregate.Aggregate(findings, aggregate.DefaultWeights()),
	}
	mem := store.NewMemoryStore()
	if _, err := mem.Store(ctx, orig); err != nil {
		t.Fatal(err)
	}

	out, err := rescored(orig, aggregate.DefaultWeights(), scannedAt.Add(time.Hour+123*time.Nanosecond))
	if err != nil {
		t.Fatalf("rescored: %v", err)
	}
	if out.ScanID == orig.ScanID || out.ID != engine.ReportID(out.ScanID) {
		t.Errorf("ids: got scan=%s report=%s; want a new scan id and its derived report id", out.ScanID, out.ID)
	}
	if !out.ScannedAt.Equal(scannedAt.Add(time.Hour)) {
		t.Errorf("scanned_at: got %s; want %s", out.ScannedAt, scannedAt.Add(time.Hour))
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], orig.ID) {
		t.Errorf("warnings: got %v; want the source report recorded", out.Warnings)
	}
	if _, err := mem.Store(ctx, out); err != nil {
		t.Fatalf("store rescored: %v", err)
	}

	latest, err := mem.Latest(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	list, err := mem.List(ctx, testAccount, store.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != out.ID || list[0].ID != out.ID {
		t.Errorf("latest=%s list[0]=%s; want the rescored report %s", latest.ID, list[0].ID, out.ID)
	}
}

func TestDiffCmd_FromWithoutTo(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "diff", "--config", writeConfig(t, dir), "--account", testAccount, "--from", "a")
	if err == nil || !strings.Contains(err.Error(), "--from and --to") {
		t.Errorf("expected --from/--to error; got %v", err)
	}
}

func TestDiffCmd_InvalidCategory(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "diff", "--config", writeConfig(t, dir), "--account", testAccount, "--category", "Cost")
	if err == nil || !strings.Contains(err.Error(), "--category") {
		t.Errorf("expected --category error; got %v", err)
	}
}

func TestRulesCmd_JSON(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "rules", "--all", "--config", writeConfig(t, dir), "--format", "json")
	if err != nil {
		t.Fatalf("rules returned error: %v", err)
	}
	var rs []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(out), &rs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(rs) == 0 {
		t.Fatal("expected a non-empty rule catalogue")
	}
	if rs[0].Category != string(models.CategoryAccount) {
		t.Errorf("first rule category: got %q; want %q", rs[0].Category, models.CategoryAccount)
	}
}

func TestRulesCmd_PolicyDisablesRule(t *testing.T) {
	dir := t.TempDir()
	pol := filepath.Join(dir, "policy.yaml")
	body := "version: 1\nrules:\n  S3_PUBLIC_READ:\n    enabled: false\n"
	if err := os.WriteFile(pol, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "rules", "--config", writeConfig(t, dir), "--policy", pol)
	if err != nil {
		t.Fatalf("rules returned error: %v", err)
	}
	if strings.Contains(out, "S3_PUBLIC_READ") {
		t.Errorf("disabled rule should not be listed; got:\n%s", out)
	}
	if !strings.Contains(out, "ROOT_ACCOUNT_MFA_DISABLED") {
		t.Errorf("enabled rule missing; got:\n%s", out)
	}
}

// ── writeReportToFile ─────────────────────────────────────────────────────────

func TestWriteReportToFile_InvalidPath(t *testing.T) {
	report := &models.Report{ID: "r1", AccountID: testAccount}
	path := filepath.Join(t.TempDir(), "nonexistent", "report.json")

	if err := writeReportToFile(path, report); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

// ── exit codes ────────────────────────────────────────────────────────────────

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("nil: got %d; want 0", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("plain error: got %d; want 1", got)
	}
	if got := exitCode(&exitError{code: 2}); got != 2 {
		t.Errorf("exitError: got %d; want 2", got)
	}
}
