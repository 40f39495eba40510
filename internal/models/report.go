package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// CategoryScore is the weighted pass ratio for one category.
// Score is meaningful only when Scored is true; a category with no PASS or
// FAIL findings is reported but left out of the overall score.
type CategoryScore struct {
	Category      Category `json:"category"`
	Weight        float64  `json:"weight"`
	Score         float64  `json:"score"`
	Scored        bool     `json:"scored"`
	Pass          int      `json:"pass"`
	Fail          int      `json:"fail"`
	NotApplicable int      `json:"not_applicable"`
	Error         int      `json:"error"`
}

// Scores holds the aggregate output for one report.
type Scores struct {
	Categories []CategoryScore `json:"categories"`
	Overall    float64         `json:"overall"`
	Scored     bool            `json:"scored"`
}

// Category returns the score entry for c, if present.
func (s Scores) Category(c Category) (CategoryScore, bool) {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategoryScore{}, false
}

// Report is the immutable result of one completed scan of one account.
type Report struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	ScanID    string    `json:"scan_id"`
	ScannedAt time.Time `json:"scanned_at"`
	Source    string    `json:"source"`
	Findings  []Finding `json:"findings"`
	Scores    Scores    `json:"scores"`
	Warnings  []string  `json:"warnings,omitempty"`
	Digest    string    `json:"digest"`
}

// ComputeDigest returns the hex SHA-256 of the report content. The Digest
// field itself is excluded so the value is stable across recomputation.
func (r *Report) ComputeDigest() (string, error) {
	c := *r
	c.Digest = ""
	c.ScannedAt = c.ScannedAt.UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal report %s: %w", r.ID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and stores the content digest.
func (r *Report) Seal() error {
	d, err := r.ComputeDigest()
	if err != nil {
		return err
	}
	r.Digest = d
	return nil
}

// StatusCounts tallies findings by status.
type StatusCounts struct {
	Pass          int `json:"pass"`
	Fail          int `json:"fail"`
	NotApplicable int `json:"not_applicable"`
	Error         int `json:"error"`
}

// ReportSummary is the list view of a Report without its findings.
type ReportSummary struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	ScanID    string       `json:"scan_id"`
	ScannedAt time.Time    `json:"scanned_at"`
	Overall   float64      `json:"overall"`
	Scored    bool         `json:"scored"`
	Counts    StatusCounts `json:"counts"`
}

// Summary builds the list view of r.
func (r *Report) Summary() ReportSummary {
	s := ReportSummary{
		ID:        r.ID,
		AccountID: r.AccountID,
		ScanID:    r.ScanID,
		ScannedAt: r.ScannedAt,
		Overall:   r.Scores.Overall,
		Scored:    r.Scores.Scored,
	}
	for _, f := range r.Findings {
		switch f.Status {
		case StatusPass:
			s.Counts.Pass++
		case StatusFail:
			s.Counts.Fail++
		case StatusNotApplicable:
			s.Counts.NotApplicable++
		case StatusError:
			s.Counts.Error++
		}
	}
	return s
}

// TransitionKind classifies a change between two reports.
type TransitionKind string

const (
	TransitionRegression  TransitionKind = "REGRESSION"
	TransitionRemediation TransitionKind = "REMEDIATION"
	TransitionChanged     TransitionKind = "CHANGED"
	TransitionAdded       TransitionKind = "ADDED"
	TransitionRemoved     TransitionKind = "REMOVED"
)

// FindingTransition records how one (rule, resource) pair changed between
// two reports of the same account.
type FindingTransition struct {
	RuleID     string         `json:"rule_id"`
	ResourceID string         `json:"resource_id,omitempty"`
	Kind       TransitionKind `json:"kind"`
	Severity   Severity       `json:"severity"`
	Category   Category       `json:"category"`
	From       Status         `json:"from,omitempty"`
	To         Status         `json:"to,omitempty"`
	FromTime   time.Time      `json:"from_time"`
	ToTime     time.Time      `json:"to_time"`
}

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanRunning    ScanStatus = "RUNNING"
	ScanCompleted  ScanStatus = "COMPLETED"
	ScanIncomplete ScanStatus = "INCOMPLETE"
)

// Scan tracks one scan request. ReportID is set only for completed scans.
type Scan struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	Source     string     `json:"source"`
	Status     ScanStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	ReportID   string     `json:"report_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}
