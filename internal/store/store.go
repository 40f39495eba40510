// Package store persists immutable reports and answers latest/history
// queries per account.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksj/cloud-doctor/internal/models"
)

var (
	// ErrNotFound is returned when a report or account has no stored data.
	ErrNotFound = errors.New("report not found")
	// ErrImmutable is returned when different content is stored under an
	// existing report ID.
	ErrImmutable = errors.New("report is immutable")
)

const (
	// DefaultPageLimit is used when Page.Limit is zero.
	DefaultPageLimit = 20
	// MaxPageLimit caps Page.Limit.
	MaxPageLimit = 100
)

// Page selects a window of an account's report history, newest first.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum limit.
func (p Page) Normalize() (Page, error) {
	if p.Limit < 0 {
		return p, fmt.Errorf("invalid page limit %d", p.Limit)
	}
	if p.Offset < 0 {
		return p, fmt.Errorf("invalid page offset %d", p.Offset)
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p, nil
}

// ReportStore persists reports. Stored reports are never modified: storing
// the same ID again succeeds only when the content digest matches.
type ReportStore interface {
	Store(ctx context.Context, r *models.Report) (string, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	Latest(ctx context.Context, accountID string) (*models.Report, error)
	List(ctx context.Context, accountID string, page Page) ([]models.ReportSummary, error)
}

// prepare checks that r can be stored and fills its digest when unset.
func prepare(r *models.Report) error {
	if r == nil {
		return errors.New("store: nil report")
	}
	if r.ID == "" {
		return errors.New("store: report has no ID")
	}
	if r.AccountID == "" {
		return fmt.Errorf("store: report %s has no account", r.ID)
	}
	if r.Digest == "" {
		if err := r.Seal(); err != nil {
			return err
		}
	}
	return nil
}

// cloneReport returns a deep copy so callers never share slices with the
// store.
func cloneReport(r *models.Report) *models.Report {
	c := *r
	if r.Findings != nil {
		c.Findings = append([]models.Finding(nil), r.Findings...)
	}
	if r.Warnings != nil {
		c.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.Scores.Categories != nil {
		c.Scores.Categories = append([]models.CategoryScore(nil), r.Scores.Categories...)
	}
	return &c
}
