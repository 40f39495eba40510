// Package diff compares two reports of the same account finding by finding.
package diff

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/store"
)

// ErrAccountMismatch is returned when a report does not belong to the
// account the diff was requested for.
var ErrAccountMismatch = errors.New("report does not belong to account")

// ErrNoPrevious is returned by Previous when the account has fewer than two
// reports.
var ErrNoPrevious = errors.New("no previous report")

// Diff returns the transitions from one report to another, keyed by
// (rule id, resource id). Transitions follow the order of to's findings,
// then findings only in from, in from's order. Unchanged pairs are omitted,
// so Diff(a, a) is empty.
func Diff(from, to *models.Report) []models.FindingTransition {
	before := make(map[models.FindingKey]models.Finding, len(from.Findings))
	for _, f := range from.Findings {
		if _, dup := before[f.Key()]; !dup {
			before[f.Key()] = f
		}
	}
	seen := make(map[models.FindingKey]bool, len(to.Findings))

	out := []models.FindingTransition{}
	for _, f := range to.Findings {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		prev, ok := before[k]
		switch {
		case !ok:
			out = append(out, transition(f, models.TransitionAdded, "", f.Status, from, to))
		case prev.Status != f.Status:
			out = append(out, transition(f, classify(prev.Status, f.Status), prev.Status, f.Status, from, to))
		}
	}
	for _, f := range from.Findings {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, transition(f, models.TransitionRemoved, f.Status, "", from, to))
	}
	return out
}

func classify(from, to models.Status) models.TransitionKind {
	switch {
	case from == models.StatusPass && to == models.StatusFail:
		return models.TransitionRegression
	case from == models.StatusFail && to == models.StatusPass:
		return models.TransitionRemediation
	default:
		return models.TransitionChanged
	}
}

func transition(f models.Finding, kind models.TransitionKind, fromSt, toSt models.Status, from, to *models.Report) models.FindingTransition {
	return models.FindingTransition{
		RuleID:     f.RuleID,
		ResourceID: f.ResourceID,
		Kind:       kind,
		Severity:   f.Severity,
		Category:   f.Category,
		From:       fromSt,
		To:         toSt,
		FromTime:   from.ScannedAt,
		ToTime:     to.ScannedAt,
	}
}

// FilterCategory keeps only transitions in category c.
func FilterCategory(ts []models.FindingTransition, c models.Category) []models.FindingTransition {
	out := []models.FindingTransition{}
	for _, t := range ts {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// Differ resolves report IDs through a store before diffing.
type Differ struct {
	store store.ReportStore
}

// NewDiffer returns a Differ reading from s.
func NewDiffer(s store.ReportStore) *Differ {
	return &Differ{store: s}
}

// Diff loads both reports, checks they belong to accountID, and diffs them.
func (d *Differ) Diff(ctx context.Context, accountID, fromID, toID string) ([]models.FindingTransition, error) {
	from, err := d.load(ctx, accountID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := d.load(ctx, accountID, toID)
	if err != nil {
		return nil, err
	}
	return Diff(from, to), nil
}

// Previous diffs the account's latest report against the one before it and
// returns both report IDs.
func (d *Differ) Previous(ctx context.Context, accountID string) (fromID, toID string, ts []models.FindingTransition, err error) {
	page, err := d.store.List(ctx, accountID, store.Page{Limit: 2})
	if err != nil {
		return "", "", nil, err
	}
	if len(page) < 2 {
		return "", "", nil, fmt.Errorf("account %s: %w", accountID, ErrNoPrevious)
	}
	ts, err = d.Diff(ctx, accountID, page[1].ID, page[0].ID)
	if err != nil {
		return "", "", nil, err
	}
	return page[1].ID, page[0].ID, ts, nil
}

func (d *Differ) load(ctx context.Context, accountID, id string) (*models.Report, error) {
	r, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.AccountID != accountID {
		return nil, fmt.Errorf("report %s: %w %s", id, ErrAccountMismatch, accountID)
	}
	return r, nil
}
