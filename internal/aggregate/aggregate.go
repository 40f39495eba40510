// Package aggregate turns findings into category and overall scores.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ksj/cloud-doctor/internal/models"
)

// Weights holds the severity and category weight tables.
// A category missing from Category has weight 1.
type Weights struct {
	Severity map[models.Severity]float64
	Category map[models.Category]float64
}

// DefaultWeights returns CRITICAL 10, HIGH 5, MEDIUM 2, LOW 1 and weight 1
// for every category.
func DefaultWeights() Weights {
	return Weights{
		Severity: map[models.Severity]float64{
			models.SeverityCritical: 10,
			models.SeverityHigh:     5,
			models.SeverityMedium:   2,
			models.SeverityLow:      1,
		},
		Category: map[models.Category]float64{},
	}
}

// Merge returns a copy of w with the non-zero entries of override applied.
func (w Weights) Merge(override Weights) Weights {
	out := Weights{
		Severity: make(map[models.Severity]float64, len(w.Severity)),
		Category: make(map[models.Category]float64, len(w.Category)),
	}
	for k, v := range w.Severity {
		out.Severity[k] = v
	}
	for k, v := range w.Category {
		out.Category[k] = v
	}
	for k, v := range override.Severity {
		if v != 0 {
			out.Severity[k] = v
		}
	}
	for k, v := range override.Category {
		if v != 0 {
			out.Category[k] = v
		}
	}
	return out
}

// Validate checks that severity weights are strictly decreasing from
// CRITICAL to LOW and positive, and that category weights are positive.
// All problems are reported together.
func (w Weights) Validate() error {
	var errs []string
	order := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow}
	for _, s := range order {
		v, ok := w.Severity[s]
		if !ok {
			errs = append(errs, fmt.Sprintf("severity %s: weight missing", s))
			continue
		}
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("severity %s: weight %g must be a positive number", s, v))
		}
	}
	for i := 1; i < len(order); i++ {
		hi, lo := w.Severity[order[i-1]], w.Severity[order[i]]
		if hi <= lo {
			errs = append(errs, fmt.Sprintf("severity %s weight %g must exceed %s weight %g", order[i-1], hi, order[i], lo))
		}
	}
	for s := range w.Severity {
		if !s.Valid() {
			errs = append(errs, fmt.Sprintf("unknown severity %q", s))
		}
	}
	for _, c := range models.Categories {
		if v, ok := w.Category[c]; ok && (v <= 0 || math.IsNaN(v) || math.IsInf(v, 0)) {
			errs = append(errs, fmt.Sprintf("category %s: weight %g must be a positive number", c, v))
		}
	}
	for c := range w.Category {
		if _, err := models.ParseCategory(string(c)); err != nil {
			errs = append(errs, fmt.Sprintf("unknown category %q", c))
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid weights:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

func (w Weights) categoryWeight(c models.Category) float64 {
	if v, ok := w.Category[c]; ok {
		return v
	}
	return 1
}

// Aggregate scores findings per category and overall.
//
// A category score is 100 × Σweight(PASS) / Σweight(PASS+FAIL). NOT_APPLICABLE
// and ERROR findings are counted but never enter the ratio. Categories with no
// PASS or FAIL findings are unscored and excluded from the overall score,
// which is the category-weighted mean of the scored categories. When no
// category is scored the overall result is unscored.
func Aggregate(findings []models.Finding, w Weights) models.Scores {
	type acc struct {
		counts     models.CategoryScore
		pass, appl float64
	}
	byCat := make(map[models.Category]*acc, len(models.Categories))
	for _, c := range models.Categories {
		byCat[c] = &acc{counts: models.CategoryScore{Category: c}}
	}

	for _, f := range findings {
		a, ok := byCat[f.Category]
		if !ok {
			continue
		}
		sw := w.Severity[f.Severity]
		switch f.Status {
		case models.StatusPass:
			a.counts.Pass++
			a.pass += sw
			a.appl += sw
		case models.StatusFail:
			a.counts.Fail++
			a.appl += sw
		case models.StatusNotApplicable:
			a.counts.NotApplicable++
		case models.StatusError:
			a.counts.Error++
		}
	}

	scores := models.Scores{Categories: make([]models.CategoryScore, 0, len(models.Categories))}
	var weighted, totalWeight float64
	for _, c := range models.Categories {
		a := byCat[c]
		cs := a.counts
		cs.Weight = w.categoryWeight(c)
		if a.appl > 0 {
			cs.Scored = true
			cs.Score = round2(100 * a.pass / a.appl)
			weighted += cs.Weight * (100 * a.pass / a.appl)
			totalWeight += cs.Weight
		}
		scores.Categories = append(scores.Categories, cs)
	}
	if totalWeight > 0 {
		scores.Scored = true
		scores.Overall = round2(weighted / totalWeight)
	}
	return scores
}

// Rescore returns a copy of r with scores recomputed under w. The copy has
// no digest; callers that persist it must Seal it under a new ID.
func Rescore(r *models.Report, w Weights) *models.Report {
	out := *r
	out.Findings = append([]models.Finding(nil), r.Findings...)
	out.Scores = Aggregate(out.Findings, w)
	out.Digest = ""
	return &out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
