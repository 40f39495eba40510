package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/rules"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// FormatScore renders a score with two decimals, or "n/a" when unscored.
func FormatScore(score float64, scored bool) string {
	if !scored {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", score)
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 90:
		return color.New(color.FgGreen)
	case score >= 70:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func scoreCell(score float64, scored bool, width int, colored bool) string {
	text := FormatScore(score, scored)
	if !scored {
		return cell(text, nil, width, colored)
	}
	return cell(text, scoreColor(score), width, colored)
}

// RenderReport writes the report header, warnings, category scores and
// findings table.
func RenderReport(w io.Writer, r *models.Report, opts TableOptions) {
	fmt.Fprintf(w, "Account:  %s\n", r.AccountID)
	fmt.Fprintf(w, "Report:   %s\n", r.ID)
	fmt.Fprintf(w, "Scan:     %s\n", r.ScanID)
	fmt.Fprintf(w, "Scanned:  %s\n", r.ScannedAt.UTC().Format(timeLayout))
	if r.Source != "" {
		fmt.Fprintf(w, "Source:   %s\n", r.Source)
	}
	fmt.Fprintf(w, "Overall:  %s\n", strings.TrimRight(scoreCell(r.Scores.Overall, r.Scores.Scored, 0, opts.Colored), " "))

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s (%d)\n", paint(color.New(color.FgYellow), "Warnings", opts.Colored), len(r.Warnings))
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	fmt.Fprintln(w)
	RenderScores(w, r.Scores, opts.Colored)
	fmt.Fprintln(w)
	RenderTable(w, r.Findings, opts)
}

// RenderScores writes one row per category in checklist order.
func RenderScores(w io.Writer, s models.Scores, colored bool) {
	const (
		wCategory = 12
		wScore    = 8
		wWeight   = 7
		wCount    = 6
	)
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %s",
		wCategory, "CATEGORY", wScore, "SCORE", wWeight, "WEIGHT",
		wCount, "PASS", wCount, "FAIL", wCount, "N/A", "ERROR")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, cs := range s.Categories {
		fmt.Fprintf(w, "%-*s  %s  %-*g  %-*d  %-*d  %-*d  %d\n",
			wCategory, cs.Category,
			scoreCell(cs.Score, cs.Scored, wScore, colored),
			wWeight, cs.Weight,
			wCount, cs.Pass, wCount, cs.Fail, wCount, cs.NotApplicable, cs.Error)
	}
}

// RenderSummaries writes a report history list, newest first as given.
func RenderSummaries(w io.Writer, sums []models.ReportSummary, colored bool) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "No reports.")
		return
	}
	const (
		wID      = 36
		wTime    = 23
		wOverall = 8
		wCount   = 5
	)
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %s",
		wID, "REPORT ID", wTime, "SCANNED AT", wOverall, "OVERALL",
		wCount, "PASS", wCount, "FAIL", wCount, "N/A", "ERROR")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, s := range sums {
		fmt.Fprintf(w, "%-*s  %-*s  %s  %-*d  %-*d  %-*d  %d\n",
			wID, s.ID,
			wTime, s.ScannedAt.UTC().Format(timeLayout),
			scoreCell(s.Overall, s.Scored, wOverall, colored),
			wCount, s.Counts.Pass, wCount, s.Counts.Fail, wCount, s.Counts.NotApplicable, s.Counts.Error)
	}
}

func transitionColor(k models.TransitionKind) *color.Color {
	switch k {
	case models.TransitionRegression:
		return color.New(color.FgRed, color.Bold)
	case models.TransitionRemediation:
		return color.New(color.FgGreen)
	case models.TransitionAdded, models.TransitionRemoved:
		return color.New(color.FgCyan)
	default:
		return nil
	}
}

// RenderDiff writes the transitions between two reports. Regressions come
// first as the diff orders them.
func RenderDiff(w io.Writer, ts []models.FindingTransition, colored bool) {
	if len(ts) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	const (
		wKind     = 11
		wRule     = 28
		wResource = 40
		wSeverity = 9
		wChange   = 33
	)
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %s",
		wKind, "CHANGE", wRule, "RULE", wResource, "RESOURCE", wSeverity, "SEVERITY", "STATUS")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	counts := make(map[models.TransitionKind]int)
	for _, t := range ts {
		counts[t.Kind]++
		resource := t.ResourceID
		if resource == "" {
			resource = "-"
		}
		fmt.Fprintf(w, "%s  %-*s  %-*s  %s  %s\n",
			cell(string(t.Kind), transitionColor(t.Kind), wKind, colored),
			wRule, truncateField(t.RuleID, wRule),
			wResource, truncateField(resource, wResource),
			cell(string(t.Severity), severityColor(t.Severity), wSeverity, colored),
			statusChange(t.From, t.To))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d regressions, %d remediations, %d changed, %d added, %d removed\n",
		counts[models.TransitionRegression], counts[models.TransitionRemediation],
		counts[models.TransitionChanged], counts[models.TransitionAdded], counts[models.TransitionRemoved])
}

func statusChange(from, to models.Status) string {
	f, t := string(from), string(to)
	if f == "" {
		f = "-"
	}
	if t == "" {
		t = "-"
	}
	return f + " -> " + t
}

// RenderRules writes the rule catalogue grouped by category in checklist
// order.
func RenderRules(w io.Writer, rs []rules.Rule, colored bool) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "No rules.")
		return
	}
	byCat := make(map[models.Category][]rules.Rule)
	for _, r := range rs {
		byCat[r.Category] = append(byCat[r.Category], r)
	}
	const (
		wID       = 34
		wSeverity = 9
		wType     = 17
	)
	first := true
	for _, c := range models.Categories {
		list := byCat[c]
		if len(list) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		fmt.Fprintf(w, "%s (%d)\n", paint(color.New(color.Bold), string(c), colored), len(list))
		for _, r := range list {
			fmt.Fprintf(w, "  %-*s  %s  %-*s  %s\n",
				wID, r.ID,
				cell(string(r.Severity), severityColor(r.Severity), wSeverity, colored),
				wType, r.ResourceType,
				r.Title)
		}
	}
}

// FormatAge renders the time since t in whole units, for doctor output.
func FormatAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
