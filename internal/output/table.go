package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ksj/cloud-doctor/internal/models"
)

// TableOptions controls which findings RenderTable shows and how severity
// and status are coloured.
type TableOptions struct {
	// Colored wraps severity and status labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludePassing also lists PASS and NOT_APPLICABLE findings. By default
	// only FAIL and ERROR rows are shown.
	IncludePassing bool

	// IncludeCategory adds a CATEGORY column.
	IncludeCategory bool
}

func severityColor(sev models.Severity) *color.Color {
	switch sev {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityHigh:
		return color.New(color.FgRed)
	case models.SeverityMedium:
		return color.New(color.FgYellow)
	case models.SeverityLow:
		return color.New(color.FgBlue)
	default:
		return nil
	}
}

func statusColor(st models.Status) *color.Color {
	switch st {
	case models.StatusPass:
		return color.New(color.FgGreen)
	case models.StatusFail:
		return color.New(color.FgRed, color.Bold)
	case models.StatusError:
		return color.New(color.FgMagenta)
	default:
		return nil
	}
}

// paint applies c to text when colored is set, regardless of color.NoColor.
func paint(c *color.Color, text string, colored bool) string {
	if c == nil || !colored {
		return text
	}
	c.EnableColor()
	return c.Sprint(text)
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged.
func ColorSeverity(sev models.Severity, colored bool) string {
	return paint(severityColor(sev), string(sev), colored)
}

// ColorStatus is ColorSeverity for finding statuses.
func ColorStatus(st models.Status, colored bool) string {
	return paint(statusColor(st), string(st), colored)
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// cell pads text to width. When colored, ANSI codes wrap only the text;
// trailing padding spaces are plain so later columns stay aligned.
func cell(text string, c *color.Color, width int, colored bool) string {
	spaces := width - len([]rune(text))
	if spaces < 0 {
		spaces = 0
	}
	return paint(c, text, colored) + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/label columns.
// A single-rune ellipsis replaces the last rune when truncation occurs.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func visible(f models.Finding, opts TableOptions) bool {
	if opts.IncludePassing {
		return true
	}
	return f.Status == models.StatusFail || f.Status == models.StatusError
}

// RenderTable writes a formatted findings table to w.
// The separator line width is derived from the header row so all rows
// align correctly.
//
// Column order:
//
//	RULE  RESOURCE  REGION  SEVERITY  STATUS  [CATEGORY]  MESSAGE
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	var rows []models.Finding
	for _, f := range findings {
		if visible(f, opts) {
			rows = append(rows, f)
		}
	}
	if len(rows) == 0 {
		if opts.IncludePassing {
			fmt.Fprintln(w, "No findings.")
		} else {
			fmt.Fprintln(w, "No failing findings.")
		}
		return
	}

	const (
		wRule     = 28
		wResource = 40
		wRegion   = 14
		wSeverity = 9
		wStatus   = 14
		wCategory = 11
		wMessage  = 60
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wRule, "RULE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wResource, "RESOURCE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wRegion, "REGION"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSeverity, "SEVERITY"))
	hb.WriteString(fmt.Sprintf("  %-*s", wStatus, "STATUS"))
	if opts.IncludeCategory {
		hb.WriteString(fmt.Sprintf("  %-*s", wCategory, "CATEGORY"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "MESSAGE"))
	header := strings.TrimRight(hb.String(), " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range rows {
		msg := f.Message
		if f.Status == models.StatusError && f.Diagnostic != "" {
			msg = f.Diagnostic
		}
		resource := f.ResourceID
		if resource == "" {
			resource = "-"
		}
		region := f.Region
		if region == "" {
			region = "-"
		}

		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wRule, truncateField(f.RuleID, wRule)))
		rb.WriteString(fmt.Sprintf("  %-*s", wResource, truncateField(resource, wResource)))
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, truncateField(region, wRegion)))
		rb.WriteString("  " + cell(string(f.Severity), severityColor(f.Severity), wSeverity, opts.Colored))
		rb.WriteString("  " + cell(string(f.Status), statusColor(f.Status), wStatus, opts.Colored))
		if opts.IncludeCategory {
			rb.WriteString(fmt.Sprintf("  %-*s", wCategory, truncateField(string(f.Category), wCategory)))
		}
		rb.WriteString("  " + ShortenMessage(msg, wMessage))
		fmt.Fprintln(w, rb.String())
	}
}
