package rules

import (
	"fmt"
	"time"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// CheckContext is the sole input to a Check. It carries one in-scope
// resource plus read-only access to the rest of the snapshot; checks must
// never make network calls or read external state.
type CheckContext struct {
	// Resource is the resource under evaluation.
	Resource evidence.Resource

	// Evidence is the full snapshot, for rules that correlate resources.
	Evidence *evidence.Evidence

	// Now is the snapshot collection time. Age-based checks measure against
	// it, never against the wall clock, so re-evaluation is reproducible.
	Now time.Time

	params map[string]float64
}

// Param returns the numeric parameter key, or def when the rule carries no
// value for it.
func (c CheckContext) Param(key string, def float64) float64 {
	if v, ok := c.params[key]; ok {
		return v
	}
	return def
}

// Outcome is what a Check decides for one resource.
type Outcome struct {
	Status  models.Status
	Message string
}

// Pass returns a PASS outcome.
func Pass(format string, args ...any) Outcome {
	return Outcome{Status: models.StatusPass, Message: fmt.Sprintf(format, args...)}
}

// Fail returns a FAIL outcome.
func Fail(format string, args ...any) Outcome {
	return Outcome{Status: models.StatusFail, Message: fmt.Sprintf(format, args...)}
}

// NotApplicable returns a NOT_APPLICABLE outcome.
func NotApplicable(format string, args ...any) Outcome {
	return Outcome{Status: models.StatusNotApplicable, Message: fmt.Sprintf(format, args...)}
}

// Check evaluates one resource. A returned error (or a panic) becomes an
// ERROR finding for that resource only.
type Check func(ctx CheckContext) (Outcome, error)

// Rule is a single deterministic security check. Rules are plain values;
// Version is bumped whenever Check semantics change so historical findings
// remain attributable.
type Rule struct {
	ID           string
	Version      int
	Title        string
	Category     models.Category
	Severity     models.Severity
	ResourceType models.ResourceType

	// Requires lists the attributes a resource must carry for Check to run.
	// A resource missing any of them is NOT_APPLICABLE.
	Requires []string

	// Remediation is a reference into the checklist guide.
	Remediation string

	// Params holds tunable numeric thresholds, overridable by policy.
	Params map[string]float64

	Check Check
}

// Validate reports wiring mistakes in r.
func (r Rule) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("rule has empty ID")
	case r.Version < 1:
		return fmt.Errorf("rule %s: version must be >= 1", r.ID)
	case !r.Severity.Valid():
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	case r.ResourceType == "":
		return fmt.Errorf("rule %s: empty resource type", r.ID)
	case r.Check == nil:
		return fmt.Errorf("rule %s: nil check", r.ID)
	}
	if _, err := models.ParseCategory(string(r.Category)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// WithSeverity returns a copy of r with severity s.
func (r Rule) WithSeverity(s models.Severity) Rule {
	r.Severity = s
	return r
}

// WithParams returns a copy of r whose Params are overlaid with overrides.
func (r Rule) WithParams(overrides map[string]float64) Rule {
	merged := make(map[string]float64, len(r.Params)+len(overrides))
	for k, v := range r.Params {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	r.Params = merged
	return r
}

// RuleRegistry manages the set of rules and the ids of retired ones.
type RuleRegistry interface {
	// Register adds a rule. Panics on duplicate or invalid rules.
	Register(rule Rule)

	// All returns active rules in registration order.
	All() []Rule

	// Lookup returns an active or retired rule by id.
	Lookup(id string) (Rule, bool)

	// Retire removes a rule from evaluation while keeping its id resolvable.
	Retire(id string)

	// Known reports whether id was ever registered.
	Known(id string) bool
}
