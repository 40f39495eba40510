package rules

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
)

// RuleFault is a check failure captured into an ERROR finding.
type RuleFault struct {
	RuleID     string
	ResourceID string
	Err        error
	Panic      any
}

func (f *RuleFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("rule %s on %q panicked: %v", f.RuleID, f.ResourceID, f.Panic)
	}
	return fmt.Sprintf("rule %s on %q: %v", f.RuleID, f.ResourceID, f.Err)
}

func (f *RuleFault) Unwrap() error { return f.Err }

// Evaluator runs rules against a snapshot with bounded parallelism.
// Output order never depends on scheduling: results are slotted by rule
// index and each rule walks its resources in id order.
type Evaluator struct {
	workers int
}

// NewEvaluator returns an Evaluator running at most workers rules at once.
// workers <= 0 selects GOMAXPROCS.
func NewEvaluator(workers int) *Evaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Evaluator{workers: workers}
}

// Evaluate is shorthand for NewEvaluator(0).Evaluate.
func Evaluate(ctx context.Context, ev *evidence.Evidence, rules []Rule) ([]models.Finding, error) {
	return NewEvaluator(0).Evaluate(ctx, ev, rules)
}

// Evaluate returns at least one finding per rule and exactly one per
// (rule, in-scope resource) pair, ordered by rule then resource id.
// On cancellation it returns the context error and no findings.
func (e *Evaluator) Evaluate(ctx context.Context, ev *evidence.Evidence, rules []Rule) ([]models.Finding, error) {
	results := make([][]models.Finding, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rule := range rules {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = evaluateRule(rule, ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var n int
	for _, r := range results {
		n += len(r)
	}
	findings := make([]models.Finding, 0, n)
	for _, r := range results {
		findings = append(findings, r...)
	}
	return findings, nil
}

// evaluateRule applies one rule to every resource of its type.
func evaluateRule(rule Rule, ev *evidence.Evidence) []models.Finding {
	resources := ev.OfType(rule.ResourceType)
	if len(resources) == 0 {
		msg := fmt.Sprintf("no %s resources in scope", rule.ResourceType)
		if reason, ok := ev.Unavailable(rule.ResourceType); ok {
			msg = fmt.Sprintf("%s evidence unavailable: %s", rule.ResourceType, reason)
		}
		return []models.Finding{newFinding(rule, "", "", NotApplicable("%s", msg), "")}
	}

	findings := make([]models.Finding, 0, len(resources))
	for _, res := range resources {
		if missing := missingKeys(res, rule.Requires); len(missing) > 0 {
			out := NotApplicable("missing evidence: %s", strings.Join(missing, ", "))
			findings = append(findings, newFinding(rule, res.ID(), res.Region(), out, ""))
			continue
		}

		cc := CheckContext{Resource: res, Evidence: ev, Now: ev.CollectedAt(), params: rule.Params}
		out, err := runCheck(rule, cc)
		if err != nil {
			findings = append(findings, newFinding(rule, res.ID(), res.Region(),
				Outcome{Status: models.StatusError, Message: "rule evaluation failed"}, err.Error()))
			continue
		}
		findings = append(findings, newFinding(rule, res.ID(), res.Region(), out, ""))
	}
	return findings
}

// runCheck invokes the rule's check, converting panics and invalid outcomes
// into a *RuleFault.
func runCheck(rule Rule, cc CheckContext) (out Outcome, err error) {
	resID := cc.Resource.ID()
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{}
			err = &RuleFault{RuleID: rule.ID, ResourceID: resID, Panic: p}
		}
	}()

	out, err = rule.Check(cc)
	if err != nil {
		return Outcome{}, &RuleFault{RuleID: rule.ID, ResourceID: resID, Err: err}
	}
	switch out.Status {
	case models.StatusPass, models.StatusFail, models.StatusNotApplicable:
		return out, nil
	default:
		return Outcome{}, &RuleFault{
			RuleID:     rule.ID,
			ResourceID: resID,
			Err:        fmt.Errorf("check returned invalid status %q", out.Status),
		}
	}
}

func missingKeys(res evidence.Resource, keys []string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := res.Attr(k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// newFinding stamps rule metadata onto an outcome. Severity and category
// always come from the rule.
func newFinding(rule Rule, resourceID, region string, out Outcome, diagnostic string) models.Finding {
	return models.Finding{
		RuleID:       rule.ID,
		RuleVersion:  rule.Version,
		Title:        rule.Title,
		Category:     rule.Category,
		Severity:     rule.Severity,
		ResourceID:   resourceID,
		ResourceType: rule.ResourceType,
		Region:       region,
		Status:       out.Status,
		Message:      out.Message,
		Remediation:  rule.Remediation,
		Diagnostic:   diagnostic,
	}
}
