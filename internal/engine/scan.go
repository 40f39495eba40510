package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ksj/cloud-doctor/internal/aggregate"
	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
	"github.com/ksj/cloud-doctor/internal/store"
)

// reportNamespace seeds report ids derived from scan ids.
var reportNamespace = uuid.MustParse("5b0d7c3e-8f2a-4c61-9e47-1d2a6b3f8c90")

// ReportID returns the deterministic report id for a scan. A retried store
// of the same scan therefore hits the same id.
func ReportID(scanID string) string {
	return uuid.NewSHA1(reportNamespace, []byte(scanID)).String()
}

// RunScan runs one scan to completion and returns the stored report.
// Failures before the store succeeds return a *ScanIncompleteError.
func (e *Engine) RunScan(ctx context.Context, req ScanRequest) (*models.Report, error) {
	scan, col, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, scan, col, req)
}

// StartScan registers a scan and runs it in the background. The returned
// status is RUNNING; poll Scan for the outcome. The scan outlives ctx and
// stops only on its own timeout or Close.
func (e *Engine) StartScan(ctx context.Context, req ScanRequest) (models.Scan, error) {
	scan, col, err := e.prepare(req)
	if err != nil {
		return models.Scan{}, err
	}
	started := cloneScan(*scan)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.run(e.bg, scan, col, req); err != nil {
			e.logger.WarnContext(ctx, "background scan failed", "scan_id", scan.ID, "account", scan.AccountID, "error", err)
		}
	}()
	return started, nil
}

func (e *Engine) prepare(req ScanRequest) (*models.Scan, providers.Collector, error) {
	if req.AccountID == "" {
		return nil, nil, errors.New("scan request: account id is required")
	}
	source := req.Source
	if source == "" {
		source = e.defaultSource
	}
	col, ok := e.collectors[source]
	if !ok {
		return nil, nil, fmt.Errorf("source %q: %w", source, ErrUnknownSource)
	}
	scanID := uuid.NewString()
	if req.ScanID != "" {
		id, err := uuid.Parse(req.ScanID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidScanID, req.ScanID)
		}
		scanID = id.String()
	}
	scan, err := e.begin(scanID, req.AccountID, source)
	if err != nil {
		return nil, nil, err
	}
	return scan, col, nil
}

func (e *Engine) run(ctx context.Context, scan *models.Scan, col providers.Collector, req ScanRequest) (*models.Report, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := e.logger.With("scan_id", scan.ID, "account", scan.AccountID, "source", scan.Source)
	start := time.Now()
	logger.InfoContext(ctx, "scan started")

	report, warnings, err := e.execute(ctx, scan, col, req)
	e.end(scan, idOf(report), warnings, err)
	e.observe(report, err, time.Since(start))

	if err != nil {
		logger.ErrorContext(ctx, "scan incomplete", "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "scan completed",
		"report_id", report.ID,
		"findings", len(report.Findings),
		"overall", report.Scores.Overall,
		"warnings", len(report.Warnings),
	)
	return report, nil
}

func (e *Engine) execute(ctx context.Context, scan *models.Scan, col providers.Collector, req ScanRequest) (*models.Report, []string, error) {
	incomplete := func(stage Stage, err error) error {
		return &ScanIncompleteError{ScanID: scan.ID, Stage: stage, Err: err}
	}

	if req.ScanID != "" {
		prior, err := e.stored(ctx, scan)
		if err != nil {
			return nil, nil, incomplete(StagePersist, err)
		}
		if prior != nil {
			e.logger.InfoContext(ctx, "scan already stored", "scan_id", scan.ID, "report_id", prior.ID)
			e.publish(ctx, prior)
			return prior, prior.Warnings, nil
		}
	}

	ev, warnings, err := e.collect(ctx, col, scan.AccountID, req.Scope)
	if err != nil {
		return nil, warnings, incomplete(StageCollect, err)
	}
	e.dump(ctx, scan.ID, ev)

	findings, err := e.evaluator.Evaluate(ctx, ev, e.Rules())
	if err != nil {
		return nil, warnings, incomplete(StageEvaluate, err)
	}

	report := &models.Report{
		ID:        ReportID(scan.ID),
		AccountID: scan.AccountID,
		ScanID:    scan.ID,
		ScannedAt: scan.StartedAt.Truncate(time.Microsecond).UTC(),
		Source:    col.Name(),
		Findings:  findings,
		Scores:    aggregate.Aggregate(findings, e.weights),
		Warnings:  warnings,
	}
	if err := report.Seal(); err != nil {
		return nil, warnings, incomplete(StagePersist, err)
	}

	// Last cancellation point: once Store succeeds the scan is complete.
	if err := ctx.Err(); err != nil {
		return nil, warnings, incomplete(StagePersist, err)
	}
	if _, err := e.store.Store(ctx, report); err != nil {
		return nil, warnings, incomplete(StagePersist, err)
	}
	e.publish(ctx, report)
	return report, warnings, nil
}

// stored returns the report an earlier attempt of scan already stored, or
// nil when there is none.
func (e *Engine) stored(ctx context.Context, scan *models.Scan) (*models.Report, error) {
	r, err := e.store.Get(ctx, ReportID(scan.ID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.AccountID != scan.AccountID {
		return nil, fmt.Errorf("scan %s already stored for account %s", scan.ID, r.AccountID)
	}
	return r, nil
}

// publish announces a stored report. Failures are logged and counted only.
func (e *Engine) publish(ctx context.Context, report *models.Report) {
	if err := e.publisher.PublishReportStored(ctx, report); err != nil {
		e.logger.WarnContext(ctx, "publish report event failed", "report_id", report.ID, "error", err)
		if e.metrics != nil {
			e.metrics.EventPublishErrors.Inc()
		}
	}
}

// collect runs the collector and folds partial failures and unavailable
// resource types into sorted scan warnings.
func (e *Engine) collect(ctx context.Context, col providers.Collector, accountID string, scope providers.Scope) (*evidence.Evidence, []string, error) {
	ev, err := col.Collect(ctx, accountID, scope)

	var warnings []string
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		var ce *providers.CollectionError
		if !errors.As(err, &ce) || ce.Fatal() || ev == nil {
			return nil, nil, err
		}
		warnings = append(warnings, ce.Warnings...)
	}
	if ev == nil {
		return nil, nil, fmt.Errorf("collector %s returned no evidence", col.Name())
	}
	if ev.AccountID() != accountID {
		return nil, nil, &providers.CollectionError{
			Kind:   providers.ErrorCredentials,
			Source: col.Name(),
			Err:    fmt.Errorf("evidence is for account %s, not %s", ev.AccountID(), accountID),
		}
	}
	for _, t := range ev.UnavailableTypes() {
		reason, _ := ev.Unavailable(t)
		warnings = append(warnings, fmt.Sprintf("%s unavailable: %s", t, reason))
	}
	warnings = append(warnings, ev.Conflicts()...)
	slices.Sort(warnings)
	return ev, slices.Compact(warnings), nil
}

func (e *Engine) dump(ctx context.Context, scanID string, ev *evidence.Evidence) {
	if e.evidenceDir == "" {
		return
	}
	path, err := evidence.WriteDump(e.evidenceDir, scanID, ev)
	if err != nil {
		e.logger.WarnContext(ctx, "write evidence dump failed", "scan_id", scanID, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "evidence dump written", "scan_id", scanID, "path", path)
}

func (e *Engine) observe(report *models.Report, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	status := models.ScanCompleted
	if err != nil {
		status = models.ScanIncomplete
	}
	e.metrics.ScansTotal.WithLabelValues(string(status)).Inc()
	e.metrics.ScanDuration.Observe(elapsed.Seconds())
	if report == nil {
		return
	}
	e.metrics.ReportsStored.Inc()
	for _, f := range report.Findings {
		e.metrics.FindingsTotal.WithLabelValues(string(f.Status)).Inc()
		if f.Status == models.StatusError {
			e.metrics.RuleFaultsTotal.WithLabelValues(f.RuleID).Inc()
		}
	}
}

func idOf(r *models.Report) string {
	if r == nil {
		return ""
	}
	return r.ID
}
