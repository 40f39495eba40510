package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ksj/cloud-doctor/internal/aggregate"
	"github.com/ksj/cloud-doctor/internal/events"
	"github.com/ksj/cloud-doctor/internal/metrics"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/policy"
	"github.com/ksj/cloud-doctor/internal/providers"
	"github.com/ksj/cloud-doctor/internal/rules"
	"github.com/ksj/cloud-doctor/internal/store"
)

// Stage names the pipeline step a scan stopped at.
type Stage string

const (
	StageCollect  Stage = "collect"
	StageEvaluate Stage = "evaluate"
	StagePersist  Stage = "persist"
)

// DefaultScanHistory is the number of finished scans whose status stays
// queryable.
const DefaultScanHistory = 1024

var (
	// ErrScanInProgress is returned when the account already has a scan running.
	ErrScanInProgress = errors.New("scan already in progress for account")
	// ErrUnknownSource is returned when no collector is registered under the
	// requested source name.
	ErrUnknownSource = errors.New("unknown evidence source")
	// ErrScanNotFound is returned for scan ids that were never started or have
	// aged out of the history.
	ErrScanNotFound = errors.New("scan not found")
	// ErrInvalidScanID is returned when a caller-supplied scan id is not a UUID.
	ErrInvalidScanID = errors.New("scan id must be a UUID")
)

// ScanIncompleteError reports a scan that stopped before its report was
// stored. Nothing is persisted for an incomplete scan.
type ScanIncompleteError struct {
	ScanID string
	Stage  Stage
	Err    error
}

func (e *ScanIncompleteError) Error() string {
	return fmt.Sprintf("scan %s incomplete at %s: %v", e.ScanID, e.Stage, e.Err)
}

func (e *ScanIncompleteError) Unwrap() error { return e.Err }

// ScanRequest is the sole input to RunScan and StartScan.
type ScanRequest struct {
	AccountID string

	// Scope limits collection; the zero value collects everything.
	Scope providers.Scope

	// Source selects the collector by name. Empty uses the default source.
	Source string

	// ScanID makes the request idempotent. Empty generates a fresh id. When a
	// report for ScanID is already stored, the scan returns it instead of
	// collecting again.
	ScanID string
}

// Options wires an Engine. Registry, Store and at least one collector are
// required; everything else has a usable default.
type Options struct {
	Collectors    []providers.Collector
	DefaultSource string
	Registry      rules.RuleRegistry
	Policy        *policy.PolicyConfig
	Store         store.ReportStore
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	// Workers bounds parallel rule evaluation; 0 uses GOMAXPROCS.
	Workers int

	// Timeout bounds a single scan; 0 means no limit beyond the caller's.
	Timeout time.Duration

	// EvidenceDir, when set, receives a zstd evidence dump per scan.
	EvidenceDir string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine runs the scan pipeline: collect, evaluate, aggregate, store and
// publish. At most one scan per account is in flight at a time.
type Engine struct {
	collectors    map[string]providers.Collector
	defaultSource string
	registry      rules.RuleRegistry
	policy        *policy.PolicyConfig
	weights       aggregate.Weights
	evaluator     *rules.Evaluator
	store         store.ReportStore
	publisher     events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	timeout       time.Duration
	evidenceDir   string
	now           func() time.Time

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	accounts map[string]string
	running  map[string]*models.Scan
	history  *lru.Cache[string, models.Scan]
}

// New constructs an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("engine: rule registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: report store is required")
	}
	if len(opts.Collectors) == 0 {
		return nil, errors.New("engine: at least one collector is required")
	}

	collectors := make(map[string]providers.Collector, len(opts.Collectors))
	for _, c := range opts.Collectors {
		if _, dup := collectors[c.Name()]; dup {
			return nil, fmt.Errorf("engine: duplicate collector %q", c.Name())
		}
		collectors[c.Name()] = c
	}
	def := opts.DefaultSource
	if def == "" {
		def = opts.Collectors[0].Name()
	}
	if _, ok := collectors[def]; !ok {
		return nil, fmt.Errorf("engine: default source %q: %w", def, ErrUnknownSource)
	}

	weights := policy.Weights(opts.Policy)
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("engine: scoring weights: %w", err)
	}

	history, err := lru.New[string, models.Scan](DefaultScanHistory)
	if err != nil {
		return nil, fmt.Errorf("engine: scan history: %w", err)
	}

	e := &Engine{
		collectors:    collectors,
		defaultSource: def,
		registry:      opts.Registry,
		policy:        opts.Policy,
		weights:       weights,
		evaluator:     rules.NewEvaluator(opts.Workers),
		store:         opts.Store,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		timeout:       opts.Timeout,
		evidenceDir:   opts.EvidenceDir,
		now:           opts.Now,
		accounts:      make(map[string]string),
		running:       make(map[string]*models.Scan),
		history:       history,
	}
	if e.publisher == nil {
		e.publisher = events.NopPublisher{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.bg, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// Rules returns the rules a scan evaluates under the loaded policy, in
// registration order.
func (e *Engine) Rules() []rules.Rule {
	return policy.ApplyPolicy(e.registry.All(), e.policy)
}

// Weights returns the scoring weights in effect.
func (e *Engine) Weights() aggregate.Weights { return e.weights }

// Sources returns the registered collector names, sorted.
func (e *Engine) Sources() []string {
	names := make([]string, 0, len(e.collectors))
	for n := range e.collectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scan returns the status of a running or recently finished scan.
func (e *Engine) Scan(id string) (models.Scan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.running[id]; ok {
		return cloneScan(*s), nil
	}
	if s, ok := e.history.Get(id); ok {
		return cloneScan(s), nil
	}
	return models.Scan{}, fmt.Errorf("scan %s: %w", id, ErrScanNotFound)
}

// Scans returns the ids of in-flight scans, sorted.
func (e *Engine) Scans() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels scans started with StartScan and waits for them to stop.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// begin registers a new scan, failing when the account is busy.
func (e *Engine) begin(scanID, accountID, source string) (*models.Scan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if running, busy := e.accounts[accountID]; busy {
		return nil, fmt.Errorf("account %s (scan %s): %w", accountID, running, ErrScanInProgress)
	}
	if _, busy := e.running[scanID]; busy {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrScanInProgress)
	}
	s := &models.Scan{
		ID:        scanID,
		AccountID: accountID,
		Source:    source,
		Status:    models.ScanRunning,
		StartedAt: e.now().UTC(),
	}
	e.accounts[accountID] = scanID
	e.running[scanID] = s
	return s, nil
}

// end moves a scan from the running set into the history.
func (e *Engine) end(s *models.Scan, reportID string, warnings []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.FinishedAt = e.now().UTC()
	s.Warnings = warnings
	if err != nil {
		s.Status = models.ScanIncomplete
		s.Error = err.Error()
	} else {
		s.Status = models.ScanCompleted
		s.ReportID = reportID
	}
	delete(e.accounts, s.AccountID)
	delete(e.running, s.ID)
	e.history.Add(s.ID, *s)
}

func cloneScan(s models.Scan) models.Scan {
	if s.Warnings != nil {
		s.Warnings = append([]string(nil), s.Warnings...)
	}
	return s
}
