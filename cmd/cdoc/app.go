package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/ksj/cloud-doctor/internal/config"
	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/events"
	"github.com/ksj/cloud-doctor/internal/logging"
	"github.com/ksj/cloud-doctor/internal/metrics"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/policy"
	"github.com/ksj/cloud-doctor/internal/providers"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
	awssecurity "github.com/ksj/cloud-doctor/internal/providers/aws/security"
	"github.com/ksj/cloud-doctor/internal/providers/prowler"
	"github.com/ksj/cloud-doctor/internal/providers/snapshot"
	"github.com/ksj/cloud-doctor/internal/rulepacks"
	"github.com/ksj/cloud-doctor/internal/store"
)

// app carries the state shared by every command: configuration, logger and
// the lazily built AWS provider.
type app struct {
	v          *viper.Viper
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger

	policyLoaded bool
	policy       *policy.PolicyConfig

	awsProvider common.AWSClientProvider

	// collectors replaces the production collectors in tests.
	collectors []providers.Collector
}

func newApp() *app {
	return &app{v: config.New()}
}

// setup loads the config file and installs the logger. It runs once.
func (a *app) setup() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.Init(cfg.Log.Level, cfg.Log.Format, a.verbose)
	return nil
}

// pinger is implemented by stores that can check their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// openStore returns the configured report store wrapped in the read cache,
// and a func releasing it.
func (a *app) openStore(ctx context.Context) (store.ReportStore, func(), error) {
	var (
		base    store.ReportStore
		closeFn = func() {}
	)
	switch a.cfg.Store.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, a.cfg.Store.DSN, a.logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate report store: %w", err)
		}
		base = pg
		closeFn = func() {
			if err := pg.Close(); err != nil {
				a.logger.Warn("close report store", "error", err)
			}
		}
	default:
		base = store.NewMemoryStore()
	}

	if a.cfg.Store.CacheSize > 0 {
		cached, err := store.NewCachedStore(base, a.cfg.Store.CacheSize)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return cached, closeFn, nil
	}
	return base, closeFn, nil
}

// loadPolicy reads the policy file once and validates it against the
// built-in catalogue. A missing default file yields a nil policy.
func (a *app) loadPolicy() (*policy.PolicyConfig, error) {
	if a.policyLoaded {
		return a.policy, nil
	}
	cfg, err := policy.LoadOptional(a.cfg.Scan.Policy)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if cfg != nil {
		if errs := policy.Validate(cfg, rulepacks.NewRegistry().IDs()); len(errs) > 0 {
			return nil, fmt.Errorf("invalid policy: %w", errors.Join(errs...))
		}
	}
	a.policy, a.policyLoaded = cfg, true
	return cfg, nil
}

func (a *app) provider() common.AWSClientProvider {
	if a.awsProvider == nil {
		burst := int(a.cfg.AWS.RateLimit)
		if burst < 1 {
			burst = 1
		}
		a.awsProvider = common.NewDefaultAWSClientProvider().
			WithDefaultRegion(a.cfg.AWS.Region).
			WithRateLimit(rate.NewLimiter(rate.Limit(a.cfg.AWS.RateLimit), burst))
	}
	return a.awsProvider
}

func (a *app) buildCollectors() ([]providers.Collector, error) {
	if a.collectors != nil {
		return a.collectors, nil
	}
	snap, err := snapshot.NewCollector()
	if err != nil {
		return nil, err
	}
	return []providers.Collector{
		awssecurity.NewCollector(a.provider(), awssecurity.Options{
			Profile:     a.cfg.AWS.Profile,
			RoleARN:     a.cfg.AWS.RoleARN,
			ExternalID:  a.cfg.AWS.ExternalID,
			Concurrency: a.cfg.AWS.Concurrency,
			Logger:      a.logger,
		}),
		prowler.NewCollector(a.logger),
		snap,
	}, nil
}

// scope builds a collection scope. Without explicit regions it falls back to
// aws.regions.
func (a *app) scope(regions, resourceTypes []string, input string) providers.Scope {
	if len(regions) == 0 {
		regions = slices.Clone(a.cfg.AWS.Regions)
	}
	sc := providers.Scope{Regions: regions, Path: input}
	for _, t := range resourceTypes {
		sc.ResourceTypes = append(sc.ResourceTypes, models.ResourceType(t))
	}
	return sc
}

// resolveAccount returns the account the configured AWS credentials (or
// assumed role) belong to.
func (a *app) resolveAccount(ctx context.Context) (string, error) {
	pc, err := a.provider().LoadProfile(ctx, a.cfg.AWS.Profile)
	if err != nil {
		return "", err
	}
	if a.cfg.AWS.RoleARN != "" {
		pc, err = a.provider().AssumeRole(ctx, pc, a.cfg.AWS.RoleARN, a.cfg.AWS.ExternalID)
		if err != nil {
			return "", err
		}
	}
	return pc.AccountID, nil
}

func (a *app) publisher() (events.Publisher, error) {
	if a.cfg.Events.NATSURL == "" {
		return events.NopPublisher{}, nil
	}
	return events.Connect(a.cfg.Events.NATSURL, a.cfg.Events.Subject, "cdoc", a.logger)
}

func (a *app) newEngine(st store.ReportStore, pub events.Publisher, m *metrics.Metrics) (*engine.Engine, error) {
	pol, err := a.loadPolicy()
	if err != nil {
		return nil, err
	}
	cols, err := a.buildCollectors()
	if err != nil {
		return nil, err
	}
	def := ""
	if a.collectors == nil {
		def = awssecurity.Name
	}
	return engine.New(engine.Options{
		Collectors:    cols,
		DefaultSource: def,
		Registry:      rulepacks.NewRegistry(),
		Policy:        pol,
		Store:         st,
		Publisher:     pub,
		Metrics:       m,
		Logger:        a.logger,
		Workers:       a.cfg.Scan.Workers,
		Timeout:       a.cfg.Scan.Timeout,
		EvidenceDir:   a.cfg.Scan.EvidenceDir,
	})
}

// writeFile writes data to path, creating or overwriting it.
func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	return nil
}
