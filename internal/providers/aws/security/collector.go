// Package awssecurity collects security configuration evidence from a live
// AWS account.
//
// Global services (S3, IAM) are read once from the profile's home region.
// Regional services are read per region with bounded concurrency. A service
// that denies access marks its resource types unavailable; the scan goes on.
package awssecurity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
	"github.com/ksj/cloud-doctor/internal/providers/aws/common"
)

// Name is the evidence source recorded on snapshots from this collector.
const Name = "aws"

// DefaultConcurrency bounds how many regions are collected at once.
const DefaultConcurrency = 4

// Options configures a Collector.
type Options struct {
	// Profile selects the shared-config profile. Empty uses the default chain.
	Profile string

	// RoleARN, when set, is assumed on top of Profile before collecting.
	RoleARN    string
	ExternalID string

	// Concurrency bounds parallel region collection.
	Concurrency int

	Logger *slog.Logger
}

// Collector is the AWS implementation of providers.Collector.
type Collector struct {
	provider common.AWSClientProvider
	factory  secClientFactory
	opts     Options
	now      func() time.Time
}

// NewCollector returns a Collector wired to production AWS SDK clients.
func NewCollector(provider common.AWSClientProvider, opts Options) *Collector {
	return newCollectorWithFactory(provider, opts, newDefaultSecClients)
}

func newCollectorWithFactory(provider common.AWSClientProvider, opts Options, f secClientFactory) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Collector{provider: provider, factory: f, opts: opts, now: time.Now}
}

// Name implements providers.Collector.
func (c *Collector) Name() string { return Name }

// Collect gathers evidence for accountID. An empty accountID accepts
// whatever account the credentials resolve to.
func (c *Collector) Collect(ctx context.Context, accountID string, scope providers.Scope) (*evidence.Evidence, error) {
	pc, err := c.provider.LoadProfile(ctx, c.opts.Profile)
	if err != nil {
		return nil, classify(err)
	}
	if c.opts.RoleARN != "" {
		pc, err = c.provider.AssumeRole(ctx, pc, c.opts.RoleARN, c.opts.ExternalID)
		if err != nil {
			return nil, classify(err)
		}
	}
	if accountID != "" && pc.AccountID != accountID {
		return nil, &providers.CollectionError{
			Kind:   providers.ErrorCredentials,
			Source: Name,
			Err:    fmt.Errorf("credentials resolve to account %s, want %s", pc.AccountID, accountID),
		}
	}

	regions := scope.Regions
	if len(regions) == 0 {
		regions, err = c.provider.GetActiveRegions(ctx, pc)
		if err != nil {
			return nil, classify(err)
		}
	}

	run := &collection{
		builder: evidence.NewBuilder(pc.AccountID, c.now()).WithSource(Name),
		account: pc.AccountID,
		scope:   scope,
		now:     c.now,
		logger:  c.opts.Logger.With("account", pc.AccountID),
	}
	run.logger.Info("collecting evidence", "regions", len(regions), "profile", pc.ProfileName)

	global := c.factory(c.provider.ConfigForRegion(pc, pc.Region))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	g.Go(func() error { return run.collectS3(gctx, global) })
	g.Go(func() error { return run.collectIAM(gctx, global) })
	for _, region := range regions {
		regional := c.factory(c.provider.ConfigForRegion(pc, region))
		g.Go(func() error { return run.collectRegion(gctx, regional, region) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	run.finish()

	ev := run.builder.Build()
	if ev.Len() == 0 && run.throttled > 0 {
		return nil, &providers.CollectionError{
			Kind:     providers.ErrorRateLimited,
			Source:   Name,
			Warnings: run.sortedWarnings(),
			Err:      errors.New("every service call was throttled"),
		}
	}
	return ev, providers.Partial(Name, run.sortedWarnings())
}

// collection is the state of one Collect call shared by its goroutines.
type collection struct {
	builder *evidence.Builder
	account string
	scope   providers.Scope
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	warnings  []string
	throttled int

	trailRegions  int
	trailFailures int
	multiRegion   bool
}

// record turns a service error into a warning and an unavailable marker for
// the affected types. Errors that make the whole scan meaningless are
// returned so the errgroup cancels the remaining work.
func (r *collection) record(service, region string, err error, types ...models.ResourceType) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if common.IsCredentialError(err) || common.IsUnreachable(err) {
		return classify(err)
	}

	where := service
	if region != "" {
		where = service + " (" + region + ")"
	}
	var reason string
	switch {
	case common.IsAccessDenied(err):
		reason = fmt.Sprintf("%s: access denied (%s)", where, common.ErrorCode(err))
	case common.IsThrottled(err):
		reason = fmt.Sprintf("%s: rate limited (%s)", where, common.ErrorCode(err))
	default:
		reason = fmt.Sprintf("%s: %v", where, err)
	}

	r.mu.Lock()
	r.warnings = append(r.warnings, reason)
	if common.IsThrottled(err) {
		r.throttled++
	}
	r.mu.Unlock()

	for _, t := range types {
		r.builder.MarkUnavailable(t, reason)
	}
	r.logger.Warn("collection degraded", "service", service, "region", region, "error", err)
	return nil
}

// wants reports whether any of types is in scope.
func (r *collection) wants(types ...models.ResourceType) bool {
	for _, t := range types {
		if r.scope.Wants(t) {
			return true
		}
	}
	return false
}

// collectRegion runs every regional collector for one region sequentially.
func (r *collection) collectRegion(ctx context.Context, c *secClients, region string) error {
	steps := []func(context.Context, *secClients, string) error{
		r.collectEC2,
		r.collectCloudTrail,
		r.collectGuardDuty,
		r.collectConfig,
		r.collectCloudWatch,
		r.collectRDS,
		r.collectELBv2,
		r.collectEKS,
	}
	for _, step := range steps {
		if err := step(ctx, c, region); err != nil {
			return err
		}
	}
	return nil
}

// finish writes attributes derived from more than one region. A missing
// multi-region trail is only asserted when every region answered.
func (r *collection) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.wants(models.ResourceAccount) {
		return
	}
	if r.multiRegion || (r.trailRegions > 0 && r.trailFailures == 0) {
		r.builder.Set(evidence.AccountResourceID(r.account), models.ResourceAccount, "",
			evidence.AttrMultiRegionTrail, evidence.Bool(r.multiRegion))
	}
}

func (r *collection) sortedWarnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.warnings...)
	sort.Strings(out)
	return out
}

// classify maps a fatal error onto a CollectionError kind.
func classify(err error) error {
	var ce *providers.CollectionError
	if errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := providers.ErrorCredentials
	switch {
	case common.IsUnreachable(err):
		kind = providers.ErrorUnreachable
	case common.IsThrottled(err):
		kind = providers.ErrorRateLimited
	}
	return &providers.CollectionError{Kind: kind, Source: Name, Err: err}
}
