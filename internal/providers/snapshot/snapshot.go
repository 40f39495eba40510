// Package snapshot replays evidence from a snapshot file, for offline scans
// and for re-running rules against previously captured state.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksj/cloud-doctor/internal/evidence"
	"github.com/ksj/cloud-doctor/internal/providers"
)

// Name is the evidence source recorded for snapshot scans.
const Name = "file"

// Collector loads evidence from Scope.Path.
type Collector struct {
	validator *evidence.SnapshotValidator
}

// NewCollector compiles the snapshot schema once for all later loads.
func NewCollector() (*Collector, error) {
	v, err := evidence.NewSnapshotValidator()
	if err != nil {
		return nil, err
	}
	return &Collector{validator: v}, nil
}

// Name implements providers.Collector.
func (c *Collector) Name() string { return Name }

// Collect validates and loads the snapshot. Resources outside
// scope.ResourceTypes are dropped; scope.Regions filters regional resources.
func (c *Collector) Collect(ctx context.Context, accountID string, scope providers.Scope) (*evidence.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scope.Path == "" {
		return nil, &providers.CollectionError{
			Kind:   providers.ErrorUnreachable,
			Source: Name,
			Err:    errors.New("no snapshot path given"),
		}
	}
	ev, err := c.validator.LoadFile(scope.Path)
	if err != nil {
		return nil, &providers.CollectionError{Kind: providers.ErrorUnreachable, Source: Name, Err: err}
	}
	if accountID != "" && ev.AccountID() != accountID {
		return nil, &providers.CollectionError{
			Kind:   providers.ErrorCredentials,
			Source: Name,
			Err:    fmt.Errorf("snapshot %s belongs to account %s, want %s", scope.Path, ev.AccountID(), accountID),
		}
	}
	if len(scope.ResourceTypes) == 0 && len(scope.Regions) == 0 {
		return ev, nil
	}
	return filter(ev, scope), nil
}

func filter(ev *evidence.Evidence, scope providers.Scope) *evidence.Evidence {
	regions := make(map[string]bool, len(scope.Regions))
	for _, r := range scope.Regions {
		regions[r] = true
	}
	snap := ev.Snapshot()
	kept := snap.Resources[:0]
	for _, r := range snap.Resources {
		if !scope.Wants(r.Type()) {
			continue
		}
		if len(regions) > 0 && r.Region() != "" && !regions[r.Region()] {
			continue
		}
		kept = append(kept, r)
	}
	snap.Resources = kept
	return evidence.FromSnapshot(snap)
}
