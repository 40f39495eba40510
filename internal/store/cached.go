package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ksj/cloud-doctor/internal/models"
)

// DefaultCacheSize is the number of reports CachedStore keeps.
const DefaultCacheSize = 256

// CachedStore is a read-through LRU cache of reports by ID in front of
// another ReportStore. Reports never change once stored, so entries are
// never invalidated. Latest and List always reach the backing store.
type CachedStore struct {
	next  ReportStore
	cache *lru.Cache[string, *models.Report]
}

// NewCachedStore wraps next with an LRU of size entries.
func NewCachedStore(next ReportStore, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *models.Report](size)
	if err != nil {
		return nil, fmt.Errorf("create report cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// Store writes through to the backing store and caches the result.
func (c *CachedStore) Store(ctx context.Context, r *models.Report) (string, error) {
	id, err := c.next.Store(ctx, r)
	if err != nil {
		return "", err
	}
	c.cache.Add(id, cloneReport(r))
	return id, nil
}

// Get serves from the cache when possible.
func (c *CachedStore) Get(ctx context.Context, id string) (*models.Report, error) {
	if r, ok := c.cache.Get(id); ok {
		return cloneReport(r), nil
	}
	r, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, cloneReport(r))
	return r, nil
}

// Latest resolves the latest report from the backing store.
func (c *CachedStore) Latest(ctx context.Context, accountID string) (*models.Report, error) {
	r, err := c.next.Latest(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(r.ID, cloneReport(r))
	return r, nil
}

// List delegates to the backing store.
func (c *CachedStore) List(ctx context.Context, accountID string, page Page) ([]models.ReportSummary, error) {
	return c.next.List(ctx, accountID, page)
}

// Ping delegates to the backing store when it supports health checks.
func (c *CachedStore) Ping(ctx context.Context) error {
	if p, ok := c.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Len returns the number of cached reports.
func (c *CachedStore) Len() int { return c.cache.Len() }
