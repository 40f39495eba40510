package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ksj/cloud-doctor/internal/models"
)

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	reports   map[string]*models.Report
	byAccount map[string][]string
	latest    map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:   make(map[string]*models.Report),
		byAccount: make(map[string][]string),
		latest:    make(map[string]string),
	}
}

// Store saves r and advances the account's latest pointer when r sorts ahead
// of the current latest report in history order.
func (s *MemoryStore) Store(_ context.Context, r *models.Report) (string, error) {
	if err := prepare(r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.reports[r.ID]; ok {
		if existing.Digest == r.Digest {
			return r.ID, nil
		}
		return "", fmt.Errorf("store report %s: %w", r.ID, ErrImmutable)
	}

	s.reports[r.ID] = cloneReport(r)
	s.byAccount[r.AccountID] = append(s.byAccount[r.AccountID], r.ID)

	cur, ok := s.latest[r.AccountID]
	if !ok || ahead(r.ScannedAt, r.ID, s.reports[cur].ScannedAt, cur) {
		s.latest[r.AccountID] = r.ID
	}
	return r.ID, nil
}

// Get returns the report with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("get report %s: %w", id, ErrNotFound)
	}
	return cloneReport(r), nil
}

// Latest returns the most recent report for accountID.
func (s *MemoryStore) Latest(_ context.Context, accountID string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[accountID]
	if !ok {
		return nil, fmt.Errorf("latest report for %s: %w", accountID, ErrNotFound)
	}
	return cloneReport(s.reports[id]), nil
}

// List returns report summaries for accountID, newest first.
func (s *MemoryStore) List(_ context.Context, accountID string, page Page) ([]models.ReportSummary, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := s.byAccount[accountID]
	summaries := make([]models.ReportSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, s.reports[id].Summary())
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return ahead(summaries[i].ScannedAt, summaries[i].ID, summaries[j].ScannedAt, summaries[j].ID)
	})
	if page.Offset >= len(summaries) {
		return []models.ReportSummary{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(summaries) {
		end = len(summaries)
	}
	return summaries[page.Offset:end], nil
}

// ahead reports whether report a sorts before report b in history order:
// newest first, equal scan times by ascending ID. Latest is the head of
// that order.
func ahead(aAt time.Time, aID string, bAt time.Time, bID string) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return aID < bID
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
