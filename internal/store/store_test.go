package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksj/cloud-doctor/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeReport(account string, n int) *models.Report {
	return &models.Report{
		ID:        uuid.NewString(),
		AccountID: account,
		ScanID:    uuid.NewString(),
		ScannedAt: baseTime.Add(time.Duration(n) * time.Hour),
		Source:    "file",
		Findings: []models.Finding{
			{RuleID: "S3_PUBLIC_READ", RuleVersion: 1, Title: "t", Category: models.CategoryStorage,
				Severity: models.SeverityHigh, ResourceID: "bucket1", ResourceType: models.ResourceS3Bucket,
				Status: models.StatusFail, Message: fmt.Sprintf("scan %d", n)},
			{RuleID: "ROOT_ACCOUNT_MFA_DISABLED", RuleVersion: 1, Title: "t", Category: models.CategoryAccount,
				Severity: models.SeverityCritical, ResourceType: models.ResourceAccount,
				Status: models.StatusNotApplicable},
		},
		Scores: models.Scores{
			Categories: []models.CategoryScore{{Category: models.CategoryStorage, Weight: 1, Scored: true, Fail: 1}},
			Scored:     true,
		},
	}
}

// storeContract exercises behaviour every ReportStore must share.
func storeContract(t *testing.T, newStore func(t *testing.T) ReportStore) {
	ctx := context.Background()

	t.Run("store and get", func(t *testing.T) {
		s := newStore(t)
		r := makeReport("acct-"+uuid.NewString(), 0)
		id, err := s.Store(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, r.ID, id)
		assert.NotEmpty(t, r.Digest)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, r.Digest, got.Digest)
		assert.Equal(t, r.Findings, got.Findings)
		assert.True(t, r.ScannedAt.Equal(got.ScannedAt))

		recomputed, err := got.ComputeDigest()
		require.NoError(t, err)
		assert.Equal(t, r.Digest, recomputed, "stored report content must round-trip")
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("immutable", func(t *testing.T) {
		s := newStore(t)
		r := makeReport("acct-"+uuid.NewString(), 0)
		_, err := s.Store(ctx, r)
		require.NoError(t, err)

		same := *r
		_, err = s.Store(ctx, &same)
		assert.NoError(t, err, "re-storing identical content is idempotent")

		changed := *r
		changed.Findings = append([]models.Finding(nil), r.Findings...)
		changed.Findings[0].Status = models.StatusPass
		changed.Digest = ""
		_, err = s.Store(ctx, &changed)
		assert.ErrorIs(t, err, ErrImmutable)

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFail, got.Findings[0].Status)
	})

	t.Run("latest ignores older reports", func(t *testing.T) {
		s := newStore(t)
		acct := "acct-" + uuid.NewString()
		_, err := s.Latest(ctx, acct)
		assert.ErrorIs(t, err, ErrNotFound)

		newer := makeReport(acct, 5)
		older := makeReport(acct, 1)
		_, err = s.Store(ctx, newer)
		require.NoError(t, err)
		_, err = s.Store(ctx, older)
		require.NoError(t, err)

		latest, err := s.Latest(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
	})

	t.Run("latest agrees with list on equal scan times", func(t *testing.T) {
		for _, lowFirst := range []bool{true, false} {
			s := newStore(t)
			acct := "acct-" + uuid.NewString()
			a, b := makeReport(acct, 3), makeReport(acct, 3)
			low, high := a, b
			if high.ID < low.ID {
				low, high = high, low
			}
			order := []*models.Report{high, low}
			if lowFirst {
				order = []*models.Report{low, high}
			}
			for _, r := range order {
				_, err := s.Store(ctx, r)
				require.NoError(t, err)
			}

			latest, err := s.Latest(ctx, acct)
			require.NoError(t, err)
			list, err := s.List(ctx, acct, Page{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, list[0].ID, latest.ID, "lowFirst=%v", lowFirst)
			assert.Equal(t, low.ID, latest.ID, "lowFirst=%v", lowFirst)
		}
	})

	t.Run("list newest first with paging", func(t *testing.T) {
		s := newStore(t)
		acct := "acct-" + uuid.NewString()
		var ids []string
		for i := 0; i < 5; i++ {
			r := makeReport(acct, i)
			_, err := s.Store(ctx, r)
			require.NoError(t, err)
			ids = append(ids, r.ID)
		}
		_, err := s.Store(ctx, makeReport("other-"+uuid.NewString(), 9))
		require.NoError(t, err)

		all, err := s.List(ctx, acct, Page{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, ids[4], all[0].ID)
		assert.Equal(t, ids[0], all[4].ID)
		assert.Equal(t, 1, all[0].Counts.Fail)
		assert.Equal(t, 1, all[0].Counts.NotApplicable)

		page, err := s.List(ctx, acct, Page{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[3], page[0].ID)
		assert.Equal(t, ids[2], page[1].ID)

		past, err := s.List(ctx, acct, Page{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, past)

		_, err = s.List(ctx, acct, Page{Limit: -1})
		assert.Error(t, err)
	})

	t.Run("returned reports are copies", func(t *testing.T) {
		s := newStore(t)
		r := makeReport("acct-"+uuid.NewString(), 0)
		_, err := s.Store(ctx, r)
		require.NoError(t, err)

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		got.Findings[0].Status = models.StatusPass

		again, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFail, again.Findings[0].Status)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(*testing.T) ReportStore { return NewMemoryStore() })
}

func TestCachedStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ReportStore {
		c, err := NewCachedStore(NewMemoryStore(), 8)
		require.NoError(t, err)
		return c
	})
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	c, err := NewCachedStore(backing, 2)
	require.NoError(t, err)

	r := makeReport("acct", 0)
	_, err = c.Store(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// Remove from the backing store behind the cache's back.
	backing.mu.Lock()
	delete(backing.reports, r.ID)
	backing.mu.Unlock()

	got, err := c.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Digest, got.Digest)
}

func TestPage_Normalize(t *testing.T) {
	p, err := Page{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultPageLimit, p.Limit)

	p, err = Page{Limit: 1000}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, p.Limit)

	_, err = Page{Offset: -1}.Normalize()
	assert.Error(t, err)
}
