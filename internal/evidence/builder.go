package evidence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ksj/cloud-doctor/internal/models"
)

// Builder accumulates resources during collection. It is safe for concurrent
// use so per-region collectors can write into one builder.
type Builder struct {
	mu          sync.Mutex
	accountID   string
	collectedAt time.Time
	source      string
	resources   map[string]Resource
	unavailable map[models.ResourceType]string
	conflicts   map[string]string
}

// NewBuilder starts an empty snapshot for accountID.
func NewBuilder(accountID string, collectedAt time.Time) *Builder {
	return &Builder{
		accountID:   accountID,
		collectedAt: collectedAt.UTC(),
		resources:   make(map[string]Resource),
		unavailable: make(map[models.ResourceType]string),
		conflicts:   make(map[string]string),
	}
}

// WithSource records which collector produced the snapshot.
func (b *Builder) WithSource(source string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = source
	return b
}

// Add inserts r. When a resource with the same id already exists its
// attributes are merged, with r's values taking precedence. The first
// resource type recorded for an id is kept; a differing type is recorded as
// a conflict and reported by Evidence.Conflicts.
func (b *Builder) Add(r Resource) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.resources[r.id]
	if !ok {
		b.resources[r.id] = NewResource(r.id, r.typ, r.region, r.attrs)
		return b
	}
	merged := make(map[string]Value, len(existing.attrs)+len(r.attrs))
	for k, v := range existing.attrs {
		merged[k] = v
	}
	for k, v := range r.attrs {
		merged[k] = v
	}
	if r.typ != existing.typ {
		if _, seen := b.conflicts[r.id]; !seen {
			b.conflicts[r.id] = fmt.Sprintf("resource %s collected as both %s and %s; kept %s", r.id, existing.typ, r.typ, existing.typ)
		}
	}
	region := existing.region
	if region == "" {
		region = r.region
	}
	b.resources[r.id] = Resource{id: r.id, typ: existing.typ, region: region, attrs: merged}
	return b
}

// Set writes a single attribute, creating the resource if needed.
func (b *Builder) Set(id string, typ models.ResourceType, region, key string, v Value) *Builder {
	return b.Add(NewResource(id, typ, region, map[string]Value{key: v}))
}

// MarkUnavailable flags resource type t as not collectable. The first reason
// recorded for a type is kept.
func (b *Builder) MarkUnavailable(t models.ResourceType, reason string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.unavailable[t]; !ok {
		b.unavailable[t] = reason
	}
	return b
}

// Build freezes the snapshot. Later writes to the builder do not reach the
// returned Evidence.
func (b *Builder) Build() *Evidence {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := &Evidence{
		accountID:   b.accountID,
		collectedAt: b.collectedAt,
		source:      b.source,
		resources:   make(map[string]Resource, len(b.resources)),
		byType:      make(map[models.ResourceType][]string),
		unavailable: make(map[models.ResourceType]string, len(b.unavailable)),
	}
	for id, r := range b.resources {
		e.resources[id] = r
		e.byType[r.typ] = append(e.byType[r.typ], id)
	}
	for t := range e.byType {
		sort.Strings(e.byType[t])
	}
	for t, reason := range b.unavailable {
		e.unavailable[t] = reason
	}
	for _, msg := range b.conflicts {
		e.conflicts = append(e.conflicts, msg)
	}
	sort.Strings(e.conflicts)
	return e
}
