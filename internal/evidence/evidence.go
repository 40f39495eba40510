// Package evidence holds the immutable configuration snapshot that rules are
// evaluated against. Collectors build an Evidence with a Builder; once Build
// returns, nothing in the snapshot can be mutated.
package evidence

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ksj/cloud-doctor/internal/models"
)

// Resource is one collected resource and its attributes.
type Resource struct {
	id     string
	typ    models.ResourceType
	region string
	attrs  map[string]Value
}

// NewResource returns a Resource holding a copy of attrs.
func NewResource(id string, typ models.ResourceType, region string, attrs map[string]Value) Resource {
	cp := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return Resource{id: id, typ: typ, region: region, attrs: cp}
}

func (r Resource) ID() string                { return r.id }
func (r Resource) Type() models.ResourceType { return r.typ }
func (r Resource) Region() string            { return r.region }

// Attr returns the named attribute.
func (r Resource) Attr(key string) (Value, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Has reports whether every key is present.
func (r Resource) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := r.attrs[k]; !ok {
			return false
		}
	}
	return true
}

// Keys returns the attribute names in sorted order.
func (r Resource) Keys() []string {
	keys := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type resourceJSON struct {
	ID         string              `json:"id"`
	Type       models.ResourceType `json:"type"`
	Region     string              `json:"region,omitempty"`
	Attributes map[string]Value    `json:"attributes"`
}

func (r Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(resourceJSON{ID: r.id, Type: r.typ, Region: r.region, Attributes: r.attrs})
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var aux resourceJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = NewResource(aux.ID, aux.Type, aux.Region, aux.Attributes)
	return nil
}

// Evidence is the read-only snapshot for one scan.
type Evidence struct {
	accountID   string
	collectedAt time.Time
	source      string
	resources   map[string]Resource
	byType      map[models.ResourceType][]string
	unavailable map[models.ResourceType]string
	conflicts   []string
}

func (e *Evidence) AccountID() string      { return e.accountID }
func (e *Evidence) CollectedAt() time.Time { return e.collectedAt }
func (e *Evidence) Source() string         { return e.source }
func (e *Evidence) Len() int               { return len(e.resources) }

// Resource looks up a resource by id.
func (e *Evidence) Resource(id string) (Resource, bool) {
	r, ok := e.resources[id]
	return r, ok
}

// OfType returns the resources of type t ordered by id.
func (e *Evidence) OfType(t models.ResourceType) []Resource {
	ids := e.byType[t]
	out := make([]Resource, len(ids))
	for i, id := range ids {
		out[i] = e.resources[id]
	}
	return out
}

// Unavailable reports whether resource type t could not be collected and why.
func (e *Evidence) Unavailable(t models.ResourceType) (string, bool) {
	reason, ok := e.unavailable[t]
	return reason, ok
}

// UnavailableTypes returns the unavailable resource types in sorted order.
func (e *Evidence) UnavailableTypes() []models.ResourceType {
	out := make([]models.ResourceType, 0, len(e.unavailable))
	for t := range e.unavailable {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Conflicts describes resource ids that were added with more than one
// resource type, sorted.
func (e *Evidence) Conflicts() []string {
	return append([]string(nil), e.conflicts...)
}

// Snapshot is the serialised form of Evidence used by snapshot files and
// debug dumps.
type Snapshot struct {
	AccountID   string                         `json:"account_id"`
	CollectedAt time.Time                      `json:"collected_at"`
	Source      string                         `json:"source,omitempty"`
	Resources   []Resource                     `json:"resources"`
	Unavailable map[models.ResourceType]string `json:"unavailable,omitempty"`
}

// Snapshot returns the serialisable form of e with resources ordered by id.
func (e *Evidence) Snapshot() Snapshot {
	ids := make([]string, 0, len(e.resources))
	for id := range e.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	res := make([]Resource, len(ids))
	for i, id := range ids {
		res[i] = e.resources[id]
	}
	un := make(map[models.ResourceType]string, len(e.unavailable))
	for k, v := range e.unavailable {
		un[k] = v
	}
	return Snapshot{
		AccountID:   e.accountID,
		CollectedAt: e.collectedAt,
		Source:      e.source,
		Resources:   res,
		Unavailable: un,
	}
}

// FromSnapshot rebuilds Evidence from its serialised form.
func FromSnapshot(s Snapshot) *Evidence {
	b := NewBuilder(s.AccountID, s.CollectedAt).WithSource(s.Source)
	for _, r := range s.Resources {
		b.Add(r)
	}
	for t, reason := range s.Unavailable {
		b.MarkUnavailable(t, reason)
	}
	return b.Build()
}
