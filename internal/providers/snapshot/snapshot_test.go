package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
)

const doc = `{
  "account_id": "123456789012",
  "collected_at": "2026-03-01T00:00:00Z",
  "source": "aws",
  "resources": [
    {"id": "arn:aws:s3:::a", "type": "s3_bucket", "region": "us-east-1", "attributes": {"publicRead": true}},
    {"id": "sg-1", "type": "security_group", "region": "eu-west-1", "attributes": {"ingress": []}},
    {"id": "sg-2", "type": "security_group", "region": "us-east-1", "attributes": {"ingress": []}}
  ]
}`

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c
}

func TestCollect_LoadsSnapshot(t *testing.T) {
	c := newCollector(t)
	ev, err := c.Collect(context.Background(), "123456789012", providers.Scope{Path: writeSnapshot(t, doc)})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if ev.Len() != 3 {
		t.Errorf("resources: got %d; want 3", ev.Len())
	}
}

func TestCollect_FiltersScope(t *testing.T) {
	c := newCollector(t)
	ev, err := c.Collect(context.Background(), "", providers.Scope{
		Path:          writeSnapshot(t, doc),
		ResourceTypes: []models.ResourceType{models.ResourceSecurityGroup},
		Regions:       []string{"us-east-1"},
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if ev.Len() != 1 {
		t.Fatalf("resources: got %d; want 1", ev.Len())
	}
	if _, ok := ev.Resource("sg-2"); !ok {
		t.Error("sg-2 should survive the filter")
	}
}

func TestCollect_AccountMismatch(t *testing.T) {
	c := newCollector(t)
	_, err := c.Collect(context.Background(), "999999999999", providers.Scope{Path: writeSnapshot(t, doc)})
	var ce *providers.CollectionError
	if !errors.As(err, &ce) || !ce.Fatal() {
		t.Fatalf("err: got %v; want fatal CollectionError", err)
	}
}

func TestCollect_InvalidDocument(t *testing.T) {
	c := newCollector(t)
	_, err := c.Collect(context.Background(), "", providers.Scope{Path: writeSnapshot(t, `{"resources": 3}`)})
	if err == nil {
		t.Fatal("expected schema error")
	}
}

func TestCollect_MissingPath(t *testing.T) {
	c := newCollector(t)
	if _, err := c.Collect(context.Background(), "", providers.Scope{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
