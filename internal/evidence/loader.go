package evidence

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed snapshot.schema.json
var snapshotSchema string

// SnapshotValidator checks snapshot documents against the embedded JSON
// schema before they are decoded into Evidence.
type SnapshotValidator struct {
	schema *jsonschema.Schema
}

// NewSnapshotValidator compiles the embedded snapshot schema.
func NewSnapshotValidator() (*SnapshotValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchema)); err != nil {
		return nil, fmt.Errorf("add snapshot schema resource: %w", err)
	}
	schema, err := compiler.Compile("snapshot.json")
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	return &SnapshotValidator{schema: schema}, nil
}

// Decode validates and decodes one snapshot document.
func (v *SnapshotValidator) Decode(r io.Reader) (*Evidence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("snapshot does not match schema: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return FromSnapshot(snap), nil
}

// LoadFile reads and validates the snapshot at path.
func (v *SnapshotValidator) LoadFile(path string) (*Evidence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return v.Decode(f)
}
