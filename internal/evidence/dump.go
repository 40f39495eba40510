package evidence

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// DumpFileName returns the retained-evidence file name for a scan.
func DumpFileName(scanID string) string {
	return "evidence-" + scanID + ".json.zst"
}

// WriteDump writes e as zstd-compressed JSON to dir. Dumps exist only for
// debugging; scans never read them back.
func WriteDump(dir, scanID string, e *Evidence) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, DumpFileName(scanID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(e.Snapshot()); err != nil {
		zw.Close()
		return "", fmt.Errorf("encode evidence dump: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("flush evidence dump: %w", err)
	}
	return path, nil
}

// ReadDump decodes a dump written by WriteDump.
func ReadDump(r io.Reader) (*Evidence, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode evidence dump: %w", err)
	}
	return FromSnapshot(snap), nil
}
