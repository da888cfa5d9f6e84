// Package snapshot serialises an index's mapping and documents to disk and
// reads them back. Postings are never persisted; the inverted index is
// always rebuilt from the stored documents on import, which keeps snapshots
// forward-compatible with scoring changes.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine/index"
	"github.com/fastsearch/fastsearch/pkg/errors"
)

// FormatVersion identifies the snapshot file layout.
const FormatVersion = 1

// FileSuffix is the naming convention for snapshots kept in the engine's
// data directory. The directory contents are the index catalog; there is no
// separate manifest to fall out of sync.
const FileSuffix = ".snapshot.json"

// Snapshot is the self-describing export record for one index.
type Snapshot struct {
	FormatVersion int                      `json:"format_version"`
	Index         string                   `json:"index"`
	Mapping       map[string]string        `json:"mapping"`
	CreatedAt     time.Time                `json:"created_at"`
	Documents     []index.DocumentSnapshot `json:"documents"`
}

// PathFor returns the conventional snapshot path for an index inside a data
// directory.
func PathFor(dataDir, indexName string) string {
	return filepath.Join(dataDir, indexName+FileSuffix)
}

// IndexNameFromPath extracts the index name from a conventional snapshot
// file name, or "" if the name does not follow the convention.
func IndexNameFromPath(path string) string {
	base := filepath.Base(path)
	if len(base) <= len(FileSuffix) || base[len(base)-len(FileSuffix):] != FileSuffix {
		return ""
	}
	return base[:len(base)-len(FileSuffix)]
}

// Write atomically persists the snapshot: it writes to a .tmp file, syncs,
// and renames on success. On failure no partial snapshot is left behind.
func Write(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot for index %q: %w", snap.Index, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Read loads and validates a snapshot file. A structurally invalid snapshot
// is a schema error; the mapping itself is validated by the importer.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("snapshot file %s", path)
		}
		return nil, fmt.Errorf("reading snapshot file %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Schemaf("snapshot %s is not valid JSON: %v", path, err)
	}
	if snap.FormatVersion != FormatVersion {
		return nil, errors.Schemaf("snapshot %s has unsupported format version %d", path, snap.FormatVersion)
	}
	if len(snap.Mapping) == 0 {
		return nil, errors.Schemaf("snapshot %s has no mapping", path)
	}
	return &snap, nil
}
