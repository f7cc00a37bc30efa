// Package archive stores schema snapshots as a directory of JSON files, one
// file per snapshot named after its key.
package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

const fileExt = ".json"

// Dir is an append-only snapshot archive rooted at a directory.
type Dir struct {
	root string
}

// Open returns an archive rooted at dir, creating it if needed.
func Open(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(err, "create snapshot dir")
	}
	return &Dir{root: dir}, nil
}

// Root returns the archive directory.
func (d *Dir) Root() string {
	return d.root
}

// AppendSnapshot writes a new snapshot file. Existing files are never
// overwritten.
func (d *Dir) AppendSnapshot(ctx context.Context, snap model.SchemaSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, ok := model.ParseSnapshotKey(snap.Key); !ok {
		return errs.Newf("malformed snapshot key %q", snap.Key)
	}

	body, err := json.MarshalIndent(model.SnapshotRecord{Columns: snap.Columns}, "", "  ")
	if err != nil {
		return errs.Wrap(err, "encode snapshot")
	}

	// Write to a temp file first so a reader never sees a partial record.
	tmp, err := os.CreateTemp(d.root, ".tmp-*")
	if err != nil {
		return errs.Wrap(err, "create temp snapshot")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return errs.Wrap(err, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(err, "close snapshot")
	}

	// os.Link fails when the target exists, which keeps the archive append-only.
	if err := os.Link(tmpName, d.path(snap.Key)); err != nil {
		if os.IsExist(err) {
			return errs.Newf("snapshot %s already exists", snap.Key)
		}
		return errs.Wrap(err, "publish snapshot")
	}
	return nil
}

// RecentSnapshots returns up to n snapshots of tableID, most recent first,
// selected by reverse lexical order of the file names.
func (d *Dir) RecentSnapshots(ctx context.Context, tableID string, n int) ([]model.SchemaSnapshot, error) {
	if n <= 0 {
		return []model.SchemaSnapshot{}, nil
	}
	tableKey := model.SnapshotTableKey(tableID)

	keys, err := d.keys()
	if err != nil {
		return nil, err
	}

	out := make([]model.SchemaSnapshot, 0, n)
	for i := len(keys) - 1; i >= 0 && len(out) < n; i-- {
		tk, _, _ := model.ParseSnapshotKey(keys[i])
		if tk != tableKey {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := d.read(keys[i], tableID)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

// GetSnapshot reads the snapshot stored under key. The returned TableID is
// the sanitized table key since files do not record the original identifier.
func (d *Dir) GetSnapshot(ctx context.Context, key string) (*model.SchemaSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tableKey, _, ok := model.ParseSnapshotKey(key)
	if !ok {
		return nil, errs.NewNotFoundError("snapshot %q", key)
	}
	return d.read(key, tableKey)
}

// ListSnapshotTables returns the sanitized table keys present in the
// archive, sorted.
func (d *Dir) ListSnapshotTables(ctx context.Context) ([]string, error) {
	keys, err := d.keys()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	tables := []string{}
	for _, k := range keys {
		tk, _, _ := model.ParseSnapshotKey(k)
		if !seen[tk] {
			seen[tk] = true
			tables = append(tables, tk)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

func (d *Dir) path(key string) string {
	return filepath.Join(d.root, key+fileExt)
}

// keys lists every well-formed snapshot key in ascending lexical order.
func (d *Dir) keys() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errs.Wrap(err, "read snapshot dir")
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key := strings.TrimSuffix(name, fileExt)
		if _, _, ok := model.ParseSnapshotKey(key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Dir) read(key, tableID string) (*model.SchemaSnapshot, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFoundError("snapshot %q", key)
		}
		return nil, errs.Wrapf(err, "read snapshot %s", key)
	}
	var rec model.SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.Wrapf(err, "decode snapshot %s", key)
	}
	if rec.Columns == nil {
		rec.Columns = map[string]model.TypeTag{}
	}
	_, takenAt, _ := model.ParseSnapshotKey(key)
	return &model.SchemaSnapshot{
		Key:     key,
		TableID: tableID,
		Columns: rec.Columns,
		TakenAt: takenAt,
	}, nil
}
