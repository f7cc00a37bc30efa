package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

type snapshotRow struct {
	SnapshotKey string    `db:"snapshot_key"`
	TableKey    string    `db:"table_key"`
	TableID     string    `db:"table_id"`
	RecordJSON  string    `db:"record_json"`
	TakenAt     time.Time `db:"taken_at"`
	SourceFile  string    `db:"source_file"`
}

func (r snapshotRow) toModel() (model.SchemaSnapshot, error) {
	var rec model.SnapshotRecord
	if err := json.Unmarshal([]byte(r.RecordJSON), &rec); err != nil {
		return model.SchemaSnapshot{}, errs.Wrapf(err, "decode snapshot %s", r.SnapshotKey)
	}
	if rec.Columns == nil {
		rec.Columns = map[string]model.TypeTag{}
	}
	return model.SchemaSnapshot{
		Key:        r.SnapshotKey,
		TableID:    r.TableID,
		Columns:    rec.Columns,
		TakenAt:    r.TakenAt.UTC(),
		SourceFile: r.SourceFile,
	}, nil
}

// AppendSnapshot stores a new snapshot. Snapshots are immutable: appending
// a key that already exists fails.
func (s *Store) AppendSnapshot(ctx context.Context, snap model.SchemaSnapshot) error {
	body, err := json.Marshal(model.SnapshotRecord{Columns: snap.Columns})
	if err != nil {
		return errs.Wrap(err, "encode snapshot")
	}

	row := snapshotRow{
		SnapshotKey: snap.Key,
		TableKey:    model.SnapshotTableKey(snap.TableID),
		TableID:     snap.TableID,
		RecordJSON:  string(body),
		TakenAt:     snap.TakenAt.UTC(),
		SourceFile:  snap.SourceFile,
	}

	const q = `INSERT INTO schema_snapshots
		(snapshot_key, table_key, table_id, record_json, taken_at, source_file)
		VALUES
		(:snapshot_key, :table_key, :table_id, :record_json, :taken_at, :source_file)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errs.Newf("snapshot %s already exists", snap.Key)
		}
		return errs.Wrap(err, "insert snapshot")
	}
	return nil
}

// RecentSnapshots returns up to n snapshots of tableID, most recent first.
func (s *Store) RecentSnapshots(ctx context.Context, tableID string, n int) ([]model.SchemaSnapshot, error) {
	if n <= 0 {
		return []model.SchemaSnapshot{}, nil
	}

	var rows []snapshotRow
	const q = `SELECT * FROM schema_snapshots WHERE table_key = ?
		ORDER BY snapshot_key DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, q, model.SnapshotTableKey(tableID), n); err != nil {
		return nil, errs.Wrap(err, "list snapshots")
	}

	out := make([]model.SchemaSnapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetSnapshot returns the snapshot stored under key.
func (s *Store) GetSnapshot(ctx context.Context, key string) (*model.SchemaSnapshot, error) {
	var row snapshotRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM schema_snapshots WHERE snapshot_key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.Wrapf(ErrNotFound, "snapshot %q", key)
		}
		return nil, errs.Wrap(err, "get snapshot")
	}
	snap, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshotTables returns the sanitized table keys that have at least one
// snapshot, sorted.
func (s *Store) ListSnapshotTables(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys,
		"SELECT DISTINCT table_key FROM schema_snapshots ORDER BY table_key"); err != nil {
		return nil, errs.Wrap(err, "list snapshot tables")
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
