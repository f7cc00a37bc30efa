// Package schemarepo owns access to reference table schemas and the
// append-only archive of schema snapshots.
//
// Reference schemas are read live through a connector.Connector. Snapshots
// go to an Archive (the SQLite config store or a directory of JSON files).
// Writes for one table are serialized so snapshot keys of that table are
// strictly increasing; reads take no locks.
package schemarepo

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/model"
)

// Archive is an append-only snapshot store. Implementations never overwrite
// an existing key.
type Archive interface {
	AppendSnapshot(ctx context.Context, snap model.SchemaSnapshot) error
	// RecentSnapshots returns up to n snapshots of tableID, most recent first.
	RecentSnapshots(ctx context.Context, tableID string, n int) ([]model.SchemaSnapshot, error)
	GetSnapshot(ctx context.Context, key string) (*model.SchemaSnapshot, error)
	// ListSnapshotTables returns the sanitized table keys with history.
	ListSnapshotTables(ctx context.Context) ([]string, error)
}

// Repository serves reference schemas and snapshot history.
type Repository struct {
	conn    connector.Connector
	archive Archive
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // keyed by sanitized table key
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a Repository. conn may be nil for history-only use, in which
// case reference lookups fail.
func New(conn connector.Connector, archive Archive, log *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{
		conn:    conn,
		archive: archive,
		logger:  logger.OrNop(log),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) reference() (connector.Connector, error) {
	if r.conn == nil {
		return nil, errs.Wrap(errs.ErrNotFound, "no reference source configured")
	}
	return r.conn, nil
}

// GetSchema returns the declared schema of tableID. The error wraps
// errs.ErrNotFound when the table does not exist.
func (r *Repository) GetSchema(ctx context.Context, tableID string) (*model.TableSchema, error) {
	conn, err := r.reference()
	if err != nil {
		return nil, err
	}
	ts, err := conn.IntrospectTable(ctx, tableID)
	if err != nil {
		return nil, errs.Wrapf(err, "reference table %q", tableID)
	}
	return ts, nil
}

// ListAllSchemas returns every reference table and view keyed by name.
func (r *Repository) ListAllSchemas(ctx context.Context) (map[string]*model.TableSchema, error) {
	conn, err := r.reference()
	if err != nil {
		return nil, err
	}
	schema, err := conn.IntrospectSchema(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list reference schemas")
	}

	out := make(map[string]*model.TableSchema, len(schema.Tables)+len(schema.Views))
	for i := range schema.Tables {
		out[schema.Tables[i].Name] = &schema.Tables[i]
	}
	for i := range schema.Views {
		out[schema.Views[i].Name] = &schema.Views[i]
	}
	return out, nil
}

// DistinctValues reads up to limit distinct values of table.column from the
// reference database. It satisfies validate.ReferenceReader.
func (r *Repository) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	conn, err := r.reference()
	if err != nil {
		return nil, err
	}
	return connector.DistinctValues(ctx, conn, table, column, limit)
}

// tableLock returns the write lock of one table key.
func (r *Repository) tableLock(tableKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[tableKey]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tableKey] = l
	}
	return l
}

// SaveSnapshot archives the column types of fs under tableID. When the
// clock has not advanced past the latest snapshot of the table, the
// timestamp is bumped by one microsecond so keys stay strictly increasing.
func (r *Repository) SaveSnapshot(ctx context.Context, tableID string, fs *model.FileSchema) (*model.SchemaSnapshot, error) {
	if fs == nil {
		return nil, errs.New("save snapshot: nil file schema")
	}

	l := r.tableLock(model.SnapshotTableKey(tableID))
	l.Lock()
	defer l.Unlock()

	takenAt := r.now().UTC().Truncate(time.Microsecond)

	latest, err := r.archive.RecentSnapshots(ctx, tableID, 1)
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "read latest snapshot of %q", tableID), errs.ErrPersistence)
	}
	if len(latest) > 0 {
		// The key carries the exact microsecond the archive sorts by.
		if _, prev, ok := model.ParseSnapshotKey(latest[0].Key); ok && !takenAt.After(prev) {
			takenAt = prev.Add(time.Microsecond)
		}
	}

	snap := model.SchemaSnapshot{
		Key:        model.SnapshotKey(tableID, takenAt),
		TableID:    tableID,
		Columns:    fs.ColumnTypes(),
		TakenAt:    takenAt,
		SourceFile: fs.SourceName,
	}
	if err := r.archive.AppendSnapshot(ctx, snap); err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "save snapshot of %q", tableID), errs.ErrPersistence)
	}

	r.logger.Debugw("snapshot saved", "table", tableID, "key", snap.Key, "columns", len(snap.Columns))
	return &snap, nil
}

// LoadRecentSnapshots returns up to n snapshots of tableID, most recent first.
func (r *Repository) LoadRecentSnapshots(ctx context.Context, tableID string, n int) ([]model.SchemaSnapshot, error) {
	snaps, err := r.archive.RecentSnapshots(ctx, tableID, n)
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "load snapshots of %q", tableID), errs.ErrPersistence)
	}
	return snaps, nil
}

// GetSnapshot returns one archived snapshot by key.
func (r *Repository) GetSnapshot(ctx context.Context, key string) (*model.SchemaSnapshot, error) {
	return r.archive.GetSnapshot(ctx, key)
}

// HistoryTables lists the sanitized table keys that have snapshots.
func (r *Repository) HistoryTables(ctx context.Context) ([]string, error) {
	return r.archive.ListSnapshotTables(ctx)
}

// SnapshotPair resolves the two snapshots a drift diff compares. With both
// keys set they are loaded by key; otherwise the two most recent snapshots
// of tableID are used. A nil from with a nil error means the table has
// fewer than two snapshots.
func (r *Repository) SnapshotPair(ctx context.Context, tableID, fromKey, toKey string) (from, to *model.SchemaSnapshot, err error) {
	if fromKey != "" && toKey != "" {
		if from, err = r.GetSnapshot(ctx, fromKey); err != nil {
			return nil, nil, err
		}
		if to, err = r.GetSnapshot(ctx, toKey); err != nil {
			return nil, nil, err
		}
		return from, to, nil
	}

	recent, err := r.LoadRecentSnapshots(ctx, tableID, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(recent) < 2 {
		return nil, nil, nil
	}
	return &recent[1], &recent[0], nil
}
