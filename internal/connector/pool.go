package connector

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/schemaguard/internal/errs"
)

// connectTimeout bounds the first ping of a freshly opened pool.
const connectTimeout = 15 * time.Second

// Pool is embedded by the driver connectors. It owns the sqlx pool and
// provides the Disconnect, Ping and DB methods of Connector.
type Pool struct {
	db *sqlx.DB
}

// NewPool wraps an already opened pool, for tests over sqlmock.
func NewPool(db *sqlx.DB) Pool {
	return Pool{db: db}
}

// Open opens a pool through the database/sql driver driverName, applies
// the limits in cfg and pings it. A pool that cannot be reached is closed
// before returning.
func (p *Pool) Open(driverName, dsn string, cfg ConnectionConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrapf(err, "%s open", driverName)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrapf(err, "%s connect", driverName)
	}
	p.db = db
	return db, nil
}

// Disconnect closes the pool. Calling it twice is harmless.
func (p *Pool) Disconnect() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// Ping verifies the pool can still reach the database.
func (p *Pool) Ping(ctx context.Context) error {
	if p.db == nil {
		return errs.New("not connected")
	}
	return p.db.PingContext(ctx)
}

// DB returns the underlying pool, nil before Open.
func (p *Pool) DB() *sqlx.DB {
	return p.db
}
