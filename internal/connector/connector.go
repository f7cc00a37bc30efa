package connector

import (
	"context"
	"database/sql"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// DistinctRequest asks for the distinct non-null values of one column. It
// backs foreign-key domain checks against the referenced table.
type DistinctRequest struct {
	Table  string
	Column string
	Limit  int
}

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PrivateKeyPath  string // Path to PEM-encoded private key file (Snowflake JWT auth)
}

// ConfigFromSource builds a ConnectionConfig from a stored source.
func ConfigFromSource(src model.Source) ConnectionConfig {
	return ConnectionConfig{
		Driver:          src.Driver,
		DSN:             SanitizeDSN(src.Driver, src.DSN),
		SchemaName:      src.Schema,
		MaxOpenConns:    src.Pool.MaxOpenConns,
		MaxIdleConns:    src.Pool.MaxIdleConns,
		ConnMaxLifetime: src.Pool.ConnMaxLifetime,
		ConnMaxIdleTime: src.Pool.ConnMaxIdleTime,
		PrivateKeyPath:  src.PrivateKeyPath,
	}
}

// Connector is the interface that all reference database connectors must
// implement. Connectors only read: they introspect declared schemas and
// look up distinct values for referential checks.
type Connector interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Schema introspection. IntrospectTable returns an error wrapping
	// errs.ErrNotFound when the table does not exist.
	IntrospectSchema(ctx context.Context) (*model.Schema, error)
	IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error)
	GetTableNames(ctx context.Context) ([]string, error)

	// Query building (database-specific SQL dialect)
	BuildDistinct(req DistinctRequest) (string, []interface{}, error)

	// Metadata
	DriverName() string
	QuoteIdentifier(name string) string
}

// DistinctValues runs a DISTINCT query through conn and returns the values
// as strings. It reads at most limit+1 rows and fails when the column holds
// more than limit distinct values, so callers never check against a
// truncated domain.
func DistinctValues(ctx context.Context, conn Connector, table, column string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, errs.Newf("distinct lookup on %s.%s: limit must be positive", table, column)
	}
	query, args, err := conn.BuildDistinct(DistinctRequest{Table: table, Column: column, Limit: limit + 1})
	if err != nil {
		return nil, err
	}

	rows, err := conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrapf(err, "distinct lookup on %s.%s", table, column)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, errs.Wrapf(err, "scan distinct value of %s.%s", table, column)
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(err, "distinct lookup on %s.%s", table, column)
	}
	if len(values) > limit {
		return nil, errs.Newf("%s.%s has more than %d distinct values", table, column, limit)
	}
	return values, nil
}

// MarkUniqueColumns sets IsUnique on every column that alone forms a unique
// index or the single-column primary key of t.
func MarkUniqueColumns(t *model.TableSchema) {
	single := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idx.IsUnique && len(idx.Columns) == 1 {
			single[idx.Columns[0]] = true
		}
	}
	for i := range t.Columns {
		if single[t.Columns[i].Name] {
			t.Columns[i].IsUnique = true
		}
	}
}

// SanitizeDSN ensures that URL-style DSNs (postgres://, sqlserver://) have
// their userinfo (especially the password) properly percent-encoded. Raw
// passwords containing @, #, %, or other URL-special characters cause the
// Go URL parser to mis-split the authority component, leading to connection
// failures that surface as "source not found" because the connector never
// registers in the live registry.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by go-sql-driver.
// Snowflake uses its own non-URL DSN format and is returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "mssql":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper). We look for the last "@" followed by what looks like host:port/db.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it correctly. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes from users:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
//
// When the password contains "@", the driver's ParseDSN splits on the last
// "@" before "/"; this works ONLY when "tcp(" is present, otherwise the
// parser treats the password fragment as a network name.
func sanitizeMySQLDSN(dsn string) string {
	// If it already parses cleanly and has a known network, trust it.
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	// Try to fix common patterns.

	// Pattern: user:pass@(host:port)/db, missing "tcp" keyword.
	// Find the last "@" followed immediately by "(" but NOT preceded by
	// a network name like "tcp" or "unix".
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		// Insert "tcp" between "@" and "("
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Pattern: user:pass@host:port/db, no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		userpass := m[1] // everything before the last @host:port
		hostport := m[2]
		dbpart := m[3] // /dbname or empty
		fixed := userpass + "@tcp(" + hostport + ")" + dbpart
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Nothing worked; return as-is and let the connect call give a clear error.
	return dsn
}

// sanitizeURLDSN parses a DSN that begins with a scheme (e.g.
// postgres://user:p@ss#word@host/db) and re-encodes the password so the
// URL library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	// Find the scheme separator.
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // not a URL-style DSN, return as-is
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:] // everything after "://"

	// Split off query/fragment from the authority+path portion.
	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Find the LAST '@'. Everything before it is userinfo, everything after is host+path.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn // no credentials in the DSN
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	// Split userinfo into user and password at the FIRST ':'.
	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	// Re-encode. url.PathEscape is too aggressive; url.QueryEscape encodes
	// spaces as '+' which isn't great for passwords. Use a manual approach:
	// percent-encode only the characters that break URL parsing.
	encodedUser := url.PathEscape(user)
	encodedPass := url.PathEscape(pass)

	return scheme + "://" + encodedUser + ":" + encodedPass + "@" + hostpath + query
}
