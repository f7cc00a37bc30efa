package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"

	"github.com/faucetdb/schemaguard/internal/connector"
)

// SQLiteConnector reads declared schemas from a SQLite reference file
// through the pure-Go modernc driver.
type SQLiteConnector struct {
	connector.Pool
	schemaName string
}

// New returns an unconnected SQLiteConnector on the "main" database.
func New() connector.Connector {
	return &SQLiteConnector{schemaName: "main"}
}

// Connect opens the database file named by cfg.DSN. SQLite serializes
// writers, so a single connection is used unless cfg asks for more.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if _, err := c.Open("sqlite", cfg.DSN, cfg); err != nil {
		return err
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return nil
}

func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
