package postgres

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/faucetdb/schemaguard/internal/connector"
)

// PostgresConnector reads declared schemas from a PostgreSQL reference
// database through pgx.
type PostgresConnector struct {
	connector.Pool
	schemaName string
}

// New returns an unconnected PostgresConnector scoped to "public".
func New() connector.Connector {
	return &PostgresConnector{schemaName: "public"}
}

// Connect opens the pool. cfg.SchemaName overrides the default schema.
func (c *PostgresConnector) Connect(cfg connector.ConnectionConfig) error {
	if _, err := c.Open("pgx", cfg.DSN, cfg); err != nil {
		return err
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return nil
}

func (c *PostgresConnector) DriverName() string { return "postgres" }

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
