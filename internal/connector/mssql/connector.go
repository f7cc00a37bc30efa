package mssql

import (
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/faucetdb/schemaguard/internal/connector"
)

// MSSQLConnector reads declared schemas from a SQL Server or Azure SQL
// reference database.
type MSSQLConnector struct {
	connector.Pool
	schemaName string
}

// New returns an unconnected MSSQLConnector scoped to "dbo".
func New() connector.Connector {
	return &MSSQLConnector{schemaName: "dbo"}
}

// Connect opens the pool. cfg.SchemaName overrides "dbo".
func (c *MSSQLConnector) Connect(cfg connector.ConnectionConfig) error {
	if _, err := c.Open("sqlserver", cfg.DSN, cfg); err != nil {
		return err
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return nil
}

func (c *MSSQLConnector) DriverName() string { return "mssql" }

// QuoteIdentifier brackets name, doubling embedded closing brackets.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
