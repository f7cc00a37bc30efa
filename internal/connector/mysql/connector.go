package mysql

import (
	"context"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
)

// MySQLConnector reads declared schemas from a MySQL or MariaDB reference
// database. The schema is the database named in the DSN unless overridden.
type MySQLConnector struct {
	connector.Pool
	schemaName string
}

// New returns an unconnected MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect opens the pool and resolves the schema to introspect. Without
// cfg.SchemaName the DSN must select a database.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := c.Open("mysql", cfg.DSN, cfg)
	if err != nil {
		return err
	}
	c.schemaName = cfg.SchemaName
	if c.schemaName != "" {
		return nil
	}

	var current *string
	if err := db.GetContext(context.Background(), &current, "SELECT DATABASE()"); err != nil {
		c.Disconnect()
		return errs.Wrap(err, "mysql current database")
	}
	if current == nil || *current == "" {
		c.Disconnect()
		return errs.NewInvalidRequestError("mysql source needs a database in the DSN or a schema")
	}
	c.schemaName = *current
	return nil
}

func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifier backtick-quotes name, doubling embedded backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
