package oracle

import (
	"context"
	"strings"

	_ "github.com/sijms/go-ora/v2"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
)

// OracleConnector reads declared schemas from an Oracle reference database
// through the pure-Go go-ora driver.
type OracleConnector struct {
	connector.Pool
	schemaName string
}

// New returns an unconnected OracleConnector.
func New() connector.Connector {
	return &OracleConnector{}
}

// Connect opens the pool. Without cfg.SchemaName the session's current
// schema is used.
func (c *OracleConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := c.Open("oracle", cfg.DSN, cfg)
	if err != nil {
		return err
	}
	c.schemaName = cfg.SchemaName
	if c.schemaName != "" {
		return nil
	}
	const q = `SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM DUAL`
	if err := db.GetContext(context.Background(), &c.schemaName, q); err != nil {
		c.Disconnect()
		return errs.Wrap(err, "oracle current schema")
	}
	return nil
}

func (c *OracleConnector) DriverName() string { return "oracle" }

// QuoteIdentifier double-quotes name. Quoted Oracle identifiers are
// case-sensitive.
func (c *OracleConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
