package mysql

import (
	"fmt"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
)

// BuildDistinct constructs a SELECT DISTINCT over one column of a table in
// the configured database.
func (c *MySQLConnector) BuildDistinct(req connector.DistinctRequest) (string, []interface{}, error) {
	if req.Table == "" || req.Column == "" {
		return "", nil, errs.New("table and column are required")
	}

	col := c.QuoteIdentifier(req.Column)
	table := c.QuoteIdentifier(req.Table)
	if c.schemaName != "" {
		table = c.QuoteIdentifier(c.schemaName) + "." + table
	}
	query := fmt.Sprintf("SELECT DISTINCT CAST(%s AS CHAR) FROM %s WHERE %s IS NOT NULL", col, table, col)

	var args []interface{}
	if req.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, req.Limit)
	}
	return query, args, nil
}
