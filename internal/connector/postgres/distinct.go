package postgres

import (
	"fmt"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
)

// BuildDistinct constructs a SELECT DISTINCT over one column of a table in
// the configured schema. The column is cast to text so every value scans
// into a string.
func (c *PostgresConnector) BuildDistinct(req connector.DistinctRequest) (string, []interface{}, error) {
	if req.Table == "" || req.Column == "" {
		return "", nil, errs.New("table and column are required")
	}

	col := c.QuoteIdentifier(req.Column)
	query := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s.%s WHERE %s IS NOT NULL",
		col, c.QuoteIdentifier(c.schemaName), c.QuoteIdentifier(req.Table), col)

	var args []interface{}
	if req.Limit > 0 {
		query += " LIMIT $1"
		args = append(args, req.Limit)
	}
	return query, args, nil
}
