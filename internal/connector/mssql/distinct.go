package mssql

import (
	"fmt"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
)

// BuildDistinct constructs a SELECT DISTINCT TOP (n) over one column of a
// table in the configured schema.
func (c *MSSQLConnector) BuildDistinct(req connector.DistinctRequest) (string, []interface{}, error) {
	if req.Table == "" || req.Column == "" {
		return "", nil, errs.New("table and column are required")
	}

	col := c.QuoteIdentifier(req.Column)
	from := c.QuoteIdentifier(c.schemaName) + "." + c.QuoteIdentifier(req.Table)

	var args []interface{}
	top := ""
	if req.Limit > 0 {
		top = "TOP (@p1) "
		args = append(args, req.Limit)
	}
	query := fmt.Sprintf("SELECT DISTINCT %sCAST(%s AS NVARCHAR(MAX)) FROM %s WHERE %s IS NOT NULL",
		top, col, from, col)
	return query, args, nil
}
