package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

type columnRow struct {
	TableName  string         `db:"TABLE_NAME"`
	ColumnName string         `db:"COLUMN_NAME"`
	DataType   string         `db:"DATA_TYPE"`
	Scale      sql.NullInt64  `db:"DATA_SCALE"`
	Nullable   string         `db:"NULLABLE"`
	CharLength sql.NullInt64  `db:"CHAR_LENGTH"`
	Position   int            `db:"COLUMN_ID"`
	Identity   string         `db:"IDENTITY_COLUMN"`
	Comment    sql.NullString `db:"COMMENTS"`
}

type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
}

// constraintRow is one column of a P, U or R constraint.
type constraintRow struct {
	TableName        string         `db:"TABLE_NAME"`
	ConstraintName   string         `db:"CONSTRAINT_NAME"`
	ConstraintType   string         `db:"CONSTRAINT_TYPE"`
	ColumnName       string         `db:"COLUMN_NAME"`
	ReferencedTable  sql.NullString `db:"REF_TABLE"`
	ReferencedColumn sql.NullString `db:"REF_COLUMN"`
	DeleteRule       sql.NullString `db:"DELETE_RULE"`
}

// IntrospectSchema returns every table and view owned by the configured schema.
func (c *OracleConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
	tables, err := c.fetchTables(ctx, "")
	if err != nil {
		return nil, errs.Wrap(err, "introspect tables")
	}

	parts, err := c.fetchParts(ctx, "")
	if err != nil {
		return nil, err
	}

	schema := &model.Schema{Tables: []model.TableSchema{}, Views: []model.TableSchema{}}
	for _, t := range tables {
		ts := parts.build(t)
		if ts.Type == "view" {
			schema.Views = append(schema.Views, ts)
		} else {
			schema.Tables = append(schema.Tables, ts)
		}
	}
	return schema, nil
}

// IntrospectTable returns the schema for a single table or view.
func (c *OracleConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
	tables, err := c.fetchTables(ctx, tableName)
	if err != nil {
		return nil, errs.Wrapf(err, "look up table %q", tableName)
	}
	if len(tables) == 0 {
		return nil, errs.NewNotFoundError("table %q not found in schema %q", tableName, c.schemaName)
	}

	parts, err := c.fetchParts(ctx, tableName)
	if err != nil {
		return nil, err
	}
	ts := parts.build(tables[0])
	return &ts, nil
}

// GetTableNames returns the names of all tables owned by the configured schema.
func (c *OracleConnector) GetTableNames(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM ALL_TABLES WHERE OWNER = :1 ORDER BY TABLE_NAME`

	var names []string
	if err := c.DB().SelectContext(ctx, &names, query, c.schemaName); err != nil {
		return nil, errs.Wrap(err, "get table names")
	}
	return names, nil
}

// --- internal fetch helpers ---

type introspection struct {
	columns     []columnRow
	constraints []constraintRow
}

func (c *OracleConnector) fetchParts(ctx context.Context, tableName string) (*introspection, error) {
	var (
		p   introspection
		err error
	)
	if p.columns, err = c.fetchColumns(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect columns")
	}
	if p.constraints, err = c.fetchConstraints(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect constraints")
	}
	return &p, nil
}

func (p *introspection) build(t tableRow) model.TableSchema {
	ts := model.TableSchema{
		Name:        t.TableName,
		Type:        "table",
		Columns:     []model.Column{},
		PrimaryKey:  []string{},
		ForeignKeys: []model.ForeignKey{},
		Indexes:     []model.Index{},
	}
	if t.TableType == "VIEW" {
		ts.Type = "view"
	}

	pkSet := make(map[string]bool)
	idxPos := make(map[string]int)
	for _, cr := range p.constraints {
		if cr.TableName != t.TableName {
			continue
		}
		switch cr.ConstraintType {
		case "P", "U":
			if cr.ConstraintType == "P" {
				pkSet[cr.ColumnName] = true
				ts.PrimaryKey = append(ts.PrimaryKey, cr.ColumnName)
			}
			i, ok := idxPos[cr.ConstraintName]
			if !ok {
				i = len(ts.Indexes)
				idxPos[cr.ConstraintName] = i
				ts.Indexes = append(ts.Indexes, model.Index{Name: cr.ConstraintName, IsUnique: true})
			}
			ts.Indexes[i].Columns = append(ts.Indexes[i].Columns, cr.ColumnName)
		case "R":
			ts.ForeignKeys = append(ts.ForeignKeys, model.ForeignKey{
				Name:             cr.ConstraintName,
				ColumnName:       cr.ColumnName,
				ReferencedTable:  cr.ReferencedTable.String,
				ReferencedColumn: cr.ReferencedColumn.String,
				OnDelete:         cr.DeleteRule.String,
				OnUpdate:         "NO ACTION",
			})
		}
	}

	for _, col := range p.columns {
		if col.TableName != t.TableName {
			continue
		}
		var maxLen *int64
		if col.CharLength.Valid && col.CharLength.Int64 > 0 {
			n := col.CharLength.Int64
			maxLen = &n
		}
		ts.Columns = append(ts.Columns, model.Column{
			Name:            col.ColumnName,
			Position:        col.Position,
			Type:            col.DataType,
			DeclaredType:    mapOracleType(col.DataType, col.Scale),
			Nullable:        col.Nullable == "Y",
			MaxLength:       maxLen,
			IsPrimaryKey:    pkSet[col.ColumnName],
			IsAutoIncrement: col.Identity == "YES",
			Comment:         col.Comment.String,
		})
	}

	connector.MarkUniqueColumns(&ts)
	return ts
}

// withTable appends a filter on col when tableName is set. Oracle binds by
// position, so the owner is always :1.
func (c *OracleConnector) withTable(query, col, tableName string) (string, []interface{}) {
	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND ` + col + ` = :2`
		args = append(args, tableName)
	}
	return query, args
}

func (c *OracleConnector) fetchTables(ctx context.Context, tableName string) ([]tableRow, error) {
	query, args := c.withTable(`SELECT TABLE_NAME, TABLE_TYPE FROM (
			SELECT OWNER, TABLE_NAME, 'BASE TABLE' AS TABLE_TYPE FROM ALL_TABLES
			UNION ALL
			SELECT OWNER, VIEW_NAME AS TABLE_NAME, 'VIEW' AS TABLE_TYPE FROM ALL_VIEWS
		) WHERE OWNER = :1`, "TABLE_NAME", tableName)

	query += ` ORDER BY TABLE_NAME`

	var rows []tableRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *OracleConnector) fetchColumns(ctx context.Context, tableName string) ([]columnRow, error) {
	query, args := c.withTable(`SELECT
			t.TABLE_NAME,
			t.COLUMN_NAME,
			t.DATA_TYPE,
			t.DATA_SCALE,
			t.NULLABLE,
			t.CHAR_LENGTH,
			t.COLUMN_ID,
			t.IDENTITY_COLUMN,
			cm.COMMENTS
		FROM ALL_TAB_COLUMNS t
		LEFT JOIN ALL_COL_COMMENTS cm
			ON cm.OWNER = t.OWNER AND cm.TABLE_NAME = t.TABLE_NAME AND cm.COLUMN_NAME = t.COLUMN_NAME
		WHERE t.OWNER = :1`, "t.TABLE_NAME", tableName)

	query += ` ORDER BY t.TABLE_NAME, t.COLUMN_ID`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *OracleConnector) fetchConstraints(ctx context.Context, tableName string) ([]constraintRow, error) {
	query, args := c.withTable(`SELECT
			uc.TABLE_NAME,
			uc.CONSTRAINT_NAME,
			uc.CONSTRAINT_TYPE,
			cc.COLUMN_NAME,
			r.TABLE_NAME AS REF_TABLE,
			rcc.COLUMN_NAME AS REF_COLUMN,
			uc.DELETE_RULE
		FROM ALL_CONSTRAINTS uc
		JOIN ALL_CONS_COLUMNS cc
			ON uc.OWNER = cc.OWNER AND uc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
		LEFT JOIN ALL_CONSTRAINTS r
			ON uc.R_OWNER = r.OWNER AND uc.R_CONSTRAINT_NAME = r.CONSTRAINT_NAME
		LEFT JOIN ALL_CONS_COLUMNS rcc
			ON r.OWNER = rcc.OWNER AND r.CONSTRAINT_NAME = rcc.CONSTRAINT_NAME AND cc.POSITION = rcc.POSITION
		WHERE uc.CONSTRAINT_TYPE IN ('P', 'U', 'R') AND uc.OWNER = :1`, "uc.TABLE_NAME", tableName)

	query += ` ORDER BY uc.TABLE_NAME, uc.CONSTRAINT_NAME, cc.POSITION`

	var rows []constraintRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// mapOracleType maps an Oracle data type to a TypeTag. NUMBER columns with a
// zero scale are integers; unconstrained NUMBER is treated as float.
func mapOracleType(dataType string, scale sql.NullInt64) model.TypeTag {
	upper := strings.ToUpper(dataType)
	switch {
	case upper == "NUMBER":
		if scale.Valid && scale.Int64 == 0 {
			return model.TypeInteger
		}
		return model.TypeFloat
	case upper == "INTEGER" || upper == "SMALLINT":
		return model.TypeInteger
	case upper == "FLOAT" || upper == "BINARY_FLOAT" || upper == "BINARY_DOUBLE":
		return model.TypeFloat
	case upper == "DATE" || strings.HasPrefix(upper, "TIMESTAMP"):
		return model.TypeDatetime
	default:
		return model.TypeString
	}
}

// BuildDistinct constructs a SELECT DISTINCT over one column of a table owned
// by the configured schema, capped with FETCH FIRST.
func (c *OracleConnector) BuildDistinct(req connector.DistinctRequest) (string, []interface{}, error) {
	if req.Table == "" || req.Column == "" {
		return "", nil, errs.New("table and column are required")
	}

	col := c.QuoteIdentifier(req.Column)
	query := fmt.Sprintf("SELECT DISTINCT TO_CHAR(%s) FROM %s.%s WHERE %s IS NOT NULL",
		col, c.QuoteIdentifier(c.schemaName), c.QuoteIdentifier(req.Table), col)

	var args []interface{}
	if req.Limit > 0 {
		query += " FETCH FIRST :1 ROWS ONLY"
		args = append(args, req.Limit)
	}
	return query, args, nil
}
