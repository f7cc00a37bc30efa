package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// columnRow holds the result of querying information_schema.columns for MySQL.
type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	ColumnType string  `db:"COLUMN_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	MaxLength  *int64  `db:"CHARACTER_MAXIMUM_LENGTH"`
	Position   int     `db:"ORDINAL_POSITION"`
	Extra      string  `db:"EXTRA"`
	Comment    string  `db:"COLUMN_COMMENT"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
}

// pkRow holds a primary key column mapping.
type pkRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
	DeleteRule       string `db:"DELETE_RULE"`
	UpdateRule       string `db:"UPDATE_RULE"`
}

// indexRow holds one column of a unique index from information_schema.statistics.
type indexRow struct {
	TableName  string `db:"TABLE_NAME"`
	IndexName  string `db:"INDEX_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// IntrospectSchema returns the declared schema of every table and view in
// the configured MySQL database.
func (c *MySQLConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
	tables, err := c.fetchTables(ctx)
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
func (c *MySQLConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
	const tableQuery = `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	var t tableRow
	if err := c.DB().GetContext(ctx, &t, tableQuery, c.schemaName, tableName); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NewNotFoundError("table %q not found in schema %q", tableName, c.schemaName)
		}
		return nil, errs.Wrapf(err, "look up table %q", tableName)
	}

	parts, err := c.fetchParts(ctx, tableName)
	if err != nil {
		return nil, err
	}
	ts := parts.build(t)
	return &ts, nil
}

// GetTableNames returns a list of all table names in the configured schema.
func (c *MySQLConnector) GetTableNames(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var names []string
	if err := c.DB().SelectContext(ctx, &names, query, c.schemaName); err != nil {
		return nil, errs.Wrap(err, "get table names")
	}
	return names, nil
}

// --- internal fetch helpers ---

type introspection struct {
	columns []columnRow
	pks     []pkRow
	fks     []fkRow
	indexes []indexRow
}

func (c *MySQLConnector) fetchParts(ctx context.Context, tableName string) (*introspection, error) {
	var (
		p   introspection
		err error
	)
	if p.columns, err = c.fetchColumns(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect columns")
	}
	if p.pks, err = c.fetchPrimaryKeys(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect primary keys")
	}
	if p.fks, err = c.fetchForeignKeys(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect foreign keys")
	}
	if p.indexes, err = c.fetchUniqueIndexes(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect unique indexes")
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
	for _, pk := range p.pks {
		if pk.TableName == t.TableName {
			pkSet[pk.ColumnName] = true
			ts.PrimaryKey = append(ts.PrimaryKey, pk.ColumnName)
		}
	}

	for _, fk := range p.fks {
		if fk.TableName != t.TableName {
			continue
		}
		ts.ForeignKeys = append(ts.ForeignKeys, model.ForeignKey{
			Name:             fmt.Sprintf("fk_%s_%s", fk.TableName, fk.ColumnName),
			ColumnName:       fk.ColumnName,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
			OnDelete:         fk.DeleteRule,
			OnUpdate:         fk.UpdateRule,
		})
	}

	idxPos := make(map[string]int)
	for _, ix := range p.indexes {
		if ix.TableName != t.TableName {
			continue
		}
		i, ok := idxPos[ix.IndexName]
		if !ok {
			i = len(ts.Indexes)
			idxPos[ix.IndexName] = i
			ts.Indexes = append(ts.Indexes, model.Index{Name: ix.IndexName, IsUnique: true})
		}
		ts.Indexes[i].Columns = append(ts.Indexes[i].Columns, ix.ColumnName)
	}

	for _, col := range p.columns {
		if col.TableName != t.TableName {
			continue
		}
		ts.Columns = append(ts.Columns, model.Column{
			Name:            col.ColumnName,
			Position:        col.Position,
			Type:            col.ColumnType,
			DeclaredType:    mapMySQLType(col.DataType, col.ColumnType),
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			MaxLength:       col.MaxLength,
			IsPrimaryKey:    pkSet[col.ColumnName],
			IsAutoIncrement: strings.Contains(col.Extra, "auto_increment"),
			EnumValues:      parseEnumValues(col.DataType, col.ColumnType),
			Comment:         col.Comment,
		})
	}

	connector.MarkUniqueColumns(&ts)
	return ts
}

func (c *MySQLConnector) fetchTables(ctx context.Context) ([]tableRow, error) {
	const query = `SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`

	var rows []tableRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.schemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

// withTable appends a table filter on col when tableName is set.
func (c *MySQLConnector) withTable(query, col, tableName string) (string, []interface{}) {
	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND ` + col + ` = ?`
		args = append(args, tableName)
	}
	return query, args
}

func (c *MySQLConnector) fetchColumns(ctx context.Context, tableName string) ([]columnRow, error) {
	query, args := c.withTable(`SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.COLUMN_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.ORDINAL_POSITION,
			c.EXTRA,
			c.COLUMN_COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?`, "c.TABLE_NAME", tableName)

	query += ` ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MySQLConnector) fetchPrimaryKeys(ctx context.Context, tableName string) ([]pkRow, error) {
	query, args := c.withTable(`SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE CONSTRAINT_NAME = 'PRIMARY' AND TABLE_SCHEMA = ?`, "TABLE_NAME", tableName)

	query += ` ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var rows []pkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MySQLConnector) fetchForeignKeys(ctx context.Context, tableName string) ([]fkRow, error) {
	query, args := c.withTable(`SELECT
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			rc.DELETE_RULE,
			rc.UPDATE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.REFERENCED_TABLE_NAME IS NOT NULL
			AND kcu.TABLE_SCHEMA = ?`, "kcu.TABLE_NAME", tableName)

	var rows []fkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MySQLConnector) fetchUniqueIndexes(ctx context.Context, tableName string) ([]indexRow, error) {
	query, args := c.withTable(`SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE NON_UNIQUE = 0 AND TABLE_SCHEMA = ?`, "TABLE_NAME", tableName)

	query += ` ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`

	var rows []indexRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// parseEnumValues extracts the permitted values of an ENUM column from its
// COLUMN_TYPE, e.g. enum('open','closed').
func parseEnumValues(dataType, columnType string) []string {
	if !strings.EqualFold(dataType, "enum") {
		return nil
	}
	open := strings.IndexByte(columnType, '(')
	end := strings.LastIndexByte(columnType, ')')
	if open < 0 || end <= open {
		return nil
	}
	body := columnType[open+1 : end]

	var (
		values  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\'' && inQuote && i+1 < len(body) && body[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case ch == '\'':
			inQuote = !inQuote
			if !inQuote {
				values = append(values, cur.String())
				cur.Reset()
			}
		case inQuote:
			cur.WriteByte(ch)
		}
	}
	return values
}

// mapMySQLType maps a MySQL data type and column type to a TypeTag.
func mapMySQLType(dataType, columnType string) model.TypeTag {
	lower := strings.ToLower(dataType)

	// Check for tinyint(1) -> boolean before general int mapping
	if lower == "tinyint" && strings.Contains(strings.ToLower(columnType), "tinyint(1)") {
		return model.TypeBoolean
	}

	switch lower {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "year":
		return model.TypeInteger
	case "float", "double", "decimal", "numeric":
		return model.TypeFloat
	case "datetime", "timestamp", "date":
		return model.TypeDatetime
	case "bool", "boolean":
		return model.TypeBoolean
	default:
		return model.TypeString
	}
}
