package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// columnRow holds the result of querying information_schema.columns for Snowflake.
type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	MaxLength  *int64  `db:"CHARACTER_MAXIMUM_LENGTH"`
	Position   int     `db:"ORDINAL_POSITION"`
	Comment    *string `db:"COMMENT"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
}

// keyRow is one row of SHOW PRIMARY KEYS or SHOW UNIQUE KEYS.
type keyRow struct {
	TableName      string
	ColumnName     string
	ConstraintName string
}

// fkRow holds a foreign key relationship from SHOW IMPORTED KEYS.
type fkRow struct {
	TableName        string
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	DeleteRule       string
	UpdateRule       string
}

// IntrospectSchema returns the full schema for the configured Snowflake
// schema, including all tables and views.
func (c *SnowflakeConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
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
func (c *SnowflakeConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
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
func (c *SnowflakeConnector) GetTableNames(ctx context.Context) ([]string, error) {
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
	pks     []keyRow
	uniques []keyRow
	fks     []fkRow
}

func (c *SnowflakeConnector) fetchParts(ctx context.Context, tableName string) (*introspection, error) {
	var (
		p   introspection
		err error
	)
	if p.columns, err = c.fetchColumns(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect columns")
	}
	if p.pks, err = c.fetchKeys(ctx, "PRIMARY KEYS", tableName); err != nil {
		return nil, errs.Wrap(err, "introspect primary keys")
	}
	if p.uniques, err = c.fetchKeys(ctx, "UNIQUE KEYS", tableName); err != nil {
		return nil, errs.Wrap(err, "introspect unique keys")
	}
	if p.fks, err = c.fetchForeignKeys(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect foreign keys")
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
	if len(ts.PrimaryKey) == 1 {
		ts.Indexes = append(ts.Indexes, model.Index{
			Name:     t.TableName + "_pkey",
			Columns:  []string{ts.PrimaryKey[0]},
			IsUnique: true,
		})
	}

	idxPos := make(map[string]int)
	for _, u := range p.uniques {
		if u.TableName != t.TableName {
			continue
		}
		i, ok := idxPos[u.ConstraintName]
		if !ok {
			i = len(ts.Indexes)
			idxPos[u.ConstraintName] = i
			ts.Indexes = append(ts.Indexes, model.Index{Name: u.ConstraintName, IsUnique: true})
		}
		ts.Indexes[i].Columns = append(ts.Indexes[i].Columns, u.ColumnName)
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

	for _, col := range p.columns {
		if col.TableName != t.TableName {
			continue
		}
		// Snowflake reports AUTOINCREMENT/IDENTITY through the default expression.
		isAuto := col.Default != nil && (strings.Contains(strings.ToUpper(*col.Default), "AUTOINCREMENT") ||
			strings.Contains(strings.ToUpper(*col.Default), "IDENTITY"))

		comment := ""
		if col.Comment != nil {
			comment = *col.Comment
		}

		ts.Columns = append(ts.Columns, model.Column{
			Name:            col.ColumnName,
			Position:        col.Position,
			Type:            col.DataType,
			DeclaredType:    mapSnowflakeType(col.DataType),
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			MaxLength:       col.MaxLength,
			IsPrimaryKey:    pkSet[col.ColumnName],
			IsAutoIncrement: isAuto,
			Comment:         comment,
		})
	}

	connector.MarkUniqueColumns(&ts)
	return ts
}

func (c *SnowflakeConnector) fetchTables(ctx context.Context) ([]tableRow, error) {
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

func (c *SnowflakeConnector) fetchColumns(ctx context.Context, tableName string) ([]columnRow, error) {
	query := `SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.ORDINAL_POSITION,
			c.COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?`

	args := []interface{}{c.schemaName}

	if tableName != "" {
		query += ` AND c.TABLE_NAME = ?`
		args = append(args, tableName)
	}

	query += ` ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// showScope returns the IN clause for a SHOW command: the whole schema, or a
// single table when tableName is set.
func (c *SnowflakeConnector) showScope(tableName string) string {
	if tableName == "" {
		return "SCHEMA " + c.QuoteIdentifier(c.schemaName)
	}
	return "TABLE " + c.QuoteIdentifier(c.schemaName) + "." + c.QuoteIdentifier(tableName)
}

// show runs a SHOW command and hands each row to fn as a lower-cased map.
func (c *SnowflakeConnector) show(ctx context.Context, query string, fn func(map[string]interface{})) error {
	rawRows, err := c.DB().QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rawRows.Close()

	for rawRows.Next() {
		row := make(map[string]interface{})
		if err := rawRows.MapScan(row); err != nil {
			return err
		}
		fn(row)
	}
	return rawRows.Err()
}

func (c *SnowflakeConnector) fetchKeys(ctx context.Context, kind, tableName string) ([]keyRow, error) {
	query := fmt.Sprintf(`SHOW %s IN %s`, kind, c.showScope(tableName))

	var rows []keyRow
	err := c.show(ctx, query, func(row map[string]interface{}) {
		rows = append(rows, keyRow{
			TableName:      stringField(row, "table_name"),
			ColumnName:     stringField(row, "column_name"),
			ConstraintName: stringField(row, "constraint_name"),
		})
	})
	return rows, err
}

func (c *SnowflakeConnector) fetchForeignKeys(ctx context.Context, tableName string) ([]fkRow, error) {
	query := fmt.Sprintf(`SHOW IMPORTED KEYS IN %s`, c.showScope(tableName))

	var rows []fkRow
	err := c.show(ctx, query, func(row map[string]interface{}) {
		rows = append(rows, fkRow{
			TableName:        stringField(row, "fk_table_name"),
			ColumnName:       stringField(row, "fk_column_name"),
			ReferencedTable:  stringField(row, "pk_table_name"),
			ReferencedColumn: stringField(row, "pk_column_name"),
			DeleteRule:       stringField(row, "delete_rule"),
			UpdateRule:       stringField(row, "update_rule"),
		})
	})
	return rows, err
}

func stringField(row map[string]interface{}, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// mapSnowflakeType maps a Snowflake data type to a TypeTag.
func mapSnowflakeType(dataType string) model.TypeTag {
	switch strings.ToUpper(dataType) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		return model.TypeInteger
	case "NUMBER", "DECIMAL", "NUMERIC", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return model.TypeFloat
	case "BOOLEAN":
		return model.TypeBoolean
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMP_LTZ", "TIMESTAMP_NTZ", "TIMESTAMP_TZ":
		return model.TypeDatetime
	default:
		return model.TypeString
	}
}
