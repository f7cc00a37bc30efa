package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// columnRow holds the result of querying information_schema.columns for SQL Server.
type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	MaxLength  *int64  `db:"CHARACTER_MAXIMUM_LENGTH"`
	Position   int     `db:"ORDINAL_POSITION"`
}

// identityRow holds identity (auto-increment) information from sys.columns.
type identityRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
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

// indexRow holds one column of a unique index from sys.indexes.
type indexRow struct {
	TableName  string `db:"table_name"`
	IndexName  string `db:"index_name"`
	ColumnName string `db:"column_name"`
}

// IntrospectSchema returns the declared schema of every table and view in
// the configured SQL Server schema.
func (c *MSSQLConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
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
func (c *MSSQLConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
	const tableQuery = `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

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
func (c *MSSQLConnector) GetTableNames(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var names []string
	if err := c.DB().SelectContext(ctx, &names, query, c.schemaName); err != nil {
		return nil, errs.Wrap(err, "get table names")
	}
	return names, nil
}

// --- internal fetch helpers ---

type introspection struct {
	columns    []columnRow
	identities []identityRow
	pks        []pkRow
	fks        []fkRow
	indexes    []indexRow
}

func (c *MSSQLConnector) fetchParts(ctx context.Context, tableName string) (*introspection, error) {
	var (
		p   introspection
		err error
	)
	if p.columns, err = c.fetchColumns(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect columns")
	}
	if p.identities, err = c.fetchIdentityColumns(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect identity columns")
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

	identitySet := make(map[string]bool)
	for _, id := range p.identities {
		if id.TableName == t.TableName {
			identitySet[id.ColumnName] = true
		}
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
			Type:            col.DataType,
			DeclaredType:    mapMSSQLType(col.DataType),
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			MaxLength:       col.MaxLength,
			IsPrimaryKey:    pkSet[col.ColumnName],
			IsAutoIncrement: identitySet[col.ColumnName],
		})
	}

	connector.MarkUniqueColumns(&ts)
	return ts
}

func (c *MSSQLConnector) fetchTables(ctx context.Context) ([]tableRow, error) {
	const query = `SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME`

	var rows []tableRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.schemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

// withTable appends a table filter on col when tableName is set.
func (c *MSSQLConnector) withTable(query, col, tableName string) (string, []interface{}) {
	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND ` + col + ` = @p2`
		args = append(args, tableName)
	}
	return query, args
}

func (c *MSSQLConnector) fetchColumns(ctx context.Context, tableName string) ([]columnRow, error) {
	query, args := c.withTable(`SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = @p1`, "c.TABLE_NAME", tableName)

	query += ` ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MSSQLConnector) fetchIdentityColumns(ctx context.Context, tableName string) ([]identityRow, error) {
	query, args := c.withTable(`SELECT t.name AS table_name, col.name AS column_name
		FROM sys.columns col
		JOIN sys.tables t ON col.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE col.is_identity = 1 AND s.name = @p1`, "t.name", tableName)

	var rows []identityRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MSSQLConnector) fetchPrimaryKeys(ctx context.Context, tableName string) ([]pkRow, error) {
	query, args := c.withTable(`SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			AND tc.TABLE_SCHEMA = @p1`, "tc.TABLE_NAME", tableName)

	query += ` ORDER BY kcu.TABLE_NAME, kcu.ORDINAL_POSITION`

	var rows []pkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MSSQLConnector) fetchForeignKeys(ctx context.Context, tableName string) ([]fkRow, error) {
	query, args := c.withTable(`SELECT
			fk_tab.name AS TABLE_NAME,
			fk_col.name AS COLUMN_NAME,
			pk_tab.name AS REFERENCED_TABLE_NAME,
			pk_col.name AS REFERENCED_COLUMN_NAME,
			fk.delete_referential_action_desc AS DELETE_RULE,
			fk.update_referential_action_desc AS UPDATE_RULE
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		JOIN sys.tables fk_tab ON fkc.parent_object_id = fk_tab.object_id
		JOIN sys.columns fk_col ON fkc.parent_object_id = fk_col.object_id AND fkc.parent_column_id = fk_col.column_id
		JOIN sys.tables pk_tab ON fkc.referenced_object_id = pk_tab.object_id
		JOIN sys.columns pk_col ON fkc.referenced_object_id = pk_col.object_id AND fkc.referenced_column_id = pk_col.column_id
		JOIN sys.schemas s ON fk_tab.schema_id = s.schema_id
		WHERE s.name = @p1`, "fk_tab.name", tableName)

	var rows []fkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MSSQLConnector) fetchUniqueIndexes(ctx context.Context, tableName string) ([]indexRow, error) {
	query, args := c.withTable(`SELECT t.name AS table_name, i.name AS index_name, col.name AS column_name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		JOIN sys.columns col ON ic.object_id = col.object_id AND ic.column_id = col.column_id
		JOIN sys.tables t ON i.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE i.is_unique = 1 AND s.name = @p1`, "t.name", tableName)

	query += ` ORDER BY t.name, i.name, ic.key_ordinal`

	var rows []indexRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// mapMSSQLType maps a SQL Server data type to a TypeTag.
func mapMSSQLType(dataType string) model.TypeTag {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "int", "bigint":
		return model.TypeInteger
	case "float", "real", "decimal", "numeric", "money", "smallmoney":
		return model.TypeFloat
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset", "date":
		return model.TypeDatetime
	case "bit":
		return model.TypeBoolean
	default:
		// Character, binary, uniqueidentifier, xml and spatial types.
		return model.TypeString
	}
}
