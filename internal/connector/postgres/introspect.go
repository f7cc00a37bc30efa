package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// columnRow holds the result of querying information_schema.columns.
type columnRow struct {
	TableName  string  `db:"table_name"`
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	MaxLength  *int64  `db:"character_maximum_length"`
	Position   int     `db:"ordinal_position"`
	UDTName    string  `db:"udt_name"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"table_name"`
	TableType string `db:"table_type"`
}

// pkRow holds a primary key column mapping.
type pkRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	DeleteRule       string `db:"delete_rule"`
	UpdateRule       string `db:"update_rule"`
}

// uniqueRow holds one column of a UNIQUE constraint.
type uniqueRow struct {
	TableName      string `db:"table_name"`
	ConstraintName string `db:"constraint_name"`
	ColumnName     string `db:"column_name"`
}

// enumRow holds one label of a user-defined enum type.
type enumRow struct {
	TypeName string `db:"type_name"`
	Label    string `db:"label"`
}

// IntrospectSchema returns the declared schema of every table and view in
// the configured PostgreSQL schema.
func (c *PostgresConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
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
func (c *PostgresConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
	const tableQuery = `SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`

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
func (c *PostgresConnector) GetTableNames(ctx context.Context) ([]string, error) {
	const query = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var names []string
	if err := c.DB().SelectContext(ctx, &names, query, c.schemaName); err != nil {
		return nil, errs.Wrap(err, "get table names")
	}
	return names, nil
}

// --- internal fetch helpers ---

// introspection gathers per-table metadata rows for one or all tables.
type introspection struct {
	columns []columnRow
	pks     []pkRow
	fks     []fkRow
	uniques []uniqueRow
	enums   map[string][]string
}

func (c *PostgresConnector) fetchParts(ctx context.Context, tableName string) (*introspection, error) {
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
	if p.uniques, err = c.fetchUniques(ctx, tableName); err != nil {
		return nil, errs.Wrap(err, "introspect unique constraints")
	}
	if p.enums, err = c.fetchEnums(ctx); err != nil {
		return nil, errs.Wrap(err, "introspect enum types")
	}
	return &p, nil
}

// build assembles the TableSchema of t from the gathered rows.
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

	for _, col := range p.columns {
		if col.TableName != t.TableName {
			continue
		}
		mc := model.Column{
			Name:            col.ColumnName,
			Position:        col.Position,
			Type:            col.UDTName,
			DeclaredType:    mapPostgresType(col.UDTName),
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			MaxLength:       col.MaxLength,
			IsPrimaryKey:    pkSet[col.ColumnName],
			IsAutoIncrement: col.Default != nil && strings.Contains(*col.Default, "nextval"),
		}
		if strings.EqualFold(col.DataType, "USER-DEFINED") {
			mc.EnumValues = p.enums[col.UDTName]
		}
		ts.Columns = append(ts.Columns, mc)
	}

	if len(ts.PrimaryKey) == 1 {
		ts.Indexes = append(ts.Indexes, model.Index{Name: ts.Name + "_pkey", Columns: ts.PrimaryKey, IsUnique: true})
	}
	connector.MarkUniqueColumns(&ts)
	return ts
}

func (c *PostgresConnector) fetchTables(ctx context.Context) ([]tableRow, error) {
	const query = `SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`

	var rows []tableRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.schemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

// withTable appends a table filter on column col when tableName is set.
func (c *PostgresConnector) withTable(query, col, tableName string) (string, []interface{}) {
	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND ` + col + ` = $2`
		args = append(args, tableName)
	}
	return query, args
}

func (c *PostgresConnector) fetchColumns(ctx context.Context, tableName string) ([]columnRow, error) {
	query, args := c.withTable(`SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.ordinal_position,
			c.udt_name
		FROM information_schema.columns c
		WHERE c.table_schema = $1`, "c.table_name", tableName)

	query += ` ORDER BY c.table_name, c.ordinal_position`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchPrimaryKeys(ctx context.Context, tableName string) ([]pkRow, error) {
	query, args := c.withTable(`SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1`, "tc.table_name", tableName)

	query += ` ORDER BY kcu.table_name, kcu.ordinal_position`

	var rows []pkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchForeignKeys(ctx context.Context, tableName string) ([]fkRow, error) {
	query, args := c.withTable(`SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1`, "tc.table_name", tableName)

	var rows []fkRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchUniques(ctx context.Context, tableName string) ([]uniqueRow, error) {
	query, args := c.withTable(`SELECT tc.table_name, tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'UNIQUE'
			AND tc.table_schema = $1`, "tc.table_name", tableName)

	query += ` ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	var rows []uniqueRow
	if err := c.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchEnums(ctx context.Context) (map[string][]string, error) {
	const query = `SELECT t.typname AS type_name, e.enumlabel AS label
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		ORDER BY t.typname, e.enumsortorder`

	var rows []enumRow
	if err := c.DB().SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	enums := make(map[string][]string)
	for _, r := range rows {
		enums[r.TypeName] = append(enums[r.TypeName], r.Label)
	}
	return enums, nil
}

// mapPostgresType maps a PostgreSQL UDT name to a TypeTag.
func mapPostgresType(udtName string) model.TypeTag {
	switch strings.ToLower(udtName) {
	case "int2", "smallint", "int4", "integer", "serial", "int8", "bigint", "bigserial", "smallserial":
		return model.TypeInteger
	case "float4", "real", "float8", "double precision", "numeric", "decimal":
		return model.TypeFloat
	case "bool", "boolean":
		return model.TypeBoolean
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone", "date":
		return model.TypeDatetime
	case "varchar", "character varying", "char", "bpchar", "character", "text", "name", "citext",
		"uuid", "json", "jsonb", "xml", "money", "inet", "cidr", "macaddr", "interval",
		"time", "timetz", "bytea", "tsvector", "tsquery":
		return model.TypeString
	default:
		// Arrays, enums and geometric types are validated as text.
		return model.TypeString
	}
}
