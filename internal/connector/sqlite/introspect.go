package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list().
type foreignKeyRow struct {
	ID       int    `db:"id"`
	Seq      int    `db:"seq"`
	Table    string `db:"table"`
	From     string `db:"from"`
	To       string `db:"to"`
	OnUpdate string `db:"on_update"`
	OnDelete string `db:"on_delete"`
	Match    string `db:"match"`
}

// indexListRow holds a row from PRAGMA index_list().
type indexListRow struct {
	Seq     int    `db:"seq"`
	Name    string `db:"name"`
	Unique  int    `db:"unique"`
	Origin  string `db:"origin"`
	Partial int    `db:"partial"`
}

// indexInfoRow holds a row from PRAGMA index_info().
type indexInfoRow struct {
	SeqNo int     `db:"seqno"`
	CID   int     `db:"cid"`
	Name  *string `db:"name"`
}

// IntrospectSchema returns the declared schema of every table and view in
// the SQLite database.
func (c *SQLiteConnector) IntrospectSchema(ctx context.Context) (*model.Schema, error) {
	const query = `SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	type masterRow struct {
		Name string `db:"name"`
		Type string `db:"type"`
	}

	var rows []masterRow
	if err := c.DB().SelectContext(ctx, &rows, query); err != nil {
		return nil, errs.Wrap(err, "introspect schema")
	}

	schema := &model.Schema{
		Tables: []model.TableSchema{},
		Views:  []model.TableSchema{},
	}

	for _, row := range rows {
		ts, err := c.IntrospectTable(ctx, row.Name)
		if err != nil {
			return nil, errs.Wrapf(err, "introspect table %q", row.Name)
		}

		switch row.Type {
		case "view":
			ts.Type = "view"
			schema.Views = append(schema.Views, *ts)
		default:
			ts.Type = "table"
			schema.Tables = append(schema.Tables, *ts)
		}
	}

	return schema, nil
}

// IntrospectTable returns the schema for a single table or view.
func (c *SQLiteConnector) IntrospectTable(ctx context.Context, tableName string) (*model.TableSchema, error) {
	// Fetch column info via PRAGMA
	pragmaQuery := fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdentifier(tableName))
	var columns []tableInfoRow
	if err := c.DB().SelectContext(ctx, &columns, pragmaQuery); err != nil {
		return nil, errs.Wrapf(err, "table_info for %q", tableName)
	}

	if len(columns) == 0 {
		return nil, errs.NewNotFoundError("table %q not found", tableName)
	}

	// Build primary key list and check for autoincrement
	pkCols := []string{}
	for _, col := range columns {
		if col.PK > 0 {
			pkCols = append(pkCols, col.Name)
		}
	}

	autoIncrCols := c.detectAutoIncrement(ctx, tableName, pkCols)

	modelColumns := make([]model.Column, 0, len(columns))
	for _, col := range columns {
		isPK := col.PK > 0

		modelColumns = append(modelColumns, model.Column{
			Name:            col.Name,
			Position:        col.CID + 1,
			Type:            col.Type,
			DeclaredType:    mapSQLiteType(col.Type),
			Nullable:        col.NotNull == 0 && !isPK,
			Default:         col.Default,
			MaxLength:       declaredLength(col.Type),
			IsPrimaryKey:    isPK,
			IsAutoIncrement: autoIncrCols[col.Name],
		})
	}

	// Fetch foreign keys
	fkQuery := fmt.Sprintf("PRAGMA foreign_key_list(%s)", c.QuoteIdentifier(tableName))
	var fkRows []foreignKeyRow
	if err := c.DB().SelectContext(ctx, &fkRows, fkQuery); err != nil {
		return nil, errs.Wrapf(err, "foreign_key_list for %q", tableName)
	}

	foreignKeys := make([]model.ForeignKey, 0, len(fkRows))
	for _, fk := range fkRows {
		foreignKeys = append(foreignKeys, model.ForeignKey{
			Name:             fmt.Sprintf("fk_%s_%s", tableName, fk.From),
			ColumnName:       fk.From,
			ReferencedTable:  fk.Table,
			ReferencedColumn: fk.To,
			OnDelete:         fk.OnDelete,
			OnUpdate:         fk.OnUpdate,
		})
	}

	// Fetch indexes
	idxQuery := fmt.Sprintf("PRAGMA index_list(%s)", c.QuoteIdentifier(tableName))
	var idxRows []indexListRow
	if err := c.DB().SelectContext(ctx, &idxRows, idxQuery); err != nil {
		return nil, errs.Wrapf(err, "index_list for %q", tableName)
	}

	indexes := make([]model.Index, 0, len(idxRows)+1)
	for _, idx := range idxRows {
		infoQuery := fmt.Sprintf("PRAGMA index_info(%s)", c.QuoteIdentifier(idx.Name))
		var infoRows []indexInfoRow
		if err := c.DB().SelectContext(ctx, &infoRows, infoQuery); err != nil {
			continue
		}

		idxCols := make([]string, 0, len(infoRows))
		for _, info := range infoRows {
			if info.Name != nil {
				idxCols = append(idxCols, *info.Name)
			}
		}

		indexes = append(indexes, model.Index{
			Name:     idx.Name,
			Columns:  idxCols,
			IsUnique: idx.Unique == 1,
		})
	}

	// An INTEGER PRIMARY KEY aliases the rowid and has no index of its own.
	if len(pkCols) == 1 && autoIncrCols[pkCols[0]] {
		indexes = append(indexes, model.Index{Name: tableName + "_rowid", Columns: pkCols, IsUnique: true})
	}

	tableType := "table"
	var objType string
	typeQuery := `SELECT type FROM sqlite_master WHERE name = ?`
	if err := c.DB().GetContext(ctx, &objType, typeQuery, tableName); err == nil {
		if objType == "view" {
			tableType = "view"
		}
	}

	ts := &model.TableSchema{
		Name:        tableName,
		Type:        tableType,
		Columns:     modelColumns,
		PrimaryKey:  pkCols,
		ForeignKeys: foreignKeys,
		Indexes:     indexes,
	}
	connector.MarkUniqueColumns(ts)
	return ts, nil
}

// GetTableNames returns a list of all table names in the database.
func (c *SQLiteConnector) GetTableNames(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var names []string
	if err := c.DB().SelectContext(ctx, &names, query); err != nil {
		return nil, errs.Wrap(err, "get table names")
	}
	return names, nil
}

// detectAutoIncrement checks if the primary key columns use AUTOINCREMENT
// by inspecting the CREATE TABLE SQL in sqlite_master.
func (c *SQLiteConnector) detectAutoIncrement(ctx context.Context, tableName string, pkCols []string) map[string]bool {
	result := make(map[string]bool)

	if len(pkCols) != 1 {
		return result
	}

	var createSQL string
	query := `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
	if err := c.DB().GetContext(ctx, &createSQL, query, tableName); err != nil {
		return result
	}

	upper := strings.ToUpper(createSQL)
	// INTEGER PRIMARY KEY is implicitly an alias for rowid (auto-increment behavior)
	if strings.Contains(upper, "INTEGER PRIMARY KEY") {
		result[pkCols[0]] = true
	}

	return result
}

// declaredLength returns n for declared types like VARCHAR(n). SQLite does
// not enforce it, but files are checked against it all the same.
func declaredLength(typeName string) *int64 {
	open := strings.IndexByte(typeName, '(')
	end := strings.IndexByte(typeName, ')')
	if open < 0 || end <= open {
		return nil
	}
	upper := strings.ToUpper(typeName[:open])
	if !strings.Contains(upper, "CHAR") && !strings.Contains(upper, "TEXT") {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(typeName[open+1:end]), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// mapSQLiteType maps a SQLite declared type to a TypeTag following the
// type affinity rules, with BOOL and DATE/TIME names recognized explicitly.
func mapSQLiteType(typeName string) model.TypeTag {
	upper := strings.ToUpper(strings.TrimSpace(typeName))

	// Strip parenthesized length/precision (e.g., VARCHAR(255) -> VARCHAR)
	if idx := strings.IndexByte(upper, '('); idx >= 0 {
		upper = strings.TrimSpace(upper[:idx])
	}

	// SQLite type affinity rules (https://sqlite.org/datatype3.html)
	switch {
	case strings.Contains(upper, "INT"):
		return model.TypeInteger
	case strings.Contains(upper, "CHAR"),
		strings.Contains(upper, "CLOB"),
		strings.Contains(upper, "TEXT"):
		return model.TypeString
	case strings.Contains(upper, "BLOB") || upper == "":
		return model.TypeString
	case strings.Contains(upper, "REAL"),
		strings.Contains(upper, "FLOA"),
		strings.Contains(upper, "DOUB"):
		return model.TypeFloat
	case strings.Contains(upper, "BOOL"):
		return model.TypeBoolean
	case strings.Contains(upper, "DATE"),
		strings.Contains(upper, "TIME"):
		return model.TypeDatetime
	case strings.Contains(upper, "NUMERIC"),
		strings.Contains(upper, "DECIMAL"):
		return model.TypeFloat
	default:
		return model.TypeString
	}
}
