package postgres

import (
	"context"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// newTestConnector creates a PostgresConnector with a known schema name
// backed by sqlmock.
func newTestConnector(t *testing.T) (*PostgresConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresConnector{Pool: connector.NewPool(sqlx.NewDb(db, "pgx")), schemaName: "public"}, mock
}

func TestIntrospectTable(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type"}).AddRow("orders", "BASE TABLE"))

	mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{
			"table_name", "column_name", "data_type", "is_nullable", "column_default",
			"character_maximum_length", "ordinal_position", "udt_name",
		}).
			AddRow("orders", "id", "integer", "NO", "nextval('orders_id_seq')", nil, 1, "int4").
			AddRow("orders", "status", "USER-DEFINED", "NO", nil, nil, 2, "order_status").
			AddRow("orders", "code", "character varying", "YES", nil, int64(12), 3, "varchar").
			AddRow("orders", "customer_id", "bigint", "YES", nil, nil, 4, "int8"))

	mock.ExpectQuery(`PRIMARY KEY`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("orders", "id"))

	mock.ExpectQuery(`FOREIGN KEY`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{
			"table_name", "column_name", "referenced_table", "referenced_column", "delete_rule", "update_rule",
		}).AddRow("orders", "customer_id", "customers", "id", "CASCADE", "NO ACTION"))

	mock.ExpectQuery(`'UNIQUE'`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name"}).
			AddRow("orders", "orders_code_key", "code"))

	mock.ExpectQuery(`FROM pg_type`).
		WillReturnRows(sqlmock.NewRows([]string{"type_name", "label"}).
			AddRow("order_status", "open").
			AddRow("order_status", "closed"))

	ts, err := c.IntrospectTable(context.Background(), "orders")
	if err != nil {
		t.Fatalf("IntrospectTable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	if got := ts.ColumnNames(); !reflect.DeepEqual(got, []string{"id", "status", "code", "customer_id"}) {
		t.Errorf("columns = %v", got)
	}

	id, _ := ts.Column("id")
	if !id.IsPrimaryKey || !id.IsAutoIncrement || !id.IsUnique || id.DeclaredType != model.TypeInteger {
		t.Errorf("id = %+v", id)
	}

	status, _ := ts.Column("status")
	if !reflect.DeepEqual(status.EnumValues, []string{"open", "closed"}) {
		t.Errorf("status enum = %v", status.EnumValues)
	}

	code, _ := ts.Column("code")
	if !code.IsUnique || code.MaxLength == nil || *code.MaxLength != 12 {
		t.Errorf("code = %+v", code)
	}
	want := []model.ConstraintTag{model.ConstraintUnique, model.ConstraintMaxLength}
	if got := ts.Constraints(code); !reflect.DeepEqual(got, want) {
		t.Errorf("code constraints = %v, want %v", got, want)
	}

	fk, ok := ts.ForeignKeyFor("customer_id")
	if !ok || fk.ReferencedTable != "customers" {
		t.Errorf("customer_id fk = %+v", fk)
	}
}

func TestIntrospectTableNotFound(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WithArgs("public", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type"}))

	_, err := c.IntrospectTable(context.Background(), "ghost")
	if !errs.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildDistinct(t *testing.T) {
	c := &PostgresConnector{schemaName: "sales"}

	sql, args, err := c.BuildDistinct(connector.DistinctRequest{Table: "regions", Column: "code", Limit: 101})
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT DISTINCT "code"::text FROM "sales"."regions" WHERE "code" IS NOT NULL LIMIT $1`
	if sql != want {
		t.Errorf("sql = %s\nwant  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []interface{}{101}) {
		t.Errorf("args = %v", args)
	}

	if _, _, err := c.BuildDistinct(connector.DistinctRequest{Table: "regions"}); err == nil {
		t.Error("expected error without a column")
	}
}

func TestQuoteIdentifier(t *testing.T) {
	c := &PostgresConnector{}
	if got := c.QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("got %s", got)
	}
}

func TestMapPostgresType(t *testing.T) {
	tests := map[string]model.TypeTag{
		"int4":        model.TypeInteger,
		"int8":        model.TypeInteger,
		"numeric":     model.TypeFloat,
		"float8":      model.TypeFloat,
		"bool":        model.TypeBoolean,
		"timestamptz": model.TypeDatetime,
		"date":        model.TypeDatetime,
		"varchar":     model.TypeString,
		"uuid":        model.TypeString,
		"_int4":       model.TypeString,
	}
	for udt, want := range tests {
		if got := mapPostgresType(udt); got != want {
			t.Errorf("mapPostgresType(%q) = %q, want %q", udt, got, want)
		}
	}
}
