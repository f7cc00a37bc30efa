package mysql

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

func newTestConnector(t *testing.T) (*MySQLConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &MySQLConnector{Pool: connector.NewPool(sqlx.NewDb(db, "mysql")), schemaName: "shop"}, mock
}

func TestIntrospectSchema(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.TABLES`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("customers", "BASE TABLE").
			AddRow("v_active", "VIEW"))

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.COLUMNS`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE",
			"COLUMN_DEFAULT", "CHARACTER_MAXIMUM_LENGTH", "ORDINAL_POSITION", "EXTRA", "COLUMN_COMMENT",
		}).
			AddRow("customers", "id", "int", "int(11)", "NO", nil, nil, 1, "auto_increment", "").
			AddRow("customers", "email", "varchar", "varchar(255)", "NO", nil, int64(255), 2, "", "login").
			AddRow("customers", "tier", "enum", "enum('gold','silver')", "YES", nil, int64(6), 3, "", "").
			AddRow("customers", "active", "tinyint", "tinyint(1)", "NO", nil, nil, 4, "", "").
			AddRow("v_active", "id", "int", "int(11)", "NO", nil, nil, 1, "", ""))

	mock.ExpectQuery(`CONSTRAINT_NAME = 'PRIMARY'`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME"}).AddRow("customers", "id"))

	mock.ExpectQuery(`REFERENTIAL_CONSTRAINTS`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "DELETE_RULE", "UPDATE_RULE",
		}))

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.STATISTICS`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "INDEX_NAME", "COLUMN_NAME"}).
			AddRow("customers", "PRIMARY", "id").
			AddRow("customers", "uq_email", "email"))

	schema, err := c.IntrospectSchema(context.Background())
	if err != nil {
		t.Fatalf("IntrospectSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	if len(schema.Tables) != 1 || len(schema.Views) != 1 {
		t.Fatalf("tables=%d views=%d", len(schema.Tables), len(schema.Views))
	}
	customers := schema.Tables[0]

	email, _ := customers.Column("email")
	if !email.IsUnique || email.Comment != "login" {
		t.Errorf("email = %+v", email)
	}
	tier, _ := customers.Column("tier")
	if !reflect.DeepEqual(tier.EnumValues, []string{"gold", "silver"}) {
		t.Errorf("tier enum = %v", tier.EnumValues)
	}
	active, _ := customers.Column("active")
	if active.DeclaredType != model.TypeBoolean {
		t.Errorf("active type = %s", active.DeclaredType)
	}
	id, _ := customers.Column("id")
	if !id.IsPrimaryKey || !id.IsAutoIncrement || !id.IsUnique {
		t.Errorf("id = %+v", id)
	}
}

func TestIntrospectTableNotFound(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.TABLES`).
		WithArgs("shop", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}))

	_, err := c.IntrospectTable(context.Background(), "ghost")
	if !errs.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseEnumValues(t *testing.T) {
	tests := []struct {
		dataType, columnType string
		want                 []string
	}{
		{"enum", "enum('a','b')", []string{"a", "b"}},
		{"enum", "enum('it''s','x,y')", []string{"it's", "x,y"}},
		{"varchar", "varchar(10)", nil},
		{"enum", "enum", nil},
	}
	for _, tt := range tests {
		got := parseEnumValues(tt.dataType, tt.columnType)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseEnumValues(%q) = %v, want %v", tt.columnType, got, tt.want)
		}
	}
}

func TestMapMySQLType(t *testing.T) {
	tests := []struct {
		dataType, columnType string
		want                 model.TypeTag
	}{
		{"tinyint", "tinyint(1)", model.TypeBoolean},
		{"tinyint", "tinyint(4)", model.TypeInteger},
		{"bigint", "bigint(20)", model.TypeInteger},
		{"decimal", "decimal(10,2)", model.TypeFloat},
		{"datetime", "datetime", model.TypeDatetime},
		{"json", "json", model.TypeString},
		{"enum", "enum('a')", model.TypeString},
	}
	for _, tt := range tests {
		if got := mapMySQLType(tt.dataType, tt.columnType); got != tt.want {
			t.Errorf("mapMySQLType(%q, %q) = %q, want %q", tt.dataType, tt.columnType, got, tt.want)
		}
	}
}

func TestBuildDistinct(t *testing.T) {
	c := &MySQLConnector{schemaName: "shop"}
	sql, args, err := c.BuildDistinct(connector.DistinctRequest{Table: "regions", Column: "code", Limit: 11})
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT DISTINCT CAST(`code` AS CHAR) FROM `shop`.`regions` WHERE `code` IS NOT NULL LIMIT ?"
	if sql != want {
		t.Errorf("sql = %s\nwant  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []interface{}{11}) {
		t.Errorf("args = %v", args)
	}
}
