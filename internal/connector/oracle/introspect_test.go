package oracle

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

func newTestConnector(t *testing.T) (*OracleConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &OracleConnector{Pool: connector.NewPool(sqlx.NewDb(db, "oracle")), schemaName: "HR"}, mock
}

func TestIntrospectTable(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM ALL_TABLES`).
		WithArgs("HR", "EMPLOYEES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).AddRow("EMPLOYEES", "BASE TABLE"))

	mock.ExpectQuery(`FROM ALL_TAB_COLUMNS`).
		WithArgs("HR", "EMPLOYEES").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "DATA_SCALE", "NULLABLE",
			"CHAR_LENGTH", "COLUMN_ID", "IDENTITY_COLUMN", "COMMENTS",
		}).
			AddRow("EMPLOYEES", "EMPLOYEE_ID", "NUMBER", int64(0), "N", int64(0), 1, "YES", nil).
			AddRow("EMPLOYEES", "EMAIL", "VARCHAR2", nil, "N", int64(25), 2, "NO", "work email").
			AddRow("EMPLOYEES", "SALARY", "NUMBER", int64(2), "Y", int64(0), 3, "NO", nil).
			AddRow("EMPLOYEES", "DEPARTMENT_ID", "NUMBER", int64(0), "Y", int64(0), 4, "NO", nil))

	mock.ExpectQuery(`FROM ALL_CONSTRAINTS`).
		WithArgs("HR", "EMPLOYEES").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "CONSTRAINT_NAME", "CONSTRAINT_TYPE", "COLUMN_NAME", "REF_TABLE", "REF_COLUMN", "DELETE_RULE",
		}).
			AddRow("EMPLOYEES", "EMP_EMAIL_UK", "U", "EMAIL", nil, nil, nil).
			AddRow("EMPLOYEES", "EMP_EMP_ID_PK", "P", "EMPLOYEE_ID", nil, nil, nil).
			AddRow("EMPLOYEES", "EMP_DEPT_FK", "R", "DEPARTMENT_ID", "DEPARTMENTS", "DEPARTMENT_ID", "NO ACTION"))

	ts, err := c.IntrospectTable(context.Background(), "EMPLOYEES")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"EMPLOYEE_ID"}, ts.PrimaryKey)

	id, _ := ts.Column("EMPLOYEE_ID")
	assert.Equal(t, model.TypeInteger, id.DeclaredType)
	assert.True(t, id.IsAutoIncrement)
	assert.True(t, id.IsUnique)

	email, _ := ts.Column("EMAIL")
	assert.True(t, email.IsUnique)
	assert.Equal(t, "work email", email.Comment)
	require.NotNil(t, email.MaxLength)
	assert.EqualValues(t, 25, *email.MaxLength)

	salary, _ := ts.Column("SALARY")
	assert.Equal(t, model.TypeFloat, salary.DeclaredType)
	assert.Nil(t, salary.MaxLength)

	fk, ok := ts.ForeignKeyFor("DEPARTMENT_ID")
	require.True(t, ok)
	assert.Equal(t, "DEPARTMENTS", fk.ReferencedTable)
}

func TestIntrospectTableNotFound(t *testing.T) {
	c, mock := newTestConnector(t)

	mock.ExpectQuery(`FROM ALL_TABLES`).
		WithArgs("HR", "GHOST").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}))

	_, err := c.IntrospectTable(context.Background(), "GHOST")
	assert.True(t, errs.Is(err, errs.ErrNotFound), "got %v", err)
}

func TestBuildDistinct(t *testing.T) {
	c := &OracleConnector{schemaName: "HR"}
	query, args, err := c.BuildDistinct(connector.DistinctRequest{Table: "JOBS", Column: "JOB_ID", Limit: 7})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT DISTINCT TO_CHAR("JOB_ID") FROM "HR"."JOBS" WHERE "JOB_ID" IS NOT NULL FETCH FIRST :1 ROWS ONLY`,
		query)
	assert.Equal(t, []interface{}{7}, args)
}

func TestMapOracleType(t *testing.T) {
	zero := sql.NullInt64{Int64: 0, Valid: true}
	assert.Equal(t, model.TypeInteger, mapOracleType("NUMBER", zero))
	assert.Equal(t, model.TypeFloat, mapOracleType("NUMBER", sql.NullInt64{}))
	assert.Equal(t, model.TypeDatetime, mapOracleType("TIMESTAMP(6) WITH TIME ZONE", sql.NullInt64{}))
	assert.Equal(t, model.TypeString, mapOracleType("CLOB", sql.NullInt64{}))
}
