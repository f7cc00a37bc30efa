// Package drivers wires every built-in reference database connector into a
// connector.Registry.
package drivers

import (
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/mssql"
	"github.com/faucetdb/schemaguard/internal/connector/mysql"
	"github.com/faucetdb/schemaguard/internal/connector/oracle"
	"github.com/faucetdb/schemaguard/internal/connector/postgres"
	"github.com/faucetdb/schemaguard/internal/connector/snowflake"
	"github.com/faucetdb/schemaguard/internal/connector/sqlite"
)

// Register adds the postgres, mysql, mssql, oracle, snowflake and sqlite
// factories to r.
func Register(r *connector.Registry) {
	r.RegisterDriver("postgres", postgres.New)
	r.RegisterDriver("mysql", mysql.New)
	r.RegisterDriver("mssql", mssql.New)
	r.RegisterDriver("oracle", oracle.New)
	r.RegisterDriver("snowflake", snowflake.New)
	r.RegisterDriver("sqlite", sqlite.New)
}
