package openapi

import (
	"strings"

	"github.com/faucetdb/schemaguard/internal/model"
)

// TypeMapping is an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string
	Format string
}

// nativeFormats refines the format of a canonical type from the native
// column type, keyed by the native name with size and array suffixes
// stripped.
var nativeFormats = map[string]string{
	"date":             "date",
	"time":             "time",
	"timetz":           "time",
	"uuid":             "uuid",
	"uniqueidentifier": "uuid",
	"bytea":            "byte",
	"binary":           "byte",
	"varbinary":        "byte",
	"blob":             "byte",
	"image":            "byte",
	"raw":              "byte",
	"smallint":         "int32",
	"int":              "int32",
	"int2":             "int32",
	"int4":             "int32",
	"integer":          "int32",
	"mediumint":        "int32",
	"tinyint":          "int32",
	"real":             "float",
	"float4":           "float",
}

// MapColumn derives the OpenAPI type of a reference column from its
// canonical declared type. The native type only narrows the format.
func MapColumn(col model.Column) TypeMapping {
	native := nativeBase(col.Type)
	format := nativeFormats[native]

	switch col.DeclaredType {
	case model.TypeInteger:
		if format != "int32" {
			format = "int64"
		}
		return TypeMapping{"integer", format}
	case model.TypeFloat:
		if format != "float" {
			format = "double"
		}
		return TypeMapping{"number", format}
	case model.TypeBoolean:
		return TypeMapping{"boolean", ""}
	case model.TypeDatetime:
		if format != "date" && format != "time" {
			format = "date-time"
		}
		return TypeMapping{"string", format}
	default:
		if format != "uuid" && format != "byte" {
			format = ""
		}
		return TypeMapping{"string", format}
	}
}

// nativeBase lowercases a native type and strips its size, unsigned and
// array decorations: "VARCHAR(255)" -> "varchar", "int unsigned" -> "int".
func nativeBase(dbType string) string {
	s := strings.ToLower(strings.TrimSpace(dbType))
	if idx := strings.IndexByte(s, '('); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), " unsigned")
	s = strings.TrimSuffix(s, "[]")
	if strings.HasPrefix(s, "time ") {
		return "time"
	}
	return strings.TrimSpace(s)
}
