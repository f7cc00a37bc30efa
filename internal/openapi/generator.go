package openapi

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/schemaguard/internal/model"
)

// SourceTables holds the reference tables of one source. Each table becomes a
// component schema so API consumers can see the shape a file is checked
// against.
type SourceTables struct {
	Name   string
	Driver string
	Tables []model.TableSchema
}

// Options controls document generation.
type Options struct {
	BaseURL      string
	Version      string
	APIKeyHeader string // defaults to X-API-Key
	Sources      []SourceTables
}

// Generate builds the OpenAPI 3.1 document of the schemaguard HTTP API.
func Generate(opts Options) *openapi3.T {
	version := opts.Version
	if version == "" {
		version = "1.0.0"
	}
	keyHeader := opts.APIKeyHeader
	if keyHeader == "" {
		keyHeader = "X-API-Key"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "schemaguard API",
			Description: "Validate tabular files against reference database schemas and track schema drift.",
			Version:     version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: keyHeader,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	addSharedSchemas(doc)

	var tableNames []string
	for _, src := range opts.Sources {
		for _, table := range src.Tables {
			name := sanitizeSchemaName(src.Name, table.Name)
			sch := columnsToSchema(table.Columns)
			sch.Value.Title = table.Name
			sch.Value.Extensions = map[string]interface{}{
				"x-source": src.Name,
				"x-driver": src.Driver,
			}
			doc.Components.Schemas[name] = sch
			tableNames = append(tableNames, table.Name)
		}
	}
	sort.Strings(tableNames)

	doc.Paths = openapi3.NewPaths()
	addValidatePath(doc, dedupe(tableNames))
	addSourcePaths(doc)
	addHistoryPaths(doc)
	addSystemPaths(doc)

	return doc
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func addValidatePath(doc *openapi3.T, tables []string) {
	tableParam := stringSchema("Target table for every sheet. Inferred from column overlap when omitted.")
	for _, t := range tables {
		tableParam.Enum = append(tableParam.Enum, t)
	}

	body := &openapi3.Schema{
		Type:     &openapi3.Types{"object"},
		Required: []string{"file"},
		Properties: openapi3.Schemas{
			"file": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:        &openapi3.Types{"string"},
				Format:      "binary",
				Description: "A .csv, .tsv, .xlsx, .xlsm or .json file.",
			}},
			"source":       &openapi3.SchemaRef{Value: stringSchema("Reference source name. Defaults to the configured source.")},
			"table":        &openapi3.SchemaRef{Value: tableParam},
			"sheet_tables": &openapi3.SchemaRef{Value: stringSchema(`JSON object mapping sheet names to target tables, e.g. {"Orders":"orders"}.`)},
		},
	}

	responses := newResponses("200", "Validation report", ref("FileReport"))
	setError(responses, "409", "No target table could be inferred; choose one from the candidates")
	setError(responses, "413", "Upload too large")
	setError(responses, "415", "Unsupported file format")
	setError(responses, "422", "File could not be parsed")

	doc.Paths.Set("/api/v1/validate", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"validation"},
			Summary:     "Validate a file",
			Description: "Runs every sheet through extraction, schema comparison, type and quality checks, drift detection and optional enrichment.",
			OperationID: "validate_file",
			RequestBody: &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
				Required: true,
				Content: openapi3.Content{
					"multipart/form-data": &openapi3.MediaType{Schema: &openapi3.SchemaRef{Value: body}},
				},
			}},
			Responses: responses,
		},
	})
}

func addSourcePaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/sources", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"sources"},
			Summary:     "List reference sources",
			OperationID: "list_sources",
			Responses:   newResponses("200", "Sources", listOf(ref("Source"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"sources"},
			Summary:     "Register a reference source",
			Description: "Admin only. The source is saved even when the first connection fails.",
			OperationID: "create_source",
			RequestBody: jsonBody(ref("SourceCreate")),
			Responses:   newResponses("201", "Source created", ref("Source")),
		},
	})
	doc.Paths.Set("/api/v1/sources/{sourceName}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"sources"},
			Summary:     "Remove a reference source",
			Description: "Admin only. Snapshot history is kept.",
			OperationID: "delete_source",
			Parameters:  openapi3.Parameters{pathParam("sourceName", "Source name")},
			Responses:   newResponses("200", "Source removed", successSchema()),
		},
	})
	doc.Paths.Set("/api/v1/sources/{sourceName}/tables", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"sources"},
			Summary:     "List tables of a source",
			OperationID: "list_tables",
			Parameters:  openapi3.Parameters{pathParam("sourceName", "Source name")},
			Responses:   newResponses("200", "Table names", listOf(&openapi3.SchemaRef{Value: stringSchema("")})),
		},
	})
	doc.Paths.Set("/api/v1/sources/{sourceName}/tables/{tableName}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"sources"},
			Summary:     "Describe a reference table",
			OperationID: "describe_table",
			Parameters: openapi3.Parameters{
				pathParam("sourceName", "Source name"),
				pathParam("tableName", "Table name"),
			},
			Responses: newResponses("200", "Declared table schema", ref("TableSchema")),
		},
	})
}

func addHistoryPaths(doc *openapi3.T) {
	limit := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        "limit",
		In:          "query",
		Description: "Maximum snapshots returned, newest first.",
		Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:    &openapi3.Types{"integer"},
			Format:  "int32",
			Default: 20,
		}},
	}}
	doc.Paths.Set("/api/v1/history/{tableID}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"history"},
			Summary:     "List schema snapshots of a table",
			OperationID: "schema_history",
			Parameters:  openapi3.Parameters{pathParam("tableID", "Table identifier"), limit},
			Responses:   newResponses("200", "Snapshots", listOf(ref("SchemaSnapshot"))),
		},
	})
	doc.Paths.Set("/api/v1/history/{tableID}/drift", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"history"},
			Summary:     "Diff two snapshots of a table",
			Description: "Compares the two most recent snapshots unless from and to keys are given.",
			OperationID: "detect_drift",
			Parameters: openapi3.Parameters{
				pathParam("tableID", "Table identifier"),
				queryParam("from", "Older snapshot key"),
				queryParam("to", "Newer snapshot key"),
			},
			Responses: newResponses("200", "Snapshot diff", ref("SnapshotDiff")),
		},
	})
}

func addSystemPaths(doc *openapi3.T) {
	login := &openapi3.Schema{
		Type:     &openapi3.Types{"object"},
		Required: []string{"email", "password"},
		Properties: openapi3.Schemas{
			"email":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
			"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password"}},
		},
	}
	session := objectSchema(map[string]string{
		"session_token": "string",
		"token_type":    "string",
		"expires_in":    "integer",
		"admin_id":      "integer",
		"email":         "string",
		"name":          "string",
	})
	doc.Paths.Set("/api/v1/auth/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Start an admin session",
			OperationID: "login",
			Security:    &openapi3.SecurityRequirements{},
			RequestBody: jsonBody(&openapi3.SchemaRef{Value: login}),
			Responses:   newResponses("200", "Session token", &openapi3.SchemaRef{Value: session}),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "End an admin session",
			OperationID: "logout",
			Responses:   newResponses("200", "Session ended", successSchema()),
		},
	})

	key := objectSchema(map[string]string{
		"id":         "integer",
		"key_prefix": "string",
		"label":      "string",
		"is_active":  "boolean",
		"created_at": "string",
		"expires_at": "string",
	})
	doc.Paths.Set("/api/v1/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "List API keys",
			OperationID: "list_api_keys",
			Responses:   newResponses("200", "API keys", listOf(&openapi3.SchemaRef{Value: key})),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Create an API key",
			Description: "Admin only. The raw key is returned once in api_key.",
			OperationID: "create_api_key",
			RequestBody: jsonBody(&openapi3.SchemaRef{Value: objectSchema(map[string]string{"label": "string", "ttl": "string"})}),
			Responses:   newResponses("201", "API key created", &openapi3.SchemaRef{Value: key}),
		},
	})
	doc.Paths.Set("/api/v1/keys/{prefix}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Revoke an API key",
			OperationID: "revoke_api_key",
			Parameters:  openapi3.Parameters{pathParam("prefix", "Key prefix")},
			Responses:   newResponses("200", "API key revoked", successSchema()),
		},
	})
}

// ─── Component Schemas ──────────────────────────────────────────────────────

func addSharedSchemas(doc *openapi3.T) {
	schemas := doc.Components.Schemas

	schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	schemas["Source"] = &openapi3.SchemaRef{Value: objectSchema(map[string]string{
		"id":               "integer",
		"name":             "string",
		"label":            "string",
		"driver":           "string",
		"schema":           "string",
		"private_key_path": "string",
		"is_active":        "boolean",
		"connected":        "boolean",
		"created_at":       "string",
		"updated_at":       "string",
	})}

	create := objectSchema(map[string]string{
		"name":             "string",
		"label":            "string",
		"driver":           "string",
		"dsn":              "string",
		"schema":           "string",
		"private_key_path": "string",
	})
	create.Required = []string{"name", "driver", "dsn"}
	create.Properties["driver"].Value.Enum = []interface{}{"postgres", "mysql", "mssql", "oracle", "snowflake", "sqlite"}
	schemas["SourceCreate"] = &openapi3.SchemaRef{Value: create}

	column := objectSchema(map[string]string{
		"name":           "string",
		"db_type":        "string",
		"declared_type":  "string",
		"nullable":       "boolean",
		"max_length":     "integer",
		"is_primary_key": "boolean",
		"is_unique":      "boolean",
	})
	schemas["TableSchema"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"name":        &openapi3.SchemaRef{Value: stringSchema("")},
			"type":        &openapi3.SchemaRef{Value: stringSchema("table or view")},
			"columns":     arrayOf(&openapi3.SchemaRef{Value: column}),
			"primary_key": arrayOf(&openapi3.SchemaRef{Value: stringSchema("")}),
		},
	}}

	typeTag := stringSchema("Observed or declared column type")
	typeTag.Enum = []interface{}{"string", "integer", "float", "boolean", "datetime"}
	columns := &openapi3.Schema{
		Type:                 &openapi3.Types{"object"},
		AdditionalProperties: openapi3.AdditionalProperties{Schema: &openapi3.SchemaRef{Value: typeTag}},
	}
	schemas["SchemaSnapshot"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"key":         &openapi3.SchemaRef{Value: stringSchema("Archive key")},
			"table_id":    &openapi3.SchemaRef{Value: stringSchema("")},
			"columns":     &openapi3.SchemaRef{Value: columns},
			"taken_at":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			"source_file": &openapi3.SchemaRef{Value: stringSchema("")},
		},
	}}

	item := objectSchema(map[string]string{
		"type":        "string",
		"category":    "string",
		"column_name": "string",
		"old_value":   "string",
		"new_value":   "string",
		"description": "string",
	})
	diff := objectSchema(map[string]string{
		"table_id":       "string",
		"from_key":       "string",
		"to_key":         "string",
		"has_drift":      "boolean",
		"has_breaking":   "boolean",
		"additive_count": "integer",
		"breaking_count": "integer",
	})
	diff.Properties["items"] = arrayOf(&openapi3.SchemaRef{Value: item})
	schemas["SnapshotDiff"] = &openapi3.SchemaRef{Value: diff}

	// Reports are rendered flat for single-sheet sources and nested under
	// sheet_validation_results otherwise, so only the envelope is fixed.
	report := objectSchema(map[string]string{
		"source_file_name":           "string",
		"processed_at":               "string",
		"user_provided_target_table": "string",
		"inferred_target_table":      "string",
		"status":                     "string",
	})
	report.Properties["sheet_validation_results"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:                 &openapi3.Types{"object"},
		AdditionalProperties: openapi3.AdditionalProperties{Has: boolPtr(true)},
	}}
	report.AdditionalProperties = openapi3.AdditionalProperties{Has: boolPtr(true)}
	schemas["FileReport"] = &openapi3.SchemaRef{Value: report}
}

// columnsToSchema converts table columns to an OpenAPI object schema with all columns as properties.
func columnsToSchema(columns []model.Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	var required []string
	for _, col := range columns {
		s := columnTypeSchema(MapColumn(col))
		s.Description = col.Comment
		for _, v := range col.EnumValues {
			s.Enum = append(s.Enum, v)
		}
		if col.Nullable {
			s.Nullable = true
		} else {
			required = append(required, col.Name)
		}
		if col.MaxLength != nil {
			ml := uint64(*col.MaxLength)
			s.MaxLength = &ml
		}
		if col.IsAutoIncrement {
			s.ReadOnly = true
		}
		props[col.Name] = &openapi3.SchemaRef{Value: s}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

// columnTypeSchema creates a basic Schema for the given type mapping.
func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{
		Type: &openapi3.Types{m.Type},
	}
	if m.Format != "" {
		s.Format = m.Format
	}
	return s
}

// ─── Builders ───────────────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	setError(responses, "400", "Bad request")
	setError(responses, "401", "Unauthorized")
	setError(responses, "404", "Not found")
	setError(responses, "500", "Internal server error")
	return responses
}

func setError(responses *openapi3.Responses, status, description string) {
	desc := description
	responses.Set(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	})
}

func ref(component string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+component, nil)
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Required: true,
		Content:  openapi3.NewContentWithJSONSchemaRef(schema),
	}}
}

func pathParam(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          "path",
		Required:    true,
		Description: description,
		Schema:      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
	}}
}

func queryParam(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          "query",
		Description: description,
		Schema:      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
	}}
}

func stringSchema(description string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: description}
}

// objectSchema builds an object whose properties have the given scalar types.
func objectSchema(props map[string]string) *openapi3.Schema {
	s := &openapi3.Schema{Type: &openapi3.Types{"object"}, Properties: openapi3.Schemas{}}
	for name, typ := range props {
		s.Properties[name] = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}}}
	}
	return s
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

// listOf wraps items in the standard list envelope.
func listOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": arrayOf(items),
				"meta":     metaSchema(),
			},
		},
	}
}

func successSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(map[string]string{"success": "boolean", "message": "string"})}
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of items returned.",
					},
				},
				"took_ms": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:   &openapi3.Types{"number"},
						Format: "double",
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool { return &b }

func dedupe(sorted []string) []string {
	out := sorted[:0:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// sanitizeSchemaName creates a valid OpenAPI component schema name from source + table names.
func sanitizeSchemaName(sourceName, tableName string) string {
	// Capitalize first letter of each part for PascalCase style
	s := capitalize(sourceName) + "_" + capitalize(tableName)
	// Replace any non-alphanumeric chars (except underscore) with underscore
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

