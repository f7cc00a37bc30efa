package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/pipeline"
)

// SchemaHandler serves declared reference schemas.
type SchemaHandler struct {
	deps pipeline.Deps
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(deps pipeline.Deps) *SchemaHandler {
	return &SchemaHandler{deps: deps}
}

// ListTables returns the table names of a source, sorted.
// GET /api/v1/sources/{sourceName}/tables
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	sourceName := chi.URLParam(r, "sourceName")

	conn, release, err := pipeline.Connect(r.Context(), h.deps, sourceName)
	if err != nil {
		writeErr(w, err, "Source unavailable")
		return
	}
	if release != nil {
		defer release()
	}

	names, err := conn.GetTableNames(r.Context())
	if err != nil {
		writeErr(w, err, "Failed to list tables")
		return
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: names,
		Meta:     &model.ResponseMeta{Count: len(names)},
	})
}

// GetTableSchema returns the declared schema of one table.
// GET /api/v1/sources/{sourceName}/tables/{tableName}
func (h *SchemaHandler) GetTableSchema(w http.ResponseWriter, r *http.Request) {
	sourceName := chi.URLParam(r, "sourceName")
	tableName := chi.URLParam(r, "tableName")

	conn, release, err := pipeline.Connect(r.Context(), h.deps, sourceName)
	if err != nil {
		writeErr(w, err, "Source unavailable")
		return
	}
	if release != nil {
		defer release()
	}

	table, err := conn.IntrospectTable(r.Context(), tableName)
	if err != nil {
		writeErr(w, err, "Failed to describe table")
		return
	}

	writeJSON(w, http.StatusOK, table)
}
