package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/schemaguard/internal/drift"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 200
)

// registerTools registers all schemaguard MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Validation -----

	srv.AddTool(
		mcp.NewTool("schemaguard_validate_file",
			mcp.WithDescription(
				"Validate a local CSV, TSV, XLSX or JSON file against a reference "+
					"database table. Returns a report per sheet with schema mismatches, "+
					"type violations, data quality issues and drift against earlier "+
					"uploads of the same table.\n\n"+
					"When no table is given and none can be inferred confidently, the "+
					"result lists candidate tables per sheet; call again with table or "+
					"sheet_tables set. Each successful run records a schema snapshot.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path of the file to validate"),
			),
			mcp.WithString("table",
				mcp.Description("Target table for every sheet"),
			),
			mcp.WithObject("sheet_tables",
				mcp.Description("Target table per sheet name (e.g. {\"Orders\": \"orders\"}); overrides table"),
			),
			mcp.WithString("source",
				mcp.Description("Reference source name. Optional when only one source is configured."),
			),
		),
		s.handleValidateFile,
	)

	srv.AddTool(
		mcp.NewTool("schemaguard_list_sheets",
			mcp.WithDescription(
				"List the sheet names of a workbook in their native order. Files "+
					"without sheets report a single unnamed sheet. Use this to build "+
					"sheet_tables for schemaguard_validate_file.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path of the file to inspect"),
			),
		),
		s.handleListSheets,
	)

	// ----- Reference schema -----

	srv.AddTool(
		mcp.NewTool("schemaguard_list_sources",
			mcp.WithDescription(
				"List the reference databases configured in schemaguard with their "+
					"driver and connection state. Use this first to pick a source.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListSources,
	)

	srv.AddTool(
		mcp.NewTool("schemaguard_list_tables",
			mcp.WithDescription(
				"List the tables of a reference source, sorted by name.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("source",
				mcp.Description("Reference source name. Optional when only one source is configured."),
			),
		),
		s.handleListTables,
	)

	srv.AddTool(
		mcp.NewTool("schemaguard_describe_table",
			mcp.WithDescription(
				"Get the declared schema of a reference table: columns with native "+
					"and canonical types, nullability, defaults, keys, uniqueness and "+
					"enum values. These are the constraints files are validated against.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table to describe"),
			),
			mcp.WithString("source",
				mcp.Description("Reference source name. Optional when only one source is configured."),
			),
		),
		s.handleDescribeTable,
	)

	// ----- History -----

	srv.AddTool(
		mcp.NewTool("schemaguard_schema_history",
			mcp.WithDescription(
				"List the recorded schema snapshots of a table, newest first. Each "+
					"snapshot maps column names to the types observed in one upload.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Table identifier the snapshots were recorded under"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of snapshots to return (default 10, max 200)"),
			),
		),
		s.handleSchemaHistory,
	)

	srv.AddTool(
		mcp.NewTool("schemaguard_detect_drift",
			mcp.WithDescription(
				"Compare two schema snapshots of a table and classify each change as "+
					"additive (new column) or breaking (removed or retyped column). "+
					"Without keys the two most recent snapshots are compared.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Table identifier the snapshots were recorded under"),
			),
			mcp.WithString("from",
				mcp.Description("Key of the older snapshot"),
			),
			mcp.WithString("to",
				mcp.Description("Key of the newer snapshot"),
			),
			mcp.WithBoolean("breaking_only",
				mcp.Description("Return only breaking changes (counts still cover the full diff)"),
			),
		),
		s.handleDetectDrift,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleValidateFile runs a file through the validation pipeline.
func (s *MCPServer) handleValidateFile(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	path, err := requireString(request, "path")
	if err != nil {
		return toolError("%v", err)
	}
	if _, err := tabular.CheckSupported(path); err != nil {
		return toolError("Cannot validate %s: %v", path, err)
	}
	sheetTables, err := stringMapArg(request, "sheet_tables")
	if err != nil {
		return toolError("%v", err)
	}

	svc, err := pipeline.Open(ctx, s.deps, optionalString(request, "source"))
	if err != nil {
		return toolError("Failed to open source: %v. Available sources: %v", err, s.deps.Registry.ListSources())
	}
	defer func() {
		if err := svc.Close(); err != nil {
			s.logger.Warnw("close pipeline", "error", err)
		}
	}()

	report, err := svc.Validate(ctx, pipeline.Request{
		Path:        path,
		Table:       optionalString(request, "table"),
		SheetTables: sheetTables,
	})
	if amb, ok := pipeline.AsAmbiguous(err); ok {
		b, _ := json.MarshalIndent(amb, "", "  ")
		return toolError("%v\n\nCandidate tables per sheet:\n%s\n\nCall again with table or sheet_tables set.", amb, b)
	}
	if err != nil {
		return toolError("Validation failed (%s): %v", errs.Kind(err), err)
	}

	return successJSON(report)
}

// handleListSheets lists the sheets of a file.
func (s *MCPServer) handleListSheets(
	_ context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	path, err := requireString(request, "path")
	if err != nil {
		return toolError("%v", err)
	}
	names, err := tabular.SheetNames(path)
	if err != nil {
		return toolError("Cannot read %s: %v", path, err)
	}
	return successJSON(names)
}

type sourceInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	Driver    string `json:"driver"`
	Schema    string `json:"schema,omitempty"`
	IsActive  bool   `json:"is_active"`
	Connected bool   `json:"connected"`
}

func (s *MCPServer) sourceInfos(ctx context.Context) ([]sourceInfo, error) {
	sources, err := s.deps.Store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]sourceInfo, len(sources))
	for i, src := range sources {
		_, connErr := s.deps.Registry.Get(src.Name)
		items[i] = sourceInfo{
			Name:      src.Name,
			Label:     src.Label,
			Driver:    src.Driver,
			Schema:    src.Schema,
			IsActive:  src.IsActive,
			Connected: connErr == nil,
		}
	}
	return items, nil
}

// handleListSources returns all configured reference sources.
func (s *MCPServer) handleListSources(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	items, err := s.sourceInfos(ctx)
	if err != nil {
		return toolError("Failed to list sources: %v", err)
	}
	return successJSON(items)
}

// handleListTables returns the table names of a source.
func (s *MCPServer) handleListTables(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	conn, release, err := pipeline.Connect(ctx, s.deps, optionalString(request, "source"))
	if err != nil {
		return toolError("%v. Available sources: %v", err, s.deps.Registry.ListSources())
	}
	if release != nil {
		defer release()
	}

	names, err := conn.GetTableNames(ctx)
	if err != nil {
		return toolError("Failed to list tables: %v", err)
	}
	sort.Strings(names)
	return successJSON(names)
}

// handleDescribeTable returns the declared schema of one table.
func (s *MCPServer) handleDescribeTable(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tableName, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}

	conn, release, err := pipeline.Connect(ctx, s.deps, optionalString(request, "source"))
	if err != nil {
		return toolError("%v. Available sources: %v", err, s.deps.Registry.ListSources())
	}
	if release != nil {
		defer release()
	}

	table, err := conn.IntrospectTable(ctx, tableName)
	if err != nil {
		// Provide available table names to help the LLM self-correct.
		names, _ := conn.GetTableNames(ctx)
		return toolError("Table %q not found: %v\n\nAvailable tables: %v", tableName, err, names)
	}
	return successJSON(table)
}

// handleSchemaHistory lists recent snapshots of a table.
func (s *MCPServer) handleSchemaHistory(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tableID, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}
	limit := clamp(optionalInt(request, "limit", defaultHistoryLimit), 1, maxHistoryLimit)

	repo, err := pipeline.OpenHistory(s.deps)
	if err != nil {
		return toolError("Snapshot archive unavailable: %v", err)
	}
	snaps, err := repo.LoadRecentSnapshots(ctx, tableID, limit)
	if err != nil {
		return toolError("Failed to load snapshots: %v", err)
	}
	if len(snaps) == 0 {
		tables, _ := repo.HistoryTables(ctx)
		return toolError("No snapshots recorded for %q. Tables with history: %v", tableID, tables)
	}
	return successJSON(snaps)
}

// handleDetectDrift diffs two snapshots of a table.
func (s *MCPServer) handleDetectDrift(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	tableID, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}

	repo, err := pipeline.OpenHistory(s.deps)
	if err != nil {
		return toolError("Snapshot archive unavailable: %v", err)
	}
	from, to, err := repo.SnapshotPair(ctx, tableID, optionalString(request, "from"), optionalString(request, "to"))
	if err != nil {
		return toolError("Failed to load snapshots: %v", err)
	}
	if from == nil {
		return toolError("At least two snapshots of %q are needed to compute drift", tableID)
	}
	diff := drift.DiffSnapshots(*from, *to)
	if request.GetBool("breaking_only", false) {
		diff = diff.BreakingOnly()
	}
	return successJSON(diff)
}
