package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/schemaguard/internal/pipeline"
)

const (
	sourcesURI       = "schemaguard://sources"
	schemaURIPrefix  = "schemaguard://schema/"
	historyURIPrefix = "schemaguard://history/"
	resourceHistoryN = 20
	jsonMIMEType     = "application/json"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	srv.AddResource(
		mcp.NewResource(
			sourcesURI,
			"Reference Sources",
			mcp.WithResourceDescription(
				"Reference databases configured in schemaguard, "+
					"with driver and connection state.",
			),
			mcp.WithMIMEType(jsonMIMEType),
		),
		s.handleSourcesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaURIPrefix+"{source}",
			"Reference Schema",
			mcp.WithTemplateDescription(
				"Full schema introspection of a reference source: tables, "+
					"columns, primary keys, foreign keys and indexes.",
			),
			mcp.WithTemplateMIMEType(jsonMIMEType),
		),
		s.handleSchemaResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			historyURIPrefix+"{table}",
			"Schema History",
			mcp.WithTemplateDescription(
				"Most recent schema snapshots recorded for a table, newest first.",
			),
			mcp.WithTemplateMIMEType(jsonMIMEType),
		),
		s.handleHistoryResource,
	)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(b),
		},
	}, nil
}

// handleSourcesResource returns a JSON list of all configured sources.
func (s *MCPServer) handleSourcesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	items, err := s.sourceInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return jsonContents(sourcesURI, items)
}

// handleSchemaResource returns the full introspected schema of a source.
func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	sourceName := strings.TrimPrefix(uri, schemaURIPrefix)
	if sourceName == "" || sourceName == uri {
		return nil, fmt.Errorf("invalid schema URI %q: expected %s{source}", uri, schemaURIPrefix)
	}

	conn, release, err := pipeline.Connect(ctx, s.deps, sourceName)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w (available: %v)", sourceName, err, s.deps.Registry.ListSources())
	}
	if release != nil {
		defer release()
	}

	schema, err := conn.IntrospectSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema for %q: %w", sourceName, err)
	}
	return jsonContents(uri, schema)
}

// handleHistoryResource returns the recent snapshots of a table.
func (s *MCPServer) handleHistoryResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	tableID := strings.TrimPrefix(uri, historyURIPrefix)
	if tableID == "" || tableID == uri {
		return nil, fmt.Errorf("invalid history URI %q: expected %s{table}", uri, historyURIPrefix)
	}

	repo, err := pipeline.OpenHistory(s.deps)
	if err != nil {
		return nil, err
	}
	snaps, err := repo.LoadRecentSnapshots(ctx, tableID, resourceHistoryN)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, snaps)
}
