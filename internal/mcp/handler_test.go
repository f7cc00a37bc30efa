package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/mark3labs/mcp-go/mcp"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/drivers"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/pipeline"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	truePtr := boolPtr(true)
	if truePtr == nil || *truePtr != true {
		t.Fatalf("boolPtr(true) = %v", truePtr)
	}
	falsePtr := boolPtr(false)
	if falsePtr == nil || *falsePtr != false {
		t.Fatalf("boolPtr(false) = %v", falsePtr)
	}
	if truePtr == falsePtr {
		t.Error("boolPtr(true) and boolPtr(false) should return distinct pointers")
	}
}

func TestAnnotations(t *testing.T) {
	ro := readOnlyAnnotation()
	if ro.ReadOnlyHint == nil || *ro.ReadOnlyHint != true {
		t.Errorf("readOnlyAnnotation ReadOnlyHint = %v, want true", ro.ReadOnlyHint)
	}

	mut := mutatingAnnotation()
	if mut.ReadOnlyHint == nil || *mut.ReadOnlyHint != false {
		t.Errorf("mutatingAnnotation ReadOnlyHint = %v, want false", mut.ReadOnlyHint)
	}
	if mut.DestructiveHint == nil || *mut.DestructiveHint != false {
		t.Errorf("mutatingAnnotation DestructiveHint = %v, want false", mut.DestructiveHint)
	}
}

func TestStringMapArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    map[string]string
		wantErr bool
	}{
		{"absent", map[string]interface{}{}, nil, false},
		{"null", map[string]interface{}{"m": nil}, nil, false},
		{"strings", map[string]interface{}{"m": map[string]interface{}{"Orders": "orders"}}, map[string]string{"Orders": "orders"}, false},
		{"not an object", map[string]interface{}{"m": "orders"}, nil, true},
		{"non-string value", map[string]interface{}{"m": map[string]interface{}{"Orders": 3.0}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stringMapArg(callRequest(tt.args), "m")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

// newTestServer wires an MCPServer to an in-memory store and a SQLite
// reference source named "ref" holding a customers table.
func newTestServer(t *testing.T) *MCPServer {
	t.Helper()

	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := connector.NewRegistry()
	drivers.Register(registry)
	t.Cleanup(registry.CloseAll)

	path := filepath.Join(t.TempDir(), "ref.db")
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		t.Fatalf("open reference db: %v", err)
	}
	db.MustExec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`)
	db.MustExec(`CREATE TABLE orders (order_id INTEGER PRIMARY KEY, total REAL)`)
	db.Close()

	src := &model.Source{Name: "ref", Label: "ref", Driver: "sqlite", DSN: path, IsActive: true, Pool: model.DefaultPoolConfig()}
	if err := store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if err := registry.Connect("ref", connector.ConfigFromSource(*src)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	return NewMCPServer(pipeline.Deps{
		Config:   config.DefaultYAMLConfig(),
		Store:    store,
		Registry: registry,
		DataDir:  t.TempDir(),
	}, "test")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestListSourcesTool(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleListSources(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var items []sourceInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].Name != "ref" || !items[0].Connected {
		t.Errorf("sources = %+v", items)
	}
}

func TestListTablesTool(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleListTables(context.Background(), callRequest(map[string]interface{}{"source": "ref"}))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(resultText(t, res)), &names); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(names) != 2 || names[0] != "customers" || names[1] != "orders" {
		t.Errorf("tables = %v", names)
	}
}

func TestDescribeTableTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleDescribeTable(ctx, callRequest(map[string]interface{}{"table": "customers"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var ts model.TableSchema
	if err := json.Unmarshal([]byte(resultText(t, res)), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ts.Columns) != 3 {
		t.Errorf("columns = %d, want 3", len(ts.Columns))
	}

	res, err = s.handleDescribeTable(ctx, callRequest(map[string]interface{}{"table": "missing"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for unknown table")
	}
	if !strings.Contains(resultText(t, res), "customers") {
		t.Errorf("error should list available tables: %s", resultText(t, res))
	}
}

func TestValidateFileTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := writeFile(t, "customers.csv", "id,name,email\n1,Ada,ada@example.com\n")

	res, err := s.handleValidateFile(ctx, callRequest(map[string]interface{}{"path": path, "table": "customers"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report["target_table"] != "customers" {
		t.Errorf("target_table = %v", report["target_table"])
	}

	res, err = s.handleSchemaHistory(ctx, callRequest(map[string]interface{}{"table": "customers"}))
	if err != nil {
		t.Fatal(err)
	}
	var snaps []model.SchemaSnapshot
	if err := json.Unmarshal([]byte(resultText(t, res)), &snaps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Columns["id"] != model.TypeInteger {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestValidateFileTool_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing path", map[string]interface{}{}, "path"},
		{"missing file", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope.csv")}, "Cannot validate"},
		{"unsupported", map[string]interface{}{"path": writeFile(t, "x.pdf", "%PDF")}, "Cannot validate"},
		{"ambiguous", map[string]interface{}{"path": writeFile(t, "parts.csv", "sku,colour\nA,red\n")}, "Candidate tables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleValidateFile(ctx, callRequest(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Fatalf("expected tool error, got %s", resultText(t, res))
			}
			if !strings.Contains(resultText(t, res), tt.want) {
				t.Errorf("error %q does not mention %q", resultText(t, res), tt.want)
			}
		})
	}
}

func TestDetectDriftTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleDetectDrift(ctx, callRequest(map[string]interface{}{"table": "customers"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error without snapshots")
	}

	for _, content := range []string{
		"id,name,email\n1,Ada,ada@example.com\n",
		"id,name\n1,Ada\n",
	} {
		path := writeFile(t, "customers.csv", content)
		res, err := s.handleValidateFile(ctx, callRequest(map[string]interface{}{"path": path, "table": "customers"}))
		if err != nil || res.IsError {
			t.Fatalf("validate: %v %s", err, resultText(t, res))
		}
	}

	res, err = s.handleDetectDrift(ctx, callRequest(map[string]interface{}{"table": "customers"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var diff struct {
		HasBreaking bool `json:"has_breaking"`
		Items       []struct {
			Category   string `json:"category"`
			ColumnName string `json:"column_name"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &diff); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !diff.HasBreaking || len(diff.Items) != 1 || diff.Items[0].ColumnName != "email" {
		t.Errorf("diff = %+v, want email removed", diff)
	}
}

func TestListSheetsTool(t *testing.T) {
	s := newTestServer(t)
	path := writeFile(t, "a.csv", "x\n1\n")

	res, err := s.handleListSheets(context.Background(), callRequest(map[string]interface{}{"path": path}))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(resultText(t, res)), &names); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(names) != 1 || names[0] != "" {
		t.Errorf("sheets = %q, want one unnamed sheet", names)
	}
}

func TestHistoryResource(t *testing.T) {
	s := newTestServer(t)

	var req mcp.ReadResourceRequest
	req.Params.URI = historyURIPrefix + "customers"
	contents, err := s.handleHistoryResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}

	req.Params.URI = "schemaguard://other/x"
	if _, err := s.handleHistoryResource(context.Background(), req); err == nil {
		t.Error("expected error for malformed URI")
	}
}
