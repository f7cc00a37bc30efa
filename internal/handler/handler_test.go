package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/drivers"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *config.Store
	authSvc  *service.AuthService
	registry *connector.Registry
	deps     pipeline.Deps
	router   chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config store,
// a registry with every driver, and a Chi router with all routes mounted
// (no auth middleware).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := connector.NewRegistry()
	drivers.Register(registry)
	t.Cleanup(registry.CloseAll)

	cfg := config.DefaultYAMLConfig()
	deps := pipeline.Deps{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		DataDir:  t.TempDir(),
	}

	authSvc := service.NewAuthService(store, testJWTSecret)
	sysHandler := NewSystemHandler(store, authSvc, registry, time.Hour, nil)
	schemaHandler := NewSchemaHandler(deps)
	historyHandler := NewHistoryHandler(deps)
	validateHandler := NewValidateHandler(deps, 1<<20)
	openAPIHandler := NewOpenAPIHandler(registry, store, "X-API-Key", "test", nil)

	// Mount routes without auth middleware for direct handler testing.
	r := chi.NewRouter()
	r.Get("/openapi.json", openAPIHandler.ServeSpec)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/session", sysHandler.Login)
		r.Delete("/auth/session", sysHandler.Logout)

		r.Post("/validate", validateHandler.Validate)

		r.Get("/sources", sysHandler.ListSources)
		r.Post("/sources", sysHandler.CreateSource)
		r.Delete("/sources/{sourceName}", sysHandler.DeleteSource)
		r.Get("/sources/{sourceName}/tables", schemaHandler.ListTables)
		r.Get("/sources/{sourceName}/tables/{tableName}", schemaHandler.GetTableSchema)

		r.Get("/history/{tableID}", historyHandler.ListSnapshots)
		r.Get("/history/{tableID}/drift", historyHandler.Drift)

		r.Get("/keys", sysHandler.ListAPIKeys)
		r.Post("/keys", sysHandler.CreateAPIKey)
		r.Delete("/keys/{prefix}", sysHandler.RevokeAPIKey)
	})

	return &testEnv{
		store:    store,
		authSvc:  authSvc,
		registry: registry,
		deps:     deps,
		router:   r,
	}
}

// seedAdmin creates a default admin account and returns it.
func (e *testEnv) seedAdmin(t *testing.T) *model.Admin {
	t.Helper()
	admin, err := e.authSvc.CreateAdmin(context.Background(), "admin@example.com", "Test Admin", testPassword)
	if err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin
}

// seedSource creates a SQLite reference database file from ddl, registers
// it under name, and connects it.
func (e *testEnv) seedSource(t *testing.T, name string, ddl ...string) *model.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		t.Fatalf("open reference db: %v", err)
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	db.Close()

	src := &model.Source{
		Name:     name,
		Label:    name,
		Driver:   "sqlite",
		DSN:      path,
		IsActive: true,
		Pool:     model.DefaultPoolConfig(),
	}
	if err := e.store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("seedSource: %v", err)
	}
	if err := e.registry.Connect(name, connector.ConfigFromSource(*src)); err != nil {
		t.Fatalf("connect source: %v", err)
	}
	return src
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
