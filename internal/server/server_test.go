package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/drivers"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/service"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret = "test-secret-for-jwt-integration-tests"
	testPassword  = "supersecretpassword"
	testAdminName = "Test Admin"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server   *Server
	store    *config.Store
	authSvc  *service.AuthService
	registry *connector.Registry
}

// newTestEnv creates a fresh test environment with an in-memory config store
// and a fully wired Server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, DefaultConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	authSvc := service.NewAuthService(store, testJWTSecret)
	registry := connector.NewRegistry()
	drivers.Register(registry)
	t.Cleanup(registry.CloseAll)

	deps := pipeline.Deps{
		Config:   config.DefaultYAMLConfig(),
		Store:    store,
		Registry: registry,
		DataDir:  t.TempDir(),
		Logger:   zap.NewNop().Sugar(),
	}
	srv := New(cfg, deps, authSvc)

	return &testEnv{
		server:   srv,
		store:    store,
		authSvc:  authSvc,
		registry: registry,
	}
}

// seedAdmin creates the default admin account.
func (e *testEnv) seedAdmin(t *testing.T) {
	t.Helper()
	if _, err := e.authSvc.CreateAdmin(context.Background(), "admin@example.com", testAdminName, testPassword); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
}

// adminToken logs in as the default admin and returns the JWT token string.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	body := jsonBody(t, map[string]string{
		"email":    "admin@example.com",
		"password": testPassword,
	})
	rr := e.do(t, "POST", "/api/v1/auth/session", body, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Token string `json:"session_token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("adminToken: got empty token from login")
	}
	return resp.Token
}

// apiKey issues a fresh API key through the auth service.
func (e *testEnv) apiKey(t *testing.T) string {
	t.Helper()
	raw, _, err := e.authSvc.CreateAPIKey(context.Background(), "test", 0)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return raw
}

// referenceDB writes a SQLite reference database with a customers table and
// returns its path.
func referenceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.db")
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		t.Fatalf("open reference db: %v", err)
	}
	defer db.Close()
	db.MustExec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`)
	return path
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes an authenticated HTTP request using the admin JWT.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doAPIKey executes an HTTP request authenticated with an API key.
func (e *testEnv) doAPIKey(t *testing.T, method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"X-API-Key": apiKey,
	})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
	checks, ok := resp["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("expected checks to be a map")
	}
	if len(checks) != 0 {
		t.Errorf("expected 0 checks with no connectors, got %d", len(checks))
	}
}

func TestReadyz_WithSource(t *testing.T) {
	env := newTestEnv(t)
	if err := env.registry.Connect("ref", connector.ConnectionConfig{Driver: "sqlite", DSN: referenceDB(t)}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Checks["ref"] != "ok" {
		t.Errorf("checks = %v, want ref ok", resp.Checks)
	}
}

func TestOpenAPI_NoAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Authentication / authorization tests
// ---------------------------------------------------------------------------

func TestLogin_ThroughServer(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)

	token := env.adminToken(t)
	rr := env.doAuth(t, "GET", "/api/v1/sources", nil, token)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAuth(t, "DELETE", "/api/v1/auth/session", nil, token)
	assertStatus(t, rr, http.StatusOK)
}

func TestEndpoints_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/sources"},
		{"POST", "/api/v1/sources"},
		{"DELETE", "/api/v1/sources/x"},
		{"GET", "/api/v1/sources/x/tables"},
		{"POST", "/api/v1/validate"},
		{"GET", "/api/v1/history/customers"},
		{"GET", "/api/v1/history/customers/drift"},
		{"GET", "/api/v1/keys"},
		{"POST", "/api/v1/keys"},
		{"DELETE", "/api/v1/auth/session"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			var body io.Reader
			if ep.method == "POST" {
				body = jsonBody(t, map[string]string{})
			}
			rr := env.do(t, ep.method, ep.path, body, nil)
			assertStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestEndpoints_InvalidJWT(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "GET", "/api/v1/sources", nil, "invalid.jwt.token")
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestEndpoints_ExpiredJWT(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)

	token, err := env.authSvc.IssueJWT(context.Background(), 1, "admin@example.com", -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	rr := env.doAuth(t, "GET", "/api/v1/sources", nil, token)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAPIKey_CannotManage(t *testing.T) {
	env := newTestEnv(t)
	key := env.apiKey(t)

	rr := env.doAPIKey(t, "GET", "/api/v1/sources", nil, key)
	assertStatus(t, rr, http.StatusOK)

	forbidden := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/sources"},
		{"DELETE", "/api/v1/sources/x"},
		{"GET", "/api/v1/keys"},
		{"POST", "/api/v1/keys"},
		{"DELETE", "/api/v1/keys/abc"},
	}
	for _, ep := range forbidden {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			var body io.Reader
			if ep.method == "POST" {
				body = jsonBody(t, map[string]string{})
			}
			rr := env.doAPIKey(t, ep.method, ep.path, body, key)
			assertStatus(t, rr, http.StatusForbidden)
		})
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeyHeader = "X-Schemaguard-Key"
	env := newTestEnvWithConfig(t, cfg)
	key := env.apiKey(t)

	rr := env.do(t, "GET", "/api/v1/sources", nil, map[string]string{"X-Schemaguard-Key": key})
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "GET", "/api/v1/sources", nil, key)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// End-to-end flow
// ---------------------------------------------------------------------------

func TestValidationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/v1/sources", jsonBody(t, map[string]string{
		"name":   "ref",
		"driver": "sqlite",
		"dsn":    referenceDB(t),
	}), token)
	assertStatus(t, rr, http.StatusCreated)

	rr = env.doAuth(t, "POST", "/api/v1/keys", jsonBody(t, map[string]string{"label": "loader"}), token)
	assertStatus(t, rr, http.StatusCreated)
	var created struct {
		Key string `json:"api_key"`
	}
	decodeJSON(t, rr, &created)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("table", "customers")
	part, _ := mw.CreateFormFile("file", "customers.csv")
	part.Write([]byte("id,name,email\n1,Ada,ada@example.com\n"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/validate", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", created.Key)
	vr := httptest.NewRecorder()
	env.server.ServeHTTP(vr, req)
	assertStatus(t, vr, http.StatusOK)

	var report map[string]interface{}
	decodeJSON(t, vr, &report)
	if report["target_table"] != "customers" {
		t.Errorf("target_table = %v, want customers", report["target_table"])
	}

	rr = env.doAPIKey(t, "GET", "/api/v1/history/customers", nil, created.Key)
	assertStatus(t, rr, http.StatusOK)
	var hist struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	decodeJSON(t, rr, &hist)
	if hist.Meta.Count != 1 {
		t.Errorf("history count = %d, want 1", hist.Meta.Count)
	}
}

// ---------------------------------------------------------------------------
// Middleware wiring
// ---------------------------------------------------------------------------

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/v1/sources", nil, map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("expected Access-Control-Allow-Origin header, got none (status %d)", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/healthz", nil, nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	env := newTestEnvWithConfig(t, cfg)

	var last int
	for i := 0; i < 3; i++ {
		rr := env.do(t, "GET", "/api/v1/sources", nil, nil)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

// ---------------------------------------------------------------------------
// Config tests
// ---------------------------------------------------------------------------

func TestConfigFromYAML(t *testing.T) {
	y := config.DefaultYAMLConfig()
	y.Server.Port = 9090
	y.Server.MaxUploadSize = "5MB"
	y.Server.ShutdownTimeout = "5s"
	y.Server.RateLimit = 0
	y.Server.TLS = config.TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem"}
	y.Auth.JWTExpiry = "2h"
	y.Auth.APIKeyHeader = "X-Key"

	cfg := ConfigFromYAML(y)
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MaxUploadSize != 5_000_000 {
		t.Errorf("MaxUploadSize = %d, want 5000000", cfg.MaxUploadSize)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit = %d, want 0", cfg.RateLimit)
	}
	if cfg.TLSCertFile != "c.pem" || cfg.TLSKeyFile != "k.pem" {
		t.Errorf("TLS files = %q/%q", cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v, want 2h", cfg.JWTExpiry)
	}
	if cfg.APIKeyHeader != "X-Key" {
		t.Errorf("APIKeyHeader = %q, want X-Key", cfg.APIKeyHeader)
	}
}

func TestConfigFromYAML_Nil(t *testing.T) {
	cfg := ConfigFromYAML(nil)
	def := DefaultConfig()
	if cfg.Port != def.Port || cfg.MaxUploadSize != def.MaxUploadSize {
		t.Errorf("nil config should yield defaults, got %+v", cfg)
	}
}
