package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/service"
)

// SystemHandler manages schemaguard's own state: admin sessions, reference
// sources, and API keys.
type SystemHandler struct {
	store    *config.Store
	authSvc  *service.AuthService
	registry *connector.Registry
	jwtTTL   time.Duration
	logger   *zap.SugaredLogger
}

// NewSystemHandler creates a new SystemHandler. Sessions last jwtTTL, or one
// hour when jwtTTL is zero.
func NewSystemHandler(store *config.Store, authSvc *service.AuthService, registry *connector.Registry, jwtTTL time.Duration, log *zap.SugaredLogger) *SystemHandler {
	if jwtTTL <= 0 {
		jwtTTL = time.Hour
	}
	return &SystemHandler{
		store:    store,
		authSvc:  authSvc,
		registry: registry,
		jwtTTL:   jwtTTL,
		logger:   logger.OrNop(log),
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	AdminID   int64  `json:"admin_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates an admin user and returns a JWT session token.
// POST /api/v1/auth/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, admin, err := h.authSvc.Login(r.Context(), req.Email, req.Password, h.jwtTTL)
	switch {
	case errs.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case errs.Is(err, service.ErrAccountDisabled):
		writeError(w, http.StatusUnauthorized, "Account is disabled")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Authentication error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(h.jwtTTL.Seconds()),
		AdminID:   admin.ID,
		Email:     admin.Email,
		Name:      admin.Name,
	})
}

// Logout is a no-op on the server side since JWTs are stateless. Clients
// discard their token.
// DELETE /api/v1/auth/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

// ---------------------------------------------------------------------------
// Source management
// ---------------------------------------------------------------------------

// ListSources returns all registered reference sources with their live
// connection state.
// GET /api/v1/sources
func (h *SystemHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListSources(r.Context())
	if err != nil {
		writeErr(w, err, "Failed to list sources")
		return
	}

	resources := make([]map[string]interface{}, 0, len(sources))
	for i := range sources {
		m := sourceToMap(&sources[i])
		_, connErr := h.registry.Get(sources[i].Name)
		m["connected"] = connErr == nil
		resources = append(resources, m)
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count: len(resources),
		},
	})
}

// CreateSource registers a new reference database and connects it.
// POST /api/v1/sources
func (h *SystemHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var src model.Source
	if err := readJSON(r, &src); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if src.Name == "" {
		writeError(w, http.StatusBadRequest, "Source name is required")
		return
	}
	if src.Driver == "" {
		writeError(w, http.StatusBadRequest, "Driver is required")
		return
	}
	if src.DSN == "" {
		writeError(w, http.StatusBadRequest, "DSN is required")
		return
	}
	if !h.knownDriver(src.Driver) {
		writeError(w, http.StatusBadRequest, "Unsupported driver: "+src.Driver,
			map[string]interface{}{"drivers": h.registry.Drivers()})
		return
	}

	existing, err := h.store.GetSourceByName(r.Context(), src.Name)
	if err == nil && existing != nil {
		writeError(w, http.StatusConflict, "Source already exists: "+src.Name)
		return
	}

	src.IsActive = true
	src.DSN = connector.SanitizeDSN(src.Driver, src.DSN)
	if src.Pool == (model.PoolConfig{}) {
		src.Pool = model.DefaultPoolConfig()
	}

	if err := h.store.CreateSource(r.Context(), &src); err != nil {
		writeErr(w, err, "Failed to create source")
		return
	}

	// The source is persisted even when the first connection fails.
	if err := h.registry.Connect(src.Name, connector.ConfigFromSource(src)); err != nil {
		h.logger.Warnw("source saved but not connected", "source", src.Name, "error", err)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"source":             sourceToMap(&src),
			"connection_warning": "Source saved but connection failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, sourceToMap(&src))
}

// DeleteSource removes a source and disconnects it. Snapshot history of
// its tables is kept.
// DELETE /api/v1/sources/{sourceName}
func (h *SystemHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sourceName")

	if err := h.store.DeleteSourceByName(r.Context(), name); err != nil {
		if errs.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Source not found: "+name)
			return
		}
		writeErr(w, err, "Failed to delete source")
		return
	}

	_ = h.registry.Disconnect(name)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Source '" + name + "' deleted",
	})
}

func (h *SystemHandler) knownDriver(driver string) bool {
	for _, d := range h.registry.Drivers() {
		if d == driver {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// ListAPIKeys returns every API key without its secret.
// GET /api/v1/keys
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeErr(w, err, "Failed to list API keys")
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

type createKeyRequest struct {
	Label string `json:"label"`
	TTL   string `json:"ttl"`
}

// CreateAPIKey issues a key. The raw key is only ever returned here.
// POST /api/v1/keys
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "Invalid ttl: "+req.TTL)
			return
		}
		ttl = d
	}

	raw, key, err := h.authSvc.CreateAPIKey(r.Context(), req.Label, ttl)
	if err != nil {
		writeErr(w, err, "Failed to create API key")
		return
	}

	m := apiKeyToMap(key)
	m["api_key"] = raw
	writeJSON(w, http.StatusCreated, m)
}

// RevokeAPIKey deactivates the key with the given prefix.
// DELETE /api/v1/keys/{prefix}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")

	if err := h.store.RevokeAPIKeyByPrefix(r.Context(), prefix); err != nil {
		if errs.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+prefix)
			return
		}
		writeErr(w, err, "Failed to revoke API key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key revoked",
	})
}

// ---------------------------------------------------------------------------
// Serialization helpers (avoid exposing sensitive fields like DSN, password)
// ---------------------------------------------------------------------------

func sourceToMap(src *model.Source) map[string]interface{} {
	m := map[string]interface{}{
		"id":         src.ID,
		"name":       src.Name,
		"label":      src.Label,
		"driver":     src.Driver,
		"schema":     src.Schema,
		"is_active":  src.IsActive,
		"created_at": src.CreatedAt,
		"updated_at": src.UpdatedAt,
	}
	if src.PrivateKeyPath != "" {
		m["private_key_path"] = src.PrivateKeyPath
	}
	return m
}

func apiKeyToMap(key *model.APIKey) map[string]interface{} {
	m := map[string]interface{}{
		"id":         key.ID,
		"key_prefix": key.KeyPrefix,
		"label":      key.Label,
		"is_active":  key.IsActive,
		"created_at": key.CreatedAt,
	}
	if key.ExpiresAt != nil {
		m["expires_at"] = key.ExpiresAt
	}
	if key.LastUsed != nil {
		m["last_used"] = key.LastUsed
	}
	return m
}
