package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/openapi"
)

// OpenAPIHandler serves the generated API document.
type OpenAPIHandler struct {
	registry  *connector.Registry
	store     *config.Store
	keyHeader string
	version   string
	logger    *zap.SugaredLogger
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(registry *connector.Registry, store *config.Store, keyHeader, version string, log *zap.SugaredLogger) *OpenAPIHandler {
	return &OpenAPIHandler{
		registry:  registry,
		store:     store,
		keyHeader: keyHeader,
		version:   version,
		logger:    logger.OrNop(log),
	}
}

// ServeSpec returns the OpenAPI document. Tables of every connected source
// are included as component schemas; sources that fail to introspect are
// left out.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	sources, err := openapi.CollectSources(r.Context(), h.registry, h.store, h.logger)
	if err != nil {
		writeErr(w, err, "Failed to list sources")
		return
	}

	doc := openapi.Generate(openapi.Options{
		BaseURL:      baseURL(r),
		Version:      h.version,
		APIKeyHeader: h.keyHeader,
		Sources:      sources,
	})
	writeJSON(w, http.StatusOK, doc)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
