package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/service"
)

const principalKey contextKey = "principal"

// Principal is the authenticated caller of an API request.
type Principal struct {
	Type    string // "admin" or "api_key"
	AdminID int64
	KeyID   int64
	// Subject is the admin email or the API key prefix. It never holds
	// the secret part of a key.
	Subject string
	IsAdmin bool
}

func (p *Principal) String() string {
	return p.Type + ":" + p.Subject
}

// Authenticate resolves the caller from the API key header or a Bearer
// JWT, in that order, and stores the Principal in the request context.
// Requests with neither get 401. The request logger is tagged with the
// principal so validations and source changes can be attributed.
func Authenticate(authSvc *service.AuthService, keyHeader string) func(http.Handler) http.Handler {
	if keyHeader == "" {
		keyHeader = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, msg := resolvePrincipal(r, authSvc, keyHeader)
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if l, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok {
				ctx = context.WithValue(ctx, loggerKey, l.With("principal", principal.String()))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolvePrincipal(r *http.Request, authSvc *service.AuthService, keyHeader string) (*Principal, string) {
	if raw := r.Header.Get(keyHeader); raw != "" {
		p, err := authSvc.ValidateAPIKey(r.Context(), raw)
		if err != nil {
			return nil, "Invalid API key"
		}
		return &Principal{Type: "api_key", KeyID: p.KeyID, Subject: p.Prefix}, ""
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		p, err := authSvc.ValidateJWT(r.Context(), token)
		if err != nil {
			return nil, "Invalid token"
		}
		return &Principal{Type: "admin", AdminID: p.AdminID, Subject: p.Email, IsAdmin: true}, ""
	}

	return nil, "Authentication required. Provide " + keyHeader + " header or Bearer token."
}

// RequireAdmin rejects non-admin principals with 403. It must run after
// Authenticate.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
