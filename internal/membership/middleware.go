package membership

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/texlink/texlink/internal/platform/httpx"
	"github.com/texlink/texlink/internal/shared"
)

// Identity headers injected by the upstream gateway after authentication.
const (
	HeaderUserID    = "X-User-ID"
	HeaderCompanyID = "X-Company-ID"
)

// Middleware resolves and enforces actor permissions on HTTP routes.
type Middleware struct {
	service *Service
	logger  *slog.Logger
}

// NewMiddleware constructs the middleware.
func NewMiddleware(service *Service, logger *slog.Logger) *Middleware {
	return &Middleware{service: service, logger: logger}
}

// ResolveActor reads the gateway identity headers, resolves the actor and
// stores it in the request context. Requests without a resolvable active
// membership are rejected.
func (m *Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err1 := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		companyID, err2 := strconv.ParseInt(r.Header.Get(HeaderCompanyID), 10, 64)
		if err1 != nil || err2 != nil || userID <= 0 || companyID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity headers")
			return
		}
		actor, err := m.service.ResolveActor(r.Context(), userID, companyID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "no active membership")
				return
			}
			m.logger.Error("resolve actor", slog.Int64("user_id", userID), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// Require rejects requests whose actor lacks the permission.
func (m *Middleware) Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor not resolved")
				return
			}
			if !actor.Has(perm) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
