package handlers

import (
	"net/http"
	"strings"

	"github.com/acai-counter/pos/internal/platform/observability"
	"github.com/acai-counter/pos/internal/platform/requestctx"
	"github.com/acai-counter/pos/internal/services"
)

// SessionHeader names the POS terminal whose cart a request targets.
const SessionHeader = "X-POS-Session"

// SessionMiddleware stores the requested cart session on the context, defaulting to the
// shared counter session.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := observability.SanitizeSession(strings.TrimSpace(r.Header.Get(SessionHeader)))
		if session == "" {
			session = services.DefaultCartSession
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithSession(r.Context(), session)))
	})
}

func sessionFrom(r *http.Request) string {
	if session := requestctx.Session(r.Context()); session != "" {
		return session
	}
	if session := observability.SanitizeSession(strings.TrimSpace(r.Header.Get(SessionHeader))); session != "" {
		return session
	}
	return services.DefaultCartSession
}
