package authz

import (
	"log/slog"
	"net/http"

	"github.com/meridian-fin/meridian/internal/platform/httpx"
)

// HeaderAPIKey carries the client credential.
const HeaderAPIKey = "X-API-Key"

// Middleware authenticates every request from the X-API-Key header and puts
// the principal on the context. Requests without a valid key stop here with
// 401; per-resource grant checks happen in the handlers, which know what the
// request is for.
func Middleware(svc *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(HeaderAPIKey)
			if presented == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Missing API key", "set the X-API-Key header")
				return
			}
			principal, err := svc.Authenticate(r.Context(), presented)
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "api key rejected", "remote", r.RemoteAddr)
				}
				httpx.Problem(w, http.StatusUnauthorized, "Invalid API key", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
