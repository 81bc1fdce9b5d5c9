package auth

import (
	"encoding/json"
	"net/http"

	"github.com/jonwraymond/telemetrykit/observe"
)

// Middleware rejects requests that a does not authenticate with 401 and a
// JSON error body. Rejections are logged at warn level without the
// credential itself.
func Middleware(a Authenticator, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NoopLogger()
	}
	logger = logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), r.Header)
			if err != nil {
				logger.Warn(r.Context(), "request rejected",
					observe.F("path", r.URL.Path),
					observe.F("remote_addr", r.RemoteAddr),
					observe.F("error", err),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="telemetry"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": reason(err)})
				return
			}
			logger.Debug(r.Context(), "request authenticated",
				observe.F("principal", id.Principal),
				observe.F("method", string(id.Method)),
			)
			next.ServeHTTP(w, r)
		})
	}
}
