package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/telemetrykit/observe"
)

func TestMiddleware(t *testing.T) {
	guard := New(Config{
		APIKeys:   []string{"reader-key"},
		JWTSecret: string(testSecret),
	})
	var logs bytes.Buffer
	h := Middleware(guard, observe.NewLoggerWithWriter("info", &logs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "grafana"})

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{"api key", map[string]string{"X-API-Key": "reader-key"}, http.StatusNoContent, ""},
		{"bearer", map[string]string{"Authorization": "Bearer " + token}, http.StatusNoContent, ""},
		{"none", nil, http.StatusUnauthorized, ErrMissingCredentials.Error()},
		{"bad key", map[string]string{"X-API-Key": "guess"}, http.StatusUnauthorized, ErrInvalidCredentials.Error()},
		{"bad key, good token", map[string]string{"X-API-Key": "guess", "Authorization": "Bearer " + token}, http.StatusNoContent, ""},
		{"malformed token", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized, ErrTokenMalformed.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/telemetry/logs/error", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantErr == "" {
				return
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantErr {
				t.Errorf("error = %q, want %q", body["error"], tt.wantErr)
			}
		})
	}

	if strings.Contains(logs.String(), "guess") {
		t.Errorf("rejection log contains the credential: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "request rejected") {
		t.Errorf("rejections were not logged: %s", logs.String())
	}
}
