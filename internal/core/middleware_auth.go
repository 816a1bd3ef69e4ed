package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"swellcast/internal/types"
)

// AdminAuthMiddleware guards the mutating report endpoints. It requires a
// bearer token matching the configured admin token. Comparison is
// constant-time so the token cannot be recovered byte by byte from response
// timing.
func (s *Server) AdminAuthMiddleware(next http.Handler) http.Handler {
	expected := []byte(s.Config.Auth.RefreshToken.Unmask())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenMissing,
				"authorization required",
				nil,
			))
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			s.Logger.WarnContext(r.Context(), "admin auth rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				"invalid authorization token",
				nil,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractBearerToken parses "Bearer <token>" case-insensitively on the
// scheme. Returns "" for a missing or malformed header.
func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
