package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// authUserKey is a context key for the authenticated user.
type authUserKey struct{}

// UserFromContext returns the authenticated user from the request context.
// Returns nil if the request is not authenticated.
func UserFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authUserKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// Public paths that don't require authentication.
var publicPaths = map[string]bool{
	"/api/v1/auth/login":        true,
	"/api/v1/auth/verify-totp":  true,
	"/api/v1/auth/refresh":      true,
	"/api/v1/auth/logout":       true,
	"/api/v1/auth/setup":        true,
	"/api/v1/auth/setup/status": true,
}

// APIKeySet holds SHA-256 hashes of accepted automation API keys.
// Schedulers and CI jobs present the raw key in the X-API-Key header
// instead of going through the login flow.
type APIKeySet struct {
	hashes [][]byte
}

// NewAPIKeySet parses hex-encoded SHA-256 key hashes from configuration.
func NewAPIKeySet(hexHashes []string) (*APIKeySet, error) {
	set := &APIKeySet{}
	for _, h := range hexHashes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("invalid API key hash %q: want hex-encoded SHA-256", h)
		}
		set.hashes = append(set.hashes, raw)
	}
	return set, nil
}

// Check reports whether the presented key matches any configured hash.
// Comparison is constant-time per hash.
func (s *APIKeySet) Check(key string) bool {
	if s == nil || key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	matched := false
	for _, h := range s.hashes {
		if subtle.ConstantTimeCompare(sum[:], h) == 1 {
			matched = true
		}
	}
	return matched
}

// Empty reports whether no keys are configured.
func (s *APIKeySet) Empty() bool {
	return s == nil || len(s.hashes) == 0
}

// AuthMiddleware validates JWT access tokens on API routes. Requests
// carrying a valid X-API-Key are granted operator-level automation claims.
// Public paths and non-API paths (healthz, readyz, metrics) are skipped.
func AuthMiddleware(tokens *TokenService, keys *APIKeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip non-API paths (healthz, readyz, metrics, etc.).
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			// Skip WebSocket paths (auth handled by WS handler via query param).
			if r.URL.Path == "/api/v1/ws" || strings.HasPrefix(r.URL.Path, "/api/v1/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			// Skip public auth paths.
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// Automation clients authenticate with an API key.
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if !keys.Check(apiKey) {
					writeAuthError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				claims := &Claims{UserID: "api-key", Username: "automation", Role: string(RoleOperator)}
				ctx := context.WithValue(r.Context(), authUserKey{}, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Extract Bearer token from Authorization header.
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}

			// Set claims in context for downstream handlers.
			ctx := context.WithValue(r.Context(), authUserKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
