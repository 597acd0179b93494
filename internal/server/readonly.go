package server

import "net/http"

// sessionPaths are exempt from the read-only freeze so operators can still
// sign in and out while mutations are blocked.
var sessionPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/verify-totp",
	"/api/v1/auth/refresh",
	"/api/v1/auth/logout",
}

// ReadOnlyMiddleware rejects mutating requests while the server runs in
// read-only mode. Only GET, HEAD, and OPTIONS pass through, plus the
// paths in allowPaths regardless of method.
func ReadOnlyMiddleware(allowPaths []string) Middleware {
	allow := make(map[string]bool, len(allowPaths))
	for _, p := range allowPaths {
		allow[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if allow[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			WriteProblem(w, Problem{
				Type:     ProblemTypeReadOnly,
				Title:    "Method Not Allowed",
				Status:   http.StatusMethodNotAllowed,
				Detail:   "server is in read-only mode",
				Instance: r.URL.Path,
			})
		})
	}
}
