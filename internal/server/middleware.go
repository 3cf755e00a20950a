package server

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"procuro/internal/auth"
)

// GzipResponseWriter wraps http.ResponseWriter to support gzip compression.
type GzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w GzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// GzipMiddleware compresses responses when the client supports gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(GzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

// LoggingMiddleware logs request method, path, and duration. Also sets
// CORS headers and answers preflight requests.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth checks the session cookie on /api/ paths and rejects
// requests whose role lacks the capability for the route. The capability
// decision happens here so workflow handlers never branch on permissions.
func RequireAuth(db *sql.DB, perms *auth.PermCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				unauthorized(w, "authentication required")
				return
			}
			role, ok := auth.ValidSession(db, cookie.Value)
			if !ok {
				unauthorized(w, "session expired")
				return
			}

			if module, action := routeCapability(r); module != "" && !perms.Can(role, module, action) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(403)
				json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(401)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// routeCapability maps an API route to the (module, action) capability it
// requires. Unknown routes require no capability beyond a valid session.
func routeCapability(r *http.Request) (module, action string) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) == 0 {
		return "", ""
	}

	switch parts[0] {
	case "requests":
		module = auth.ModulePRs
	case "rfqs":
		module = auth.ModuleRFQs
	case "abstracts":
		module = auth.ModuleAOQs
	case "orders":
		module = auth.ModulePOs
	case "suppliers":
		module = auth.ModuleSuppliers
	case "audit", "users":
		module = auth.ModuleAdmin
	default:
		return "", ""
	}

	last := parts[len(parts)-1]
	switch {
	case r.Method == "GET":
		action = auth.PermView
	case last == "approve" || last == "disapprove" || last == "approve-cash" ||
		last == "approve-quotations" || last == "issue" || last == "for-delivery" ||
		last == "deliver" || last == "submit":
		action = auth.PermApprove
	case last == "award":
		action = auth.PermAward
	case r.Method == "POST" && len(parts) == 1:
		action = auth.PermCreate
	default:
		action = auth.PermEdit
	}
	return module, action
}
