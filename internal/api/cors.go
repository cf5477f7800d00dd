package api

import (
	"net/http"
	"strings"
)

// withCORS admits configured exact origins plus an optional suffix match
// (e.g. ".example-previews.app" for per-branch preview deployments).
func (s *Server) withCORS(next http.Handler) http.Handler {
	if len(s.corsOrigins) == 0 && s.corsSuffix == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+s.userIDHeader)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if _, ok := s.corsOrigins[origin]; ok {
		return true
	}
	return s.corsSuffix != "" && strings.HasSuffix(origin, s.corsSuffix)
}
