package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes
	mux.HandleFunc("/api/games", s.app.GamesHandler.ListHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	// Generated documents
	prefix := "/" + strings.Trim(s.app.Config.Artifacts.URLPrefix, "/") + "/"
	mux.Handle(prefix, http.StripPrefix(prefix, noDirListing(http.FileServer(http.Dir(s.app.Config.Artifacts.Dir)))))

	// Static UI
	if dir := s.app.Config.Project.StaticDir; dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}

	return mux
}

// noDirListing hides directory indexes
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
