package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// AllowedHosts is the list of accepted Host header values.
	AllowedHosts []string
	// APIPrefix is prepended to the batch routes, e.g. "/api/v1".
	APIPrefix string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		AllowedHosts:   []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	prefix := normalizePrefix(cfg.APIPrefix)

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST "+prefix+"/process-batch", h.ProcessBatch)
	mux.HandleFunc("GET "+prefix+"/status/{task_id}", h.GetStatus)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		TrustedHostMiddleware(cfg.AllowedHosts),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}

// normalizePrefix returns "" or a prefix with a leading and no trailing slash.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
