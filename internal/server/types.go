// Package server exposes the document processing workflow over HTTP:
// uploads, asynchronous OCR jobs, exports, overlay rendering and a
// WebSocket progress feed.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/store"
)

// Processor is the part of the pipeline the server depends on.
type Processor interface {
	ProcessBytes(ctx context.Context, name string, data []byte, mime, path string) (*doc.Result, error)
	Close() error
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	ProcessTimeout time.Duration

	// Rate limiting, zero values disable the corresponding limit.
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDayMB   int64
}

// DefaultConfig returns server defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		CORSOrigin:     "*",
		MaxUploadMB:    50,
		ProcessTimeout: 5 * time.Minute,
	}
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg         Config
	processor   Processor
	store       *store.Store
	logger      *slog.Logger
	rateLimiter *RateLimiter
	hub         *Hub
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DocumentResponse pairs document metadata with its result when one
// exists.
type DocumentResponse struct {
	Document *store.Document `json:"document"`
	Result   *doc.Result     `json:"result,omitempty"`
}

// UploadResponse is the body returned after a successful upload.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// NewServer creates a server around an already-built pipeline and store.
func NewServer(cfg Config, processor Processor, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		processor: processor,
		store:     st,
		logger:    logger,
		hub:       NewHub(),
	}
	if cfg.RequestsPerMinute > 0 || cfg.RequestsPerHour > 0 ||
		cfg.MaxRequestsPerDay > 0 || cfg.MaxDataPerDayMB > 0 {
		s.rateLimiter = NewRateLimiter(
			cfg.RequestsPerMinute,
			cfg.RequestsPerHour,
			cfg.MaxRequestsPerDay,
			cfg.MaxDataPerDayMB*1024*1024,
		)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.processor != nil {
		return s.processor.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("GET /ws", s.wsHandler)

	mux.HandleFunc("POST /documents", s.corsMiddleware(s.rateLimitMiddleware(s.uploadHandler)))
	mux.HandleFunc("GET /documents", s.corsMiddleware(s.listHandler))
	mux.HandleFunc("GET /documents/{id}", s.corsMiddleware(s.getHandler))
	mux.HandleFunc("DELETE /documents/{id}", s.corsMiddleware(s.deleteHandler))
	mux.HandleFunc("POST /documents/{id}/process", s.corsMiddleware(s.rateLimitMiddleware(s.processHandler)))
	mux.HandleFunc("GET /documents/{id}/export", s.corsMiddleware(s.exportHandler))
	mux.HandleFunc("GET /documents/{id}/pages/{page}/overlay", s.corsMiddleware(s.overlayHandler))
	mux.HandleFunc("PUT /documents/{id}/blocks/{blockID}", s.corsMiddleware(s.correctBlockHandler))
	mux.HandleFunc("GET /documents/{id}/corrections", s.corsMiddleware(s.correctionsHandler))

	// Preflight for every API path.
	mux.HandleFunc("OPTIONS /", s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {}))
}
