// Package server exposes a boundary model over HTTP.
//
// Endpoints:
//
//   - GET /health: liveness, with the model language.
//   - POST /api/tokenize: {"text": "...", "spaceTokens": false} -> {"sentences": [...]}.
//
// All requests share the read-only model; each one gets its own segmentation state.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// shutdownTimeout bounds the time given to in-flight requests when the server stops.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP tokenization server.
type Server struct {
	router       chi.Router
	language     string
	tokenizer    *segmenter.Segmenter
	withSpaces   *segmenter.Segmenter
	maxBodyBytes int64
}

// New creates a Server for the model. Request bodies larger than maxBodyBytes are rejected.
func New(model segmenter.BoundaryModel, maxBodyBytes int64) *Server {
	s := &Server{
		language:     model.Language().Code,
		tokenizer:    segmenter.New(model),
		withSpaces:   segmenter.New(model, segmenter.WithSpaceTokens(true)),
		maxBodyBytes: maxBodyBytes,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/api/tokenize", s.handleTokenize)

	s.router = r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Serving %q tokenizer on %s", s.language, addr)
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrapf(err, "server on %s failed", addr)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	klog.Infof("Shutting down server on %s", addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

// TokenizeRequest is the body of POST /api/tokenize.
type TokenizeRequest struct {
	Text string `json:"text"`

	// SpaceTokens requests the whitespace characters inside sentences as tokens.
	SpaceTokens bool `json:"spaceTokens,omitempty"`
}

// TokenizeResponse is the response of POST /api/tokenize.
type TokenizeResponse struct {
	Sentences []api.Sentence `json:"sentences"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "language": s.language})
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req TokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	tokenizer := s.tokenizer
	if req.SpaceTokens {
		tokenizer = s.withSpaces
	}
	sentences := tokenizer.Tokenize(req.Text)
	if sentences == nil {
		sentences = []api.Sentence{}
	}
	writeJSON(w, http.StatusOK, TokenizeResponse{Sentences: sentences})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Warningf("Failed to write response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestLogger logs every request at verbosity 1.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		klog.V(1).Infof("%s %s %d %s (request %s)", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}
