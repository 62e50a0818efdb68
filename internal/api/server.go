package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/config"
	"github.com/joalvis1996/archive-saver-web/internal/metrics"
)

const (
	maxRequestBytes = 16 << 20
	savedMessage    = "archived and bookmarked"
)

// Archiver is the archive pipeline the handlers drive.
type Archiver interface {
	Save(ctx context.Context, req archive.Request) (archive.Result, error)
	Collections(ctx context.Context) ([]archive.Collection, error)
}

// Options carries optional filesystem mounts.
type Options struct {
	// ArchivesDir is served under /archives/ when set.
	ArchivesDir string
	// StaticDir holds a single-page frontend served at / when set.
	StaticDir string
}

// Server wires HTTP handlers to the archiver.
type Server struct {
	router   chi.Router
	archiver Archiver
	logger   *zap.Logger
}

type saveRequest struct {
	URL          string      `json:"url"`
	CollectionID json.Number `json:"collectionId"`
	HTML         string      `json:"html"`
}

type saveResponse struct {
	Message string `json:"message"`
	archive.Result
}

// NewServer constructs a Server with middleware and routes.
func NewServer(archiver Archiver, cfg config.Config, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		archiver: archiver,
		logger:   logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/collections", s.listCollections)
		r.Post("/save", s.save)
		r.Post("/save-html", s.saveHTML)
	})

	if opts.ArchivesDir != "" {
		r.Handle("/archives/*", http.StripPrefix("/archives/", http.FileServer(http.Dir(opts.ArchivesDir))))
	}
	if opts.StaticDir != "" {
		r.Get("/*", spaHandler(opts.StaticDir))
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Collaborators are remote services checked per request.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.archiver.Collections(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if requestTimedOut(r) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSaveRequest(w, r)
	if !ok {
		return
	}
	// The plain variant always fetches the page itself.
	req.HTML = ""
	s.runSave(w, r, req)
}

func (s *Server) saveHTML(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSaveRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		writeError(w, http.StatusBadRequest, "missing html")
		return
	}
	s.runSave(w, r, req)
}

func (s *Server) runSave(w http.ResponseWriter, r *http.Request, req archive.Request) {
	result, err := s.archiver.Save(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if requestTimedOut(r) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Message: savedMessage, Result: result})
}

func decodeSaveRequest(w http.ResponseWriter, r *http.Request) (archive.Request, bool) {
	var body saveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return archive.Request{}, false
	}
	req := archive.Request{
		URL:          body.URL,
		CollectionID: body.CollectionID.String(),
		HTML:         body.HTML,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "missing url or collectionId")
		return archive.Request{}, false
	}
	return req, true
}

// statusFor maps archive error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, archive.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, archive.ErrMetadataExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, archive.ErrFetch),
		errors.Is(err, archive.ErrStorage),
		errors.Is(err, archive.ErrBookmark):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requestTimedOut reports whether the request deadline set by
// timeoutMiddleware expired. Collaborator errors then only describe the
// symptom.
func requestTimedOut(r *http.Request) bool {
	return errors.Is(r.Context().Err(), context.DeadlineExceeded)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
