package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/compak/internal/adapters/manifest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
)

const (
	defaultSearchLimit = 20
	maxPublishBytes    = 64 << 20
)

type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compak",
			Subsystem: "registry",
			Name:      "requests_total",
			Help:      "Total number of registry requests by route and status",
		}, []string{"route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "compak",
			Subsystem: "registry",
			Name:      "request_duration_seconds",
			Help:      "Registry request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Server exposes a registry over HTTP.
type Server struct {
	registry  ports.Registry
	publisher ports.Publisher
	logger    ports.Logger
	metrics   *serverMetrics
	router    chi.Router
}

// NewServer creates the HTTP handler for registry. Publishing is enabled when
// registry also implements ports.Publisher. Metrics are registered on reg and
// served from /metrics.
func NewServer(registry ports.Registry, logger ports.Logger, reg *prometheus.Registry) *Server {
	s := &Server{
		registry: registry,
		logger:   logger,
		metrics:  newServerMetrics(reg),
	}
	if p, ok := registry.(ports.Publisher); ok {
		s.publisher = p
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Get("/v1/packages/{id}/versions", s.handleVersions)
	r.Get("/v1/packages/{id}/{version}/manifest", s.handleManifest)
	r.Get("/v1/packages/{id}/{version}/content", s.handleContent)
	r.Put("/v1/packages/{id}/{version}", s.handlePublish)
	r.Get("/v1/search", s.handleSearch)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func pathRef(r *http.Request) (domain.PackageID, domain.Version, error) {
	id := domain.PackageID(chi.URLParam(r, "id"))
	if err := id.Validate(); err != nil {
		return "", domain.Version{}, err
	}
	raw := chi.URLParam(r, "version")
	if raw == "" {
		return id, domain.Version{}, nil
	}
	v, err := domain.ParseVersion(raw)
	if err != nil {
		return "", domain.Version{}, err
	}
	return id, v, nil
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id, _, err := pathRef(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	versions, err := s.registry.Versions(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	body := versionsResponse{Versions: make([]string, len(versions))}
	for i, v := range versions {
		body.Versions[i] = v.String()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	id, v, err := pathRef(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.registry.Manifest(r.Context(), id, v)
	if err != nil {
		s.fail(w, err)
		return
	}
	raw, err := manifest.Marshal(m)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(raw)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id, v, err := pathRef(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	rc, d, err := s.registry.Content(r.Context(), id, v)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer rc.Close() //nolint:errcheck // Best effort close in defer

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set(DigestHeader, d.String())
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error(err)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	results, err := s.registry.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	body := searchResponse{Results: make([]searchResult, 0, len(results))}
	for _, res := range results {
		body.Results = append(body.Results, searchResult{
			Name:        res.ID.String(),
			Version:     res.Version.String(),
			Description: res.Description,
			Author:      res.Author,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "registry is read-only"})
		return
	}
	id, v, err := pathRef(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req publishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid publish request"})
		return
	}
	m, err := manifest.Parse([]byte(req.Manifest))
	if err != nil {
		s.fail(w, err)
		return
	}
	if m.ID != id || !m.Version.Equal(v) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "manifest does not match the url"})
		return
	}

	d, err := s.publisher.Publish(r.Context(), m, bytes.NewReader(req.Content))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("published " + m.Ref())
	writeJSON(w, http.StatusCreated, publishResponse{Digest: d.String()})
}

// fail maps an error to a status code. Unexpected failures are logged.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPackageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPackageID),
		errors.Is(err, domain.ErrInvalidVersion),
		errors.Is(err, domain.ErrMalformedManifest),
		errors.Is(err, domain.ErrDigestMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRegistryUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error(err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
