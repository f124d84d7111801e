package server

import (
	"net/http"
	"time"

	"ramp-quote-go/internal/api"
	"ramp-quote-go/internal/models"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 60 * time.Second

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Service *api.RampService
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Platform is assumed for quote requests that do not name one.
	Platform       models.Platform
	RequestTimeout time.Duration
}

// Server exposes the ramp service over HTTP and receives provider deeplinks.
type Server struct {
	service        *api.RampService
	metrics        http.Handler
	platform       models.Platform
	requestTimeout time.Duration

	router http.Handler
}

func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	srv := &Server{
		service:        cfg.Service,
		metrics:        cfg.Metrics,
		platform:       cfg.Platform,
		requestTimeout: cfg.RequestTimeout,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(chimw.Timeout(s.requestTimeout))
		v1.Get("/providers", s.listProviders)
		v1.Get("/support", s.checkSupport)
		v1.Post("/quotes", s.fetchQuotes)
		v1.Get("/quotes/{id}", s.getQuote)
		v1.Post("/quotes/{id}/approve", s.approveQuote)
		v1.Delete("/quotes/{id}", s.closeQuote)
		v1.Get("/flows/{id}", s.getFlow)
	})

	// Checkout return links.
	r.Get("/ramp/{direction}/{provider}", s.deeplink)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// requestLogger logs each request through zap and tags the context with the
// request id so provider calls can be correlated.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := chimw.GetReqID(r.Context())
		r = r.WithContext(models.WithRequestId(r.Context(), requestId))

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("HTTP request",
			zap.String("request_id", requestId),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
