// File: internal/infra/web/server.go
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain/ports/repository"
	red "telegram-group-access/internal/infra/redis"
	"telegram-group-access/internal/infra/sched"
	"telegram-group-access/internal/usecase"
)

// Server is the operator-facing HTTP surface: health, metrics and a small
// JWT-gated admin API for job triggers and reports. Users never talk to it.
type Server struct {
	recon    *sched.Reconciler
	payments usecase.PaymentUseCase
	subs     usecase.SubscriptionUseCase
	users    repository.UserRepository
	locker   red.Locker // nil disables cross-process trigger exclusion
	auth     *AuthManager
	secret   string // bootstrap credential exchanged for a session token
	log      *zerolog.Logger
}

func NewServer(
	recon *sched.Reconciler,
	payments usecase.PaymentUseCase,
	subs usecase.SubscriptionUseCase,
	users repository.UserRepository,
	locker red.Locker,
	secret string,
	secureCookies bool,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		recon:    recon,
		payments: payments,
		subs:     subs,
		users:    users,
		locker:   locker,
		auth:     NewAuthManager(secret, secureCookies, 30*time.Minute),
		secret:   secret,
		log:      &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.sessionCreateHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Delete("/session", s.sessionDeleteHandler())
			r.Post("/jobs/{job}", s.jobTriggerHandler())
			r.Get("/payments", paymentsRecentHandler(s.payments))
			r.Get("/stats", statsHandler(s.users, s.subs, s.payments))
		})
	})
	return r
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Int("port", port).Msg("web server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// authMiddleware gates the admin API on a valid session token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			s.log.Error().Msg("admin web secret is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
