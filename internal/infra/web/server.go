package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
)

// ChatReader is the read side of the chat use case the admin API needs.
type ChatReader interface {
	ListChats(ctx context.Context, userID int64) ([]*model.ChatSession, error)
	AuditMessages(ctx context.Context, chatID string, includeIgnored bool) ([]model.Message, error)
}

type UserReader interface {
	Get(ctx context.Context, tgID int64) (*model.User, error)
}

// Server is the admin HTTP surface: health, metrics and read-only audit.
type Server struct {
	chats ChatReader
	users UserReader
	auth  *AuthManager
	log   *zerolog.Logger
	srv   *http.Server
}

func NewServer(chats ChatReader, users UserReader, auth *AuthManager, logger *zerolog.Logger) *Server {
	return &Server{chats: chats, users: users, auth: auth, log: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(10*time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.authMiddleware)
		api.Get("/users/{userID}", s.getUser)
		api.Get("/users/{userID}/chats", s.listUserChats)
		api.Get("/chats/{chatID}/messages", s.listChatMessages)
	})
	return r
}

// Start blocks serving on port until Shutdown.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("admin server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routePattern(r)
		if s.auth == nil {
			metrics.IncAdminRequest(route, "unconfigured")
			logging.With(r.Context(), s.log).Error().Msg("admin jwt secret is not configured")
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			metrics.IncAdminRequest(route, "unauthorized")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		metrics.IncAdminRequest(route, "authorized")
		logging.With(r.Context(), s.log).Debug().Str("subject", claims.Subject).Str("route", route).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}

// routePattern keeps metric labels bounded by using the chi pattern
// instead of the raw path.
func routePattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return r.URL.Path
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return "/api/v1/*"
}
