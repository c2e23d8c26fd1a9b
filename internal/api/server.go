// Package api exposes the engine over HTTP: broadcast lifecycle
// operations, thin subscriber/group CRUD, and the cron trigger
// endpoints. Authentication happens upstream; requests carry the
// resolved identity in headers.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/broadcast-engine/internal/delivery"
	"github.com/ignite/broadcast-engine/internal/pkg/httputil"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/service/audience"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// Server holds the handler dependencies.
type Server struct {
	broadcasts *broadcast.Service
	audiences  *audience.Service
	poller     *delivery.Poller
	reconciler *delivery.Reconciler
	cronSecret string
	log        *logger.Logger
}

// NewServer creates the API server.
func NewServer(broadcasts *broadcast.Service, audiences *audience.Service, poller *delivery.Poller, reconciler *delivery.Reconciler, cronSecret string, log *logger.Logger) *Server {
	return &Server{
		broadcasts: broadcasts,
		audiences:  audiences,
		poller:     poller,
		reconciler: reconciler,
		cronSecret: cronSecret,
		log:        log.WithComponent("api"),
	}
}

// Routes builds the router with all middleware and endpoints.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Role"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cron", func(r chi.Router) {
			r.Use(RequireCronSecret(s.cronSecret))
			r.Post("/poll-broadcasts", s.handleCronPoll)
			r.Post("/reconcile-broadcasts", s.handleCronReconcile)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)

			r.Route("/broadcasts", func(r chi.Router) {
				r.Get("/", s.handleListBroadcasts)
				r.Post("/", s.handleCreateBroadcast)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetBroadcast)
					r.Put("/", s.handleUpdateBroadcast)
					r.Delete("/", s.handleDeleteBroadcast)
					r.Post("/schedule", s.handleScheduleBroadcast)
					r.Post("/cancel-schedule", s.handleCancelSchedule)
					r.Post("/send", s.handleSendBroadcast)
					r.Post("/retry", s.handleSendBroadcast)
				})
			})

			r.Route("/subscribers", func(r chi.Router) {
				r.Get("/", s.handleListSubscribers)
				r.Post("/", s.handleCreateSubscriber)
				r.Put("/{id}", s.handleUpdateSubscriber)
				r.Delete("/{id}", s.handleDeleteSubscriber)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Post("/", s.handleCreateGroup)
				r.Put("/{id}", s.handleUpdateGroup)
				r.Delete("/{id}", s.handleDeleteGroup)
				r.Post("/{id}/members/{subscriberID}", s.handleAddMember)
				r.Delete("/{id}/members/{subscriberID}", s.handleRemoveMember)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCronPoll(w http.ResponseWriter, r *http.Request) {
	sum, err := s.poller.Poll(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sum)
}

func (s *Server) handleCronReconcile(w http.ResponseWriter, r *http.Request) {
	swept, err := s.reconciler.Sweep(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"swept": swept})
}
