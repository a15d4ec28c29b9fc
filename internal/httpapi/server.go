// Package httpapi exposes the supervisor as a small JSON control API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/CZERTAINLY/sensord/internal/hal"
	"github.com/CZERTAINLY/sensord/internal/sched"
	"github.com/CZERTAINLY/sensord/internal/service"
)

// Backend is implemented by *service.Supervisor.
type Backend interface {
	Status(ctx context.Context, sensorID int) (service.SensorStatus, error)
	StatusAll(ctx context.Context) ([]service.SensorStatus, error)
	Submit(ctx context.Context, sensorID int, kind hal.Kind, cookie int) (uuid.UUID, error)
	Cancel(sensorID int, id uuid.UUID) error
	PromoteCookie(sensorID, cookie int) error
	Operation(ctx context.Context, id uuid.UUID) (service.Operation, error)
	SetHardware(ctx context.Context, sensorID int, hw service.HardwareState) (service.HardwareState, error)
	ActiveSensors() []int
	History(ctx context.Context, sensorID int, limit int) ([]sched.Record, error)
}

// Server is the control API of a sensord.
type Server struct {
	router  chi.Router
	logger  *slog.Logger
	backend Backend
}

func New(backend Backend, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger.With("component", "httpapi"),
		backend: backend,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)
			r.Route("/{sensor}", func(r chi.Router) {
				r.Get("/", s.handleGetSensor)
				r.Post("/operations", s.handleSubmit)
				r.Delete("/operations/{id}", s.handleCancel)
				r.Post("/cookies/{cookie}", s.handlePromote)
				r.Put("/hardware", s.handleSetHardware)
				r.Get("/journal", s.handleJournal)
			})
		})
		r.Get("/operations/{id}", s.handleGetOperation)
	})
}
