package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/prmjagdish/schedula/internal/auth"
	"github.com/prmjagdish/schedula/internal/booking"
)

type RouterConfig struct {
	Coordinator  *booking.Coordinator
	Availability *booking.AvailabilityView
	Slots        *booking.SlotService
	Tokens       *auth.Tokens
	Health       *HealthHandler
	RateLimitRPS int // per-IP limit on write routes, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(chimw.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	writeLimit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 {
		writeLimit = httprate.LimitByIP(cfg.RateLimitRPS, time.Second)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(cfg.Tokens))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/me", listMyAppointmentsHandler(cfg.Availability))
			r.With(writeLimit, RequireCapability(canBookAsPatient)).
				Post("/{slotId}", bookAppointmentHandler(cfg.Coordinator))
			r.With(writeLimit).
				Delete("/{appointmentId}", cancelAppointmentHandler(cfg.Coordinator))
		})

		r.Route("/slots", func(r chi.Router) {
			r.Use(RequireCapability(canManageSlotsAsDoctor))
			r.Get("/", listSlotsHandler(cfg.Availability))
			r.With(writeLimit).Post("/", createSlotHandler(cfg.Slots))
		})
	})

	return r
}
