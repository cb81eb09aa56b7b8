/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/ledger           Sale summary
  /api/tickets/*        Per-ticket queries and operations
  /api/accounts/*       Per-account queries
  /api/resale           Resale listings
  /api/swaps            Swap offers
  /api/events           Journal tail
  /api/audit/*          Audit runs
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The host in front of this server
  authenticates callers and sets X-Account-ID.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderAccountID, HeaderIdempotencyKey},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ledger", h.GetLedger)

		// Ticket routes
		r.Route("/tickets/{id}", func(r chi.Router) {
			r.Get("/", h.GetTicket)
			r.Post("/buy", h.BuyTicket)
			r.Post("/swap", h.OfferSwap)
			r.Delete("/swap", h.CancelSwap)
			r.Post("/swap/accept", h.AcceptSwap)
			r.Post("/resale/accept", h.AcceptResale)
		})

		// Account routes
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Get("/events", h.GetAccountEvents)
		})

		// Marketplace routes
		r.Route("/resale", func(r chi.Router) {
			r.Get("/", h.CheckResale)
			r.Post("/", h.ListResale)
			r.Delete("/", h.CancelResale)
		})
		r.Get("/swaps", h.ListSwaps)

		// Journal and audit routes
		r.Get("/events", h.ListEvents)
		r.Route("/audit", func(r chi.Router) {
			r.Get("/runs", h.ListAuditRuns)
			r.Post("/run", h.TriggerAudit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetLedger)
		})
	})

	return r
}
