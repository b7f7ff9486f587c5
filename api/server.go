/*
server.go - HTTP server wiring

Routes:
  POST /api/events                         ingest one provider event
  POST /api/backfills                      run a backfill window
  GET  /api/backfills                      list persisted runs
  GET  /api/orders                         list orders
  GET  /api/orders/{orderKey}              one order with line items
  GET  /api/orders/{orderKey}/ledger       the order's ledger entries
  GET  /api/transactions/{txID}/revenue    snapshot version history
  GET  /api/healthz                        liveness
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the chi router with standard middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", h.IngestEvent)

		r.Post("/backfills", h.StartBackfill)
		r.Get("/backfills", h.ListBackfills)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{orderKey}", h.GetOrder)
		r.Get("/orders/{orderKey}/ledger", h.GetOrderLedger)

		r.Get("/transactions/{txID}/revenue", h.GetRevenueHistory)

		r.Get("/healthz", h.Healthz)
	})

	return r
}
