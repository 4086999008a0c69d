// Package api exposes the twin lifecycle and the data pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/oura-twin-sync/internal/auth/oura"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/pipeline"
	"github.com/pysugar/oura-twin-sync/internal/ratelimit"
	"github.com/rs/zerolog"
)

// Deps are the components served by the router.
type Deps struct {
	Flow          *oura.Flow
	Pipeline      *pipeline.Service
	Limiter       ratelimit.Limiter
	Monitor       *monitor.FetchMonitor
	IntradayHours int
	AdminPassword string
	Logger        zerolog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d Deps) http.Handler {
	h := &handlers{
		flow:          d.Flow,
		pipeline:      d.Pipeline,
		limiter:       d.Limiter,
		monitor:       d.Monitor,
		intradayHours: d.IntradayHours,
		log:           d.Logger.With().Str("component", "api").Logger(),
	}
	if h.intradayHours <= 0 {
		h.intradayHours = 4
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(h.log))
	r.Use(chimiddleware.Recoverer)

	// The registered redirect URI usually points at the root, so "/" doubles as the callback.
	r.Get("/", h.root)
	r.Get("/healthz", h.health)
	r.Handle("/metrics", monitor.Handler())

	r.Get("/auth/{twin}/login", oura.HandleLogin(d.Flow))
	r.Get("/auth/callback", oura.HandleCallback(d.Flow))

	r.Route("/api", func(r chi.Router) {
		r.Use(AdminAuth(d.AdminPassword))

		r.Get("/twins", h.listTwins)
		r.Post("/twins/{twin}/refresh", h.refreshTwin)
		r.Post("/twins/{twin}/disconnect", h.disconnectTwin)
		r.Get("/twins/{twin}/daily", h.daily)
		r.Get("/twins/{twin}/intraday", h.intraday)
		r.Get("/compare", h.compare)

		r.Get("/credentials", h.getCredentials)
		r.Put("/credentials", h.saveCredentials)
		r.Delete("/credentials", h.clearCredentials)

		r.Get("/ratelimit", h.rateLimit)
		r.Get("/monitor", h.monitorStats)
		r.Delete("/monitor", h.clearMonitor)
	})

	return r
}
