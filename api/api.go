// Package api serves the onboarding HTTP API with gin.
//
// Routes live under /api/v1/onboarding:
//
//	POST   /start                          start an onboarding
//	GET    /status/:client_id              ledger summary
//	POST   /approve/:client_id/:step_id    ?approved=true|false&feedback=
//	GET    /clients                        ?status=&limit=&offset=
//	GET    /client/:client_id              client and ledger
//	DELETE /client/:client_id              forget a client
//	POST   /cancel/:client_id              cancel a live run
//
// GET / and GET /health report liveness.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/xraph/aegis/engine"
)

// Version is reported by the liveness endpoints.
const Version = "1.0.0"

// API wires the gin handlers to an onboarding Engine.
type API struct {
	eng     *engine.Engine
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithStartLimiter overrides the limiter guarding POST /start. A nil
// limiter disables limiting.
func WithStartLimiter(l *rate.Limiter) Option {
	return func(a *API) { a.limiter = l }
}

// New creates an API for eng. The start limiter defaults to the engine's
// StartRate and StartBurst.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}

	cfg := eng.Config()
	if cfg.StartRate > 0 {
		burst := cfg.StartBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.StartRate), burst)
	}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with recovery, request logging and every
// route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/", a.root)
	r.GET("/health", a.health)

	g := r.Group("/api/v1/onboarding")
	{
		g.POST("/start", limit(a.limiter), a.start)
		g.GET("/status/:client_id", a.status)
		g.POST("/approve/:client_id/:step_id", a.approve)
		g.GET("/clients", a.listClients)
		g.GET("/client/:client_id", a.getClient)
		g.DELETE("/client/:client_id", a.deleteClient)
		g.POST("/cancel/:client_id", a.cancel)
	}
}
