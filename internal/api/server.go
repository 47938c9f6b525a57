package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"slotbook/internal/auth"
	"slotbook/internal/booking"
	"slotbook/internal/events"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
)

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Auth   *auth.Verifier
	Broker events.Broker
	Log    logrus.FieldLogger
	// RPS and Burst bound order placement per client address; RPS <= 0 disables it.
	RPS   float64
	Burst int
	// Proxies are addresses or CIDRs allowed to set X-Forwarded-For.
	// Requests from anywhere else are keyed on their peer address.
	Proxies []string
	// Dev exposes /debug.
	Dev bool
	// Ready lists named dependencies checked by /readyz.
	Ready map[string]Pinger
	// Settings is echoed by /debug.
	Settings map[string]any
}

type Server struct {
	Booking  *booking.Service
	Auth     *auth.Verifier
	Broker   events.Broker
	Log      logrus.FieldLogger
	Ready    map[string]Pinger
	Dev      bool
	Settings map[string]any

	limiter *rateLimiter
	started time.Time
}

func NewServer(svc *booking.Service, opts Options) *Server {
	metrics.RegisterDefault()
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	broker := opts.Broker
	if broker == nil {
		broker = events.NewMemory()
	}
	return &Server{
		Booking:  svc,
		Auth:     opts.Auth,
		Broker:   broker,
		Log:      log,
		Ready:    opts.Ready,
		Dev:      opts.Dev,
		Settings: opts.Settings,
		limiter:  newRateLimiter(opts.RPS, opts.Burst, parseProxies(opts.Proxies, log)),
		started:  time.Now(),
	}
}

// Routes returns the full HTTP handler with request logging and metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)
	if s.Dev {
		mux.HandleFunc("GET /debug", s.DebugJSON)
	}

	mux.HandleFunc("GET /v1/slots", s.handleSlots)
	mux.HandleFunc("POST /v1/orders", s.limiter.limit(s.handlePlaceOrder))
	mux.HandleFunc("GET /v1/days", s.handleDays)
	mux.HandleFunc("GET /v1/days/{day}/ws", s.handleDayStream)
	mux.HandleFunc("GET /v1/zones", s.handleZones)
	mux.HandleFunc("GET /v1/products", s.handleProducts)
	mux.HandleFunc("GET /v1/my-orders", s.handleMyOrders)

	mux.HandleFunc("PUT /v1/admin/products/{id}", s.requireAdmin(s.handleUpsertProduct))
	mux.HandleFunc("GET /v1/admin/orders", s.requireAdmin(s.handleAdminOrders))
	mux.HandleFunc("PATCH /v1/admin/orders/{id}", s.requireAdmin(s.handleSetCompleted))
	mux.HandleFunc("GET /v1/admin/stops", s.requireAdmin(s.handleAdminStops))
	mux.HandleFunc("POST /v1/admin/travel-times/reload", s.requireAdmin(s.handleReloadTravelTimes))

	return logMiddleware(s.Log, mux)
}
