// Package router assembles the HTTP surface: the public ZapSend webhook,
// health and metrics probes, and the JWT-protected admin API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quitaai/cobranca-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/quitaai/cobranca-ai-platform/internal/http/middleware"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.ZapSendWebhookHandler
	AdminContexts      *handlers.AdminContextsHandler
	AdminTelemetry     *handlers.AdminTelemetryHandler
	AdminInvoices      *handlers.AdminInvoicesHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookRatePerSec  float64
	WebhookBurst       int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/healthz", handlers.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			rate, burst := cfg.WebhookRatePerSec, cfg.WebhookBurst
			if rate <= 0 {
				rate = 50
			}
			if burst <= 0 {
				burst = 100
			}
			public.With(httpmiddleware.RateLimit(rate, burst, cfg.Logger)).
				Post("/webhooks/zapsend", cfg.Webhooks.HandleInbound)
		}
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
		if cfg.AdminContexts != nil {
			admin.Get("/contexts/{sender}", cfg.AdminContexts.Get)
			admin.Delete("/contexts/{sender}", cfg.AdminContexts.Delete)
		}
		if cfg.AdminTelemetry != nil {
			admin.Get("/telemetry/intents", cfg.AdminTelemetry.IntentCounts)
			admin.Get("/telemetry/senders/{sender}", cfg.AdminTelemetry.SenderHistory)
		}
		if cfg.AdminInvoices != nil {
			admin.Get("/invoices/{document}", cfg.AdminInvoices.Open)
			admin.Post("/invoices/{invoiceID}/second-copy", cfg.AdminInvoices.SecondCopy)
		}
	})

	return r
}
