package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/school-whatsapp-hub/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/school-whatsapp-hub/internal/http/middleware"
	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WhatsAppWebhook    *handlers.WhatsAppWebhookHandler
	SchedulerRun       *handlers.SchedulerRunHandler
	LeadsHandler       *leads.Handler
	ScheduledHandler   *scheduling.Handler
	AdminConversations *handlers.AdminConversationsHandler
	AdminDashboard     *handlers.AdminDashboardHandler
	AdminMessaging     *handlers.AdminMessagingHandler
	WebhookToken       string
	CronToken          string
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsAppWebhook != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Use(httpmiddleware.SharedToken(cfg.WebhookToken, false))
				r.Post("/", cfg.WhatsAppWebhook.Handle)
				r.Post("/inbox", cfg.WhatsAppWebhook.Handle)
				r.Post("/status", cfg.WhatsAppWebhook.Handle)
			})
		}
		if cfg.SchedulerRun != nil {
			public.With(httpmiddleware.SharedToken(cfg.CronToken, true)).
				Post("/internal/scheduler/run", cfg.SchedulerRun.Run)
		}
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			if cfg.AdminDashboard != nil {
				admin.Get("/dashboard", cfg.AdminDashboard.GetDashboardOverview)
			}
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
				admin.Patch("/leads/{leadID}", cfg.LeadsHandler.UpdateLead)
			}
			if cfg.AdminConversations != nil || cfg.AdminMessaging != nil {
				admin.Route("/conversations", func(conv chi.Router) {
					if cfg.AdminConversations != nil {
						conv.Get("/", cfg.AdminConversations.ListConversations)
						conv.Get("/{conversationID}/messages", cfg.AdminConversations.GetMessages)
					}
					if cfg.AdminMessaging != nil {
						conv.Post("/{conversationID}/messages", cfg.AdminMessaging.SendMessage)
					}
				})
			}
			if cfg.ScheduledHandler != nil {
				admin.Post("/scheduled-messages", cfg.ScheduledHandler.Create)
				admin.Get("/scheduled-messages", cfg.ScheduledHandler.List)
			}
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp[name] = err.Error()
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
