// Package api provides the HTTP surface of grantrelay: the membership
// webhook receiver plus health, readiness and operator endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/grantrelay"
	"github.com/xraph/grantrelay/observability"
	"github.com/xraph/grantrelay/webhook"
)

// maxBodyBytes caps inbound webhook bodies.
const maxBodyBytes = 1 << 20

// Config configures the HTTP handler.
type Config struct {
	// WebhookSecret enables X-Hub-Signature-256 verification when set.
	WebhookSecret string

	// AdminToken is the bearer token required on the operator routes
	// (/pending, /sweep, /discarded, /stats). They are not mounted when empty.
	AdminToken string

	// Metrics enables HTTP request metrics.
	Metrics *observability.Metrics
}

// Handler is the root HTTP handler.
type Handler struct {
	relay   *grantrelay.Relay
	decoder *webhook.Decoder
	config  Config
	logger  *slog.Logger
	router  chi.Router
}

// NewHandler creates the HTTP handler for r.
func NewHandler(r *grantrelay.Relay, cfg Config, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dec, err := webhook.NewDecoder(r.Config().Tenant, logger)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		relay:   r,
		decoder: dec,
		config:  cfg,
		logger:  logger,
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	if h.config.Metrics != nil {
		r.Use(metrics(h.config.Metrics))
	}
	r.Use(h.panicRecovery)
	r.Use(h.logging)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)

	r.Post("/webhooks/membership", h.receiveMembership)

	if h.config.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(h.config.AdminToken))

			r.Get("/pending", h.listPending)
			r.Get("/pending/{recordID}", h.getPending)
			r.Post("/sweep", h.sweep)
			r.Get("/discarded", h.listDiscarded)
			r.Get("/discarded/{entryID}", h.getDiscarded)
			r.Get("/stats", h.stats)
		})
	}

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt returns a non-negative query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
