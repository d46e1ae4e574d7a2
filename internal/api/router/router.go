package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelhq/realty-ai-platform/internal/conversation"
	httpmiddleware "github.com/kestrelhq/realty-ai-platform/internal/http/middleware"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	MetricsHandler      http.Handler
	ChatLimits          httpmiddleware.Limits
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/greeting", cfg.ConversationHandler.Greeting)
		api.With(httpmiddleware.RateLimit(cfg.ChatLimits, chatLimitExceeded)).
			Post("/chat", cfg.ConversationHandler.Chat)
		api.Post("/schedule", cfg.ConversationHandler.Schedule)
		api.Get("/available-times", cfg.ConversationHandler.AvailableTimes)
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// chatLimitExceeded answers a throttled chat request with the same payload
// shape as a normal turn so the widget can render it inline.
func chatLimitExceeded(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(conversation.TurnResult{
		Answer:      "I apologize, but you've reached the maximum number of requests. Please wait a moment before trying again.",
		LeadScore:   0,
		LeadStatus:  "Unknown",
		CRMStatus:   "Skipped",
		CRMResponse: "Rate limit exceeded",
		Error:       "Rate limit exceeded. Please try again later.",
	})
}
