package api

import (
	"encoding/json"
	"net/http"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/api/handlers"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/api/middleware"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.WithConversationSlot)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Web.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// Demo web chat, public like the page that calls it.
	r.Post("/chat", h.WebChat)

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/models", h.ListModels)
		r.Get("/providers/health", h.ProbeProviders)

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", h.ListPersonas)
			r.Post("/", h.CreatePersona)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPersona)
				r.Delete("/", h.DeletePersona)
				r.Put("/model", h.UpdatePersonaModel)
			})
		})

		r.Route("/conversations/{key}", func(r chi.Router) {
			r.Use(middleware.Conversation)
			r.Get("/", h.GetConversation)
			r.Post("/messages", h.SendMessage)
			r.Post("/reset", h.ResetConversation)
			r.Put("/persona", h.SetConversationPersona)
			r.Put("/prompt", h.SetConversationPrompt)
		})

		r.Get("/usage", h.GetUsage)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "persona-relay",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "persona-relay",
		})
	}
}
