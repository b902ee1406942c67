package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lapig-ufg/pasto-legal/internal/auth"
	"github.com/lapig-ufg/pasto-legal/internal/config"
	"github.com/lapig-ufg/pasto-legal/internal/handlers"
	"github.com/lapig-ufg/pasto-legal/internal/logger"
	mdlwr "github.com/lapig-ufg/pasto-legal/internal/middleware"
	"github.com/lapig-ufg/pasto-legal/internal/resolution"
	"github.com/lapig-ufg/pasto-legal/internal/services"
)

// Deps are the services behind the router. Feedback, Preview and JWT may be
// nil, which disables feedback routes, previews and authentication.
type Deps struct {
	Conversations *services.ConversationService
	Feedback      *services.FeedbackService
	Preview       resolution.PreviewRenderer
	JWT           *auth.JWTManager
}

func NewRouter(cfg *config.Config, logr *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// CORS middleware with config
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	conversationHandler := handlers.NewConversationHandler(deps.Conversations, deps.Preview, logr.Named("conversation"))
	pastureHandler := handlers.NewPastureHandler(deps.Conversations, logr.Named("pasture"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("ok"))
		if err != nil {
			return
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		if deps.JWT != nil {
			authMW := mdlwr.NewAuthMiddleware(deps.JWT, logr.Named("auth"))
			r.Use(authMW.JWTAuth)
		}

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/state", conversationHandler.GetState)
			r.Post("/lookup", conversationHandler.Lookup)
			r.Post("/confirm", conversationHandler.Confirm)
			r.Post("/select", conversationHandler.Select)
			r.Post("/reject", conversationHandler.Reject)
			r.Delete("/property", conversationHandler.ClearProperty)
			r.Get("/property/preview", conversationHandler.GetPropertyPreview)
			r.Get("/pasture", pastureHandler.GetPastureStats)
		})

		if deps.Feedback != nil {
			feedbackHandler := handlers.NewFeedbackHandler(deps.Feedback, logr.Named("feedback"))
			r.Route("/feedback", func(r chi.Router) {
				r.Post("/", feedbackHandler.CreateFeedback)
				r.Get("/", feedbackHandler.GetAllFeedback)
				r.Get("/conversation/{id}", feedbackHandler.GetFeedbackByConversation)
			})
		}
	})

	return r
}
