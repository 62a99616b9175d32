package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	quizHandler *handlers.QuizHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", handlers.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// ──── Quiz Routes ────
		r.Route("/quizzes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/generate", quizHandler.Generate)
		})

		// ──── WebSocket ────
		// Authenticated by the token query parameter.
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
