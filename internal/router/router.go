package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"leeai-backend/internal/handlers"
	"leeai-backend/internal/middleware"
	"leeai-backend/internal/websocket"
)

func New(
	chatHandler *handlers.ChatHandler,
	chatLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	backendName string,
	allowedOrigins string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(allowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","backend":"` + backendName + `"}`))
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(chatLimiter.Middleware)
		r.Post("/", chatHandler.Chat)
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
