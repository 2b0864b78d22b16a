package http

import (
	"log/slog"
	"net/http"

	"parley/internal/api"
	"parley/internal/ws"
)

// NewAPIHandler routes the public API, the chat websockets and media downloads.
func NewAPIHandler(apiHandlers *api.API, chat *ws.Server, media mediaOpener, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// API endpoints
	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("POST /api/private/{userID}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.OpenPrivateHandler)))
	mux.HandleFunc("GET /api/rooms/{room}/messages", apiHandlers.HistoryHandler)
	mux.HandleFunc("GET /media/{id}", NewMediaHandler(media, log))

	// WebSocket endpoints
	mux.HandleFunc("GET /ws/chat/{room}", chat.HandleChat)
	mux.HandleFunc("GET /ws/chat/private/{room}", chat.HandlePrivateChat)

	return mux
}

func NewAPIServer(handler http.Handler, addr string, log *slog.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	return newServer("api", addr, handler, log)
}
