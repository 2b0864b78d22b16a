package http

import (
	"log/slog"
	"net/http"

	"parley/internal/api"
)

// NewAdminHandler routes the admin API. It must only be served on a
// trusted address.
func NewAdminHandler(admin *api.AdminHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", admin.AddUserHandler)
	return mux
}

func NewAdminServer(handler http.Handler, addr string, log *slog.Logger) *Server {
	if addr == "" {
		addr = "localhost:8081"
	}
	return newServer("admin", addr, handler, log)
}
