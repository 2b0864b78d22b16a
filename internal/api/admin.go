package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"parley/internal/auth"
	"parley/internal/content"
	"parley/internal/models"
)

type userCreator interface {
	AddUser(username, displayName, password string) (models.User, error)
}

type AdminHandler struct {
	users userCreator
	log   *slog.Logger
}

func NewAdminHandler(users userCreator, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{users: users, log: log}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Password    string `json:"password"`
}

type AddUserResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	ID          uint64 `json:"id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

func (h *AdminHandler) reply(w http.ResponseWriter, status int, resp AddUserResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("failed to encode add user response", "error", err)
	}
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		h.reply(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}
	displayName, err := content.DisplayName(req.DisplayName, req.Username)
	if err != nil {
		h.reply(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}

	user, err := h.users.AddUser(req.Username, displayName, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		h.reply(w, http.StatusConflict, AddUserResponse{Message: err.Error()})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		h.reply(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	case err != nil:
		h.log.Error("failed to create user", "username", req.Username, "error", err)
		h.reply(w, http.StatusInternalServerError, AddUserResponse{
			Message: fmt.Sprintf("Failed to create user: %v", err),
		})
		return
	}

	h.log.Info("user created", "user_id", user.ID, "username", user.UserName)
	h.reply(w, http.StatusCreated, AddUserResponse{
		Success:     true,
		ID:          user.ID,
		Username:    user.UserName,
		DisplayName: user.DisplayName,
	})
}
