package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"parley/internal/auth"
	"parley/internal/events"
	"parley/internal/models"
	"parley/internal/rooms"

	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type chatStore interface {
	GetUser(id uint64) (models.User, error)
	ListUsers() ([]models.User, error)
	ListMessages(roomID string, private bool, limit int) ([]models.Message, error)
}

type roomResolver interface {
	GetOrCreate(a, b uint64) (models.PrivateRoom, error)
}

type onlineSet interface {
	Contains(name string) bool
}

type Config struct {
	HistoryLimit int
}

type API struct {
	Config
	auth     *auth.AuthService
	store    chatStore
	rooms    roomResolver
	presence onlineSet
	log      *slog.Logger
}

func New(config Config, authService *auth.AuthService, store chatStore, resolver roomResolver, presence onlineSet, log *slog.Logger) *API {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &API{
		Config:   config,
		auth:     authService,
		store:    store,
		rooms:    resolver,
		presence: presence,
		log:      log,
	}
}

func getToken(r *http.Request) string {
	return auth.TokenFromRequest(r)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("failed to encode response", "error", err)
	}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and Form
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	loginResp, _ := a.auth.Login(req)
	if !loginResp.Success {
		a.writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenName,
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})
	a.writeJSON(w, http.StatusOK, loginResp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusOK)
}

// UsersHandler lists registered users with their presence.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers()
	if err != nil {
		a.log.Error("failed to list users", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	users = lo.Map(users, func(u models.User, _ int) models.User {
		u.Online = a.presence.Contains(u.DisplayName)
		return u
	})
	a.writeJSON(w, http.StatusOK, users)
}

type PrivateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// OpenPrivateHandler returns the private room between the caller and the
// user in the path, creating it on first contact.
func (a *API) OpenPrivateHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	otherID, err := strconv.ParseUint(r.PathValue("userID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	if _, err := a.store.GetUser(otherID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		a.log.Error("failed to get user", "user_id", otherID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	room, err := a.rooms.GetOrCreate(caller.ID, otherID)
	if errors.Is(err, rooms.ErrInvalidPair) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		a.log.Error("failed to open private room", "user_id", caller.ID, "other_id", otherID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusOK, PrivateRoomResponse{RoomID: room.ID})
}

// HistoryMessage is one entry of a room history, in the shape of a
// chat_message event.
type HistoryMessage struct {
	MessageID uint64  `json:"message_id"`
	Message   string  `json:"message"`
	Username  string  `json:"username"`
	Timestamp string  `json:"timestamp"`
	ImageURL  *string `json:"image_url"`
	AudioURL  *string `json:"audio_url"`
	Read      bool    `json:"read"`
	CreatedAt int64   `json:"created_at"`
}

func toHistory(m models.Message) HistoryMessage {
	return HistoryMessage{
		MessageID: m.ID,
		Message:   m.Content,
		Username:  m.SenderName,
		Timestamp: events.FormatTimestamp(m.CreatedAt),
		ImageURL:  nullable(m.ImageURL),
		AudioURL:  nullable(m.AudioURL),
		Read:      m.Read,
		CreatedAt: m.CreatedAt.Unix(),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// HistoryHandler returns the last messages of a room, oldest first. Private
// rooms are only readable by their participants.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if roomID == "" {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	limit := a.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	private := rooms.IsPrivate(roomID)
	if private {
		p1, p2, err := rooms.Parse(roomID)
		if err != nil {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		identity := a.auth.Identify(r)
		if !identity.Authenticated {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if identity.ID != p1 && identity.ID != p2 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	messages, err := a.store.ListMessages(roomID, private, limit)
	if err != nil {
		a.log.Error("failed to list messages", "room", roomID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusOK, lo.Map(messages, func(m models.Message, _ int) HistoryMessage {
		return toHistory(m)
	}))
}
