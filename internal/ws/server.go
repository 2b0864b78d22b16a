package ws

import (
	"context"
	"log/slog"
	"net/http"

	"parley/internal/filestore"
	"parley/internal/models"
	"parley/internal/rooms"

	"github.com/gorilla/websocket"
)

type identifier interface {
	Identify(r *http.Request) models.Identity
}

// frameOverhead is the room left in a frame for JSON fields around the
// base64 media payload.
const frameOverhead = 64 << 10

// FrameLimit returns the largest inbound frame that can carry a media
// payload of maxMediaBytes after base64 encoding.
func FrameLimit(maxMediaBytes int64) int64 {
	if maxMediaBytes <= 0 {
		maxMediaBytes = filestore.DefaultMaxBytes
	}
	return (maxMediaBytes+2)/3*4 + frameOverhead
}

type ServerConfig struct {
	ErrorEvents bool
	// ReadLimit caps the size of one inbound frame. Zero means
	// FrameLimit(filestore.DefaultMaxBytes).
	ReadLimit int64
	// CheckOrigin is passed to the upgrader. Nil accepts requests without an
	// Origin header and those whose Origin host equals the request host.
	CheckOrigin func(r *http.Request) bool
}

// Server upgrades chat requests to websocket connections.
type Server struct {
	ServerConfig
	ctx        context.Context
	auth       identifier
	hub        messageHub
	presence   presenceRegistry
	dispatcher frameDispatcher
	upgrader   *websocket.Upgrader
	log        *slog.Logger
}

// NewServer returns a Server whose connections are closed when ctx is done.
func NewServer(
	ctx context.Context,
	config ServerConfig,
	auth identifier,
	hub messageHub,
	presence presenceRegistry,
	dispatcher frameDispatcher,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = FrameLimit(filestore.DefaultMaxBytes)
	}
	return &Server{
		ServerConfig: config,
		ctx:          ctx,
		auth:         auth,
		hub:          hub,
		presence:     presence,
		dispatcher:   dispatcher,
		upgrader:     &websocket.Upgrader{CheckOrigin: config.CheckOrigin},
		log:          log,
	}
}

// HandleChat serves GET /ws/chat/{room}.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if roomID == "" || rooms.IsPrivate(roomID) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	s.serve(w, r, roomID, s.auth.Identify(r))
}

// HandlePrivateChat serves GET /ws/chat/private/{room}. Only the two
// participants of the room may connect.
func (s *Server) HandlePrivateChat(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	a, b, err := rooms.Parse(roomID)
	if err != nil {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	identity := s.auth.Identify(r)
	if !identity.Authenticated {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if identity.ID != a && identity.ID != b {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	s.serve(w, r, roomID, identity)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, roomID string, identity models.Identity) {
	conn := NewConnection(ConnectionConfig{
		RoomID:      roomID,
		Identity:    identity,
		ErrorEvents: s.ErrorEvents,
	}, s.hub, s.presence, s.dispatcher, s.log)

	err := conn.Open(func() (wsConnection, error) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return nil, err
		}
		ws.SetReadLimit(s.ReadLimit)
		return ws, nil
	})
	if err != nil {
		// The upgrader has already replied to the client.
		s.log.Warn("failed to open websocket", "room", roomID, "error", err)
		return
	}

	if err := conn.Handle(s.ctx); err != nil {
		s.log.Debug("websocket closed", "room", roomID, "error", err)
	}
}
