package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"parley/internal/dispatch"
	"parley/internal/events"
	"parley/internal/models"
	"parley/internal/rooms"

	"github.com/gorilla/websocket"
)

type wsConnection interface {
	Close() error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

type messageHub interface {
	Join(group string) *Subscription
	Leave(sub *Subscription)
	Publish(group string, payload []byte)
}

type frameDispatcher interface {
	Dispatch(ctx context.Context, origin dispatch.Origin, data []byte) error
}

type presenceRegistry interface {
	Add(name string)
	Remove(name string)
	Snapshot() []string
}

// Phase is the lifecycle state of a Connection.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseJoining
	PhaseJoined
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrConnectionClosed = errors.New("connection closed")

type ConnectionConfig struct {
	RoomID   string
	Identity models.Identity
	// ErrorEvents sends an error event to the client when one of its frames is dropped.
	ErrorEvents bool
}

// Connection is the server side of one websocket. It is created Disconnected,
// becomes Joined after Open and ends Closed.
type Connection struct {
	ConnectionConfig
	group string

	hub        messageHub
	presence   presenceRegistry
	dispatcher frameDispatcher
	log        *slog.Logger

	mu            sync.Mutex
	phase         Phase
	ws            wsConnection
	sub           *Subscription
	addedPresence bool

	fromClient chan []byte
	errorCh    chan error
}

func NewConnection(
	config ConnectionConfig,
	hub messageHub,
	presence presenceRegistry,
	dispatcher frameDispatcher,
	log *slog.Logger,
) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		ConnectionConfig: config,
		group:            rooms.GroupName(config.RoomID),
		hub:              hub,
		presence:         presence,
		dispatcher:       dispatcher,
		log:              log.With("room", config.RoomID, "user", config.Identity.DisplayName),
		fromClient:       make(chan []byte),
		errorCh:          make(chan error, 2),
	}
}

func (c *Connection) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Open joins the room group, accepts the socket, registers presence and
// broadcasts the presence snapshot. If accept fails the connection is closed.
func (c *Connection) Open(accept func() (wsConnection, error)) error {
	c.mu.Lock()
	if c.phase != PhaseDisconnected {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.phase = PhaseJoining
	c.sub = c.hub.Join(c.group)
	c.mu.Unlock()

	ws, err := accept()
	if err != nil {
		_ = c.Close()
		return err
	}

	c.mu.Lock()
	if c.phase != PhaseJoining {
		// Closed while accepting.
		c.mu.Unlock()
		_ = ws.Close()
		return ErrConnectionClosed
	}
	c.ws = ws
	if c.Identity.Authenticated {
		c.presence.Add(c.Identity.DisplayName)
		c.addedPresence = true
	}
	c.phase = PhaseJoined
	c.mu.Unlock()

	c.publishPresence()
	c.log.Debug("connection opened")
	return nil
}

// Close undoes Open: presence, group membership, socket. It is safe to call
// at any phase and more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.phase == PhaseClosed {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseClosed
	ws, sub, addedPresence := c.ws, c.sub, c.addedPresence
	c.mu.Unlock()

	if addedPresence {
		c.presence.Remove(c.Identity.DisplayName)
	}

	var err error
	if ws != nil {
		err = ws.Close()
	}

	if sub != nil {
		c.hub.Leave(sub)
		c.publishPresence()
	}

	c.log.Debug("connection closed")
	return err
}

func (c *Connection) publishPresence() {
	payload, err := events.Encode(events.UserList{Users: c.presence.Snapshot()})
	if err != nil {
		c.log.Error("failed to encode user list", "error", err)
		return
	}
	c.hub.Publish(c.group, payload)
}

// Handle runs the connection until the client goes away, a transport error
// occurs or ctx is cancelled, then closes it. Cancellation of ctx is not an
// error.
func (c *Connection) Handle(parent context.Context) error {
	c.mu.Lock()
	ws, sub, phase := c.ws, c.sub, c.phase
	c.mu.Unlock()
	if phase != PhaseJoined {
		return ErrConnectionClosed
	}

	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		_ = c.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx, ws)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx, ws, sub)
		cancel()
	})

	<-ctx.Done()
	// Unblocks the read pump.
	_ = ws.Close()
	wg.Wait()

	if parent.Err() != nil {
		return nil
	}
	// The goroutine that stopped first reported first.
	for range 2 {
		err := <-c.errorCh
		if err != nil && !errors.Is(err, context.Canceled) && !isNormalClose(err) {
			return err
		}
	}
	return nil
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (c *Connection) pumpMessages(ctx context.Context, ws wsConnection) error {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.fromClient <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context, ws wsConnection, sub *Subscription) error {
	for {
		select {
		case data := <-c.fromClient:
			if err := c.processFrame(ctx, ws, data); err != nil {
				return err
			}
		case payload, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// processFrame dispatches one frame. Dispatch failures never end the
// connection; only a failed write of the error event does.
func (c *Connection) processFrame(ctx context.Context, ws wsConnection, data []byte) error {
	err := c.dispatcher.Dispatch(ctx, dispatch.Origin{RoomID: c.RoomID, Identity: c.Identity}, data)
	switch {
	case err == nil:
		return nil
	case dispatch.Dropped(err):
		c.log.Debug("frame dropped", "error", err)
	case ctx.Err() != nil:
		return nil
	default:
		c.log.Error("failed to dispatch frame", "error", err)
	}

	if !c.ErrorEvents {
		return nil
	}
	message := "frame rejected"
	if dispatch.Dropped(err) {
		message = err.Error()
	}
	payload, encErr := events.Encode(events.Error{Code: dispatch.ErrorCode(err), Message: message})
	if encErr != nil {
		c.log.Error("failed to encode error event", "error", encErr)
		return nil
	}
	return ws.WriteMessage(websocket.TextMessage, payload)
}
