// Package dispatch turns inbound chat frames into stored messages and
// broadcast events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/content"
	"parley/internal/events"
	"parley/internal/filestore"
	"parley/internal/models"
	"parley/internal/rooms"

	"github.com/google/uuid"
)

var (
	ErrUnknownFrame       = errors.New("unknown frame")
	ErrDecodeFailure      = errors.New("frame decode failure")
	ErrIdentityUnresolved = errors.New("sender identity unresolved")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotParticipant     = errors.New("sender is not a room participant")
)

// Dropped reports whether err means the frame was ignored by policy rather
// than failed unexpectedly.
func Dropped(err error) bool {
	return errors.Is(err, ErrUnknownFrame) ||
		errors.Is(err, ErrDecodeFailure) ||
		errors.Is(err, ErrIdentityUnresolved) ||
		errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrNotParticipant)
}

// ErrorCode returns the code sent in error events for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownFrame):
		return "unknown_frame"
	case errors.Is(err, ErrDecodeFailure):
		return "decode_failure"
	case errors.Is(err, ErrIdentityUnresolved):
		return "identity_unresolved"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	default:
		return "internal"
	}
}

type messageStore interface {
	GetUser(id uint64) (models.User, error)
	GetPrivateRoom(id string) (models.PrivateRoom, error)
	CreateMessage(message models.Message) (models.Message, error)
	MarkMessageRead(id uint64) (bool, error)
}

type mediaStore interface {
	Save(upload filestore.Upload) (string, error)
}

type publisher interface {
	Publish(group string, payload []byte)
}

type runner interface {
	Do(ctx context.Context, job func(ctx context.Context) error) error
}

// Origin is the connection a frame arrived on.
type Origin struct {
	RoomID   string
	Identity models.Identity
}

type Dispatcher struct {
	store   messageStore
	media   mediaStore
	bus     publisher
	pool    runner
	now     func() time.Time
	newName func() string
	log     *slog.Logger
}

func NewDispatcher(store messageStore, media mediaStore, bus publisher, pool runner, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		media:   media,
		bus:     bus,
		pool:    pool,
		now:     time.Now,
		newName: uuid.NewString,
		log:     log,
	}
}

// Dispatch handles one inbound frame from origin. It returns nil after the
// resulting event has been published. Any error means nothing was published;
// errors matching Dropped also guarantee nothing was written.
func (d *Dispatcher) Dispatch(ctx context.Context, origin Origin, data []byte) error {
	frame, err := Decode(data)
	if err != nil {
		return err
	}

	var event events.Event
	switch frame.Kind {
	case FrameText, FrameImage, FrameAudio:
		event, err = d.handleContent(ctx, origin, frame)
	case FrameTyping:
		event = events.Typing{Username: origin.Identity.DisplayName}
	case FrameReadReceipt:
		event, err = d.handleReadReceipt(ctx, origin, frame)
	default:
		err = fmt.Errorf("%w: kind %d", ErrUnknownFrame, frame.Kind)
	}
	if err != nil {
		return err
	}

	return d.publish(origin.RoomID, event)
}

func (d *Dispatcher) publish(roomID string, event events.Event) error {
	payload, err := events.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Kind(), err)
	}
	d.bus.Publish(rooms.GroupName(roomID), payload)
	return nil
}

// message holds the content of a frame after decoding, before any I/O.
type message struct {
	kind   models.ContentKind
	text   string
	upload *filestore.Upload
}

func (d *Dispatcher) prepare(origin Origin, frame Frame) (message, error) {
	switch frame.Kind {
	case FrameText:
		text, err := content.Message(frame.Text)
		if err != nil {
			return message{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		return message{kind: models.ContentText, text: text}, nil
	case FrameImage:
		data, err := decodeMedia(frame.FileData)
		if err != nil {
			return message{}, err
		}
		ext := content.Extension(frame.FileName)
		if ext == "" {
			ext = "bin"
		}
		return message{kind: models.ContentImage, upload: &filestore.Upload{
			Name:   d.newName() + "." + ext,
			Data:   data,
			UserID: origin.Identity.ID,
			RoomID: origin.RoomID,
		}}, nil
	case FrameAudio:
		data, err := decodeMedia(frame.FileData)
		if err != nil {
			return message{}, err
		}
		return message{kind: models.ContentAudio, upload: &filestore.Upload{
			Name:   "voice_" + d.newName() + ".wav",
			Data:   data,
			UserID: origin.Identity.ID,
			RoomID: origin.RoomID,
		}}, nil
	default:
		return message{}, fmt.Errorf("%w: %s is not a content frame", ErrUnknownFrame, frame.Kind)
	}
}

func (d *Dispatcher) handleContent(ctx context.Context, origin Origin, frame Frame) (events.Event, error) {
	if !origin.Identity.Authenticated {
		return nil, fmt.Errorf("%w: anonymous sender", ErrIdentityUnresolved)
	}
	msg, err := d.prepare(origin, frame)
	if err != nil {
		return nil, err
	}

	var stored models.Message
	err = d.pool.Do(ctx, func(ctx context.Context) error {
		sender, err := d.store.GetUser(origin.Identity.ID)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: user %d", ErrIdentityUnresolved, origin.Identity.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to get sender: %w", err)
		}

		private := rooms.IsPrivate(origin.RoomID)
		if private {
			if err := d.checkParticipant(origin.RoomID, sender.ID); err != nil {
				return err
			}
		}

		m := models.Message{
			RoomID:     origin.RoomID,
			Private:    private,
			SenderID:   sender.ID,
			SenderName: sender.DisplayName,
			Kind:       msg.kind,
			Content:    msg.text,
			CreatedAt:  d.now(),
		}
		if msg.upload != nil {
			url, err := d.media.Save(*msg.upload)
			if err != nil {
				return fmt.Errorf("failed to save media: %w", err)
			}
			if msg.kind == models.ContentAudio {
				m.AudioURL = url
			} else {
				m.ImageURL = url
			}
		}

		stored, err = d.store.CreateMessage(m)
		if err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Debug("message stored", "room", stored.RoomID, "message_id", stored.ID, "kind", stored.Kind)
	return events.ChatMessage{
		Message:   stored.Content,
		Username:  stored.SenderName,
		Timestamp: events.FormatTimestamp(stored.CreatedAt),
		MessageID: stored.ID,
		ImageURL:  stored.ImageURL,
		AudioURL:  stored.AudioURL,
	}, nil
}

func (d *Dispatcher) checkParticipant(roomID string, userID uint64) error {
	room, err := d.store.GetPrivateRoom(roomID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return fmt.Errorf("failed to get private room: %w", err)
	}
	if !room.HasParticipant(userID) {
		return fmt.Errorf("%w: user %d in %s", ErrNotParticipant, userID, roomID)
	}
	return nil
}

// handleReadReceipt marks the message read. A missing or already read
// message still yields the event.
func (d *Dispatcher) handleReadReceipt(ctx context.Context, origin Origin, frame Frame) (events.Event, error) {
	if !origin.Identity.Authenticated {
		return nil, fmt.Errorf("%w: anonymous read receipt", ErrIdentityUnresolved)
	}

	err := d.pool.Do(ctx, func(ctx context.Context) error {
		found, err := d.store.MarkMessageRead(frame.MessageID)
		if err != nil {
			return fmt.Errorf("failed to mark message %d read: %w", frame.MessageID, err)
		}
		if !found {
			d.log.Debug("read receipt for unknown message", "message_id", frame.MessageID, "room", origin.RoomID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events.MessageRead{MessageID: frame.MessageID}, nil
}
