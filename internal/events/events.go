// Package events builds the payloads broadcast to room groups.
//
// Every outbound event is one of a closed set of types implementing Event.
// Encode maps an event to its wire form; it does no I/O and holds no state.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the minute-resolution format used for chat_message timestamps.
const TimestampLayout = "03:04 PM"

var ErrUnknownEvent = errors.New("unknown event")

// Kind is the "type" discriminator of an outbound payload.
type Kind string

const (
	KindChatMessage Kind = "chat_message"
	KindTyping      Kind = "typing"
	KindUserList    Kind = "user_list"
	KindMessageRead Kind = "message_read"
	KindError       Kind = "error"
)

// Event is implemented only by the event types of this package.
type Event interface {
	Kind() Kind
	sealed()
}

// ChatMessage announces a persisted message. At most one of ImageURL and
// AudioURL is set.
type ChatMessage struct {
	Message   string
	Username  string
	Timestamp string
	MessageID uint64
	ImageURL  string
	AudioURL  string
}

type Typing struct {
	Username string
}

// UserList carries a full presence snapshot.
type UserList struct {
	Users []string
}

type MessageRead struct {
	MessageID uint64
}

// Error is only sent to the connection whose frame was dropped, and only
// when error events are enabled.
type Error struct {
	Code    string
	Message string
}

func (ChatMessage) Kind() Kind { return KindChatMessage }
func (Typing) Kind() Kind      { return KindTyping }
func (UserList) Kind() Kind    { return KindUserList }
func (MessageRead) Kind() Kind { return KindMessageRead }
func (Error) Kind() Kind       { return KindError }

func (ChatMessage) sealed() {}
func (Typing) sealed()      {}
func (UserList) sealed()    {}
func (MessageRead) sealed() {}
func (Error) sealed()       {}

// FormatTimestamp renders t the way chat_message timestamps are sent.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

type chatMessagePayload struct {
	Type      Kind    `json:"type"`
	Message   string  `json:"message"`
	Username  string  `json:"username"`
	Timestamp string  `json:"timestamp"`
	MessageID uint64  `json:"message_id"`
	ImageURL  *string `json:"image_url"`
	AudioURL  *string `json:"audio_url"`
}

type typingPayload struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
}

type userListPayload struct {
	Type  Kind     `json:"type"`
	Users []string `json:"users"`
}

type messageReadPayload struct {
	Type      Kind   `json:"type"`
	MessageID uint64 `json:"message_id"`
}

type errorPayload struct {
	Type    Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Payload returns the wire struct for e, ready for JSON encoding.
func Payload(e Event) (any, error) {
	switch ev := e.(type) {
	case ChatMessage:
		return chatMessagePayload{
			Type:      KindChatMessage,
			Message:   ev.Message,
			Username:  ev.Username,
			Timestamp: ev.Timestamp,
			MessageID: ev.MessageID,
			ImageURL:  nullable(ev.ImageURL),
			AudioURL:  nullable(ev.AudioURL),
		}, nil
	case Typing:
		return typingPayload{Type: KindTyping, Username: ev.Username}, nil
	case UserList:
		users := ev.Users
		if users == nil {
			users = []string{}
		}
		return userListPayload{Type: KindUserList, Users: users}, nil
	case MessageRead:
		return messageReadPayload{Type: KindMessageRead, MessageID: ev.MessageID}, nil
	case Error:
		return errorPayload{Type: KindError, Code: ev.Code, Message: ev.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
}

// Encode returns the JSON wire payload of e.
func Encode(e Event) ([]byte, error) {
	p, err := Payload(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
