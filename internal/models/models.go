package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// AnonymousName is the display name used for connections without a valid token.
const AnonymousName = "Anonymous"

// Identity is the caller behind a connection or request.
type Identity struct {
	ID            uint64 `json:"id"`
	DisplayName   string `json:"displayName"`
	Authenticated bool   `json:"authenticated"`
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Identity {
	return Identity{DisplayName: AnonymousName}
}

// User represents a registered user.
type User struct {
	ID          uint64 `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
	CreatedAt   int64  `json:"createdAt"` // Unix timestamp (seconds)
}

// Identity converts a stored user into an authenticated identity.
func (u User) Identity() Identity {
	return Identity{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Authenticated: true,
	}
}

// PrivateRoom is a conversation between exactly two users.
// ID is the canonical id derived from the participant pair.
type PrivateRoom struct {
	ID        string `json:"id"`
	User1ID   uint64 `json:"user1Id"`
	User2ID   uint64 `json:"user2Id"`
	CreatedAt int64  `json:"createdAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (r PrivateRoom) HasParticipant(userID uint64) bool {
	return r.User1ID == userID || r.User2ID == userID
}

// ContentKind says which content field of a Message is populated.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentAudio ContentKind = "audio"
)

// Message is a persisted chat message of a public or private room.
type Message struct {
	ID         uint64      `json:"id"`
	RoomID     string      `json:"roomId"`
	Private    bool        `json:"private"`
	SenderID   uint64      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Kind       ContentKind `json:"kind"`
	Content    string      `json:"content"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	AudioURL   string      `json:"audioUrl,omitempty"`
	Read       bool        `json:"read"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Media describes an uploaded blob.
type Media struct {
	ID        string `json:"id"`
	Hash      string `json:"hash"`
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"createdAt"`
	UserID    uint64 `json:"userId"`
	RoomID    string `json:"roomId"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
