package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"parley/internal/auth"
	"parley/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Storeable = (*DBUser)(nil)
	_ Storeable = (*DBPrivateRoom)(nil)
	_ Storeable = (*DBMessage)(nil)
	_ Storeable = (*DBMedia)(nil)
)

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func keyID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

type DBUser struct {
	ID           uint64 `msgpack:"id"`
	UserName     string `msgpack:"userName"`
	DisplayName  string `msgpack:"displayName"`
	PasswordHash string `msgpack:"passwordHash"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return idKey(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) toModel() models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func (u *DBUser) toCredentials() auth.UserCredentials {
	return auth.UserCredentials{
		User:         u.toModel(),
		PasswordHash: u.PasswordHash,
	}
}

type DBPrivateRoom struct {
	ID        string `msgpack:"id"`
	User1ID   uint64 `msgpack:"user1Id"`
	User2ID   uint64 `msgpack:"user2Id"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (r *DBPrivateRoom) Key() []byte {
	return []byte(r.ID)
}

func (r *DBPrivateRoom) MarshalBinary() (data []byte, err error) {
	type alias DBPrivateRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBPrivateRoom) UnmarshalBinary(data []byte) error {
	type alias DBPrivateRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

func (r *DBPrivateRoom) toModel() models.PrivateRoom {
	return models.PrivateRoom{
		ID:        r.ID,
		User1ID:   r.User1ID,
		User2ID:   r.User2ID,
		CreatedAt: r.CreatedAt,
	}
}

type DBMessage struct {
	ID         uint64 `msgpack:"id"`
	RoomID     string `msgpack:"roomId"`
	SenderID   uint64 `msgpack:"senderId"`
	SenderName string `msgpack:"senderName"`
	Kind       string `msgpack:"kind"`
	Content    string `msgpack:"content"`
	ImageURL   string `msgpack:"imageUrl"`
	AudioURL   string `msgpack:"audioUrl"`
	Read       bool   `msgpack:"read"`
	CreatedAt  int64  `msgpack:"createdAt"` // Unix nanoseconds
}

func (m *DBMessage) Key() []byte {
	return idKey(m.ID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func newDBMessage(m models.Message) DBMessage {
	return DBMessage{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Kind:       string(m.Kind),
		Content:    m.Content,
		ImageURL:   m.ImageURL,
		AudioURL:   m.AudioURL,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt.UnixNano(),
	}
}

func (m *DBMessage) toModel(private bool) models.Message {
	return models.Message{
		ID:         m.ID,
		RoomID:     m.RoomID,
		Private:    private,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Kind:       models.ContentKind(m.Kind),
		Content:    m.Content,
		ImageURL:   m.ImageURL,
		AudioURL:   m.AudioURL,
		Read:       m.Read,
		CreatedAt:  time.Unix(0, m.CreatedAt),
	}
}
