package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"parley/internal/auth"
	"parley/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers               = []byte("users")
	bucketUsernames           = []byte("usernames")
	bucketMessages            = []byte("messages")
	bucketRoomMessages        = []byte("room_messages")
	bucketPrivateRooms        = []byte("private_rooms")
	bucketPrivateMessages     = []byte("private_messages")
	bucketPrivateRoomMessages = []byte("private_room_messages")
	bucketMedia               = []byte("media")
)

var errInvalidMessage = errors.New("invalid message")

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsernames,
			bucketMessages,
			bucketRoomMessages,
			bucketPrivateRooms,
			bucketPrivateMessages,
			bucketPrivateRoomMessages,
			bucketMedia,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user and assigns its numeric id.
func (s *BboltStorage) CreateUser(credentials auth.UserCredentials) (models.User, error) {
	var dbUser DBUser
	err := s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketUsernames)
		if names.Get([]byte(credentials.UserName)) != nil {
			return fmt.Errorf("username %s: %w", credentials.UserName, models.ErrConflict)
		}

		users := tx.Bucket(bucketUsers)
		id, err := users.NextSequence()
		if err != nil {
			return err
		}

		dbUser = DBUser{
			ID:           id,
			UserName:     credentials.UserName,
			DisplayName:  credentials.DisplayName,
			PasswordHash: credentials.PasswordHash,
			CreatedAt:    credentials.CreatedAt,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		if err := users.Put(dbUser.Key(), data); err != nil {
			return err
		}
		return names.Put([]byte(dbUser.UserName), dbUser.Key())
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.toModel(), nil
}

func (s *BboltStorage) GetUser(id uint64) (models.User, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(idKey(id))
		if data == nil {
			return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
		}
		return dbUser.UnmarshalBinary(data)
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.toModel(), nil
}

// GetCredentials returns the user with the given username and its password hash.
func (s *BboltStorage) GetCredentials(username string) (auth.UserCredentials, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketUsernames).Get([]byte(username))
		if key == nil {
			return fmt.Errorf("username %s: %w", username, models.ErrNotFound)
		}
		data := tx.Bucket(bucketUsers).Get(key)
		if data == nil {
			return fmt.Errorf("user %d: %w", keyID(key), models.ErrNotFound)
		}
		return dbUser.UnmarshalBinary(data)
	})
	if err != nil {
		return auth.UserCredentials{}, err
	}
	return dbUser.toCredentials(), nil
}

// ListUsers returns all users ordered by id.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.toModel())
			return nil
		})
	})
	return users, err
}

func (s *BboltStorage) GetPrivateRoom(id string) (models.PrivateRoom, error) {
	var dbRoom DBPrivateRoom
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPrivateRooms).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("private room %s: %w", id, models.ErrNotFound)
		}
		return dbRoom.UnmarshalBinary(data)
	})
	if err != nil {
		return models.PrivateRoom{}, err
	}
	return dbRoom.toModel(), nil
}

// CreatePrivateRoom stores room unless a room with the same id exists, in
// which case it returns models.ErrConflict. The check and the insert share
// one write transaction, and bbolt serializes writers.
func (s *BboltStorage) CreatePrivateRoom(room models.PrivateRoom) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrivateRooms)
		if b.Get([]byte(room.ID)) != nil {
			return fmt.Errorf("private room %s: %w", room.ID, models.ErrConflict)
		}
		dbRoom := DBPrivateRoom(room)
		data, err := dbRoom.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbRoom.Key(), data)
	})
}

func messageBuckets(tx *bbolt.Tx, private bool) (messages, index *bbolt.Bucket) {
	if private {
		return tx.Bucket(bucketPrivateMessages), tx.Bucket(bucketPrivateRoomMessages)
	}
	return tx.Bucket(bucketMessages), tx.Bucket(bucketRoomMessages)
}

func validateMessage(m models.Message) error {
	if m.RoomID == "" {
		return fmt.Errorf("%w: missing room id", errInvalidMessage)
	}
	populated := 0
	for _, v := range []string{m.ImageURL, m.AudioURL} {
		if v != "" {
			populated++
		}
	}
	switch m.Kind {
	case models.ContentText:
		if populated != 0 {
			return fmt.Errorf("%w: text message with media", errInvalidMessage)
		}
	case models.ContentImage:
		if m.ImageURL == "" || populated != 1 || m.Content != "" {
			return fmt.Errorf("%w: image message must carry only an image", errInvalidMessage)
		}
	case models.ContentAudio:
		if m.AudioURL == "" || populated != 1 || m.Content != "" {
			return fmt.Errorf("%w: audio message must carry only audio", errInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown content kind %q", errInvalidMessage, m.Kind)
	}
	return nil
}

// CreateMessage stores a message and assigns its id. Public and private
// messages have separate id sequences. A private message needs its room to
// exist already.
func (s *BboltStorage) CreateMessage(message models.Message) (models.Message, error) {
	if err := validateMessage(message); err != nil {
		return models.Message{}, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.Private && tx.Bucket(bucketPrivateRooms).Get([]byte(message.RoomID)) == nil {
			return fmt.Errorf("private room %s: %w", message.RoomID, models.ErrNotFound)
		}

		messages, index := messageBuckets(tx, message.Private)
		id, err := messages.NextSequence()
		if err != nil {
			return err
		}
		message.ID = id
		message.Read = false

		dbMessage := newDBMessage(message)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := messages.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		roomIndex, err := index.CreateBucketIfNotExists([]byte(message.RoomID))
		if err != nil {
			return fmt.Errorf("failed to create room index: %w", err)
		}
		return roomIndex.Put(dbMessage.Key(), []byte{})
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *BboltStorage) GetMessage(id uint64, private bool) (models.Message, error) {
	var dbMessage DBMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		messages, _ := messageBuckets(tx, private)
		data := messages.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("message %d: %w", id, models.ErrNotFound)
		}
		return dbMessage.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Message{}, err
	}
	return dbMessage.toModel(private), nil
}

// MarkMessageRead sets the read flag of message id, looking in the public
// store first and the private store second. It reports whether a message was
// found. The flag never goes back to false.
func (s *BboltStorage) MarkMessageRead(id uint64) (bool, error) {
	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, private := range []bool{false, true} {
			messages, _ := messageBuckets(tx, private)
			data := messages.Get(idKey(id))
			if data == nil {
				continue
			}
			found = true

			var dbMessage DBMessage
			if err := dbMessage.UnmarshalBinary(data); err != nil {
				return err
			}
			if dbMessage.Read {
				return nil
			}
			dbMessage.Read = true
			newData, err := dbMessage.MarshalBinary()
			if err != nil {
				return err
			}
			return messages.Put(dbMessage.Key(), newData)
		}
		return nil
	})
	return found, err
}

// ListMessages returns up to limit most recent messages of a room, oldest first.
func (s *BboltStorage) ListMessages(roomID string, private bool, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		store, index := messageBuckets(tx, private)
		roomIndex := index.Bucket([]byte(roomID))
		if roomIndex == nil {
			return nil // No messages for this room
		}

		c := roomIndex.Cursor()
		for k, _ := c.Last(); k != nil && (limit <= 0 || len(messages) < limit); k, _ = c.Prev() {
			data := store.Get(k)
			if data == nil {
				continue
			}
			var dbMessage DBMessage
			if err := dbMessage.UnmarshalBinary(data); err != nil {
				return err
			}
			messages = append(messages, dbMessage.toModel(private))
		}
		return nil
	})
	slices.Reverse(messages)
	return messages, err
}
