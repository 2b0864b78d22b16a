package rooms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parley/internal/models"
)

const (
	// PrivatePrefix marks canonical private room ids.
	PrivatePrefix = "private_"
	groupPrefix   = "chat_"
)

var (
	ErrInvalidPair   = errors.New("private room needs two distinct registered users")
	ErrInvalidRoomID = errors.New("invalid private room id")
)

type roomStore interface {
	GetPrivateRoom(id string) (models.PrivateRoom, error)
	// CreatePrivateRoom stores room and fails with models.ErrConflict if a
	// room with the same id already exists.
	CreatePrivateRoom(room models.PrivateRoom) error
}

type Resolver struct {
	store roomStore
	now   func() time.Time
}

func NewResolver(store roomStore) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve returns the canonical id of the private room between a and b.
// Resolve(a, b) == Resolve(b, a).
func Resolve(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s%d_%d", PrivatePrefix, a, b)
}

// IsPrivate reports whether roomID addresses a private room.
func IsPrivate(roomID string) bool {
	return strings.HasPrefix(roomID, PrivatePrefix)
}

// Parse returns the participants of a canonical private room id, smaller first.
func Parse(roomID string) (uint64, uint64, error) {
	if !IsPrivate(roomID) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	lo, hi, ok := strings.Cut(strings.TrimPrefix(roomID, PrivatePrefix), "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	a, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	b, err := strconv.ParseUint(hi, 10, 64)
	if err != nil || a >= b {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return a, b, nil
}

// GetOrCreate returns the private room between a and b, creating it on first
// contact. Participants are recorded in the order given. Concurrent first
// calls for the same pair create exactly one room.
func (r *Resolver) GetOrCreate(a, b uint64) (models.PrivateRoom, error) {
	if a == 0 || b == 0 || a == b {
		return models.PrivateRoom{}, ErrInvalidPair
	}

	id := Resolve(a, b)
	room, err := r.store.GetPrivateRoom(id)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.PrivateRoom{}, fmt.Errorf("failed to get private room %s: %w", id, err)
	}

	room = models.PrivateRoom{
		ID:        id,
		User1ID:   a,
		User2ID:   b,
		CreatedAt: r.now().Unix(),
	}
	err = r.store.CreatePrivateRoom(room)
	switch {
	case err == nil:
		return room, nil
	case errors.Is(err, models.ErrConflict):
		// Lost the race against another first contact.
		existing, err := r.store.GetPrivateRoom(id)
		if err != nil {
			return models.PrivateRoom{}, fmt.Errorf("failed to refetch private room %s: %w", id, err)
		}
		return existing, nil
	default:
		return models.PrivateRoom{}, fmt.Errorf("failed to create private room %s: %w", id, err)
	}
}

// GroupName returns the broadcast group of a room.
func GroupName(roomID string) string {
	return groupPrefix + roomID
}
