package rooms

import (
	"sync"
	"sync/atomic"
	"testing"

	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory roomStore with the same uniqueness rule as bbolt.
type memStore struct {
	mu      sync.Mutex
	rooms   map[string]models.PrivateRoom
	creates atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[string]models.PrivateRoom)}
}

func (m *memStore) GetPrivateRoom(id string) (models.PrivateRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return models.PrivateRoom{}, models.ErrNotFound
	}
	return r, nil
}

func (m *memStore) CreatePrivateRoom(room models.PrivateRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		return models.ErrConflict
	}
	m.rooms[room.ID] = room
	m.creates.Add(1)
	return nil
}

func TestResolve(t *testing.T) {
	require.Equal(t, "private_3_7", Resolve(3, 7))
	require.Equal(t, "private_3_7", Resolve(7, 3))
	// numeric, not lexicographic
	require.Equal(t, "private_9_10", Resolve(10, 9))

	for a := uint64(1); a < 20; a++ {
		for b := uint64(1); b < 20; b++ {
			require.Equal(t, Resolve(a, b), Resolve(b, a))
		}
	}
}

func TestGroupName(t *testing.T) {
	assert.Equal(t, "chat_lobby", GroupName("lobby"))
	assert.Equal(t, "chat_private_3_7", GroupName(Resolve(7, 3)))
}

func TestParse(t *testing.T) {
	a, b, err := Parse("private_3_7")
	require.NoError(t, err)
	require.Equal(t, uint64(3), a)
	require.Equal(t, uint64(7), b)

	for _, bad := range []string{"lobby", "private_", "private_3", "private_x_7", "private_7_3", "private_3_3"} {
		_, _, err := Parse(bad)
		require.ErrorIs(t, err, ErrInvalidRoomID, bad)
	}
}

func TestIsPrivate(t *testing.T) {
	require.True(t, IsPrivate("private_1_2"))
	require.False(t, IsPrivate("lobby"))
}

func TestGetOrCreate_FirstContact(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store)

	// A(id=3) and B(id=7)
	room, err := r.GetOrCreate(3, 7)
	require.NoError(t, err)
	require.Equal(t, "private_3_7", room.ID)

	again, err := r.GetOrCreate(7, 3)
	require.NoError(t, err)
	require.Equal(t, room, again)
	require.Equal(t, int32(1), store.creates.Load())
}

func TestGetOrCreate_KeepsSuppliedOrder(t *testing.T) {
	r := NewResolver(newMemStore())
	room, err := r.GetOrCreate(7, 3)
	require.NoError(t, err)
	require.Equal(t, "private_3_7", room.ID)
	require.Equal(t, uint64(7), room.User1ID)
	require.Equal(t, uint64(3), room.User2ID)
	require.True(t, room.HasParticipant(3))
	require.False(t, room.HasParticipant(4))
}

func TestGetOrCreate_InvalidPair(t *testing.T) {
	r := NewResolver(newMemStore())
	_, err := r.GetOrCreate(5, 5)
	require.ErrorIs(t, err, ErrInvalidPair)
	_, err = r.GetOrCreate(0, 5)
	require.ErrorIs(t, err, ErrInvalidPair)
}

// racyStore reports not-found on the first lookup even though another caller
// already created the room, so GetOrCreate must recover from the conflict.
type racyStore struct {
	*memStore
	missed atomic.Bool
}

func (s *racyStore) GetPrivateRoom(id string) (models.PrivateRoom, error) {
	if s.missed.CompareAndSwap(false, true) {
		return models.PrivateRoom{}, models.ErrNotFound
	}
	return s.memStore.GetPrivateRoom(id)
}

func TestGetOrCreate_ConflictRefetches(t *testing.T) {
	inner := newMemStore()
	existing := models.PrivateRoom{ID: "private_3_7", User1ID: 7, User2ID: 3, CreatedAt: 1}
	require.NoError(t, inner.CreatePrivateRoom(existing))

	r := NewResolver(&racyStore{memStore: inner})
	room, err := r.GetOrCreate(3, 7)
	require.NoError(t, err)
	require.Equal(t, existing, room)
	require.Equal(t, int32(1), inner.creates.Load())
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := uint64(3), uint64(7)
			if i%2 == 0 {
				a, b = b, a
			}
			room, err := r.GetOrCreate(a, b)
			assert.NoError(t, err)
			ids[i] = room.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, "private_3_7", id)
	}
	require.Equal(t, int32(1), store.creates.Load())
}
