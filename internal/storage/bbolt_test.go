package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"parley/internal/auth"
	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	store, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUsers(t *testing.T) {
	store := newTestStorage(t)

	alice, err := store.CreateUser(auth.UserCredentials{
		User:         models.User{UserName: "alice", DisplayName: "Alice"},
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), alice.ID)

	bob, err := store.CreateUser(auth.UserCredentials{
		User:         models.User{UserName: "bob", DisplayName: "Bob"},
		PasswordHash: "hash2",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bob.ID)

	_, err = store.CreateUser(auth.UserCredentials{User: models.User{UserName: "alice"}})
	require.ErrorIs(t, err, models.ErrConflict)

	got, err := store.GetUser(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.DisplayName)

	_, err = store.GetUser(42)
	require.ErrorIs(t, err, models.ErrNotFound)

	creds, err := store.GetCredentials("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, creds.ID)
	assert.Equal(t, "hash", creds.PasswordHash)

	_, err = store.GetCredentials("carol")
	require.ErrorIs(t, err, models.ErrNotFound)

	users, err := store.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].UserName)
	assert.Equal(t, "bob", users[1].UserName)
}

func TestPrivateRooms(t *testing.T) {
	store := newTestStorage(t)

	room := models.PrivateRoom{ID: "private_1_2", User1ID: 2, User2ID: 1, CreatedAt: 100}
	require.NoError(t, store.CreatePrivateRoom(room))
	require.ErrorIs(t, store.CreatePrivateRoom(room), models.ErrConflict)

	got, err := store.GetPrivateRoom("private_1_2")
	require.NoError(t, err)
	assert.Equal(t, room, got)

	_, err = store.GetPrivateRoom("private_1_3")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestPrivateRoomsConcurrentCreate(t *testing.T) {
	store := newTestStorage(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreatePrivateRoom(models.PrivateRoom{ID: "private_3_4", User1ID: 3, User2ID: 4})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestMessages(t *testing.T) {
	store := newTestStorage(t)
	now := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

	t.Run("Public", func(t *testing.T) {
		var ids []uint64
		for _, text := range []string{"one", "two", "three"} {
			m, err := store.CreateMessage(models.Message{
				RoomID:     "lobby",
				SenderID:   1,
				SenderName: "Alice",
				Kind:       models.ContentText,
				Content:    text,
				CreatedAt:  now,
			})
			require.NoError(t, err)
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []uint64{1, 2, 3}, ids)

		got, err := store.GetMessage(2, false)
		require.NoError(t, err)
		assert.Equal(t, "two", got.Content)
		assert.False(t, got.Private)
		assert.True(t, now.Equal(got.CreatedAt))

		last, err := store.ListMessages("lobby", false, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, "two", last[0].Content)
		assert.Equal(t, "three", last[1].Content)

		all, err := store.ListMessages("lobby", false, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		empty, err := store.ListMessages("nowhere", false, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Private", func(t *testing.T) {
		_, err := store.CreateMessage(models.Message{
			RoomID:  "private_7_8",
			Private: true,
			Kind:    models.ContentText,
			Content: "hi",
		})
		require.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, store.CreatePrivateRoom(models.PrivateRoom{ID: "private_7_8", User1ID: 7, User2ID: 8}))

		m, err := store.CreateMessage(models.Message{
			RoomID:    "private_7_8",
			Private:   true,
			SenderID:  7,
			Kind:      models.ContentAudio,
			AudioURL:  "/media/voice_x.wav",
			CreatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), m.ID, "private messages have their own sequence")

		msgs, err := store.ListMessages("private_7_8", true, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].Private)
		assert.Equal(t, models.ContentAudio, msgs[0].Kind)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := store.CreateMessage(models.Message{
			RoomID:   "lobby",
			Kind:     models.ContentImage,
			ImageURL: "/media/a.png",
			AudioURL: "/media/b.wav",
		})
		require.ErrorIs(t, err, errInvalidMessage)

		_, err = store.CreateMessage(models.Message{Kind: models.ContentText, Content: "x"})
		require.ErrorIs(t, err, errInvalidMessage)

		_, err = store.CreateMessage(models.Message{RoomID: "lobby", Kind: "video"})
		require.ErrorIs(t, err, errInvalidMessage)
	})
}

func TestMarkMessageRead(t *testing.T) {
	store := newTestStorage(t)

	public, err := store.CreateMessage(models.Message{RoomID: "lobby", Kind: models.ContentText, Content: "a"})
	require.NoError(t, err)

	require.NoError(t, store.CreatePrivateRoom(models.PrivateRoom{ID: "private_1_2", User1ID: 1, User2ID: 2}))
	// Public ids stop at 2, so private id 3 exists only in the private store.
	_, err = store.CreateMessage(models.Message{RoomID: "lobby", Kind: models.ContentText, Content: "b"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.CreateMessage(models.Message{RoomID: "private_1_2", Private: true, Kind: models.ContentText, Content: "p"})
		require.NoError(t, err)
	}

	found, err := store.MarkMessageRead(public.ID)
	require.NoError(t, err)
	assert.True(t, found)

	got, err := store.GetMessage(public.ID, false)
	require.NoError(t, err)
	assert.True(t, got.Read)

	// Same id exists in both stores; only the public one is marked.
	priv, err := store.GetMessage(public.ID, true)
	require.NoError(t, err)
	assert.False(t, priv.Read)

	found, err = store.MarkMessageRead(3)
	require.NoError(t, err)
	assert.True(t, found)
	priv, err = store.GetMessage(3, true)
	require.NoError(t, err)
	assert.True(t, priv.Read)

	found, err = store.MarkMessageRead(public.ID)
	require.NoError(t, err)
	assert.True(t, found, "marking twice is a no-op")

	found, err = store.MarkMessageRead(999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMedia(t *testing.T) {
	store := newTestStorage(t)

	meta := models.Media{
		ID:       "abc.png",
		Hash:     "deadbeef",
		Name:     "cat.png",
		MimeType: "image/png",
		Size:     12,
		UserID:   1,
		RoomID:   "lobby",
	}
	require.NoError(t, store.UpsertMedia(meta))

	got, err := store.GetMedia("abc.png")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	_, err = store.GetMedia("missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}
