package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"parley/internal/auth"
	"parley/internal/events"
	"parley/internal/models"
	"parley/internal/presence"
	"parley/internal/rooms"
	"parley/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	api      *API
	auth     *auth.AuthService
	store    *storage.BboltStorage
	presence *presence.Registry
	mux      *http.ServeMux
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authService, err := auth.NewAuthService(t.Context(), auth.Config{TokenExpiry: time.Hour}, store)
	require.NoError(t, err)

	registry := presence.NewRegistry()
	a := New(Config{}, authService, store, rooms.NewResolver(store), registry, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", RequireSameOrigin(a.LoginHandler))
	mux.HandleFunc("POST /api/logoff", RequireSameOrigin(a.LogoffHandler))
	mux.HandleFunc("GET /api/users", a.RequireAuth(a.UsersHandler))
	mux.HandleFunc("POST /api/private/{userID}", RequireSameOrigin(a.RequireAuth(a.OpenPrivateHandler)))
	mux.HandleFunc("GET /api/rooms/{room}/messages", a.HistoryHandler)

	return &testAPI{api: a, auth: authService, store: store, presence: registry, mux: mux}
}

func (ta *testAPI) addUser(t *testing.T, username, displayName string) (models.User, string) {
	t.Helper()
	user, err := ta.auth.AddUser(username, displayName, "password1")
	require.NoError(t, err)
	resp, _ := ta.auth.Login(auth.LoginRequest{Username: username, Password: "password1"})
	require.True(t, resp.Success)
	return user, resp.Token
}

func (ta *testAPI) do(method, target, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set(auth.TokenName, token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, req)
	return rec
}

func TestLoginLogoff(t *testing.T) {
	ta := newTestAPI(t)
	_, err := ta.auth.AddUser("alice", "Alice", "password1")
	require.NoError(t, err)

	rec := ta.do(http.MethodPost, "/api/login", "", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(http.MethodPost, "/api/login", "", `{"username":"alice","password":"password1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp auth.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)

	rec = ta.do(http.MethodPost, "/api/logoff", resp.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err = ta.auth.GetUserID(resp.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLoginForm(t *testing.T) {
	ta := newTestAPI(t)
	_, err := ta.auth.AddUser("alice", "Alice", "password1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("username=alice&password=password1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireSameOrigin(t *testing.T) {
	ta := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "http://chat.example.com/api/login", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUsersHandler(t *testing.T) {
	ta := newTestAPI(t)
	_, token := ta.addUser(t, "alice", "Alice")
	ta.addUser(t, "bob", "Bob")
	ta.presence.Add("Bob")

	rec := ta.do(http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(http.MethodGet, "/api/users", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].DisplayName)
	assert.False(t, users[0].Online)
	assert.True(t, users[1].Online)
}

func TestOpenPrivateHandler(t *testing.T) {
	ta := newTestAPI(t)
	alice, aliceToken := ta.addUser(t, "alice", "Alice")
	bob, bobToken := ta.addUser(t, "bob", "Bob")

	open := func(token string, other uint64) (int, string) {
		rec := ta.do(http.MethodPost, "/api/private/"+strconv.FormatUint(other, 10), token, "")
		var resp PrivateRoomResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		return rec.Code, resp.RoomID
	}

	code, roomID := open(aliceToken, bob.ID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, rooms.Resolve(alice.ID, bob.ID), roomID)

	code, again := open(bobToken, alice.ID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, roomID, again)

	room, err := ta.store.GetPrivateRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, room.User1ID, "participants are kept in first contact order")

	code, _ = open(aliceToken, alice.ID)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = open(aliceToken, 999)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = open("", bob.ID)
	assert.Equal(t, http.StatusUnauthorized, code)

	rec := ta.do(http.MethodPost, "/api/private/abc", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandler(t *testing.T) {
	ta := newTestAPI(t)
	alice, aliceToken := ta.addUser(t, "alice", "Alice")
	bob, _ := ta.addUser(t, "bob", "Bob")
	_, eveToken := ta.addUser(t, "eve", "Eve")

	created := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	for _, text := range []string{"one", "two", "three"} {
		_, err := ta.store.CreateMessage(models.Message{
			RoomID: "lobby", SenderID: alice.ID, SenderName: "Alice",
			Kind: models.ContentText, Content: text, CreatedAt: created,
		})
		require.NoError(t, err)
	}

	rec := ta.do(http.MethodGet, "/api/rooms/lobby/messages?limit=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0]["message"])
	assert.Equal(t, "three", history[1]["message"])
	assert.Equal(t, "Alice", history[1]["username"])
	assert.Nil(t, history[1]["image_url"])

	rec = ta.do(http.MethodGet, "/api/rooms/empty/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ta.do(http.MethodGet, "/api/rooms/lobby/messages?limit=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	room, err := rooms.NewResolver(ta.store).GetOrCreate(alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = ta.store.CreateMessage(models.Message{
		RoomID: room.ID, Private: true, SenderID: bob.ID, SenderName: "Bob",
		Kind: models.ContentText, Content: "psst", CreatedAt: created,
	})
	require.NoError(t, err)

	target := "/api/rooms/" + room.ID + "/messages"
	assert.Equal(t, http.StatusUnauthorized, ta.do(http.MethodGet, target, "", "").Code)
	assert.Equal(t, http.StatusForbidden, ta.do(http.MethodGet, target, eveToken, "").Code)

	rec = ta.do(http.MethodGet, target, aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var private []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&private))
	require.Len(t, private, 1)
	assert.Equal(t, "psst", private[0]["message"])
	assert.Equal(t, events.FormatTimestamp(created.Local()), private[0]["timestamp"])
}
