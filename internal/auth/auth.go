package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	TokenName          = "token"
	loginFailedMessage = "Login failed"
	minPasswordLength  = 8
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidToken = errors.New("invalid token")
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

// UserCredentials is a stored user together with its password hash.
type UserCredentials struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

type credentialsStore interface {
	// CreateUser assigns the user id and fails with models.ErrConflict
	// when the username is taken.
	CreateUser(credentials UserCredentials) (models.User, error)
	GetCredentials(username string) (UserCredentials, error)
	GetUser(id uint64) (models.User, error)
}

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must not be negative")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

// AuthService issues bearer tokens and resolves them to identities.
type AuthService struct {
	Config
	store      credentialsStore
	liveTokens geche.Geche[string, uint64]
	now        func() time.Time
	log        *slog.Logger
}

func NewAuthService(ctx context.Context, config Config, store credentialsStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		store:      store,
		liveTokens: geche.NewMapTTLCache[string, uint64](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
		log:        slog.Default(),
	}, nil
}

// AddUser registers a new user. An empty displayName defaults to username.
func (as *AuthService) AddUser(username, displayName, password string) (models.User, error) {
	if len(password) < minPasswordLength {
		return models.User{}, ErrWeakPassword
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := as.store.CreateUser(UserCredentials{
		User: models.User{
			UserName:    username,
			DisplayName: displayName,
			CreatedAt:   as.now().Unix(),
		},
		PasswordHash: string(hash),
	})
	if errors.Is(err, models.ErrConflict) {
		return models.User{}, ErrUserExists
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (as *AuthService) Login(req LoginRequest) (LoginResponse, uint64) {
	creds, err := as.store.GetCredentials(req.Username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			as.log.Error("login lookup failed", "username", req.Username, "error", err)
		}
		return LoginResponse{Message: loginFailedMessage}, 0
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResponse{Message: loginFailedMessage}, 0
	}

	token, err := as.generateToken()
	if err != nil {
		as.log.Error("login failed", "user_id", creds.ID, "error", err)
		return LoginResponse{Message: "internal error"}, 0
	}

	as.liveTokens.Set(token, creds.ID)

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: as.now().Unix() + int64(as.TokenExpiry.Seconds()),
	}, creds.ID
}

func (as *AuthService) Logoff(token string) error {
	return as.liveTokens.Del(token)
}

func (as *AuthService) generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (as *AuthService) GetUserID(token string) (uint64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	id, err := as.liveTokens.Get(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Authenticate resolves a token to the stored user behind it.
func (as *AuthService) Authenticate(token string) (models.User, error) {
	id, err := as.GetUserID(token)
	if err != nil {
		return models.User{}, err
	}
	user, err := as.store.GetUser(id)
	if err != nil {
		return models.User{}, fmt.Errorf("token user %d: %w", id, err)
	}
	return user, nil
}

// Identify returns the identity of the caller of r. Requests without a valid
// token, or whose user no longer exists, are anonymous.
func (as *AuthService) Identify(r *http.Request) models.Identity {
	user, err := as.Authenticate(TokenFromRequest(r))
	if err != nil {
		return models.Anonymous()
	}
	return user.Identity()
}

// TokenFromRequest looks for the token in the header, then the cookie, then
// the query string. Browsers cannot set headers on websocket requests.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.Header.Get(TokenName)); token != "" {
		return token
	}
	if c, err := r.Cookie(TokenName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenName))
}
