package app

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"formforge/pkg/auth"
	"formforge/pkg/domain"
	"formforge/pkg/store"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 45
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	Pool          store.PoolConfig
	JWTSecret     string
	SessionTTL    time.Duration
	JWTIssuer     string
	JWTAudience   string
	JWTLeeway     time.Duration
	RedisAddr     string
	RedisPassword string
	Store         store.Store
	Sessions      store.SessionStore
}

// App is the core application service wiring storage and auth together.
type App struct {
	store    store.Store
	sessions store.SessionStore
}

// New constructs the application with database storage and token issuance.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		var err error
		sessionStore, err = store.NewHS256SessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init hs256 session store: %w", err)
		}
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
	}, nil
}

// Register creates a new credential record. The returned user carries the
// allocated sequential id and no password material.
func (a *App) Register(username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(username) < minUsernameLength {
		return domain.User{}, ErrUsernameTooShort
	}
	if len(username) > maxUsernameLength {
		return domain.User{}, ErrUsernameTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.User{}, ErrUsernameTaken
	}
	taken, err = a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(username, email, passwordHash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			if taken, checkErr := a.store.HasUsername(username); checkErr == nil && taken {
				return domain.User{}, ErrUsernameTaken
			}
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// Login validates credentials and issues a session token bound to the user.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	user.PasswordHash = ""
	return user, token, nil
}

// VerifyToken validates a bearer token and returns its bound user id.
func (a *App) VerifyToken(token string) (string, error) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return "", ErrInvalidToken
	}
	return uid, nil
}

// UserFromToken resolves the full user record behind a bearer token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, err := a.VerifyToken(token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	user.PasswordHash = ""
	return user, true
}

// Logout revokes the presented token when a revoker is configured.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// CredentialRows returns the raw usercred rows for the query endpoint.
func (a *App) CredentialRows() ([]map[string]any, error) {
	return a.store.CredentialRows()
}

// CredentialColumns returns the usercred column layout.
func (a *App) CredentialColumns() ([]store.ColumnInfo, error) {
	return a.store.CredentialColumns()
}
