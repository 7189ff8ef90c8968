package storage

import "context"

// Session — данные авторизации на устройстве. Токены живут столько же,
// сколько сессия; идентификатор устройства хранится отдельно в метаданных
// и переживает logout.
type Session struct {
	Username     string `json:"username"`      // Username пользователя
	UserID       string `json:"user_id"`       // UserID UUID пользователя
	AccessToken  string `json:"access_token"`  // AccessToken JWT для запросов к API
	RefreshToken string `json:"refresh_token"` // RefreshToken для обновления access token
	ExpiresAt    int64  `json:"expires_at"`    // ExpiresAt unix-время истечения access token
}

// SessionStorage defines interface for storing the device session
type SessionStorage interface {
	// SaveSession stores session data, replacing any previous session
	SaveSession(ctx context.Context, session *Session) error

	// GetSession retrieves the stored session
	// Returns ErrSessionNotFound if no session exists
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession removes the stored session (logout)
	DeleteSession(ctx context.Context) error
}
