package auth

import (
	"context"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

//go:generate moq -out service_mock.go . Service

// Service defines the interface for device session management.
// It owns login/logout against the server and the locally persisted
// session: tokens, user identity and the device actor id.
type Service interface {
	// Register регистрирует нового пользователя на сервере
	Register(ctx context.Context, username, password string) (*RegisterResult, error)

	// Login выполняет аутентификацию и сохраняет сессию устройства.
	// Идентификатор устройства создается при первом входе и дальше
	// переиспользуется: это актор векторных часов этого устройства.
	Login(ctx context.Context, username, password string) (*LoginResult, error)

	// Logout удаляет локальную сессию и best-effort инвалидирует
	// токены на сервере
	Logout(ctx context.Context) error

	// Session возвращает сохраненную сессию
	// Returns storage.ErrSessionNotFound если вход не выполнен
	Session(ctx context.Context) (*storage.Session, error)

	// AccessToken возвращает действующий access token, прозрачно
	// обновляя пару токенов по refresh token при истечении
	AccessToken(ctx context.Context) (string, error)

	// DeviceID возвращает идентификатор устройства, создавая и
	// сохраняя его при первом обращении
	DeviceID(ctx context.Context) (string, error)
}

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	UserID   string // UUID пользователя
	Username string // username
}

// LoginResult содержит результат входа
type LoginResult struct {
	Username  string // username
	UserID    string // UUID пользователя (пустой, если сервер его не сообщает)
	DeviceID  string // идентификатор устройства (актор часов)
	ExpiresIn int64  // время жизни access token в секундах
}
