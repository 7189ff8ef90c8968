package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/storage"
	"github.com/iudanet/finkeeper/internal/validation"
	"github.com/iudanet/finkeeper/pkg/api"
)

// refreshLeeway — запас до истечения access token, после которого токен
// считается истекшим и обновляется заранее
const refreshLeeway = 30 * time.Second

// service реализует Service поверх API клиента и локального хранилища
type service struct {
	apiClient clientapi.ClientAPI
	sessions  storage.SessionStorage
	metadata  storage.MetadataStorage
	logger    *slog.Logger
}

// NewService создает сервис сессии устройства
func NewService(
	apiClient clientapi.ClientAPI,
	sessions storage.SessionStorage,
	metadata storage.MetadataStorage,
	logger *slog.Logger,
) Service {
	return &service{
		apiClient: apiClient,
		sessions:  sessions,
		metadata:  metadata,
		logger:    logger,
	}
}

// Register регистрирует нового пользователя на сервере
func (s *service) Register(ctx context.Context, username, password string) (*RegisterResult, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, api.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return &RegisterResult{
		UserID:   resp.UserID,
		Username: username,
	}, nil
}

// Login выполняет аутентификацию и сохраняет сессию устройства
func (s *service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Login(ctx, api.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}

	session := &storage.Session{
		Username:     username,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("logged in", slog.String("username", username), slog.String("device_id", deviceID))

	return &LoginResult{
		Username:  username,
		DeviceID:  deviceID,
		ExpiresIn: resp.ExpiresIn,
	}, nil
}

// Logout удаляет локальную сессию; сервер уведомляется best effort —
// недоступность сервера не должна мешать выйти на устройстве
func (s *service) Logout(ctx context.Context) error {
	session, err := s.sessions.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if err := s.apiClient.Logout(ctx, session.AccessToken); err != nil {
		s.logger.Warn("failed to logout on server", slog.Any("error", err))
	}

	if err := s.sessions.DeleteSession(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// Session возвращает сохраненную сессию
func (s *service) Session(ctx context.Context) (*storage.Session, error) {
	return s.sessions.GetSession(ctx)
}

// AccessToken возвращает действующий access token, обновляя пару токенов
// при истечении
func (s *service) AccessToken(ctx context.Context) (string, error) {
	session, err := s.sessions.GetSession(ctx)
	if err != nil {
		return "", err
	}

	expiresAt := time.Unix(session.ExpiresAt, 0)
	if time.Now().Add(refreshLeeway).Before(expiresAt) {
		return session.AccessToken, nil
	}

	// Токен истек или вот-вот истечет: обновляем пару по refresh token
	resp, err := s.apiClient.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh tokens: %w", err)
	}

	session.AccessToken = resp.AccessToken
	session.RefreshToken = resp.RefreshToken
	session.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix()

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save refreshed session: %w", err)
	}

	s.logger.Debug("access token refreshed", slog.String("username", session.Username))

	return session.AccessToken, nil
}

// DeviceID возвращает идентификатор устройства, создавая его при первом
// обращении. Идентификатор переживает logout: часы записей, созданных
// на этом устройстве, должны ссылаться на один и тот же актор.
func (s *service) DeviceID(ctx context.Context) (string, error) {
	deviceID, err := s.metadata.GetDeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}
	if deviceID != "" {
		return deviceID, nil
	}

	deviceID = uuid.New().String()
	if err := s.metadata.SaveDeviceID(ctx, deviceID); err != nil {
		return "", fmt.Errorf("failed to save device id: %w", err)
	}

	s.logger.Info("device id assigned", slog.String("device_id", deviceID))

	return deviceID, nil
}
