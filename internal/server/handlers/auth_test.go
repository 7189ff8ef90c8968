package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/finkeeper/internal/crypto"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/pkg/api"
)

const testPassword = "correct-horse-battery"

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:          []byte("test-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
}

func newAuthHandler(users *mockUserStorage, tokens *mockTokenStorage) *AuthHandler {
	return NewAuthHandler(setupTestLogger(), users, tokens, testJWTConfig())
}

// seedUser кладет в хранилище пользователя с настоящим argon2id-хешем пароля
func seedUser(t *testing.T, users *mockUserStorage, id, username, password string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	users.users[username] = user
	return user
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_Register_Success(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := postJSON(t, "/api/v1/auth/register", api.RegisterRequest{
		Username: "testuser",
		Password: testPassword,
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response api.RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.NotEmpty(t, response.UserID)

	// Пользователь сохранен, пароль — в виде хеша
	user, err := users.GetUserByUsername(context.Background(), "testuser")
	require.NoError(t, err)
	assert.Equal(t, "testuser", user.Username)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	ok, err := crypto.VerifyPassword(testPassword, user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthHandler_Register_InvalidJSON(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Register_InvalidUsername(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	tests := []struct {
		name     string
		username string
	}{
		{"empty username", ""},
		{"too short", "ab"},
		{"too long", "abcdefghijklmnopqrstuvwxyz1234567"},
		{"invalid chars", "user@name"},
		{"spaces", "user name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := postJSON(t, "/api/v1/auth/register", api.RegisterRequest{
				Username: tt.username,
				Password: testPassword,
			})

			w := httptest.NewRecorder()
			handler.Register(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_Register_WeakPassword(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	tests := []struct {
		name     string
		password string
	}{
		{"empty password", ""},
		{"too short", "short"},
		{"eleven chars", "elevenchars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := postJSON(t, "/api/v1/auth/register", api.RegisterRequest{
				Username: "testuser",
				Password: tt.password,
			})

			w := httptest.NewRecorder()
			handler.Register(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_Register_DuplicateUsername(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)
	seedUser(t, users, "user1", "existing", testPassword)

	req := postJSON(t, "/api/v1/auth/register", api.RegisterRequest{
		Username: "existing",
		Password: testPassword,
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)
	seedUser(t, users, "user123", "testuser", testPassword)

	req := postJSON(t, "/api/v1/auth/login", api.LoginRequest{
		Username: "testuser",
		Password: testPassword,
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.NotEmpty(t, response.AccessToken)
	assert.NotEmpty(t, response.RefreshToken)
	assert.Equal(t, int64(15*60), response.ExpiresIn)

	// Access token валиден и несет claims пользователя
	claims, err := ValidateAccessToken(testJWTConfig(), response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)

	// Refresh token сохранен в хранилище
	stored, err := tokens.GetRefreshToken(context.Background(), response.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user123", stored.UserID)

	// last_login обновлен
	assert.Equal(t, []string{"user123"}, users.lastLogins)
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)
	seedUser(t, users, "user123", "testuser", testPassword)

	req := postJSON(t, "/api/v1/auth/login", api.LoginRequest{
		Username: "testuser",
		Password: "wrong-password-entirely",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Login_UserNotFound(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := postJSON(t, "/api/v1/auth/login", api.LoginRequest{
		Username: "nonexistent",
		Password: testPassword,
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	// Тот же статус, что и при неверном пароле: существование имени не раскрывается
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Login_EmptyPassword(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := postJSON(t, "/api/v1/auth/login", api.LoginRequest{Username: "testuser"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Refresh_Success(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)
	seedUser(t, users, "user123", "testuser", testPassword)

	tokens.tokens["old-refresh-token"] = &models.RefreshToken{
		Token:     "old-refresh-token",
		UserID:    "user123",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer old-refresh-token")

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.NotEmpty(t, response.AccessToken)
	assert.NotEmpty(t, response.RefreshToken)
	assert.NotEqual(t, "old-refresh-token", response.RefreshToken)

	// Ротация: старый токен удален, новый сохранен
	_, err := tokens.GetRefreshToken(context.Background(), "old-refresh-token")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	stored, err := tokens.GetRefreshToken(context.Background(), response.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user123", stored.UserID)
}

func TestAuthHandler_Refresh_TokenNotFound(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer unknown-token")

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Refresh_ExpiredToken(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	tokens.tokens["expired-token"] = &models.RefreshToken{
		Token:     "expired-token",
		UserID:    "user123",
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer expired-token")

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Refresh_MissingHeader(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout_Success(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	accessToken, _, err := GenerateAccessToken(testJWTConfig(), "user123", "testuser")
	require.NoError(t, err)

	tokens.tokens["refresh-1"] = &models.RefreshToken{Token: "refresh-1", UserID: "user123"}
	tokens.tokens["refresh-2"] = &models.RefreshToken{Token: "refresh-2", UserID: "user123"}
	tokens.tokens["refresh-other"] = &models.RefreshToken{Token: "refresh-other", UserID: "user456"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	// Удалены все токены пользователя, чужие не тронуты
	assert.Len(t, tokens.tokens, 1)
	assert.Contains(t, tokens.tokens, "refresh-other")
}

func TestAuthHandler_Logout_InvalidToken(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout_MissingHeader(t *testing.T) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	handler := newAuthHandler(users, tokens)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
