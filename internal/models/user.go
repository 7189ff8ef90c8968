package models

import "time"

// User представляет пользователя в системе
type User struct {
	ID           string     `json:"id"`           // ID уникальный идентификатор (UUID)
	Username     string     `json:"username"`     // Username уникальный username
	PasswordHash string     `json:"-"`            // PasswordHash argon2id-хеш пароля (encoded строка)
	CreatedAt    time.Time  `json:"created_at"`   // CreatedAt время регистрации
	LastLogin    *time.Time `json:"last_login"`   // LastLogin время последнего входа (nil если не входил)
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	Token     string    `json:"token"`      // Token значение токена (случайная строка)
	UserID    string    `json:"user_id"`    // UserID владелец токена
	ExpiresAt time.Time `json:"expires_at"` // ExpiresAt время истечения
	CreatedAt time.Time `json:"created_at"` // CreatedAt время создания
}
