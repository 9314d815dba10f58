package models

import "time"

// AuthResult: результат аутентификации или ротации.
//
// Описание:
//   - Account: безопасная проекция владельца токенов;
//   - AccessToken: короткоживущий JWT для авторизации запросов;
//   - RefreshToken: непрозрачный секрет для следующей ротации;
//   - AccessExpiresAt/RefreshExpiresAt: моменты истечения (UTC).
type AuthResult struct {
	Account          AccountView
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
