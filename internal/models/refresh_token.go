package models

import "time"

// RefreshToken: непрозрачный refresh-токен, принадлежащий аккаунту.
//
// Состояние токена вычисляется из полей:
//   - истёк, если now >= ExpiresAt;
//   - отозван, если RevokedAt задан;
//   - активен, если не истёк и не отозван.
//
// После отзыва токен не реактивируется, а ReplacedByToken не переписывается:
// цепочка ротаций одной сессии: односвязный список.
type RefreshToken struct {
	Token           string
	CreatedAt       time.Time
	CreatedByIP     string
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	RevokedByIP     string
	ReplacedByToken string
}

// IsExpired сообщает, истёк ли срок действия токена на момент now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked сообщает, был ли токен отозван.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive: токен не истёк и не отозван.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked()
}

// Revoke помечает токен отозванным. replacedBy может быть пустым
// (logout/компрометация). Возвращает false, если токен уже был отозван:
// в этом случае поля не меняются.
func (t *RefreshToken) Revoke(now time.Time, ip, replacedBy string) bool {
	if t.IsRevoked() {
		return false
	}

	at := now
	t.RevokedAt = &at
	t.RevokedByIP = ip
	t.ReplacedByToken = replacedBy

	return true
}

func (t RefreshToken) clone() RefreshToken {
	if t.RevokedAt != nil {
		r := *t.RevokedAt
		t.RevokedAt = &r
	}

	return t
}
