// storage задаёт контракт хранилища аккаунтов. Аккаунт хранится вместе
// с коллекцией своих refresh-токенов; токенов вне аккаунта не существует.
//
// Реализации обязаны:
//   - отдавать наружу копии (изменения вызывающего не видны до UpdateAccount);
//   - выполнять UpdateAccount атомарно как compare-and-swap по Account.Version;
//   - поддерживать индекс по значению refresh-токена (AccountByRefreshToken).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/account-service/internal/models"
)

var (
	// ErrNotFound: запись не найдена (аккаунт/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict: аккаунт был изменён конкурентно (версия не совпала).
	ErrConflict = errors.New("version conflict")
)

// AccountStorage выполняет операции над аккаунтами.
type AccountStorage interface {
	// SaveAccount создаёт аккаунт, присваивает ID и Version=1.
	SaveAccount(ctx context.Context, account *models.Account) error
	// AccountByID находит аккаунт по ID.
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	// AccountByEmail находит аккаунт по email (точное совпадение).
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// Accounts возвращает все аккаунты в порядке ID.
	Accounts(ctx context.Context) ([]*models.Account, error)
	// UpdateAccount полностью заменяет аккаунт, если его Version совпадает
	// с сохранённой; при успехе Version увеличивается.
	UpdateAccount(ctx context.Context, account *models.Account) error
	// DeleteAccount удаляет аккаунт вместе с токенами.
	DeleteAccount(ctx context.Context, id int64) error
	// CountAccounts возвращает число аккаунтов.
	CountAccounts(ctx context.Context) (int, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// AccountByRefreshToken находит аккаунт-владелец токена.
	AccountByRefreshToken(ctx context.Context, token string) (*models.Account, error)
	// DeleteStaleRefreshTokens удаляет токены, которые отозваны и истекли раньше before.
	DeleteStaleRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// Storage задаёт контракт работы с хранилищем.
type Storage interface {
	AccountStorage
	RefreshTokenStorage
	Close()
}
