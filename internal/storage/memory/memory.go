// memory: потокобезопасное in-memory хранилище аккаунтов.
// Используется для окружения local без PostgreSQL и в тестах сервисного слоя.
// Семантика совпадает с postgres-реализацией: уникальность email и токенов,
// CAS по Version, токены при обновлении не удаляются, а поля отзыва
// однажды заданные не перезаписываются.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/storage"
)

type Storage struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*models.Account
	byEmail  map[string]int64
	byToken  map[string]int64
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		nextID:   1,
		accounts: make(map[int64]*models.Account),
		byEmail:  make(map[string]int64),
		byToken:  make(map[string]int64),
	}
}

// Close: no-op, нужен для соответствия storage.Storage.
func (s *Storage) Close() {}

// SaveAccount создаёт новый аккаунт.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.memory.SaveAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	for _, t := range account.RefreshTokens {
		if _, ok := s.byToken[t.Token]; ok {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	account.ID = s.nextID
	account.Version = 1
	s.nextID++

	stored := account.Clone()
	s.accounts[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	for _, t := range stored.RefreshTokens {
		s.byToken[t.Token] = stored.ID
	}

	return nil
}

// AccountByID находит аккаунт по ID.
func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "storage.memory.AccountByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return a.Clone(), nil
}

// AccountByEmail находит аккаунт по email.
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.memory.AccountByEmail"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.accounts[id].Clone(), nil
}

// AccountByRefreshToken находит владельца токена через индекс byToken.
func (s *Storage) AccountByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	const op = "storage.memory.AccountByRefreshToken"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.accounts[id].Clone(), nil
}

// Accounts возвращает все аккаунты, отсортированные по ID.
func (s *Storage) Accounts(ctx context.Context) ([]*models.Account, error) {
	const op = "storage.memory.Accounts"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// UpdateAccount заменяет аккаунт при совпадении версии.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.memory.UpdateAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if cur.Version != account.Version {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}

	if id, ok := s.byEmail[account.Email]; ok && id != account.ID {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	for _, t := range account.RefreshTokens {
		if id, ok := s.byToken[t.Token]; ok && id != account.ID {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	next := account.Clone()
	next.RefreshTokens = mergeTokens(cur.RefreshTokens, next.RefreshTokens)
	next.Version = cur.Version + 1

	delete(s.byEmail, cur.Email)
	s.byEmail[next.Email] = next.ID
	for _, t := range next.RefreshTokens {
		s.byToken[t.Token] = next.ID
	}
	s.accounts[next.ID] = next

	account.Version = next.Version

	return nil
}

// DeleteAccount удаляет аккаунт и снимает его токены с индекса.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	const op = "storage.memory.DeleteAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	for _, t := range a.RefreshTokens {
		delete(s.byToken, t.Token)
	}
	delete(s.byEmail, a.Email)
	delete(s.accounts, id)

	return nil
}

// CountAccounts возвращает число аккаунтов.
func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	const op = "storage.memory.CountAccounts"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.accounts), nil
}

// DeleteStaleRefreshTokens удаляет отозванные токены, истекшие раньше before.
func (s *Storage) DeleteStaleRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.memory.DeleteStaleRefreshTokens"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.accounts {
		kept := a.RefreshTokens[:0]
		for _, t := range a.RefreshTokens {
			if t.IsRevoked() && t.ExpiresAt.Before(before) {
				delete(s.byToken, t.Token)
				n++
				continue
			}
			kept = append(kept, t)
		}
		a.RefreshTokens = kept
	}

	return n, nil
}

// mergeTokens накладывает next на cur: токены не удаляются, новые
// добавляются в конец, уже заданные поля отзыва сохраняются.
func mergeTokens(cur, next []models.RefreshToken) []models.RefreshToken {
	incoming := make(map[string]models.RefreshToken, len(next))
	for _, t := range next {
		incoming[t.Token] = t
	}

	out := make([]models.RefreshToken, 0, len(cur)+len(next))
	seen := make(map[string]struct{}, len(cur))
	for _, t := range cur {
		seen[t.Token] = struct{}{}
		if n, ok := incoming[t.Token]; ok && !t.IsRevoked() && n.IsRevoked() {
			t.RevokedAt = n.RevokedAt
			t.RevokedByIP = n.RevokedByIP
			t.ReplacedByToken = n.ReplacedByToken
		}
		out = append(out, t)
	}

	for _, t := range next {
		if _, ok := seen[t.Token]; ok {
			continue
		}
		out = append(out, t)
	}

	return out
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
