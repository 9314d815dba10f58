package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/account-service/internal/cache"
	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/pkg/log"
	"github.com/pribylovaa/account-service/internal/pkg/redact"
	"github.com/pribylovaa/account-service/internal/storage"
)

// Authenticate проверяет email и пароль, дописывает аккаунту новый
// refresh-токен и возвращает пару токенов. Неизвестный email и неверный
// пароль неразличимы: оба дают ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password, ip string) (*models.AuthResult, error) {
	const op = "service.auth.Authenticate"

	lg := log.From(ctx)

	account, err := s.storage.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.hasher.Verify(password, s.dummy())
			s.events.AuthEvent(EventAuthenticateFail)
			lg.Warn("authenticate_failed",
				slog.String("op", op),
				slog.String("email", redact.Email(email)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("account_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		s.events.AuthEvent(EventAuthenticateFail)
		lg.Warn("authenticate_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(email)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	collisions := 0
	for attempt := 0; ; attempt++ {
		now := s.now()

		rt, err := s.newRefreshToken(ip, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		account.RefreshTokens = append(account.RefreshTokens, rt)

		err = s.storage.UpdateAccount(ctx, account)
		if err == nil {
			s.cacheToken(ctx, account.ID, rt)
			s.events.AuthEvent(EventAuthenticateOK)
			lg.Info("authenticated", slog.Int64("account_id", account.ID))
			return s.authResult(ctx, account, rt, now)
		}

		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			// Коллизия значения токена: пробуем сгенерировать заново.
			collisions++
			if collisions >= maxCollisionAttempts {
				lg.Error("refresh_collision_exceeded", slog.String("op", op))
				return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
			}
			account.RefreshTokens = account.RefreshTokens[:len(account.RefreshTokens)-1]
			lg.Warn("refresh_collision", slog.String("op", op), slog.Int("attempt", collisions))
		case errors.Is(err, storage.ErrConflict):
			if err := waitRetry(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			account, err = s.storage.AccountByID(ctx, account.ID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
				}
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		default:
			lg.Error("account_update_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
}

// authResult выпускает access-токен и собирает ответ.
func (s *Service) authResult(ctx context.Context, account *models.Account, rt models.RefreshToken, now time.Time) (*models.AuthResult, error) {
	const op = "service.auth.authResult"

	access, accessExp, err := s.generateAccessToken(ctx, account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.AuthResult{
		Account:          account.View(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

// cacheToken записывает состояние токена в кэш. Ошибки кэша не влияют на результат.
func (s *Service) cacheToken(ctx context.Context, accountID int64, rt models.RefreshToken) {
	if s.rcache == nil {
		return
	}

	ttl := rt.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}

	entry := &cache.RefreshEntry{
		AccountID: accountID,
		Revoked:   rt.IsRevoked(),
		ExpiresAt: rt.ExpiresAt,
	}

	if err := s.rcache.Set(ctx, rt.Token, entry, ttl); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed", slog.String("err", err.Error()))
	}
}
