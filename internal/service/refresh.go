package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/pkg/log"
	"github.com/pribylovaa/account-service/internal/pkg/redact"
	"github.com/pribylovaa/account-service/internal/storage"
)

// RotateRefreshToken обменивает активный refresh-токен на новую пару.
// Предъявленный токен отзывается со ссылкой на преемника. Из конкурентных
// ротаций одного токена успешна ровно одна, остальные получают ErrInvalidToken.
func (s *Service) RotateRefreshToken(ctx context.Context, token, ip string) (*models.AuthResult, error) {
	const op = "service.refresh.RotateRefreshToken"

	lg := log.From(ctx)

	collisions := 0
	for attempt := 0; ; attempt++ {
		now := s.now()

		account, cur, err := s.resolveRefreshToken(ctx, token, now)
		if err != nil {
			s.events.AuthEvent(EventRotateFail)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		next, err := s.newRefreshToken(ip, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		cur.Revoke(now, ip, next.Token)
		revoked := *cur
		account.RefreshTokens = append(account.RefreshTokens, next)

		err = s.storage.UpdateAccount(ctx, account)
		if err == nil {
			s.cacheToken(ctx, account.ID, revoked)
			s.cacheToken(ctx, account.ID, next)
			s.events.AuthEvent(EventRotateOK)
			lg.Info("refresh_rotated",
				slog.Int64("account_id", account.ID),
				slog.String("token", redact.Token(token)),
			)
			return s.authResult(ctx, account, next, now)
		}

		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			collisions++
			if collisions >= maxCollisionAttempts {
				s.events.AuthEvent(EventRotateFail)
				lg.Error("refresh_collision_exceeded", slog.String("op", op))
				return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
			}
		case errors.Is(err, storage.ErrConflict):
			// Аккаунт изменён конкурентно: после паузы токен проверяется
			// заново. Проигрывает только ротация, чей токен уже отозван.
			if err := waitRetry(ctx, attempt); err != nil {
				s.events.AuthEvent(EventRotateFail)
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		default:
			lg.Error("account_update_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Debug("refresh_rotate_retry",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.String("err", err.Error()),
		)
	}
}

// RevokeRefreshToken отзывает активный refresh-токен без выпуска преемника.
// Повторный отзыв даёт ErrInvalidToken. Проверка владения выполняется
// вызывающим через Authorize(OpRevokeToken).
func (s *Service) RevokeRefreshToken(ctx context.Context, token, ip string) error {
	const op = "service.refresh.RevokeRefreshToken"

	lg := log.From(ctx)

	for attempt := 0; ; attempt++ {
		now := s.now()

		account, cur, err := s.resolveRefreshToken(ctx, token, now)
		if err != nil {
			s.events.AuthEvent(EventRevokeFail)
			return fmt.Errorf("%s: %w", op, err)
		}

		cur.Revoke(now, ip, "")
		revoked := *cur

		err = s.storage.UpdateAccount(ctx, account)
		if err == nil {
			s.cacheToken(ctx, account.ID, revoked)
			s.events.AuthEvent(EventRevokeOK)
			lg.Info("refresh_revoked",
				slog.Int64("account_id", account.ID),
				slog.String("token", redact.Token(token)),
			)
			return nil
		}

		if !errors.Is(err, storage.ErrConflict) {
			lg.Error("account_update_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := waitRetry(ctx, attempt); err != nil {
			s.events.AuthEvent(EventRevokeFail)
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

// resolveRefreshToken находит аккаунт-владелец и сам токен, если тот активен.
// Пустой, неизвестный, истёкший и отозванный токен неразличимы: ErrInvalidToken.
func (s *Service) resolveRefreshToken(ctx context.Context, token string, now time.Time) (*models.Account, *models.RefreshToken, error) {
	const op = "service.refresh.resolveRefreshToken"

	lg := log.From(ctx)

	if token == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if s.rcache != nil {
		e, ok, err := s.rcache.Get(ctx, token)
		switch {
		case err != nil:
			lg.Warn("refresh_cache_get_failed", slog.String("err", err.Error()))
		case ok && (e.Revoked || !now.Before(e.ExpiresAt)):
			lg.Warn("refresh_replay_rejected",
				slog.String("op", op),
				slog.String("source", "cache"),
				slog.Int64("account_id", e.AccountID),
			)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
	}

	account, err := s.storage.AccountByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found", slog.String("op", op))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	rt := account.RefreshToken(token)
	if rt == nil || !rt.IsActive(now) {
		lg.Warn("refresh_replay_rejected",
			slog.String("op", op),
			slog.String("source", "storage"),
			slog.Int64("account_id", account.ID),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return account, rt, nil
}
