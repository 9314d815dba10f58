package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/pkg/log"
)

// refreshTokenBytes: энтропия refresh-токена (320 бит, 80 hex-символов).
const refreshTokenBytes = 40

// randRead подменяется в тестах.
var randRead = rand.Read

type accessClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// generateAccessToken выпускает access-токен для accountID и возвращает момент его истечения.
func (s *Service) generateAccessToken(ctx context.Context, accountID int64, now time.Time) (string, time.Time, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	id := strconv.FormatInt(accountID, 10)
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := accessClaims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   id,
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, expiresAt, nil
}

// ValidateAccessToken проверяет подпись, алгоритм, issuer/audience и срок
// access-токена и возвращает ID аккаунта. Любая ошибка: ErrUnauthenticated.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenStr string) (int64, error) {
	const op = "service.token.ValidateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		log.From(ctx).Debug("access_token_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return 0, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.ID != claims.Subject {
		return 0, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	id, err := strconv.ParseInt(claims.ID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	return id, nil
}

// newRefreshToken создаёт refresh-токен из 40 случайных байт в hex.
// Уникальность вероятностная; коллизию отловит уникальный индекс хранилища.
func (s *Service) newRefreshToken(ip string, now time.Time) (models.RefreshToken, error) {
	const op = "service.token.newRefreshToken"

	b := make([]byte, refreshTokenBytes)
	if _, err := randRead(b); err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.RefreshToken{
		Token:       strings.ToUpper(hex.EncodeToString(b)),
		CreatedAt:   now,
		CreatedByIP: ip,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}
