package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/pkg/log"
	"github.com/pribylovaa/account-service/internal/storage"
)

// Operation: защищённая операция, для которой действует политика доступа.
type Operation string

const (
	OpListAccounts  Operation = "list_accounts"
	OpCreateAccount Operation = "create_account"
	OpGetAccount    Operation = "get_account"
	OpUpdateAccount Operation = "update_account"
	OpDeleteAccount Operation = "delete_account"
	OpRevokeToken   Operation = "revoke_token"
)

// Policy: метаданные операции.
//   - Roles: допустимые роли; пусто: любой аутентифицированный аккаунт;
//   - Ownership: цель операции должна принадлежать вызывающему (Admin: без ограничений).
type Policy struct {
	Roles     []models.Role
	Ownership bool
}

var policies = map[Operation]Policy{
	OpListAccounts:  {Roles: []models.Role{models.RoleAdmin}},
	OpCreateAccount: {Roles: []models.Role{models.RoleAdmin}},
	OpGetAccount:    {Ownership: true},
	OpUpdateAccount: {Ownership: true},
	OpDeleteAccount: {Ownership: true},
	OpRevokeToken:   {Ownership: true},
}

// PolicyFor возвращает политику операции.
func PolicyFor(op Operation) (Policy, bool) {
	p, ok := policies[op]
	return p, ok
}

// Target: объект операции: аккаунт по ID или refresh-токен (для OpRevokeToken).
type Target struct {
	AccountID int64
	Token     string
}

type callerKey struct{}

// WithCaller кладёт ID аутентифицированного аккаунта в контекст.
func WithCaller(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, callerKey{}, accountID)
}

// CallerFrom достаёт ID аутентифицированного аккаунта из контекста.
func CallerFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(callerKey{}).(int64)
	return id, ok && id > 0
}

// Authorize разрешает вызывающему выполнить op над target и возвращает
// его аккаунт. Порядок проверок: личность (ErrUnauthenticated), роль и
// владение (ErrForbidden). Операция без политики запрещена.
func (s *Service) Authorize(ctx context.Context, op Operation, target Target) (*models.Account, error) {
	const fn = "service.authorize.Authorize"

	lg := log.From(ctx)

	id, ok := CallerFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%s: %w", fn, ErrUnauthenticated)
	}

	caller, err := s.storage.AccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", fn, ErrUnauthenticated)
		}

		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	policy, ok := policies[op]
	if !ok {
		lg.Error("authorize_unknown_operation", slog.String("operation", string(op)))
		return nil, fmt.Errorf("%s: %w", fn, ErrForbidden)
	}

	if len(policy.Roles) > 0 && !slices.Contains(policy.Roles, caller.Role) {
		lg.Warn("authorize_role_denied",
			slog.String("operation", string(op)),
			slog.Int64("account_id", caller.ID),
			slog.String("role", string(caller.Role)),
		)
		return nil, fmt.Errorf("%s: %w", fn, ErrForbidden)
	}

	if policy.Ownership && !caller.IsAdmin() && !owns(caller, op, target) {
		lg.Warn("authorize_ownership_denied",
			slog.String("operation", string(op)),
			slog.Int64("account_id", caller.ID),
		)
		return nil, fmt.Errorf("%s: %w", fn, ErrForbidden)
	}

	return caller, nil
}

func owns(caller *models.Account, op Operation, target Target) bool {
	if op == OpRevokeToken {
		return caller.OwnsToken(target.Token)
	}

	return caller.ID == target.AccountID
}
