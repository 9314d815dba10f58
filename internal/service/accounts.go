package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/pkg/log"
	"github.com/pribylovaa/account-service/internal/pkg/redact"
	"github.com/pribylovaa/account-service/internal/storage"
)

const (
	minPasswordLen = 6
	// bcrypt не принимает пароли длиннее 72 байт.
	maxPasswordBytes = 72
)

// RegisterInput: данные самостоятельной регистрации.
type RegisterInput struct {
	Title           string
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
}

// CreateInput: данные аккаунта, создаваемого администратором.
type CreateInput struct {
	Title           string
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            models.Role
}

// UpdateInput: частичное обновление: пустое поле сохраняет прежнее значение.
type UpdateInput struct {
	Title           string
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            models.Role
}

// Register создаёт аккаунт. Первый аккаунт в хранилище получает роль
// Admin, все последующие: User. Занятый email даёт ErrEmailTaken, и
// ничего не сохраняется.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.AccountView, error) {
	const op = "service.accounts.Register"

	if err := validateEmail(in.Email); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	if !in.AcceptTerms {
		return models.AccountView{}, fmt.Errorf("%s: terms must be accepted: %w", op, ErrInvalidArgument)
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	n, err := s.storage.CountAccounts(ctx)
	if err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	role := models.RoleUser
	if n == 0 {
		role = models.RoleAdmin
	}

	account := &models.Account{
		Title:       in.Title,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Role:        role,
		AcceptTerms: true,
	}

	if err := s.insertAccount(ctx, account, in.Password); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_registered",
		slog.Int64("account_id", account.ID),
		slog.String("email", redact.Email(account.Email)),
		slog.String("role", string(account.Role)),
	)

	return account.View(), nil
}

// CreateAccount создаёт аккаунт с явно заданной ролью (операция администратора).
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (models.AccountView, error) {
	const op = "service.accounts.CreateAccount"

	if err := validateEmail(in.Email); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	if !in.Role.Valid() {
		return models.AccountView{}, fmt.Errorf("%s: unknown role %q: %w", op, in.Role, ErrInvalidArgument)
	}

	account := &models.Account{
		Title:     in.Title,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Role:      in.Role,
	}

	if err := s.insertAccount(ctx, account, in.Password); err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_created",
		slog.Int64("account_id", account.ID),
		slog.String("role", string(account.Role)),
	)

	return account.View(), nil
}

// ListAccounts возвращает все аккаунты в порядке ID.
func (s *Service) ListAccounts(ctx context.Context) ([]models.AccountView, error) {
	const op = "service.accounts.ListAccounts"

	accounts, err := s.storage.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.AccountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.View())
	}

	return out, nil
}

// AccountByID возвращает аккаунт по ID.
func (s *Service) AccountByID(ctx context.Context, id int64) (models.AccountView, error) {
	const op = "service.accounts.AccountByID"

	account, err := s.loadAccount(ctx, id)
	if err != nil {
		return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
	}

	return account.View(), nil
}

// UpdateAccount применяет частичное обновление к аккаунту id.
// Роль меняется только если caller: Admin; иначе поле Role игнорируется.
func (s *Service) UpdateAccount(ctx context.Context, caller *models.Account, id int64, in UpdateInput) (models.AccountView, error) {
	const op = "service.accounts.UpdateAccount"

	if in.Email != "" {
		if err := validateEmail(in.Email); err != nil {
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if in.Password != "" {
		if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	allowRole := caller != nil && caller.IsAdmin()
	if !allowRole {
		in.Role = ""
	}

	if in.Role != "" && !in.Role.Valid() {
		return models.AccountView{}, fmt.Errorf("%s: unknown role %q: %w", op, in.Role, ErrInvalidArgument)
	}

	var hash string
	if in.Password != "" {
		h, err := s.hasher.Hash(in.Password)
		if err != nil {
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}
		hash = h
	}

	for attempt := 0; ; attempt++ {
		account, err := s.loadAccount(ctx, id)
		if err != nil {
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}

		applyUpdate(account, in, hash)
		now := s.now()
		account.UpdatedAt = &now

		err = s.storage.UpdateAccount(ctx, account)
		switch {
		case err == nil:
			log.From(ctx).Info("account_updated", slog.Int64("account_id", account.ID))
			return account.View(), nil
		case errors.Is(err, storage.ErrAlreadyExists):
			return models.AccountView{}, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, storage.ErrNotFound):
			return models.AccountView{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		case errors.Is(err, storage.ErrConflict):
			if err := waitRetry(ctx, attempt); err != nil {
				return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
			}
		default:
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}
	}
}

// DeleteAccount удаляет аккаунт вместе с его refresh-токенами.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	const op = "service.accounts.DeleteAccount"

	account, err := s.loadAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		for _, t := range account.RefreshTokens {
			if err := s.rcache.MarkRevoked(ctx, t.Token); err != nil {
				log.From(ctx).Warn("refresh_cache_revoke_failed", slog.String("err", err.Error()))
				break
			}
		}
	}

	log.From(ctx).Info("account_deleted", slog.Int64("account_id", id))

	return nil
}

// insertAccount хэширует пароль и сохраняет новый аккаунт.
func (s *Service) insertAccount(ctx context.Context, account *models.Account, password string) error {
	if _, err := s.storage.AccountByEmail(ctx, account.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	account.PasswordHash = hash
	account.CreatedAt = s.now()

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ErrEmailTaken
		}

		return err
	}

	return nil
}

func (s *Service) loadAccount(ctx context.Context, id int64) (*models.Account, error) {
	account, err := s.storage.AccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return account, nil
}

func applyUpdate(a *models.Account, in UpdateInput, hash string) {
	if in.Title != "" {
		a.Title = in.Title
	}
	if in.FirstName != "" {
		a.FirstName = in.FirstName
	}
	if in.LastName != "" {
		a.LastName = in.LastName
	}
	if in.Email != "" {
		a.Email = in.Email
	}
	if in.Role != "" {
		a.Role = in.Role
	}
	if hash != "" {
		a.PasswordHash = hash
	}
}

// validateEmail проверяет формат email. Регистр сохраняется: email
// сравниваются регистрозависимо.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email: %w", ErrInvalidArgument)
	}

	return nil
}

func validatePassword(password, confirm string) error {
	if len([]rune(password)) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, ErrInvalidArgument)
	}

	if len(password) > maxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes: %w", maxPasswordBytes, ErrInvalidArgument)
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match: %w", ErrInvalidArgument)
	}

	return nil
}
