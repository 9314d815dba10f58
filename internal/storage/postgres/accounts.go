package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/storage"
)

const accountColumns = `id, title, first_name, last_name, email, password_hash, role, accept_terms, created_at, updated_at, version`

// SaveAccount создаёт аккаунт вместе с его токенами.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.SaveAccount"

	query := `
		INSERT INTO accounts(title, first_name, last_name, email, password_hash, role, accept_terms, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		RETURNING id, version
	`

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			account.Title,
			account.FirstName,
			account.LastName,
			account.Email,
			account.PasswordHash,
			string(account.Role),
			account.AcceptTerms,
			account.CreatedAt,
			account.UpdatedAt,
		).Scan(&account.ID, &account.Version); err != nil {
			return err
		}

		return syncTokens(ctx, tx, account.ID, account.RefreshTokens)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByID находит аккаунт по ID.
func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "storage.postgres.AccountByID"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := s.loadAccount(ctx, s.db, query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// AccountByEmail находит аккаунт по email.
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := s.loadAccount(ctx, s.db, query, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// AccountByRefreshToken находит владельца токена по уникальному индексу refresh_tokens_token_uq.
func (s *Storage) AccountByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	const op = "storage.postgres.AccountByRefreshToken"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = (SELECT account_id FROM refresh_tokens WHERE token = $1)
	`

	account, err := s.loadAccount(ctx, s.db, query, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// Accounts возвращает все аккаунты в порядке ID.
func (s *Storage) Accounts(ctx context.Context) ([]*models.Account, error) {
	const op = "storage.postgres.Accounts"

	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Account, error) {
		return scanAccount(row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	byID := make(map[int64]*models.Account, len(accounts))
	for _, a := range accounts {
		a.RefreshTokens = []models.RefreshToken{}
		byID[a.ID] = a
	}

	tokens, err := s.db.Query(ctx, `
		SELECT account_id, token, created_at, created_by_ip, expires_at, revoked_at, revoked_by_ip, replaced_by_token
		FROM refresh_tokens
		ORDER BY account_id, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer tokens.Close()

	for tokens.Next() {
		var (
			accountID int64
			t         models.RefreshToken
		)
		if err := tokens.Scan(&accountID, &t.Token, &t.CreatedAt, &t.CreatedByIP, &t.ExpiresAt,
			&t.RevokedAt, &t.RevokedByIP, &t.ReplacedByToken); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if a, ok := byID[accountID]; ok {
			a.RefreshTokens = append(a.RefreshTokens, t)
		}
	}

	if err := tokens.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// UpdateAccount заменяет аккаунт при совпадении версии и дописывает токены.
// Уже заданные поля отзыва токена не перезаписываются.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.UpdateAccount"

	query := `
		UPDATE accounts
		SET title = $3, first_name = $4, last_name = $5, email = $6, password_hash = $7,
		    role = $8, accept_terms = $9, updated_at = $10, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	var version int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			account.ID,
			account.Version,
			account.Title,
			account.FirstName,
			account.LastName,
			account.Email,
			account.PasswordHash,
			string(account.Role),
			account.AcceptTerms,
			account.UpdatedAt,
		).Scan(&version)

		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
				return err
			}

			if !exists {
				return storage.ErrNotFound
			}

			return storage.ErrConflict
		}

		if err != nil {
			return err
		}

		return syncTokens(ctx, tx, account.ID, account.RefreshTokens)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	account.Version = version

	return nil
}

// DeleteAccount удаляет аккаунт; токены удаляются каскадно.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteAccount"

	cmdTag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// CountAccounts возвращает число аккаунтов.
func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	const op = "storage.postgres.CountAccounts"

	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// loadAccount читает одну строку accounts по query и догружает токены.
func (s *Storage) loadAccount(ctx context.Context, q querier, query string, arg any) (*models.Account, error) {
	account, err := scanAccount(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	account.RefreshTokens, err = tokensOf(ctx, q, account.ID)
	if err != nil {
		return nil, err
	}

	return account, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a    models.Account
		role string
	)

	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.PasswordHash,
		&role,
		&a.AcceptTerms,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	); err != nil {
		return nil, err
	}

	a.Role = models.Role(role)

	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
