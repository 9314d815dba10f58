package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/storage"
)

// tokensOf возвращает токены аккаунта в порядке выпуска.
func tokensOf(ctx context.Context, q querier, accountID int64) ([]models.RefreshToken, error) {
	query := `
		SELECT token, created_at, created_by_ip, expires_at, revoked_at, revoked_by_ip, replaced_by_token
		FROM refresh_tokens
		WHERE account_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t models.RefreshToken
		err := row.Scan(
			&t.Token,
			&t.CreatedAt,
			&t.CreatedByIP,
			&t.ExpiresAt,
			&t.RevokedAt,
			&t.RevokedByIP,
			&t.ReplacedByToken,
		)
		return t, err
	})
}

// syncTokens приводит refresh_tokens аккаунта к tokens за минимум записей:
// вставляются только отсутствующие токены, обновляются только те, что
// отозваны в tokens, но ещё не отозваны в базе. Поля отзыва пишутся один раз
// (WHERE revoked_at IS NULL). Токен, занятый другим аккаунтом, даёт
// storage.ErrAlreadyExists. Все записи уходят одним batch.
func syncTokens(ctx context.Context, tx pgx.Tx, accountID int64, tokens []models.RefreshToken) error {
	stored, err := tokenRevocations(ctx, tx, accountID)
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO refresh_tokens(account_id, token, created_at, created_by_ip, expires_at, revoked_at, revoked_by_ip, replaced_by_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token) DO NOTHING
	`
	revoke := `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoked_by_ip = $4, replaced_by_token = $5
		WHERE account_id = $1 AND token = $2 AND revoked_at IS NULL
	`

	inserts, revokes := planTokenWrites(stored, tokens)
	if len(inserts)+len(revokes) == 0 {
		return nil
	}

	var batch pgx.Batch
	for _, t := range inserts {
		batch.Queue(insert,
			accountID,
			t.Token,
			t.CreatedAt,
			t.CreatedByIP,
			t.ExpiresAt,
			t.RevokedAt,
			t.RevokedByIP,
			t.ReplacedByToken,
		)
	}
	for _, t := range revokes {
		batch.Queue(revoke, accountID, t.Token, t.RevokedAt, t.RevokedByIP, t.ReplacedByToken)
	}

	br := tx.SendBatch(ctx, &batch)
	for i := 0; i < batch.Len(); i++ {
		cmdTag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}

		if i < len(inserts) && cmdTag.RowsAffected() == 0 {
			_ = br.Close()
			return storage.ErrAlreadyExists
		}
	}

	return br.Close()
}

// planTokenWrites делит tokens на новые (нет в stored) и впервые отозванные
// (в stored не отозваны, в tokens отозваны). Остальные не требуют записи.
func planTokenWrites(stored map[string]bool, tokens []models.RefreshToken) (inserts, revokes []models.RefreshToken) {
	for _, t := range tokens {
		revoked, ok := stored[t.Token]
		switch {
		case !ok:
			inserts = append(inserts, t)
		case !revoked && t.RevokedAt != nil:
			revokes = append(revokes, t)
		}
	}

	return inserts, revokes
}

// tokenRevocations возвращает токены аккаунта: значение true, если токен отозван.
func tokenRevocations(ctx context.Context, q querier, accountID int64) (map[string]bool, error) {
	rows, err := q.Query(ctx, `SELECT token, revoked_at IS NOT NULL FROM refresh_tokens WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var (
			token   string
			revoked bool
		)
		if err := rows.Scan(&token, &revoked); err != nil {
			return nil, err
		}
		stored[token] = revoked
	}

	return stored, rows.Err()
}

// DeleteStaleRefreshTokens удаляет отозванные токены, истекшие раньше before.
func (s *Storage) DeleteStaleRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.DeleteStaleRefreshTokens"

	query := `
		DELETE FROM refresh_tokens
		WHERE revoked_at IS NOT NULL AND expires_at < $1
	`

	cmdTag, err := s.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
