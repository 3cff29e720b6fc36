package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, origin_ip, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.OriginIP, dbTime(created),
	)
	return mapConflict(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, origin_ip, created_at
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.OriginIP, &t.CreatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) ListRefreshTokensByUser(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, origin_ip, created_at
		FROM refresh_tokens WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.OriginIP, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *refreshTokensRepo) DeleteUserRefreshToken(ctx context.Context, userID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = ? AND token_hash = ?`, userID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *refreshTokensRepo) DeleteRefreshTokensBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE created_at < ?`, dbTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
