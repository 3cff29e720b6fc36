package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
)

const userColumns = `id, username, display_name, avatar, password_hash, federated_subject,
	role, mfa_secret, mfa_enabled, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u            domain.User
		passwordHash sql.NullString
		fedSubject   sql.NullString
		mfaSecret    sql.NullString
		mfaEnabled   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Avatar, &passwordHash, &fedSubject,
		&u.Role, &mfaSecret, &mfaEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordHash = mapNullString(passwordHash)
	u.FederatedSubject = mapNullString(fedSubject)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	u.MFAEnabled = mapNullTimePtr(mfaEnabled)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) GetUserByFederatedSubject(ctx context.Context, sub string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE federated_subject = ?`, sub))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := dbTime(time.Now())
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, avatar, password_hash,
			federated_subject, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.Avatar, mapStringNull(u.PasswordHash),
		mapStringNull(u.FederatedSubject), role, now, now,
	)
	return mapConflict(err)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, secret string) error {
	return r.exec1(ctx, `UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(secret), dbTime(time.Now()), userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	now := dbTime(time.Now())
	return r.exec1(ctx, `UPDATE users SET mfa_enabled = ?, updated_at = ? WHERE id = ?`,
		now, now, userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return r.exec1(ctx, `UPDATE users SET mfa_enabled = NULL, mfa_secret = NULL, updated_at = ? WHERE id = ?`,
		dbTime(time.Now()), userID)
}

// exec1 runs an update that must touch exactly one user.
func (r *usersRepo) exec1(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
