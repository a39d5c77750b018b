package store

import (
	"context"
	"database/sql"
	"time"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

// CreateUser inserts a new user row. Returns errs.Validation wrapping the
// unique constraint violation if username is already taken.
func (s *Store) CreateUser(ctx context.Context, u types.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_verifier, created_at, last_login_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordVerifier, u.CreatedAt.UnixMilli(), u.LastLoginAt.UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Validation, "create user: username already registered", err)
	}
	return nil
}

// GetUserByUsername returns the user or errs.NotFound if no row matches.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_verifier, created_at, last_login_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUser returns the user by id or errs.NotFound if no row matches.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_verifier, created_at, last_login_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var createdAt, lastLoginAt int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordVerifier, &createdAt, &lastLoginAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "user not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, "scan user", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.LastLoginAt = time.UnixMilli(lastLoginAt).UTC()
	return &u, nil
}

// TouchLastLogin updates a user's last_login_at to now.
func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UnixMilli(), userID)
	if err != nil {
		return errs.Wrap(errs.Database, "touch last login", err)
	}
	return nil
}

// UpsertCredential stores or replaces a user's broker API key and sealed
// secret/token. Callers must pass already-sealed ciphertext; this method
// never validates plaintext content.
func (s *Store) UpsertCredential(ctx context.Context, c types.SealedCredential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_credentials (user_id, api_key, sealed_api_secret, sealed_access_token, access_token_expires)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   api_key = excluded.api_key,
		   sealed_api_secret = excluded.sealed_api_secret,
		   sealed_access_token = excluded.sealed_access_token,
		   access_token_expires = excluded.access_token_expires`,
		c.UserID, c.APIKey, c.SealedAPISecret, c.SealedAccessToken, c.AccessTokenExpires.UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Database, "upsert credential", err)
	}
	return nil
}

// GetCredential returns the sealed credential for a user, or errs.NotFound.
func (s *Store) GetCredential(ctx context.Context, userID string) (*types.SealedCredential, error) {
	var c types.SealedCredential
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, api_key, sealed_api_secret, sealed_access_token, access_token_expires
		 FROM api_credentials WHERE user_id = ?`, userID,
	).Scan(&c.UserID, &c.APIKey, &c.SealedAPISecret, &c.SealedAccessToken, &expires)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "credential not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, "scan credential", err)
	}
	c.AccessTokenExpires = time.UnixMilli(expires).UTC()
	return &c, nil
}
