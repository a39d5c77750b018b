package store

import (
	"context"
	"database/sql"
	"time"

	"hedgexd/internal/errs"
	"hedgexd/pkg/types"
)

// CreateSession inserts a new active session token.
func (s *Store) CreateSession(ctx context.Context, sess types.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (token, user_id, created_at, expires_at, last_used, active)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		sess.Token, sess.UserID, sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(), sess.LastUsed.UnixMilli(),
	)
	if err != nil {
		return errs.Wrap(errs.Database, "create session", err)
	}
	return nil
}

// ValidateSession returns the session if it is active and unexpired as of
// now, touching its last_used timestamp. Expired-but-active rows are
// treated as invalid and are left for the sweeper rather than deleted
// inline, so a single validate call never blocks on a delete.
func (s *Store) ValidateSession(ctx context.Context, token string, now time.Time) (*types.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Database, "begin validate session tx", err)
	}
	defer tx.Rollback()

	var sess types.Session
	var createdAt, expiresAt, lastUsed int64
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at, last_used, active FROM session_tokens WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &createdAt, &expiresAt, &lastUsed, &active)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.Session, "session not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Database, "scan session", err)
	}

	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	sess.LastUsed = time.UnixMilli(lastUsed).UTC()
	sess.Active = active == 1

	if !sess.Active || now.After(sess.ExpiresAt) {
		return nil, errs.New(errs.Session, "session expired or inactive")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE session_tokens SET last_used = ? WHERE token = ?`, now.UnixMilli(), token); err != nil {
		return nil, errs.Wrap(errs.Database, "touch session", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.Database, "commit validate session tx", err)
	}

	sess.LastUsed = now
	return &sess, nil
}

// Logout clears a session's active flag.
func (s *Store) Logout(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session_tokens SET active = 0 WHERE token = ?`, token)
	if err != nil {
		return errs.Wrap(errs.Database, "logout", err)
	}
	return nil
}

// SweepExpiredSessions deletes all sessions whose expiry has passed,
// returning the count removed. Intended to run on a periodic timer.
func (s *Store) SweepExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, errs.Wrap(errs.Database, "sweep expired sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Database, "rows affected", err)
	}
	return n, nil
}
