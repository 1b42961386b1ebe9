package snapshot

import (
	"context"
	"database/sql"
	"time"
)

// SQLStorage implements snapshot storage over the cart_snapshots table.
type SQLStorage struct {
	db *sql.DB
}

// NewSQLStorage creates a SQL-backed snapshot storage
func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

// Get retrieves a snapshot value for a session key
func (ss *SQLStorage) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	var value []byte
	err := ss.db.QueryRowContext(ctx,
		`SELECT value FROM cart_snapshots WHERE session_id=$1 AND key=$2`,
		sessionID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a snapshot value for a session key
func (ss *SQLStorage) Set(ctx context.Context, sessionID, key string, value []byte) error {
	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, sessionID, key, value)
	return err
}

// Delete removes one snapshot key for a session
func (ss *SQLStorage) Delete(ctx context.Context, sessionID, key string) error {
	res, err := ss.db.ExecContext(ctx,
		`DELETE FROM cart_snapshots WHERE session_id=$1 AND key=$2`, sessionID, key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes all snapshots for a session
func (ss *SQLStorage) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := ss.db.ExecContext(ctx,
		`DELETE FROM cart_snapshots WHERE session_id=$1`, sessionID)
	return err
}

// CleanupExpired removes snapshots idle longer than maxAge
func (ss *SQLStorage) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := ss.db.ExecContext(ctx,
		`DELETE FROM cart_snapshots WHERE updated_at < NOW() - $1::interval`,
		maxAge.String())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close is a no-op; the database connection is owned by the caller
func (ss *SQLStorage) Close() error {
	return nil
}
