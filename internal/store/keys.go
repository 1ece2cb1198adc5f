// ABOUTME: SQLite persistence for API keys: issuance, lookup, toggle, delete
// ABOUTME: TouchKey records the last successful verification timestamp

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const keyColumns = "id, name, secret, principal, scopes, active, created_at, last_used, expires_at"

// CreateKey inserts a new API key. Returns ErrDuplicateKeyName when a key
// with the same name already exists.
func (s *SQLiteStore) CreateKey(ctx context.Context, key *Key) error {
	query := `
		INSERT INTO api_keys (` + keyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.ID,
		key.Name,
		key.Secret,
		key.Principal,
		key.Scopes.String(),
		key.Active,
		formatTime(key.CreatedAt),
		formatNullableTime(key.LastUsed),
		formatNullableTime(key.ExpiresAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKeyName
		}
		return fmt.Errorf("inserting api key: %w", err)
	}

	s.logger.Info("created api key", "id", key.ID, "name", key.Name, "principal", key.Principal)
	return nil
}

// GetKey retrieves a key by its identifier.
func (s *SQLiteStore) GetKey(ctx context.Context, id string) (*Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = ?`, id)
	return scanKey(row)
}

// GetKeyBySecret retrieves a key by exact secret-value match. A missing row
// yields ErrKeyNotFound; any other failure is returned as-is so callers can
// tell a store outage apart from an unknown credential.
func (s *SQLiteStore) GetKeyBySecret(ctx context.Context, secret string) (*Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE secret = ?`, secret)
	return scanKey(row)
}

// ListKeys returns all keys, newest first.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]*Key, error) {
	return s.queryKeys(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC, id DESC`)
}

// ListKeysByPrincipal returns the keys owned by a principal, newest first.
func (s *SQLiteStore) ListKeysByPrincipal(ctx context.Context, principal string) ([]*Key, error) {
	return s.queryKeys(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE principal = ? ORDER BY created_at DESC, id DESC`, principal)
}

// SetKeyActive sets the active flag. Returns ErrKeyNotFound for unknown IDs.
func (s *SQLiteStore) SetKeyActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("updating api key active flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	s.logger.Info("toggled api key", "id", id, "active", active)
	return nil
}

// TouchKey advances the last-used timestamp. Concurrent touches race with
// last-writer-wins semantics; last-used is an observability aid, not a
// security control.
func (s *SQLiteStore) TouchKey(ctx context.Context, id string, when time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE id = ?`, formatTime(when), id)
	if err != nil {
		return fmt.Errorf("updating api key last_used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// DeleteKey removes a key. Returns ErrKeyNotFound for unknown IDs.
func (s *SQLiteStore) DeleteKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	s.logger.Info("deleted api key", "id", id)
	return nil
}

func (s *SQLiteStore) queryKeys(ctx context.Context, query string, args ...any) ([]*Key, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return keys, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*Key, error) {
	var key Key
	var scopes, createdAtStr string
	var lastUsed, expiresAt sql.NullString

	err := row.Scan(
		&key.ID,
		&key.Name,
		&key.Secret,
		&key.Principal,
		&scopes,
		&key.Active,
		&createdAtStr,
		&lastUsed,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	key.Scopes = ParseScopes(scopes)

	if key.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if key.LastUsed, err = parseNullableTime("last_used", lastUsed); err != nil {
		return nil, err
	}
	if key.ExpiresAt, err = parseNullableTime("expires_at", expiresAt); err != nil {
		return nil, err
	}

	return &key, nil
}
