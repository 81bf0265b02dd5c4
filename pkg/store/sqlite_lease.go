package store

import (
	"context"
	"fmt"
	"time"
)

// Acquire takes the named lease for holderID until ttl elapses. It succeeds
// when the lease is free, expired, or already held by holderID, in which case
// the expiry is extended. The token exchange uses it as its cross-process lock.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET holder_id = excluded.holder_id, expires_at = excluded.expires_at
		WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
	`, name, holderID, expiry, now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// Release drops the lease if holderID still holds it.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
