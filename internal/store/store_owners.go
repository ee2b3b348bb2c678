package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertOwner creates or refreshes an owner profile. Padding settings are
// preserved on update; only username, capabilities, and last_active move.
func (s *Store) UpsertOwner(ctx context.Context, ownerID int64, username, capabilities string) error {
	now := timestamp(time.Now())
	_, err := s.execWithRetry(ensureContext(ctx), `
		INSERT INTO owners (owner_id, username, capabilities, created_at, last_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			username = excluded.username,
			capabilities = excluded.capabilities,
			last_active = excluded.last_active`,
		ownerID, username, capabilities, now, now)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

// GetOwner fetches an owner profile. Returns (nil, nil) when unknown.
func (s *Store) GetOwner(ctx context.Context, ownerID int64) (*Owner, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT owner_id, username, capabilities, start_padding_ms, end_padding_ms, created_at, last_active
		FROM owners WHERE owner_id = ?`, ownerID)

	var (
		owner      Owner
		created    string
		lastActive string
	)
	err := row.Scan(&owner.ID, &owner.Username, &owner.Capabilities,
		&owner.StartPaddingMs, &owner.EndPaddingMs, &created, &lastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get owner: %w", err)
	}
	owner.CreatedAt = parseTimestamp(created)
	owner.LastActive = parseTimestamp(lastActive)
	return &owner, nil
}

// SetPadding updates the owner's default clip padding.
func (s *Store) SetPadding(ctx context.Context, ownerID int64, start, end time.Duration) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		"UPDATE owners SET start_padding_ms = ?, end_padding_ms = ? WHERE owner_id = ?",
		start.Milliseconds(), end.Milliseconds(), ownerID)
	if err != nil {
		return fmt.Errorf("set padding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set padding rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set padding: owner %d not found", ownerID)
	}
	return nil
}
