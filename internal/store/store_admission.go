package store

import (
	"context"
	"fmt"
	"time"
)

// RecordRequest appends an admission timestamp for the owner.
func (s *Store) RecordRequest(ctx context.Context, ownerID int64, at time.Time) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		"INSERT INTO admission_requests (owner_id, requested_at) VALUES (?, ?)",
		ownerID, timestamp(at))
	if err != nil {
		return fmt.Errorf("record admission request: %w", err)
	}
	return nil
}

// CountRequestsSince counts the owner's requests at or after the cutoff.
func (s *Store) CountRequestsSince(ctx context.Context, ownerID int64, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM admission_requests WHERE owner_id = ? AND requested_at >= ?",
		ownerID, timestamp(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admission requests: %w", err)
	}
	return count, nil
}

// OldestRequestSince returns the earliest request timestamp at or after the
// cutoff for the owner, or the zero time when none exist.
func (s *Store) OldestRequestSince(ctx context.Context, ownerID int64, cutoff time.Time) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COALESCE(MIN(requested_at), '') FROM admission_requests WHERE owner_id = ? AND requested_at >= ?",
		ownerID, timestamp(cutoff)).Scan(&value)
	if err != nil {
		return time.Time{}, fmt.Errorf("oldest admission request: %w", err)
	}
	return parseTimestamp(value), nil
}

// PruneRequestsBefore drops request rows older than the cutoff across all
// owners. Called opportunistically; losing old rows never affects admission.
func (s *Store) PruneRequestsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		"DELETE FROM admission_requests WHERE requested_at < ?", timestamp(cutoff))
	if err != nil {
		return fmt.Errorf("prune admission requests: %w", err)
	}
	return nil
}
