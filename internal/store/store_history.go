package store

import (
	"context"
	"fmt"
	"time"
)

// AppendHistory records a completed batch.
func (s *Store) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.execWithRetry(ensureContext(ctx), `
		INSERT INTO history (owner_id, source_name, operation, clip_count, total_bytes, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.OwnerID, entry.SourceName, entry.Operation, entry.ClipCount,
		entry.TotalBytes, entry.Duration.Milliseconds(), timestamp(created))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListHistory returns the owner's most recent batches, newest first, up to
// limit rows. A limit of zero or less means no limit.
func (s *Store) ListHistory(ctx context.Context, ownerID int64, limit int) ([]HistoryEntry, error) {
	ctx = ensureContext(ctx)
	query := `
		SELECT id, owner_id, source_name, operation, clip_count, total_bytes, duration_ms, created_at
		FROM history WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry      HistoryEntry
			durationMs int64
			created    string
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.SourceName, &entry.Operation,
			&entry.ClipCount, &entry.TotalBytes, &durationMs, &created); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entry.CreatedAt = parseTimestamp(created)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
