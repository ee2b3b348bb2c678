package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveTemplate creates or replaces a named parameter template for the owner.
func (s *Store) SaveTemplate(ctx context.Context, ownerID int64, name, paramsJSON string) error {
	if name == "" {
		return errors.New("save template: name is required")
	}
	_, err := s.execWithRetry(ensureContext(ctx), `
		INSERT INTO templates (owner_id, name, params_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, name) DO UPDATE SET
			params_json = excluded.params_json,
			created_at = excluded.created_at`,
		ownerID, name, paramsJSON, timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template by name. Returns (nil, nil) when absent.
func (s *Store) GetTemplate(ctx context.Context, ownerID int64, name string) (*Template, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT id, owner_id, name, params_json, created_at
		FROM templates WHERE owner_id = ? AND name = ?`, ownerID, name)

	var (
		tmpl    Template
		created string
	)
	err := row.Scan(&tmpl.ID, &tmpl.OwnerID, &tmpl.Name, &tmpl.ParamsJSON, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	tmpl.CreatedAt = parseTimestamp(created)
	return &tmpl, nil
}

// ListTemplates returns the owner's templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context, ownerID int64) ([]Template, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
		SELECT id, owner_id, name, params_json, created_at
		FROM templates WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var (
			tmpl    Template
			created string
		)
		if err := rows.Scan(&tmpl.ID, &tmpl.OwnerID, &tmpl.Name, &tmpl.ParamsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tmpl.CreatedAt = parseTimestamp(created)
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate removes a template by name.
func (s *Store) DeleteTemplate(ctx context.Context, ownerID int64, name string) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		"DELETE FROM templates WHERE owner_id = ? AND name = ?", ownerID, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete template: %q not found", name)
	}
	return nil
}
