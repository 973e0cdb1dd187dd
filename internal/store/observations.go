package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/verseworks/prosody/internal/guard"
	"github.com/verseworks/prosody/internal/observe"
)

// Add persists an observation document under its content key. Documents over
// the configured byte ceiling are rejected with guard.ErrTooLarge so the
// persistence guard can react with truncation.
func (s *Store) Add(ctx context.Context, obs *observe.Observation, contentKey string) error {
	doc, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	if s.maxDocBytes > 0 && len(doc) > s.maxDocBytes {
		return fmt.Errorf("observation %s is %d bytes: %w", obs.ID, len(doc), guard.ErrTooLarge)
	}

	id, err := uuid.Parse(obs.ID)
	if err != nil {
		return fmt.Errorf("observation id: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO observations (id, content_key, language, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, contentKey, obs.Language, doc, obs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// GetByKey fetches the most recent observation stored under a content key and
// language. Returns (nil, nil) when none exists.
func (s *Store) GetByKey(ctx context.Context, contentKey, language string) (*observe.Observation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT doc FROM observations
		WHERE content_key = $1 AND language = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		contentKey, language,
	)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query observation: %w", err)
	}

	var obs observe.Observation
	if err := json.Unmarshal(doc, &obs); err != nil {
		return nil, fmt.Errorf("unmarshal observation: %w", err)
	}
	return &obs, nil
}

// Update replaces a stored observation document in place.
func (s *Store) Update(ctx context.Context, obs *observe.Observation) error {
	doc, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	if s.maxDocBytes > 0 && len(doc) > s.maxDocBytes {
		return fmt.Errorf("observation %s is %d bytes: %w", obs.ID, len(doc), guard.ErrTooLarge)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE observations SET doc = $1, language = $2 WHERE id = $3`,
		doc, obs.Language, obs.ID,
	)
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("observation %s not found", obs.ID)
	}
	return nil
}
