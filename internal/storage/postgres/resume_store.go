package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// ResumeStore implements crawl.ResumeStore on Postgres. Rows are keyed by
// (request_type, fingerprint), which enforces at most one live token per
// logical query: re-storing a token for the same request replaces the
// cursor instead of duplicating it.
type ResumeStore struct {
	pool dbPool
}

// NewResumeStore creates a Postgres-backed ResumeStore.
func NewResumeStore(ctx context.Context, cfg Config) (*ResumeStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ResumeStore{pool: pool}, nil
}

// NewResumeStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewResumeStoreWithPool(pool dbPool) (*ResumeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ResumeStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ResumeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Put upserts a token on its (type, request fingerprint) key.
func (s *ResumeStore) Put(ctx context.Context, t crawl.ResumeToken) error {
	if t.ID == "" {
		return fmt.Errorf("token id is required")
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal resume token: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO resume_tokens (request_type, fingerprint, id, doc, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (request_type, fingerprint)
DO UPDATE SET id = EXCLUDED.id, doc = EXCLUDED.doc, created_at = EXCLUDED.created_at`,
		string(t.Type), t.Request.Fingerprint(), t.ID, doc, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert resume token: %w", err)
	}
	return nil
}

// List returns all outstanding tokens, oldest first.
func (s *ResumeStore) List(ctx context.Context) ([]crawl.ResumeToken, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM resume_tokens ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query resume tokens: %w", err)
	}
	defer rows.Close()

	var tokens []crawl.ResumeToken
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan resume token: %w", err)
		}
		var t crawl.ResumeToken
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("unmarshal resume token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resume tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes a consumed token by its cursor id. Deleting an id that is
// no longer present (already replaced by a continuation) is a no-op.
func (s *ResumeStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM resume_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete resume token: %w", err)
	}
	return nil
}
