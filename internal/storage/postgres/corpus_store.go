// Package postgres provides Postgres-backed persistence for the crawl
// corpus and resume tokens. Entities are stored as JSONB documents keyed by
// their external id, mirroring the document-oriented upsert semantics the
// pipeline needs: insert-if-absent, merge nested arrays, replace nested
// sub-documents.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// CorpusStore implements crawl.CorpusStore on Postgres (see schema.sql).
type CorpusStore struct {
	pool dbPool
}

// NewCorpusStore creates a Postgres-backed CorpusStore.
func NewCorpusStore(ctx context.Context, cfg Config) (*CorpusStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &CorpusStore{pool: pool}, nil
}

// NewCorpusStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewCorpusStoreWithPool(pool dbPool) (*CorpusStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CorpusStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CorpusStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PutSearchResultSet upserts a search result set keyed by its etag. Resumed
// pages merge into the same row, so the write replaces the document.
func (s *CorpusStore) PutSearchResultSet(ctx context.Context, set *crawl.SearchResultSet) error {
	if set == nil || set.ID == "" {
		return fmt.Errorf("search result set id is required")
	}
	doc, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal search result set: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO search_results (id, fingerprint, doc, retrieved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		set.ID, set.Query.Fingerprint(), doc, set.RetrievedAt)
	if err != nil {
		return fmt.Errorf("upsert search results: %w", err)
	}
	return nil
}

// FindSearchResultSet looks up a cached result set by query fingerprint.
func (s *CorpusStore) FindSearchResultSet(ctx context.Context, fingerprint string) (*crawl.SearchResultSet, error) {
	return s.scanResultSet(s.pool.QueryRow(ctx,
		`SELECT doc FROM search_results WHERE fingerprint = $1 LIMIT 1`, fingerprint))
}

// GetSearchResultSet loads a result set by id (etag).
func (s *CorpusStore) GetSearchResultSet(ctx context.Context, id string) (*crawl.SearchResultSet, error) {
	return s.scanResultSet(s.pool.QueryRow(ctx,
		`SELECT doc FROM search_results WHERE id = $1`, id))
}

func (s *CorpusStore) scanResultSet(row pgx.Row) (*crawl.SearchResultSet, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, crawl.ErrNotFound
		}
		return nil, fmt.Errorf("scan search results: %w", err)
	}
	var set crawl.SearchResultSet
	if err := json.Unmarshal(doc, &set); err != nil {
		return nil, fmt.Errorf("unmarshal search result set: %w", err)
	}
	return &set, nil
}

// PutChannel inserts a channel if absent, reporting crawl.ErrDuplicate when
// the id already exists.
func (s *CorpusStore) PutChannel(ctx context.Context, c crawl.Channel) error {
	return s.insertDocument(ctx, "channels", c.ID, c)
}

// AppendChannelStatistics appends a statistics snapshot to the channel's
// history with set semantics: an identical snapshot already present leaves
// the row untouched.
func (s *CorpusStore) AppendChannelStatistics(ctx context.Context, channelID string, stats crawl.ChannelStatistics) error {
	doc, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal channel statistics: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE channels
SET doc = jsonb_set(doc, '{statistics}', COALESCE(doc->'statistics', '[]'::jsonb) || $2::jsonb)
WHERE id = $1
  AND NOT COALESCE(doc->'statistics', '[]'::jsonb) @> $2::jsonb`,
		channelID, doc)
	if err != nil {
		return fmt.Errorf("append channel statistics: %w", err)
	}
	return nil
}

// GetChannel loads a channel by id, returning crawl.ErrNotFound when absent.
func (s *CorpusStore) GetChannel(ctx context.Context, id string) (*crawl.Channel, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM channels WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, crawl.ErrNotFound
		}
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	var c crawl.Channel
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("unmarshal channel: %w", err)
	}
	return &c, nil
}

// PutPlaylist inserts a playlist if absent.
func (s *CorpusStore) PutPlaylist(ctx context.Context, p crawl.Playlist) error {
	return s.insertDocument(ctx, "playlists", p.ID, p)
}

// PutVideo inserts a video if absent.
func (s *CorpusStore) PutVideo(ctx context.Context, v crawl.Video) error {
	return s.insertDocument(ctx, "videos", v.ID, v)
}

// SetVideoStatistics replaces a video's statistics sub-document in place.
func (s *CorpusStore) SetVideoStatistics(ctx context.Context, videoID string, stats crawl.VideoStatistics) error {
	doc, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal video statistics: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE videos SET doc = jsonb_set(doc, '{statistics}', $2::jsonb, true) WHERE id = $1`,
		videoID, doc)
	if err != nil {
		return fmt.Errorf("set video statistics: %w", err)
	}
	return nil
}

// PutComment inserts a comment thread if absent. The video id is lifted into
// its own column so CommentsByVideo stays an index scan.
func (s *CorpusStore) PutComment(ctx context.Context, c crawl.Comment) error {
	if c.Replies == nil {
		c.Replies = []crawl.Reply{}
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO comments (id, video_id, doc) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`,
		c.ID, c.VideoID, doc)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comment %s: %w", c.ID, crawl.ErrDuplicate)
	}
	return nil
}

// AppendReply appends a reply to a comment in discovery order, skipping
// replies whose id is already present.
func (s *CorpusStore) AppendReply(ctx context.Context, commentID string, r crawl.Reply) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE comments
SET doc = jsonb_set(doc, '{replies}', COALESCE(doc->'replies', '[]'::jsonb) || $2::jsonb)
WHERE id = $1
  AND NOT EXISTS (
    SELECT 1 FROM jsonb_array_elements(COALESCE(doc->'replies', '[]'::jsonb)) reply
    WHERE reply->>'id' = $3
  )`,
		commentID, doc, r.ID)
	if err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	return nil
}

// CommentsByVideo returns all stored comment threads for a video in
// insertion order.
func (s *CorpusStore) CommentsByVideo(ctx context.Context, videoID string) ([]crawl.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM comments WHERE video_id = $1 ORDER BY seq`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []crawl.Comment
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		var c crawl.Comment
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, fmt.Errorf("unmarshal comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func (s *CorpusStore) insertDocument(ctx context.Context, table, id string, entity any) error {
	if id == "" {
		return fmt.Errorf("%s id is required", table)
	}
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, table),
		id, doc)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table, id, crawl.ErrDuplicate)
	}
	return nil
}
