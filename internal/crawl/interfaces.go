package crawl

import (
	"context"
	"time"
)

// Gateway issues typed paginated list requests against the external content
// API. One method per request kind keeps each call carrying only its valid
// parameters. Implementations map quota and validation failures onto
// ErrQuotaExceeded / ErrInvalidRequest via APIError.
type Gateway interface {
	Search(ctx context.Context, q SearchQuery, pageToken string) (SearchPage, error)
	Channels(ctx context.Context, ids []string, pageToken string) (ChannelPage, error)
	Playlists(ctx context.Context, channelID, pageToken string) (PlaylistPage, error)
	PlaylistItems(ctx context.Context, playlistID, pageToken string) (PlaylistItemPage, error)
	VideoStatistics(ctx context.Context, ids []string, pageToken string) (VideoStatisticsPage, error)
	CommentThreads(ctx context.Context, videoID, pageToken string) (CommentPage, error)
}

// CorpusStore persists deduplicated crawled entities. Inserts are id-keyed
// and idempotent: replaying a page produces no duplicates. Implementations
// recover duplicate-key conditions locally.
type CorpusStore interface {
	PutSearchResultSet(ctx context.Context, set *SearchResultSet) error
	// FindSearchResultSet looks up a cached result set by query fingerprint,
	// returning ErrNotFound when absent.
	FindSearchResultSet(ctx context.Context, fingerprint string) (*SearchResultSet, error)
	GetSearchResultSet(ctx context.Context, id string) (*SearchResultSet, error)

	PutChannel(ctx context.Context, c Channel) error
	AppendChannelStatistics(ctx context.Context, channelID string, stats ChannelStatistics) error
	GetChannel(ctx context.Context, id string) (*Channel, error)

	PutPlaylist(ctx context.Context, p Playlist) error

	PutVideo(ctx context.Context, v Video) error
	SetVideoStatistics(ctx context.Context, videoID string, stats VideoStatistics) error

	PutComment(ctx context.Context, c Comment) error
	AppendReply(ctx context.Context, commentID string, r Reply) error
	CommentsByVideo(ctx context.Context, videoID string) ([]Comment, error)
}

// ResumeStore persists pagination tokens. Put upserts on the token's
// (type, request fingerprint) key so re-issuing a query with an outstanding
// token updates the cursor instead of duplicating it.
type ResumeStore interface {
	Put(ctx context.Context, t ResumeToken) error
	List(ctx context.Context) ([]ResumeToken, error)
	Delete(ctx context.Context, id string) error
}

// ArtifactStore writes graph artifacts (edge lists, label maps, rank
// results) and reads them back. Put replaces atomically and returns a URI.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Publisher pushes completion events for the display layer.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
