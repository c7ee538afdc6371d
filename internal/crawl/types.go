// Package crawl defines the core types shared across the crawl, graph and
// ranking subsystems, and the Scheduler that drives the resumable crawl
// pipeline.
package crawl

import (
	"time"
)

// ResultKind identifies the entity type of a single search result item.
type ResultKind string

// Result kinds returned by the content API search operation.
const (
	KindVideo    ResultKind = "video"
	KindChannel  ResultKind = "channel"
	KindPlaylist ResultKind = "playlist"
)

// SearchMode selects between keyword and location based searches.
type SearchMode string

// Supported search modes.
const (
	ModeKeyword  SearchMode = "keyword"
	ModeLocation SearchMode = "location"
)

// Orders accepted by the content API search operation.
var validOrders = map[string]bool{
	"date":       true,
	"rating":     true,
	"relevance":  true,
	"title":      true,
	"videoCount": true,
	"viewCount":  true,
}

// SearchQuery captures the parameters of a search request. It is immutable
// once issued; the stored result set is keyed by the API's etag.
type SearchQuery struct {
	Keyword        string       `json:"keyword"`
	Order          string       `json:"order"`
	ContentTypes   []ResultKind `json:"content_types"`
	MaxResults     int          `json:"max_results"`
	Mode           SearchMode   `json:"mode"`
	LocationRadius string       `json:"location_radius,omitempty"`
}

// SearchItem is a single entry of a search result set.
type SearchItem struct {
	Kind           ResultKind `json:"kind"`
	ID             string     `json:"id"`
	OwnerChannelID string     `json:"owner_channel_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	PublishedAt    time.Time  `json:"published_at"`
}

// SearchResultSet is the persisted outcome of a search, identified by the
// API's result-set fingerprint (etag).
type SearchResultSet struct {
	ID           string       `json:"id"`
	Query        SearchQuery  `json:"query"`
	TotalResults int          `json:"total_results"`
	RetrievedAt  time.Time    `json:"retrieved_at"`
	Items        []SearchItem `json:"items"`
}

// ChannelStatistics is one statistics snapshot attached to a channel.
// Snapshots accumulate with set semantics: re-applying an identical snapshot
// is a no-op.
type ChannelStatistics struct {
	ViewCount       int64 `json:"view_count"`
	SubscriberCount int64 `json:"subscriber_count"`
	VideoCount      int64 `json:"video_count"`
	CommentCount    int64 `json:"comment_count"`
}

// Channel is a crawled channel record.
type Channel struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	PublishedAt time.Time           `json:"published_at"`
	RetrievedAt time.Time           `json:"retrieved_at"`
	Statistics  []ChannelStatistics `json:"statistics,omitempty"`
}

// VideoStatistics is the mutable statistics sub-document of a video.
// Unlike channel statistics it is replaced in place by enrichment passes.
type VideoStatistics struct {
	ViewCount     int64 `json:"view_count"`
	LikeCount     int64 `json:"like_count"`
	DislikeCount  int64 `json:"dislike_count"`
	FavoriteCount int64 `json:"favorite_count"`
	CommentCount  int64 `json:"comment_count"`
}

// Video is a crawled video record.
type Video struct {
	ID          string           `json:"id"`
	ChannelID   string           `json:"channel_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	PublishedAt time.Time        `json:"published_at"`
	RetrievedAt time.Time        `json:"retrieved_at"`
	Statistics  *VideoStatistics `json:"statistics,omitempty"`
}

// Playlist is a crawled playlist record.
type Playlist struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Reply is a single reply under a comment thread. Replies keep their
// discovery order; they are not globally ordered across comments.
type Reply struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
}

// Comment is a top-level comment thread on a video, owning its replies.
type Comment struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
	Replies     []Reply   `json:"replies"`
}

// ResumeToken is a persisted pagination continuation. It is owned by the
// Scheduler: created when an API response indicates more pages than the
// current pass consumed, deleted once successfully consumed on a later pass.
// Deletion is the commit point; a crash before deletion is recoverable by
// replaying the same token.
type ResumeToken struct {
	ID        string      `json:"id"`
	Type      RequestType `json:"type"`
	Request   RequestSpec `json:"request"`
	CreatedAt time.Time   `json:"created_at"`
}

// Page holds the pagination envelope common to all content API list
// responses. An empty NextPageToken means no more pages exist; a non-empty
// one must be persisted or followed.
type Page struct {
	Etag          string
	TotalResults  int
	NextPageToken string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Page
	Items []SearchItem
}

// ChannelPage is one page of channel records. Each item carries at most one
// statistics snapshot.
type ChannelPage struct {
	Page
	Items []Channel
}

// PlaylistPage is one page of playlists.
type PlaylistPage struct {
	Page
	Items []Playlist
}

// PlaylistItemPage is one page of playlist member videos.
type PlaylistItemPage struct {
	Page
	Items []Video
}

// VideoStatisticsItem pairs a video id with a statistics snapshot.
type VideoStatisticsItem struct {
	ID         string
	Statistics VideoStatistics
}

// VideoStatisticsPage is one page of video statistics.
type VideoStatisticsPage struct {
	Page
	Items []VideoStatisticsItem
}

// CommentPage is one page of comment threads with nested replies.
type CommentPage struct {
	Page
	Items []Comment
}
