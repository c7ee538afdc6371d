package crawl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RequestType tags the kind of paginated API request a resume token belongs
// to.
type RequestType string

// Request types persisted with resume tokens.
const (
	RequestSearch            RequestType = "search"
	RequestChannel           RequestType = "channel"
	RequestChannelStatistics RequestType = "channel_statistics"
	RequestChannelPlaylists  RequestType = "channel_playlists"
	RequestPlaylistVideos    RequestType = "playlist_videos"
	RequestVideoStatistics   RequestType = "video_statistics"
	RequestVideoComments     RequestType = "video_comments"
)

// RequestSpec is a tagged variant describing one paginated request shape.
// Only the fields valid for Type are set; the zero values of the others are
// omitted from the persisted form. It replaces the untyped parameter maps the
// pipeline grew out of.
type RequestSpec struct {
	Type       RequestType  `json:"type"`
	Search     *SearchQuery `json:"search,omitempty"`
	ChannelIDs []string     `json:"channel_ids,omitempty"`
	VideoIDs   []string     `json:"video_ids,omitempty"`
	ChannelID  string       `json:"channel_id,omitempty"`
	PlaylistID string       `json:"playlist_id,omitempty"`
	VideoID    string       `json:"video_id,omitempty"`
}

// Validate checks that the spec carries the parameters its type requires.
func (s RequestSpec) Validate() error {
	switch s.Type {
	case RequestSearch:
		if s.Search == nil {
			return fmt.Errorf("search request: %w: missing query", ErrInvalidRequest)
		}
	case RequestChannel, RequestChannelStatistics:
		if len(s.ChannelIDs) == 0 {
			return fmt.Errorf("%s request: %w: missing channel ids", s.Type, ErrInvalidRequest)
		}
	case RequestChannelPlaylists:
		if s.ChannelID == "" {
			return fmt.Errorf("channel playlists request: %w: missing channel id", ErrInvalidRequest)
		}
	case RequestPlaylistVideos:
		if s.PlaylistID == "" {
			return fmt.Errorf("playlist videos request: %w: missing playlist id", ErrInvalidRequest)
		}
	case RequestVideoStatistics:
		if len(s.VideoIDs) == 0 {
			return fmt.Errorf("video statistics request: %w: missing video ids", ErrInvalidRequest)
		}
	case RequestVideoComments:
		if s.VideoID == "" {
			return fmt.Errorf("video comments request: %w: missing video id", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, s.Type)
	}
	return nil
}

// Fingerprint returns a stable digest of the request shape, used to enforce
// at most one live resume token per (type, logical query).
func (s RequestSpec) Fingerprint() string {
	raw, err := json.Marshal(s)
	if err != nil {
		// RequestSpec contains only marshalable fields; this is unreachable
		// in practice but the digest must still be stable.
		raw = []byte(string(s.Type))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a stable digest of the query used as the corpus cache
// key for identical repeated searches.
func (q SearchQuery) Fingerprint() string {
	return RequestSpec{Type: RequestSearch, Search: &q}.Fingerprint()
}

// Validate checks query parameters against the ranges the content API
// accepts.
func (q SearchQuery) Validate() error {
	if q.Keyword == "" {
		return fmt.Errorf("%w: empty keyword", ErrInvalidRequest)
	}
	if q.MaxResults <= 0 {
		return fmt.Errorf("%w: max results must be positive", ErrInvalidRequest)
	}
	if q.Mode != ModeKeyword && q.Mode != ModeLocation {
		return fmt.Errorf("%w: invalid search mode %q", ErrInvalidRequest, q.Mode)
	}
	if !validOrders[q.Order] {
		return fmt.Errorf("%w: invalid order %q", ErrInvalidRequest, q.Order)
	}
	for _, ct := range q.ContentTypes {
		switch ct {
		case KindVideo, KindChannel, KindPlaylist:
		default:
			return fmt.Errorf("%w: invalid content type %q", ErrInvalidRequest, ct)
		}
	}
	return nil
}

// normalized returns a copy with defaults applied for optional fields.
func (q SearchQuery) normalized() SearchQuery {
	if len(q.ContentTypes) == 0 {
		q.ContentTypes = []ResultKind{KindVideo, KindChannel, KindPlaylist}
	}
	if q.Mode == ModeLocation && q.LocationRadius == "" {
		q.LocationRadius = "100km"
	}
	return q
}
