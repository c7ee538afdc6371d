package youtube

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// count handles the API's habit of serializing integer counters as JSON
// strings.
type count string

func (c *count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*c = count(s)
	return nil
}

// Int64 parses the counter, returning 0 for absent or malformed values, the
// same fallback the platform documents for hidden counters.
func (c count) Int64() int64 {
	if c == "" || c == "null" {
		return 0
	}
	n, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// pagedResponse is satisfied by every list response envelope.
type pagedResponse interface {
	page() crawl.Page
}

type listEnvelope struct {
	Etag          string `json:"etag"`
	NextPageToken string `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
}

func (e listEnvelope) page() crawl.Page {
	return crawl.Page{
		// Some API surfaces quote the etag value itself.
		Etag:          strings.ReplaceAll(e.Etag, `"`, ""),
		TotalResults:  e.PageInfo.TotalResults,
		NextPageToken: e.NextPageToken,
	}
}

type snippet struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"publishedAt"`
	ChannelID   string    `json:"channelId"`
}

type searchResponse struct {
	listEnvelope
	Items []struct {
		ID struct {
			Kind       string `json:"kind"`
			VideoID    string `json:"videoId"`
			ChannelID  string `json:"channelId"`
			PlaylistID string `json:"playlistId"`
		} `json:"id"`
		Snippet snippet `json:"snippet"`
	} `json:"items"`
}

type channelResponse struct {
	listEnvelope
	Items []struct {
		ID         string  `json:"id"`
		Snippet    snippet `json:"snippet"`
		Statistics struct {
			ViewCount       count `json:"viewCount"`
			SubscriberCount count `json:"subscriberCount"`
			VideoCount      count `json:"videoCount"`
			CommentCount    count `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type playlistResponse struct {
	listEnvelope
	Items []struct {
		ID      string  `json:"id"`
		Snippet snippet `json:"snippet"`
	} `json:"items"`
}

type playlistItemResponse struct {
	listEnvelope
	Items []struct {
		Snippet struct {
			snippet
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type videoResponse struct {
	listEnvelope
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount     count `json:"viewCount"`
			LikeCount     count `json:"likeCount"`
			DislikeCount  count `json:"dislikeCount"`
			FavoriteCount count `json:"favoriteCount"`
			CommentCount  count `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type commentSnippet struct {
	VideoID           string `json:"videoId"`
	AuthorDisplayName string `json:"authorDisplayName"`
	AuthorChannelID   struct {
		Value string `json:"value"`
	} `json:"authorChannelId"`
	TextDisplay string    `json:"textDisplay"`
	LikeCount   int64     `json:"likeCount"`
	PublishedAt time.Time `json:"publishedAt"`
}

type commentThreadResponse struct {
	listEnvelope
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				Snippet commentSnippet `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
		Replies struct {
			Comments []struct {
				ID      string         `json:"id"`
				Snippet commentSnippet `json:"snippet"`
			} `json:"comments"`
		} `json:"replies"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code   int    `json:"code"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

var _ json.Unmarshaler = (*count)(nil)
