// Package youtube implements the content API gateway: a typed wrapper over
// the platform's paginated JSON list endpoints. Each method issues exactly
// one page request; pagination policy lives in the crawl scheduler.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
	"github.com/audiencegraph/influence-crawler/internal/metrics"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Config controls the API client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a crawl.Gateway backed by the platform's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs a Client. The API key is required; base URL and HTTP
// client default sensibly.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, http: hc, logger: logger}, nil
}

// Search issues one page of the search list operation.
func (c *Client) Search(ctx context.Context, q crawl.SearchQuery, pageToken string) (crawl.SearchPage, error) {
	params := url.Values{}
	params.Set("part", "id,snippet")
	params.Set("order", q.Order)
	params.Set("maxResults", strconv.Itoa(capPageSize(q.MaxResults)))
	params.Set("type", joinKinds(q.ContentTypes))
	switch q.Mode {
	case crawl.ModeLocation:
		params.Set("location", q.Keyword)
		params.Set("locationRadius", q.LocationRadius)
	default:
		params.Set("q", q.Keyword)
	}

	var body searchResponse
	if err := c.list(ctx, crawl.RequestSearch, "search", params, pageToken, &body); err != nil {
		return crawl.SearchPage{}, err
	}

	page := crawl.SearchPage{Page: body.page()}
	for _, item := range body.Items {
		si := crawl.SearchItem{
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
		}
		switch item.ID.Kind {
		case "youtube#video":
			si.Kind = crawl.KindVideo
			si.ID = item.ID.VideoID
			si.OwnerChannelID = item.Snippet.ChannelID
		case "youtube#channel":
			si.Kind = crawl.KindChannel
			si.ID = item.ID.ChannelID
		case "youtube#playlist":
			si.Kind = crawl.KindPlaylist
			si.ID = item.ID.PlaylistID
			si.OwnerChannelID = item.Snippet.ChannelID
		default:
			continue
		}
		page.Items = append(page.Items, si)
	}
	return page, nil
}

// Channels issues one page of the channel list operation, including
// statistics snapshots.
func (c *Client) Channels(ctx context.Context, ids []string, pageToken string) (crawl.ChannelPage, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("maxResults", strconv.Itoa(capPageSize(len(ids))))

	var body channelResponse
	if err := c.list(ctx, crawl.RequestChannel, "channels", params, pageToken, &body); err != nil {
		return crawl.ChannelPage{}, err
	}

	page := crawl.ChannelPage{Page: body.page()}
	for _, item := range body.Items {
		page.Items = append(page.Items, crawl.Channel{
			ID:          item.ID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
			Statistics: []crawl.ChannelStatistics{{
				ViewCount:       item.Statistics.ViewCount.Int64(),
				SubscriberCount: item.Statistics.SubscriberCount.Int64(),
				VideoCount:      item.Statistics.VideoCount.Int64(),
				CommentCount:    item.Statistics.CommentCount.Int64(),
			}},
		})
	}
	return page, nil
}

// Playlists issues one page of the playlists owned by a channel.
func (c *Client) Playlists(ctx context.Context, channelID, pageToken string) (crawl.PlaylistPage, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("channelId", channelID)
	params.Set("maxResults", "50")

	var body playlistResponse
	if err := c.list(ctx, crawl.RequestChannelPlaylists, "playlists", params, pageToken, &body); err != nil {
		return crawl.PlaylistPage{}, err
	}

	page := crawl.PlaylistPage{Page: body.page()}
	for _, item := range body.Items {
		page.Items = append(page.Items, crawl.Playlist{
			ID:          item.ID,
			ChannelID:   channelID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return page, nil
}

// PlaylistItems issues one page of a playlist's member videos.
func (c *Client) PlaylistItems(ctx context.Context, playlistID, pageToken string) (crawl.PlaylistItemPage, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", "50")

	var body playlistItemResponse
	if err := c.list(ctx, crawl.RequestPlaylistVideos, "playlistItems", params, pageToken, &body); err != nil {
		return crawl.PlaylistItemPage{}, err
	}

	page := crawl.PlaylistItemPage{Page: body.page()}
	for _, item := range body.Items {
		page.Items = append(page.Items, crawl.Video{
			ID:          item.Snippet.ResourceID.VideoID,
			ChannelID:   item.Snippet.ChannelID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return page, nil
}

// VideoStatistics issues one page of the video list operation restricted to
// statistics.
func (c *Client) VideoStatistics(ctx context.Context, ids []string, pageToken string) (crawl.VideoStatisticsPage, error) {
	params := url.Values{}
	params.Set("part", "statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("maxResults", strconv.Itoa(capPageSize(len(ids))))

	var body videoResponse
	if err := c.list(ctx, crawl.RequestVideoStatistics, "videos", params, pageToken, &body); err != nil {
		return crawl.VideoStatisticsPage{}, err
	}

	page := crawl.VideoStatisticsPage{Page: body.page()}
	for _, item := range body.Items {
		page.Items = append(page.Items, crawl.VideoStatisticsItem{
			ID: item.ID,
			Statistics: crawl.VideoStatistics{
				ViewCount:     item.Statistics.ViewCount.Int64(),
				LikeCount:     item.Statistics.LikeCount.Int64(),
				DislikeCount:  item.Statistics.DislikeCount.Int64(),
				FavoriteCount: item.Statistics.FavoriteCount.Int64(),
				CommentCount:  item.Statistics.CommentCount.Int64(),
			},
		})
	}
	return page, nil
}

// CommentThreads issues one page of a video's comment threads with nested
// replies.
func (c *Client) CommentThreads(ctx context.Context, videoID, pageToken string) (crawl.CommentPage, error) {
	params := url.Values{}
	params.Set("part", "snippet,replies")
	params.Set("videoId", videoID)
	params.Set("textFormat", "plainText")
	params.Set("order", "relevance")
	params.Set("maxResults", "100")

	var body commentThreadResponse
	if err := c.list(ctx, crawl.RequestVideoComments, "commentThreads", params, pageToken, &body); err != nil {
		return crawl.CommentPage{}, err
	}

	page := crawl.CommentPage{Page: body.page()}
	for _, item := range body.Items {
		top := item.Snippet.TopLevelComment.Snippet
		comment := crawl.Comment{
			ID:          item.ID,
			VideoID:     top.VideoID,
			AuthorID:    top.AuthorChannelID.Value,
			AuthorName:  top.AuthorDisplayName,
			Text:        top.TextDisplay,
			LikeCount:   top.LikeCount,
			PublishedAt: top.PublishedAt,
		}
		for _, r := range item.Replies.Comments {
			comment.Replies = append(comment.Replies, crawl.Reply{
				ID:          r.ID,
				VideoID:     r.Snippet.VideoID,
				AuthorID:    r.Snippet.AuthorChannelID.Value,
				AuthorName:  r.Snippet.AuthorDisplayName,
				Text:        r.Snippet.TextDisplay,
				LikeCount:   r.Snippet.LikeCount,
				PublishedAt: r.Snippet.PublishedAt,
			})
		}
		page.Items = append(page.Items, comment)
	}
	return page, nil
}

// list performs one GET against an endpoint and decodes the response,
// mapping API failure modes onto the crawl error taxonomy.
func (c *Client) list(
	ctx context.Context,
	reqType crawl.RequestType,
	endpoint string,
	params url.Values,
	pageToken string,
	out pagedResponse,
) error {
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	target := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &crawl.APIError{RequestType: reqType, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveAPIError(string(reqType), "transport")
		return &crawl.APIError{RequestType: reqType, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveAPIError(string(reqType), "transport")
		return &crawl.APIError{RequestType: reqType, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return c.apiFailure(reqType, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		metrics.ObserveAPIError(string(reqType), "decode")
		return &crawl.APIError{RequestType: reqType, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) apiFailure(reqType crawl.RequestType, status int, raw []byte) error {
	var body errorResponse
	reason := ""
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error.Errors) > 0 {
		reason = body.Error.Errors[0].Reason
	}
	c.logger.Error("content api error",
		zap.String("request_type", string(reqType)),
		zap.Int("status", status),
		zap.String("reason", reason),
	)
	metrics.ObserveAPIError(string(reqType), reason)

	apiErr := &crawl.APIError{RequestType: reqType, StatusCode: status, Reason: reason}
	switch {
	case isQuotaReason(reason):
		apiErr.Err = crawl.ErrQuotaExceeded
	case status == http.StatusBadRequest:
		apiErr.Err = crawl.ErrInvalidRequest
	}
	return apiErr
}

func isQuotaReason(reason string) bool {
	switch reason {
	case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
		return true
	}
	return false
}

func capPageSize(n int) int {
	if n <= 0 || n > 50 {
		return 50
	}
	return n
}

func joinKinds(kinds []crawl.ResultKind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ",")
}
