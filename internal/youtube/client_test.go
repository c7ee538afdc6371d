package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	require.NoError(t, err)
	return client
}

func TestSearchParsesPage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, "go tutorials", r.URL.Query().Get("q"))
		require.Equal(t, "relevance", r.URL.Query().Get("order"))
		require.Equal(t, "video,channel", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"etag": "\"abc123\"",
			"nextPageToken": "CAUQAA",
			"pageInfo": {"totalResults": 120},
			"items": [
				{
					"id": {"kind": "youtube#video", "videoId": "vid-1"},
					"snippet": {"title": "First", "channelId": "chan-1", "publishedAt": "2023-05-01T10:00:00Z"}
				},
				{
					"id": {"kind": "youtube#channel", "channelId": "chan-2"},
					"snippet": {"title": "A Channel"}
				}
			]
		}`))
	})

	page, err := client.Search(context.Background(), crawl.SearchQuery{
		Keyword:      "go tutorials",
		Order:        "relevance",
		Mode:         crawl.ModeKeyword,
		MaxResults:   10,
		ContentTypes: []crawl.ResultKind{crawl.KindVideo, crawl.KindChannel},
	}, "")
	require.NoError(t, err)

	require.Equal(t, "abc123", page.Etag, "etag quotes must be stripped")
	require.Equal(t, "CAUQAA", page.NextPageToken)
	require.Equal(t, 120, page.TotalResults)
	require.Len(t, page.Items, 2)
	require.Equal(t, crawl.KindVideo, page.Items[0].Kind)
	require.Equal(t, "vid-1", page.Items[0].ID)
	require.Equal(t, "chan-1", page.Items[0].OwnerChannelID)
	require.Equal(t, crawl.KindChannel, page.Items[1].Kind)
	require.Equal(t, "chan-2", page.Items[1].ID)
}

func TestSearchPassesPageToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "CAUQAA", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"etag": "e", "items": []}`))
	})

	_, err := client.Search(context.Background(), crawl.SearchQuery{
		Keyword: "k", Order: "relevance", Mode: crawl.ModeKeyword, MaxResults: 5,
	}, "CAUQAA")
	require.NoError(t, err)
}

func TestQuotaExceededMapsToSentinel(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "errors": [{"reason": "quotaExceeded"}]}}`))
	})

	_, err := client.CommentThreads(context.Background(), "vid-1", "")
	require.Error(t, err)
	require.True(t, crawl.IsQuotaExceeded(err))

	var apiErr *crawl.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "quotaExceeded", apiErr.Reason)
}

func TestBadRequestMapsToInvalid(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "errors": [{"reason": "invalidParameter"}]}}`))
	})

	_, err := client.Playlists(context.Background(), "chan-1", "")
	require.ErrorIs(t, err, crawl.ErrInvalidRequest)
	require.False(t, crawl.IsQuotaExceeded(err))
}

func TestServerErrorIsTransport(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Channels(context.Background(), []string{"chan-1"}, "")
	require.Error(t, err)
	require.False(t, crawl.IsQuotaExceeded(err))
	require.NotErrorIs(t, err, crawl.ErrInvalidRequest)

	var apiErr *crawl.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestChannelsParsesStringCounters(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels", r.URL.Path)
		require.Equal(t, "chan-1,chan-2", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{
			"etag": "e",
			"items": [
				{
					"id": "chan-1",
					"snippet": {"title": "One"},
					"statistics": {"viewCount": "1234", "subscriberCount": "56"}
				}
			]
		}`))
	})

	page, err := client.Channels(context.Background(), []string{"chan-1", "chan-2"}, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "One", page.Items[0].Title)
	require.Len(t, page.Items[0].Statistics, 1)
	require.Equal(t, int64(1234), page.Items[0].Statistics[0].ViewCount)
	require.Equal(t, int64(56), page.Items[0].Statistics[0].SubscriberCount)
	require.Equal(t, int64(0), page.Items[0].Statistics[0].CommentCount, "hidden counters default to zero")
}

func TestCommentThreadsParsesReplies(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/commentThreads", r.URL.Path)
		require.Equal(t, "vid-1", r.URL.Query().Get("videoId"))
		_, _ = w.Write([]byte(`{
			"etag": "e",
			"items": [
				{
					"id": "com-1",
					"snippet": {
						"topLevelComment": {
							"snippet": {
								"videoId": "vid-1",
								"authorDisplayName": "alice",
								"authorChannelId": {"value": "user-a"},
								"textDisplay": "great video",
								"likeCount": 3
							}
						}
					},
					"replies": {
						"comments": [
							{
								"id": "rep-1",
								"snippet": {
									"videoId": "vid-1",
									"authorDisplayName": "bob",
									"authorChannelId": {"value": "user-b"},
									"textDisplay": "agreed"
								}
							}
						]
					}
				}
			]
		}`))
	})

	page, err := client.CommentThreads(context.Background(), "vid-1", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	comment := page.Items[0]
	require.Equal(t, "com-1", comment.ID)
	require.Equal(t, "user-a", comment.AuthorID)
	require.Equal(t, "alice", comment.AuthorName)
	require.Len(t, comment.Replies, 1)
	require.Equal(t, "user-b", comment.Replies[0].AuthorID)
}

func TestPlaylistItemsResolveVideoIDs(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/playlistItems", r.URL.Path)
		require.Equal(t, "pl-1", r.URL.Query().Get("playlistId"))
		_, _ = w.Write([]byte(`{
			"etag": "e",
			"items": [
				{"snippet": {"resourceId": {"videoId": "vid-9"}, "channelId": "chan-1", "title": "T"}}
			]
		}`))
	})

	page, err := client.PlaylistItems(context.Background(), "pl-1", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "vid-9", page.Items[0].ID)
	require.Equal(t, "chan-1", page.Items[0].ChannelID)
}
