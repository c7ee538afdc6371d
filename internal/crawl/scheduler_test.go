package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGateway serves scripted pages per request kind and counts calls.
type fakeGateway struct {
	searchPages  map[string]SearchPage
	channelPages map[string]ChannelPage
	commentPages map[string]CommentPage

	searchCalls  int
	channelCalls int
	commentCalls int

	err error
}

func (g *fakeGateway) Search(_ context.Context, _ SearchQuery, pageToken string) (SearchPage, error) {
	g.searchCalls++
	if g.err != nil {
		return SearchPage{}, g.err
	}
	return g.searchPages[pageToken], nil
}

func (g *fakeGateway) Channels(_ context.Context, _ []string, pageToken string) (ChannelPage, error) {
	g.channelCalls++
	if g.err != nil {
		return ChannelPage{}, g.err
	}
	return g.channelPages[pageToken], nil
}

func (g *fakeGateway) Playlists(_ context.Context, _, _ string) (PlaylistPage, error) {
	return PlaylistPage{}, nil
}

func (g *fakeGateway) PlaylistItems(_ context.Context, _, _ string) (PlaylistItemPage, error) {
	return PlaylistItemPage{}, nil
}

func (g *fakeGateway) VideoStatistics(_ context.Context, ids []string, _ string) (VideoStatisticsPage, error) {
	items := make([]VideoStatisticsItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, VideoStatisticsItem{ID: id, Statistics: VideoStatistics{ViewCount: 1}})
	}
	return VideoStatisticsPage{Items: items}, nil
}

func (g *fakeGateway) CommentThreads(_ context.Context, _, pageToken string) (CommentPage, error) {
	g.commentCalls++
	if g.err != nil {
		return CommentPage{}, g.err
	}
	return g.commentPages[pageToken], nil
}

// memoryCorpus / memoryTokens are minimal in-memory stores for scheduler
// tests; the storage/memory package cannot be used here without an import
// cycle.
type memoryCorpus struct {
	searches map[string]SearchResultSet
	channels map[string]Channel
	videos   map[string]Video
	comments map[string]Comment
	seq      map[string][]string
}

func newMemoryCorpus() *memoryCorpus {
	return &memoryCorpus{
		searches: make(map[string]SearchResultSet),
		channels: make(map[string]Channel),
		videos:   make(map[string]Video),
		comments: make(map[string]Comment),
		seq:      make(map[string][]string),
	}
}

func (c *memoryCorpus) PutSearchResultSet(_ context.Context, set *SearchResultSet) error {
	c.searches[set.ID] = *set
	return nil
}

func (c *memoryCorpus) FindSearchResultSet(_ context.Context, fingerprint string) (*SearchResultSet, error) {
	for _, set := range c.searches {
		if set.Query.Fingerprint() == fingerprint {
			out := set
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (c *memoryCorpus) GetSearchResultSet(_ context.Context, id string) (*SearchResultSet, error) {
	set, ok := c.searches[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := set
	return &out, nil
}

func (c *memoryCorpus) PutChannel(_ context.Context, ch Channel) error {
	if _, ok := c.channels[ch.ID]; ok {
		return ErrDuplicate
	}
	c.channels[ch.ID] = ch
	return nil
}

func (c *memoryCorpus) AppendChannelStatistics(_ context.Context, id string, stats ChannelStatistics) error {
	ch, ok := c.channels[id]
	if !ok {
		return nil
	}
	for _, existing := range ch.Statistics {
		if existing == stats {
			return nil
		}
	}
	ch.Statistics = append(ch.Statistics, stats)
	c.channels[id] = ch
	return nil
}

func (c *memoryCorpus) GetChannel(_ context.Context, id string) (*Channel, error) {
	ch, ok := c.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := ch
	return &out, nil
}

func (c *memoryCorpus) PutPlaylist(_ context.Context, _ Playlist) error { return nil }

func (c *memoryCorpus) PutVideo(_ context.Context, v Video) error {
	if _, ok := c.videos[v.ID]; ok {
		return ErrDuplicate
	}
	c.videos[v.ID] = v
	return nil
}

func (c *memoryCorpus) SetVideoStatistics(_ context.Context, id string, stats VideoStatistics) error {
	v, ok := c.videos[id]
	if !ok {
		return nil
	}
	v.Statistics = &stats
	c.videos[id] = v
	return nil
}

func (c *memoryCorpus) PutComment(_ context.Context, com Comment) error {
	if _, ok := c.comments[com.ID]; ok {
		return ErrDuplicate
	}
	c.comments[com.ID] = com
	c.seq[com.VideoID] = append(c.seq[com.VideoID], com.ID)
	return nil
}

func (c *memoryCorpus) AppendReply(_ context.Context, commentID string, r Reply) error {
	com, ok := c.comments[commentID]
	if !ok {
		return nil
	}
	for _, existing := range com.Replies {
		if existing.ID == r.ID {
			return nil
		}
	}
	com.Replies = append(com.Replies, r)
	c.comments[commentID] = com
	return nil
}

func (c *memoryCorpus) CommentsByVideo(_ context.Context, videoID string) ([]Comment, error) {
	var out []Comment
	for _, id := range c.seq[videoID] {
		out = append(out, c.comments[id])
	}
	return out, nil
}

type memoryTokens struct {
	tokens map[string]ResumeToken
	order  []string
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[string]ResumeToken)}
}

func (s *memoryTokens) Put(_ context.Context, t ResumeToken) error {
	key := string(t.Type) + "/" + t.Request.Fingerprint()
	if _, ok := s.tokens[key]; !ok {
		s.order = append(s.order, key)
	}
	s.tokens[key] = t
	return nil
}

func (s *memoryTokens) List(_ context.Context) ([]ResumeToken, error) {
	var out []ResumeToken
	for _, key := range s.order {
		if t, ok := s.tokens[key]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryTokens) Delete(_ context.Context, id string) error {
	for key, t := range s.tokens {
		if t.ID == id {
			delete(s.tokens, key)
		}
	}
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestScheduler(gateway Gateway, corpus CorpusStore, tokens ResumeStore) *Scheduler {
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	return NewScheduler(gateway, corpus, tokens, nil, clock, Config{}, nil)
}

func testQuery(max int) SearchQuery {
	return SearchQuery{
		Keyword:    "influence",
		Order:      "relevance",
		MaxResults: max,
		Mode:       ModeKeyword,
	}
}

func TestSearchFollowsPagesWithinBudget(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{searchPages: map[string]SearchPage{
		"": {
			Page:  Page{Etag: "etag-1", TotalResults: 60, NextPageToken: "page-2"},
			Items: []SearchItem{{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"}},
		},
		"page-2": {
			Page:  Page{Etag: "etag-1", TotalResults: 60},
			Items: []SearchItem{{Kind: KindVideo, ID: "vid-2", OwnerChannelID: "chan-1"}},
		},
	}}
	tokens := newMemoryTokens()
	s := newTestScheduler(gateway, newMemoryCorpus(), tokens)

	set, err := s.Search(context.Background(), testQuery(100))
	require.NoError(t, err)
	require.Equal(t, "etag-1", set.ID)
	require.Len(t, set.Items, 2)
	require.Equal(t, 2, gateway.searchCalls)

	stored, err := tokens.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestSearchLeavesTokenWhenBudgetExhausted(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{searchPages: map[string]SearchPage{
		"": {
			Page:  Page{Etag: "etag-1", TotalResults: 500, NextPageToken: "page-2"},
			Items: []SearchItem{{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"}},
		},
	}}
	tokens := newMemoryTokens()
	s := newTestScheduler(gateway, newMemoryCorpus(), tokens)

	_, err := s.Search(context.Background(), testQuery(50))
	require.NoError(t, err)
	require.Equal(t, 1, gateway.searchCalls)

	stored, err := tokens.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "page-2", stored[0].ID)
	require.Equal(t, RequestSearch, stored[0].Type)
}

func TestSearchServedFromCacheIssuesNoAPICalls(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{searchPages: map[string]SearchPage{
		"": {
			Page:  Page{Etag: "etag-1", TotalResults: 1},
			Items: []SearchItem{{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"}},
		},
	}}
	corpus := newMemoryCorpus()
	s := newTestScheduler(gateway, corpus, newMemoryTokens())

	first, err := s.Search(context.Background(), testQuery(10))
	require.NoError(t, err)
	require.Equal(t, 1, gateway.searchCalls)

	second, err := s.Search(context.Background(), testQuery(10))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, gateway.searchCalls, "cached search must not hit the API")
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(&fakeGateway{}, newMemoryCorpus(), newMemoryTokens())

	_, err := s.Search(context.Background(), SearchQuery{Keyword: "x", Order: "sideways", MaxResults: 10, Mode: ModeKeyword})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHarvestCapsCommentPagesAndLeavesToken(t *testing.T) {
	t.Parallel()

	// Every comment page advertises another page; the cap must stop at
	// three and persist the continuation.
	gateway := &fakeGateway{commentPages: map[string]CommentPage{
		"": {
			Page:  Page{NextPageToken: "c-2"},
			Items: []Comment{{ID: "com-1", VideoID: "vid-1", AuthorID: "user-a"}},
		},
		"c-2": {
			Page:  Page{NextPageToken: "c-3"},
			Items: []Comment{{ID: "com-2", VideoID: "vid-1", AuthorID: "user-b"}},
		},
		"c-3": {
			Page:  Page{NextPageToken: "c-4"},
			Items: []Comment{{ID: "com-3", VideoID: "vid-1", AuthorID: "user-c"}},
		},
	}}
	corpus := newMemoryCorpus()
	tokens := newMemoryTokens()
	s := newTestScheduler(gateway, corpus, tokens)

	set := &SearchResultSet{
		ID:    "etag-1",
		Query: testQuery(10),
		Items: []SearchItem{{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"}},
	}
	require.NoError(t, s.HarvestResults(context.Background(), set))
	require.Equal(t, 3, gateway.commentCalls)
	require.Len(t, corpus.comments, 3)

	stored, err := tokens.List(context.Background())
	require.NoError(t, err)
	var commentTokens []ResumeToken
	for _, tok := range stored {
		if tok.Type == RequestVideoComments {
			commentTokens = append(commentTokens, tok)
		}
	}
	require.Len(t, commentTokens, 1)
	require.Equal(t, "c-4", commentTokens[0].ID)
	require.Equal(t, "vid-1", commentTokens[0].Request.VideoID)
}

func TestConsumeTokenDeletesOnlyAfterDurableStore(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{commentPages: map[string]CommentPage{
		"c-2": {
			Items: []Comment{{
				ID: "com-1", VideoID: "vid-1", AuthorID: "user-a",
				Replies: []Reply{{ID: "rep-1", VideoID: "vid-1", AuthorID: "user-b"}},
			}},
		},
	}}
	corpus := newMemoryCorpus()
	tokens := newMemoryTokens()
	s := newTestScheduler(gateway, corpus, tokens)

	tok := ResumeToken{
		ID:      "c-2",
		Type:    RequestVideoComments,
		Request: RequestSpec{Type: RequestVideoComments, VideoID: "vid-1"},
	}
	require.NoError(t, tokens.Put(context.Background(), tok))

	require.NoError(t, s.ProcessOutstandingTokens(context.Background()))

	require.Len(t, corpus.comments, 1)
	require.Len(t, corpus.comments["com-1"].Replies, 1)
	stored, err := tokens.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored, "consumed token must be deleted")
}

func TestResumingSameTokenTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{commentPages: map[string]CommentPage{
		"c-2": {
			Items: []Comment{{
				ID: "com-1", VideoID: "vid-1", AuthorID: "user-a",
				Replies: []Reply{{ID: "rep-1", VideoID: "vid-1", AuthorID: "user-b"}},
			}},
		},
	}}
	corpus := newMemoryCorpus()
	s := newTestScheduler(gateway, corpus, newMemoryTokens())

	tok := ResumeToken{
		ID:      "c-2",
		Type:    RequestVideoComments,
		Request: RequestSpec{Type: RequestVideoComments, VideoID: "vid-1"},
	}

	// A crash between page store and token delete replays the same token.
	require.NoError(t, s.consumeToken(context.Background(), tok))
	require.NoError(t, s.consumeToken(context.Background(), tok))

	require.Len(t, corpus.comments, 1)
	require.Len(t, corpus.comments["com-1"].Replies, 1)
}

func TestConsumeSearchTokenMergesWithoutDuplicates(t *testing.T) {
	t.Parallel()

	q := testQuery(50)
	gateway := &fakeGateway{searchPages: map[string]SearchPage{
		"page-2": {
			Page: Page{Etag: "etag-1", TotalResults: 60},
			Items: []SearchItem{
				{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"},
				{Kind: KindVideo, ID: "vid-2", OwnerChannelID: "chan-1"},
			},
		},
	}}
	corpus := newMemoryCorpus()
	corpus.searches["etag-1"] = SearchResultSet{
		ID:    "etag-1",
		Query: q,
		Items: []SearchItem{{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"}},
	}
	s := newTestScheduler(gateway, corpus, newMemoryTokens())

	tok := ResumeToken{
		ID:      "page-2",
		Type:    RequestSearch,
		Request: RequestSpec{Type: RequestSearch, Search: &q},
	}
	require.NoError(t, s.consumeToken(context.Background(), tok))

	set := corpus.searches["etag-1"]
	require.Len(t, set.Items, 2)
}

func TestProcessOutstandingTokensStopsOnQuota(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{err: &APIError{
		RequestType: RequestVideoComments,
		StatusCode:  403,
		Reason:      "quotaExceeded",
		Err:         ErrQuotaExceeded,
	}}
	tokens := newMemoryTokens()
	s := newTestScheduler(gateway, newMemoryCorpus(), tokens)

	tok := ResumeToken{
		ID:      "c-2",
		Type:    RequestVideoComments,
		Request: RequestSpec{Type: RequestVideoComments, VideoID: "vid-1"},
	}
	require.NoError(t, tokens.Put(context.Background(), tok))

	err := s.ProcessOutstandingTokens(context.Background())
	require.ErrorIs(t, err, ErrQuotaExceeded)

	stored, listErr := tokens.List(context.Background())
	require.NoError(t, listErr)
	require.Len(t, stored, 1, "failed token must survive for the next pass")
}

func TestHarvestBatchesStatisticsLookups(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{channelPages: map[string]ChannelPage{
		"": {Items: []Channel{{ID: "chan-1", Statistics: []ChannelStatistics{{ViewCount: 7}}}}},
	}}
	corpus := newMemoryCorpus()
	s := newTestScheduler(gateway, corpus, newMemoryTokens())

	set := &SearchResultSet{
		ID:    "etag-1",
		Query: testQuery(10),
		Items: []SearchItem{
			{Kind: KindChannel, ID: "chan-1", Title: "A Channel"},
			{Kind: KindVideo, ID: "vid-1", OwnerChannelID: "chan-1"},
		},
	}
	require.NoError(t, s.HarvestResults(context.Background(), set))

	require.Contains(t, corpus.channels, "chan-1")
	require.Len(t, corpus.channels["chan-1"].Statistics, 1)
	require.NotNil(t, corpus.videos["vid-1"].Statistics)
	require.Equal(t, int64(1), corpus.videos["vid-1"].Statistics.ViewCount)
}
