package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/metrics"
)

const (
	// maxPageSize is the largest page the content API serves.
	maxPageSize = 50

	// maxRequestedResults bounds the per-search result budget.
	maxRequestedResults = 10000
)

// Config controls Scheduler behavior.
type Config struct {
	// CommentPageLimit caps comment-thread pages fetched per video,
	// independent of the outer result budget, so popular videos cannot
	// consume unbounded quota.
	CommentPageLimit int

	// BatchSize is the id-list size for statistics and channel lookups.
	BatchSize int

	// CompletionTopic, when set, receives a search.completed event after a
	// harvest finishes.
	CompletionTopic string
}

func (c Config) withDefaults() Config {
	if c.CommentPageLimit <= 0 {
		c.CommentPageLimit = 3
	}
	if c.BatchSize <= 0 || c.BatchSize > maxPageSize {
		c.BatchSize = maxPageSize
	}
	return c
}

// Scheduler orchestrates multi-page retrieval per entity type, persists and
// resumes pagination cursors, and fans discovered entities out into
// enrichment passes. It exclusively owns the ResumeToken lifecycle.
//
// One search invocation runs synchronously start to finish; resumability via
// ProcessOutstandingTokens substitutes for in-process cancellation.
type Scheduler struct {
	gateway   Gateway
	corpus    CorpusStore
	tokens    ResumeStore
	publisher Publisher
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// NewScheduler constructs a Scheduler. Publisher may be nil when no
// completion events are wanted.
func NewScheduler(
	gateway Gateway,
	corpus CorpusStore,
	tokens ResumeStore,
	publisher Publisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		gateway:   gateway,
		corpus:    corpus,
		tokens:    tokens,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Search runs a paginated search for the given query. Identical repeated
// searches return the cached result set without issuing API calls. When the
// response indicates more pages than the pass consumed, the continuation is
// persisted as a resume token.
func (s *Scheduler) Search(ctx context.Context, q SearchQuery) (*SearchResultSet, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.normalized()

	if cached, err := s.corpus.FindSearchResultSet(ctx, q.Fingerprint()); err == nil && len(cached.Items) > 0 {
		metrics.ObserveCacheHit()
		s.logger.Info("returning cached search results",
			zap.String("keyword", q.Keyword),
			zap.String("search_id", cached.ID),
		)
		return cached, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check search cache: %w", err)
	}

	pageSize := q.MaxResults
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if q.MaxResults > maxRequestedResults {
		return nil, fmt.Errorf("%w: max results %d exceeds limit %d", ErrInvalidRequest, q.MaxResults, maxRequestedResults)
	}
	pagesNeeded := (q.MaxResults + pageSize - 1) / pageSize

	s.logger.Info("searching resources",
		zap.String("keyword", q.Keyword),
		zap.String("mode", string(q.Mode)),
		zap.Int("pages_needed", pagesNeeded),
	)

	set := &SearchResultSet{
		Query:       q,
		RetrievedAt: s.clock.Now(),
	}
	pageToken := ""
	for fetched := 0; ; {
		page, err := s.gateway.Search(ctx, q, pageToken)
		if err != nil {
			return nil, err
		}
		metrics.ObservePage(string(RequestSearch), len(page.Items))
		fetched++

		if set.ID == "" {
			set.ID = page.Etag
			set.TotalResults = page.TotalResults
		}
		set.Items = append(set.Items, page.Items...)

		if page.NextPageToken == "" {
			break
		}
		if fetched >= pagesNeeded {
			spec := RequestSpec{Type: RequestSearch, Search: &q}
			if err := s.storeToken(ctx, page.NextPageToken, spec); err != nil {
				return nil, err
			}
			break
		}
		pageToken = page.NextPageToken
	}

	if set.ID == "" {
		// Some responses omit the etag; the set still needs a stable key.
		set.ID = uuid.NewString()
	}
	if err := s.corpus.PutSearchResultSet(ctx, set); err != nil {
		return nil, fmt.Errorf("store search results: %w", err)
	}
	return set, nil
}

// HarvestResults expands a completed search into channel, playlist, video
// and comment enrichment. Each paginated leg may leave its own resume token.
// Any API failure aborts the harvest and propagates; tokens persisted for
// prior pages survive, preserving resumability.
func (s *Scheduler) HarvestResults(ctx context.Context, set *SearchResultSet) error {
	if set == nil || len(set.Items) == 0 {
		s.logger.Warn("search results are empty")
		return nil
	}

	var videoIDs, channelIDs []string
	for _, item := range set.Items {
		switch item.Kind {
		case KindChannel:
			s.logger.Info("harvesting channel", zap.String("title", item.Title))
			channelIDs = append(channelIDs, item.ID)
			if err := s.harvestChannelPlaylists(ctx, item.ID); err != nil {
				return err
			}
			if err := s.putIgnoringDuplicate(s.corpus.PutChannel(ctx, Channel{
				ID:          item.ID,
				Title:       item.Title,
				Description: item.Description,
				PublishedAt: item.PublishedAt,
				RetrievedAt: s.clock.Now(),
			})); err != nil {
				return err
			}
		case KindPlaylist:
			s.logger.Info("harvesting playlist", zap.String("title", item.Title))
			if err := s.putIgnoringDuplicate(s.corpus.PutPlaylist(ctx, Playlist{
				ID:          item.ID,
				ChannelID:   item.OwnerChannelID,
				Title:       item.Title,
				Description: item.Description,
				PublishedAt: item.PublishedAt,
				RetrievedAt: s.clock.Now(),
			})); err != nil {
				return err
			}
			if err := s.harvestPlaylistVideos(ctx, item.ID); err != nil {
				return err
			}
		case KindVideo:
			s.logger.Info("harvesting video", zap.String("title", item.Title))
			videoIDs = append(videoIDs, item.ID)
			if err := s.putIgnoringDuplicate(s.corpus.PutVideo(ctx, Video{
				ID:          item.ID,
				ChannelID:   item.OwnerChannelID,
				Title:       item.Title,
				Description: item.Description,
				PublishedAt: item.PublishedAt,
				RetrievedAt: s.clock.Now(),
			})); err != nil {
				return err
			}
			if err := s.harvestVideoComments(ctx, item.ID); err != nil {
				return err
			}
		}
	}

	if err := s.harvestVideoStatistics(ctx, videoIDs); err != nil {
		return err
	}
	if err := s.harvestChannelStatistics(ctx, channelIDs); err != nil {
		return err
	}

	s.publishEvent(ctx, "search.completed", map[string]any{
		"search_id":   set.ID,
		"keyword":     set.Query.Keyword,
		"items":       len(set.Items),
		"finished_at": s.clock.Now(),
	})
	return nil
}

// ResolveChannels fetches and stores channel records for the given ids in
// bounded batches. Used by the graph builder to fill in channels the search
// pass never visited.
func (s *Scheduler) ResolveChannels(ctx context.Context, ids []string) error {
	for _, batch := range chunk(ids, s.cfg.BatchSize) {
		pageToken := ""
		for {
			page, err := s.gateway.Channels(ctx, batch, pageToken)
			if err != nil {
				return err
			}
			metrics.ObservePage(string(RequestChannel), len(page.Items))
			if err := s.storeChannelPage(ctx, page, true); err != nil {
				return err
			}
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
	}
	return nil
}

// EnrichChannels refreshes playlists for every channel already in the
// corpus referenced by the given ids. It mirrors the periodic enrichment
// pass the display layer triggers between crawls.
func (s *Scheduler) EnrichChannels(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.harvestChannelPlaylists(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ProcessOutstandingTokens re-issues one page per stored token. The page
// result is durably stored, any continuation is upserted as the replacement
// token, and only then is the consumed token deleted. Failed tokens are left
// in place for the next pass.
func (s *Scheduler) ProcessOutstandingTokens(ctx context.Context) error {
	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return fmt.Errorf("list resume tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Warn("no outstanding tokens")
		return nil
	}
	for _, t := range tokens {
		logger := s.logger.With(
			zap.String("token_id", t.ID),
			zap.String("token_type", string(t.Type)),
		)
		logger.Info("processing resume token")
		if err := s.consumeToken(ctx, t); err != nil {
			metrics.ObserveTokenProcessed("failed")
			logger.Error("resume token failed, keeping for next pass", zap.Error(err))
			if IsQuotaExceeded(err) {
				// Further tokens would burn the same exhausted quota.
				return err
			}
			continue
		}
		metrics.ObserveTokenProcessed("consumed")
		logger.Info("resume token consumed")
	}
	return nil
}

// consumeToken performs the single legal token transition: one page is
// fetched and durably stored, then the token moves Pending -> Consumed by
// deletion. A crash in between replays the token; storage is id-keyed so the
// replay is idempotent.
func (s *Scheduler) consumeToken(ctx context.Context, t ResumeToken) error {
	if err := t.Request.Validate(); err != nil {
		return err
	}

	var next string
	switch t.Type {
	case RequestSearch:
		page, err := s.gateway.Search(ctx, *t.Request.Search, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(RequestSearch), len(page.Items))
		if err := s.mergeSearchPage(ctx, *t.Request.Search, page); err != nil {
			return err
		}
		next = page.NextPageToken
	case RequestChannel, RequestChannelStatistics:
		page, err := s.gateway.Channels(ctx, t.Request.ChannelIDs, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(t.Type), len(page.Items))
		if err := s.storeChannelPage(ctx, page, t.Type == RequestChannel); err != nil {
			return err
		}
		next = page.NextPageToken
	case RequestChannelPlaylists:
		page, err := s.gateway.Playlists(ctx, t.Request.ChannelID, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(t.Type), len(page.Items))
		if err := s.storePlaylistPage(ctx, page); err != nil {
			return err
		}
		next = page.NextPageToken
	case RequestPlaylistVideos:
		page, err := s.gateway.PlaylistItems(ctx, t.Request.PlaylistID, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(t.Type), len(page.Items))
		if err := s.storePlaylistItemPage(ctx, page); err != nil {
			return err
		}
		next = page.NextPageToken
	case RequestVideoStatistics:
		page, err := s.gateway.VideoStatistics(ctx, t.Request.VideoIDs, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(t.Type), len(page.Items))
		for _, item := range page.Items {
			if err := s.corpus.SetVideoStatistics(ctx, item.ID, item.Statistics); err != nil {
				return fmt.Errorf("store video statistics: %w", err)
			}
		}
		next = page.NextPageToken
	case RequestVideoComments:
		page, err := s.gateway.CommentThreads(ctx, t.Request.VideoID, t.ID)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(t.Type), len(page.Items))
		if err := s.storeCommentPage(ctx, page); err != nil {
			return err
		}
		next = page.NextPageToken
	default:
		return fmt.Errorf("%w: token type %q", ErrInvalidRequest, t.Type)
	}

	if next != "" {
		if err := s.storeToken(ctx, next, t.Request); err != nil {
			return err
		}
	}
	return s.tokens.Delete(ctx, t.ID)
}

// mergeSearchPage appends a resumed page into the stored result set keyed by
// the page etag, deduplicating by item id so replaying the same token after
// a crash does not multiply entries.
func (s *Scheduler) mergeSearchPage(ctx context.Context, q SearchQuery, page SearchPage) error {
	set, err := s.corpus.GetSearchResultSet(ctx, page.Etag)
	if errors.Is(err, ErrNotFound) {
		set = &SearchResultSet{
			ID:           page.Etag,
			Query:        q,
			TotalResults: page.TotalResults,
			RetrievedAt:  s.clock.Now(),
		}
	} else if err != nil {
		return fmt.Errorf("load search results for merge: %w", err)
	}

	seen := make(map[string]bool, len(set.Items))
	for _, item := range set.Items {
		seen[item.ID] = true
	}
	for _, item := range page.Items {
		if !seen[item.ID] {
			set.Items = append(set.Items, item)
		}
	}
	if err := s.corpus.PutSearchResultSet(ctx, set); err != nil {
		return fmt.Errorf("store merged search results: %w", err)
	}
	return nil
}

func (s *Scheduler) harvestChannelPlaylists(ctx context.Context, channelID string) error {
	pageToken := ""
	for {
		page, err := s.gateway.Playlists(ctx, channelID, pageToken)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(RequestChannelPlaylists), len(page.Items))
		if err := s.storePlaylistPage(ctx, page); err != nil {
			return err
		}
		for _, pl := range page.Items {
			if err := s.harvestPlaylistVideos(ctx, pl.ID); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *Scheduler) harvestPlaylistVideos(ctx context.Context, playlistID string) error {
	pageToken := ""
	for {
		page, err := s.gateway.PlaylistItems(ctx, playlistID, pageToken)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(RequestPlaylistVideos), len(page.Items))
		if err := s.storePlaylistItemPage(ctx, page); err != nil {
			return err
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// harvestVideoComments fetches up to CommentPageLimit comment-thread pages
// for one video and persists a resume token when more remain.
func (s *Scheduler) harvestVideoComments(ctx context.Context, videoID string) error {
	spec := RequestSpec{Type: RequestVideoComments, VideoID: videoID}
	pageToken := ""
	for fetched := 0; ; {
		page, err := s.gateway.CommentThreads(ctx, videoID, pageToken)
		if err != nil {
			return err
		}
		metrics.ObservePage(string(RequestVideoComments), len(page.Items))
		fetched++
		if err := s.storeCommentPage(ctx, page); err != nil {
			return err
		}
		if page.NextPageToken == "" {
			return nil
		}
		if fetched >= s.cfg.CommentPageLimit {
			return s.storeToken(ctx, page.NextPageToken, spec)
		}
		pageToken = page.NextPageToken
	}
}

func (s *Scheduler) harvestVideoStatistics(ctx context.Context, ids []string) error {
	for _, batch := range chunk(ids, s.cfg.BatchSize) {
		spec := RequestSpec{Type: RequestVideoStatistics, VideoIDs: batch}
		pageToken := ""
		for {
			page, err := s.gateway.VideoStatistics(ctx, batch, pageToken)
			if err != nil {
				return err
			}
			metrics.ObservePage(string(RequestVideoStatistics), len(page.Items))
			for _, item := range page.Items {
				if err := s.corpus.SetVideoStatistics(ctx, item.ID, item.Statistics); err != nil {
					return fmt.Errorf("store video statistics: %w", err)
				}
			}
			if page.NextPageToken == "" {
				break
			}
			if err := s.storeToken(ctx, page.NextPageToken, spec); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func (s *Scheduler) harvestChannelStatistics(ctx context.Context, ids []string) error {
	for _, batch := range chunk(ids, s.cfg.BatchSize) {
		spec := RequestSpec{Type: RequestChannelStatistics, ChannelIDs: batch}
		pageToken := ""
		for {
			page, err := s.gateway.Channels(ctx, batch, pageToken)
			if err != nil {
				return err
			}
			metrics.ObservePage(string(RequestChannelStatistics), len(page.Items))
			if err := s.storeChannelPage(ctx, page, false); err != nil {
				return err
			}
			if page.NextPageToken == "" {
				break
			}
			if err := s.storeToken(ctx, page.NextPageToken, spec); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// storeChannelPage persists one page of channel records. With full set, the
// channel documents themselves are inserted before statistics are appended;
// statistics-only passes just append snapshots.
func (s *Scheduler) storeChannelPage(ctx context.Context, page ChannelPage, full bool) error {
	for _, c := range page.Items {
		if full {
			c.RetrievedAt = s.clock.Now()
			if err := s.putIgnoringDuplicate(s.corpus.PutChannel(ctx, c)); err != nil {
				return err
			}
		}
		for _, stats := range c.Statistics {
			if err := s.corpus.AppendChannelStatistics(ctx, c.ID, stats); err != nil {
				return fmt.Errorf("store channel statistics: %w", err)
			}
		}
	}
	return nil
}

func (s *Scheduler) storePlaylistPage(ctx context.Context, page PlaylistPage) error {
	for _, pl := range page.Items {
		pl.RetrievedAt = s.clock.Now()
		if err := s.putIgnoringDuplicate(s.corpus.PutPlaylist(ctx, pl)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) storePlaylistItemPage(ctx context.Context, page PlaylistItemPage) error {
	for _, v := range page.Items {
		v.RetrievedAt = s.clock.Now()
		if err := s.putIgnoringDuplicate(s.corpus.PutVideo(ctx, v)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) storeCommentPage(ctx context.Context, page CommentPage) error {
	for _, c := range page.Items {
		replies := c.Replies
		c.Replies = nil
		if err := s.putIgnoringDuplicate(s.corpus.PutComment(ctx, c)); err != nil {
			return err
		}
		for _, r := range replies {
			if err := s.corpus.AppendReply(ctx, c.ID, r); err != nil {
				return fmt.Errorf("store comment reply: %w", err)
			}
		}
	}
	return nil
}

func (s *Scheduler) storeToken(ctx context.Context, cursor string, spec RequestSpec) error {
	t := ResumeToken{
		ID:        cursor,
		Type:      spec.Type,
		Request:   spec,
		CreatedAt: s.clock.Now(),
	}
	if err := s.tokens.Put(ctx, t); err != nil {
		return fmt.Errorf("store resume token: %w", err)
	}
	s.logger.Debug("stored resume token",
		zap.String("token_id", cursor),
		zap.String("token_type", string(spec.Type)),
	)
	return nil
}

// putIgnoringDuplicate recovers duplicate-key conditions locally; corpus
// entities are id-keyed, so an existing record means the page was already
// applied.
func (s *Scheduler) putIgnoringDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicate) {
		s.logger.Debug("duplicate record ignored", zap.Error(err))
		return nil
	}
	return err
}

func (s *Scheduler) publishEvent(ctx context.Context, topic string, payload map[string]any) {
	if s.publisher == nil || s.cfg.CompletionTopic == "" {
		return
	}
	payload["event_id"] = uuid.NewString()
	payload["event"] = topic
	if _, err := s.publisher.Publish(ctx, s.cfg.CompletionTopic, payload); err != nil {
		s.logger.Warn("publish completion event failed", zap.Error(err))
	}
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
