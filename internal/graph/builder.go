package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// ChannelResolver fetches and stores channel records for ids the search pass
// never visited. The crawl Scheduler satisfies it.
type ChannelResolver interface {
	ResolveChannels(ctx context.Context, ids []string) error
}

// Builder derives interaction graphs from the crawled corpus. A build is a
// pure read-then-compute pass: edges owner -> commenter for every comment,
// commenter -> replier for every reply, labels best-effort.
type Builder struct {
	corpus   crawl.CorpusStore
	resolver ChannelResolver
	logger   *zap.Logger
}

// NewBuilder constructs a Builder. Resolver may be nil, in which case
// channels absent from the corpus are dropped without a lookup attempt.
func NewBuilder(corpus crawl.CorpusStore, resolver ChannelResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		corpus:   corpus,
		resolver: resolver,
		logger:   logger,
	}
}

// Build assembles the interaction graph for a stored search result set,
// returning crawl.ErrNotFound when the search id is unknown. Channels that
// cannot be resolved lose their videos rather than failing the build.
func (b *Builder) Build(ctx context.Context, searchID string) (*Graph, error) {
	set, err := b.corpus.GetSearchResultSet(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("load search results %s: %w", searchID, err)
	}

	var videoIDs []string
	ownerOf := make(map[string]string)
	for _, item := range set.Items {
		if item.Kind != crawl.KindVideo || item.OwnerChannelID == "" {
			continue
		}
		videoIDs = append(videoIDs, item.ID)
		ownerOf[item.ID] = item.OwnerChannelID
	}

	channelTitles, err := b.resolveChannelTitles(ctx, ownerOf)
	if err != nil {
		return nil, err
	}

	g := New()
	commented := make(map[string]bool)
	for _, videoID := range videoIDs {
		owner := ownerOf[videoID]
		if _, ok := channelTitles[owner]; !ok {
			b.logger.Warn("dropping video of unresolved channel",
				zap.String("video_id", videoID),
				zap.String("channel_id", owner),
			)
			continue
		}
		comments, err := b.corpus.CommentsByVideo(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("load comments for video %s: %w", videoID, err)
		}
		if len(comments) > 0 {
			commented[owner] = true
		}
		for _, com := range comments {
			g.AddEdge(owner, com.AuthorID)
			g.SetLabel(com.AuthorID, com.AuthorName)
			for _, rep := range com.Replies {
				g.AddEdge(com.AuthorID, rep.AuthorID)
				g.SetLabel(rep.AuthorID, rep.AuthorName)
			}
		}
	}

	// A channel stays in the label map only while at least one of its
	// videos drew comments; anything else would be an orphan node.
	for channelID, title := range channelTitles {
		if commented[channelID] {
			g.SetLabel(channelID, title)
		}
	}
	return g, nil
}

// resolveChannelTitles returns a title per referenced channel, batching a
// crawl for the ones the corpus has never seen. Channels that remain
// unknown after resolution are omitted from the result.
func (b *Builder) resolveChannelTitles(ctx context.Context, ownerOf map[string]string) (map[string]string, error) {
	titles := make(map[string]string)
	var missing []string
	checked := make(map[string]bool)
	for _, channelID := range ownerOf {
		if checked[channelID] {
			continue
		}
		checked[channelID] = true
		c, err := b.corpus.GetChannel(ctx, channelID)
		switch {
		case err == nil:
			titles[channelID] = c.Title
		case errors.Is(err, crawl.ErrNotFound):
			missing = append(missing, channelID)
		default:
			return nil, fmt.Errorf("load channel %s: %w", channelID, err)
		}
	}
	if len(missing) == 0 {
		return titles, nil
	}

	if b.resolver != nil {
		b.logger.Info("resolving channels missing from corpus", zap.Int("count", len(missing)))
		if err := b.resolver.ResolveChannels(ctx, missing); err != nil {
			b.logger.Warn("channel resolution failed, dropping affected videos", zap.Error(err))
		}
	}
	for _, channelID := range missing {
		c, err := b.corpus.GetChannel(ctx, channelID)
		if err != nil {
			if errors.Is(err, crawl.ErrNotFound) {
				b.logger.Warn("channel still missing after resolution", zap.String("channel_id", channelID))
				continue
			}
			return nil, fmt.Errorf("load channel %s: %w", channelID, err)
		}
		titles[channelID] = c.Title
	}
	return titles, nil
}
