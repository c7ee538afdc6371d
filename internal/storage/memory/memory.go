// Package memory provides in-memory implementations of the crawl stores for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// CorpusStore keeps crawled entities in maps, mirroring the duplicate-key
// and merge semantics of the Postgres store.
type CorpusStore struct {
	mu        sync.RWMutex
	searches  map[string]crawl.SearchResultSet
	channels  map[string]crawl.Channel
	playlists map[string]crawl.Playlist
	videos    map[string]crawl.Video
	comments  map[string]crawl.Comment
	// commentSeq preserves discovery order per video.
	commentSeq map[string][]string
}

// NewCorpusStore creates an empty in-memory corpus.
func NewCorpusStore() *CorpusStore {
	return &CorpusStore{
		searches:   make(map[string]crawl.SearchResultSet),
		channels:   make(map[string]crawl.Channel),
		playlists:  make(map[string]crawl.Playlist),
		videos:     make(map[string]crawl.Video),
		comments:   make(map[string]crawl.Comment),
		commentSeq: make(map[string][]string),
	}
}

// PutSearchResultSet stores or replaces a result set keyed by id.
func (s *CorpusStore) PutSearchResultSet(_ context.Context, set *crawl.SearchResultSet) error {
	if set == nil || set.ID == "" {
		return fmt.Errorf("search result set id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[set.ID] = *set
	return nil
}

// FindSearchResultSet looks a result set up by query fingerprint.
func (s *CorpusStore) FindSearchResultSet(_ context.Context, fingerprint string) (*crawl.SearchResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.searches))
	for id := range s.searches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		set := s.searches[id]
		if set.Query.Fingerprint() == fingerprint {
			out := set
			return &out, nil
		}
	}
	return nil, crawl.ErrNotFound
}

// GetSearchResultSet loads a result set by id.
func (s *CorpusStore) GetSearchResultSet(_ context.Context, id string) (*crawl.SearchResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.searches[id]
	if !ok {
		return nil, crawl.ErrNotFound
	}
	out := set
	return &out, nil
}

// PutChannel inserts a channel, reporting crawl.ErrDuplicate when present.
func (s *CorpusStore) PutChannel(_ context.Context, c crawl.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[c.ID]; ok {
		return fmt.Errorf("channel %s: %w", c.ID, crawl.ErrDuplicate)
	}
	s.channels[c.ID] = c
	return nil
}

// AppendChannelStatistics appends a snapshot with set semantics.
func (s *CorpusStore) AppendChannelStatistics(_ context.Context, channelID string, stats crawl.ChannelStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	for _, existing := range c.Statistics {
		if existing == stats {
			return nil
		}
	}
	c.Statistics = append(c.Statistics, stats)
	s.channels[channelID] = c
	return nil
}

// GetChannel loads a channel by id.
func (s *CorpusStore) GetChannel(_ context.Context, id string) (*crawl.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, crawl.ErrNotFound
	}
	out := c
	return &out, nil
}

// PutPlaylist inserts a playlist, reporting crawl.ErrDuplicate when present.
func (s *CorpusStore) PutPlaylist(_ context.Context, p crawl.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[p.ID]; ok {
		return fmt.Errorf("playlist %s: %w", p.ID, crawl.ErrDuplicate)
	}
	s.playlists[p.ID] = p
	return nil
}

// PutVideo inserts a video, reporting crawl.ErrDuplicate when present.
func (s *CorpusStore) PutVideo(_ context.Context, v crawl.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[v.ID]; ok {
		return fmt.Errorf("video %s: %w", v.ID, crawl.ErrDuplicate)
	}
	s.videos[v.ID] = v
	return nil
}

// SetVideoStatistics replaces a video's statistics in place.
func (s *CorpusStore) SetVideoStatistics(_ context.Context, videoID string, stats crawl.VideoStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return nil
	}
	v.Statistics = &stats
	s.videos[videoID] = v
	return nil
}

// PutComment inserts a comment thread, reporting crawl.ErrDuplicate when
// present.
func (s *CorpusStore) PutComment(_ context.Context, c crawl.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.ID]; ok {
		return fmt.Errorf("comment %s: %w", c.ID, crawl.ErrDuplicate)
	}
	if c.Replies == nil {
		c.Replies = []crawl.Reply{}
	}
	s.comments[c.ID] = c
	s.commentSeq[c.VideoID] = append(s.commentSeq[c.VideoID], c.ID)
	return nil
}

// AppendReply appends a reply in discovery order, skipping known reply ids.
func (s *CorpusStore) AppendReply(_ context.Context, commentID string, r crawl.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil
	}
	for _, existing := range c.Replies {
		if existing.ID == r.ID {
			return nil
		}
	}
	c.Replies = append(c.Replies, r)
	s.comments[commentID] = c
	return nil
}

// CommentsByVideo returns a video's comment threads in insertion order.
func (s *CorpusStore) CommentsByVideo(_ context.Context, videoID string) ([]crawl.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawl.Comment
	for _, id := range s.commentSeq[videoID] {
		out = append(out, s.comments[id])
	}
	return out, nil
}

// ChannelCount reports the number of stored channels.
func (s *CorpusStore) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// VideoCount reports the number of stored videos.
func (s *CorpusStore) VideoCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.videos)
}

// CommentCount reports the number of stored comment threads.
func (s *CorpusStore) CommentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments)
}

// ResumeStore keeps pagination tokens in memory, upserting on the
// (type, fingerprint) key like the Postgres store.
type ResumeStore struct {
	mu     sync.RWMutex
	tokens map[string]crawl.ResumeToken
	order  []string
}

// NewResumeStore creates an empty in-memory token store.
func NewResumeStore() *ResumeStore {
	return &ResumeStore{tokens: make(map[string]crawl.ResumeToken)}
}

// Put upserts a token on its (type, request fingerprint) key.
func (s *ResumeStore) Put(_ context.Context, t crawl.ResumeToken) error {
	if t.ID == "" {
		return fmt.Errorf("token id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(t.Type) + "/" + t.Request.Fingerprint()
	if _, ok := s.tokens[key]; !ok {
		s.order = append(s.order, key)
	}
	s.tokens[key] = t
	return nil
}

// List returns all outstanding tokens in creation order.
func (s *ResumeStore) List(_ context.Context) ([]crawl.ResumeToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawl.ResumeToken
	for _, key := range s.order {
		if t, ok := s.tokens[key]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Delete removes a token by its cursor id.
func (s *ResumeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if t.ID == id {
			delete(s.tokens, key)
		}
	}
	return nil
}

// BlobStore keeps artifacts in memory and returns memory:// URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates an empty in-memory artifact store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Put stores a copy of the content and returns a memory:// URI.
func (s *BlobStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

// Get returns a stored artifact, or crawl.ErrNotFound.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", key, crawl.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether an artifact is present.
func (s *BlobStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}
