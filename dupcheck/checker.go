// Package dupcheck maintains a local index of videos already on the channel
// and answers whether a product code and episode has been uploaded before.
// The index is filled from the channel's upload list, refined by targeted
// search, and kept current by write-through registration after each upload.
package dupcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/template"
	"github.com/idev006/MTYoutubeAutoPost/youtube"
)

// syncInterval guards Sync against hammering the channel list endpoint.
// A forced sync bypasses it.
const syncInterval = time.Hour

// searchProbeSize limits how many search hits are inspected when the local
// cache misses.
const searchProbeSize = 5

// RemoteIndex is the slice of the YouTube service the checker needs. The
// concrete *youtube.Service satisfies it.
type RemoteIndex interface {
	ListChannelVideos(ctx context.Context, maxResults int) ([]youtube.RemoteVideo, error)
	SearchByTitle(ctx context.Context, query string, maxResults int64) ([]youtube.RemoteVideo, error)
}

// Checker answers duplicate queries against the local channel-video cache,
// falling back to a remote title search on a miss.
type Checker struct {
	store   *storage.Store
	remote  RemoteIndex
	maxSync int

	mu       sync.Mutex
	lastSync time.Time
}

// New returns a Checker backed by store and remote. maxSync caps how many
// channel videos a full sync pulls.
func New(store *storage.Store, remote RemoteIndex, maxSync int) *Checker {
	if maxSync <= 0 {
		maxSync = 1000
	}
	return &Checker{store: store, remote: remote, maxSync: maxSync}
}

// Sync pulls the channel's uploads into the local cache and returns the
// number of videos seen for the first time. Unless force is set, a sync
// within the guard interval of the previous one is skipped.
func (c *Checker) Sync(ctx context.Context, force bool) (int, error) {
	c.mu.Lock()
	if !force && !c.lastSync.IsZero() && time.Since(c.lastSync) < syncInterval {
		c.mu.Unlock()
		return 0, nil
	}
	c.mu.Unlock()

	videos, err := c.remote.ListChannelVideos(ctx, c.maxSync)
	if err != nil {
		return 0, fmt.Errorf("dupcheck: sync channel videos: %w", err)
	}

	inserted := 0
	for _, v := range videos {
		cv := remoteToCache(v)
		isNew, err := c.store.UpsertChannelVideo(ctx, cv)
		if err != nil {
			log.Printf("dupcheck: cache %s: %v", v.VideoID, err)
			continue
		}
		if isNew {
			inserted++
		}
	}

	c.mu.Lock()
	c.lastSync = time.Now()
	c.mu.Unlock()

	log.Printf("dupcheck: synced %d new videos from channel (total %d)", inserted, len(videos))
	return inserted, nil
}

// Check reports whether a video for prodCode and episode already exists on
// the channel. The local cache is consulted first; on a miss a narrow title
// search probes the channel directly and caches any hit.
func (c *Checker) Check(ctx context.Context, prodCode string, episode int) (task.DuplicateCheckResult, error) {
	result := task.DuplicateCheckResult{ProdCode: prodCode, Episode: episode}

	cached, err := c.store.LookupChannelVideo(ctx, prodCode, episode)
	if err == nil {
		result.Exists = true
		result.YouTubeVideoID = cached.YouTubeVideoID
		result.YouTubeURL = cached.YouTubeURL
		result.Title = cached.Title
		return result, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return result, err
	}

	query := fmt.Sprintf("%s ep.%d", prodCode, episode)
	hits, err := c.remote.SearchByTitle(ctx, query, searchProbeSize)
	if err != nil {
		return result, fmt.Errorf("dupcheck: search %q: %w", query, err)
	}

	for _, v := range hits {
		code, ep, ok := template.ParseTitle(v.Title)
		if !ok || code != prodCode || ep != episode {
			continue
		}
		result.Exists = true
		result.YouTubeVideoID = v.VideoID
		result.YouTubeURL = v.URL
		result.Title = v.Title

		cv := remoteToCache(v)
		cv.ProdCode = prodCode
		cv.Episode = episode
		if _, err := c.store.UpsertChannelVideo(ctx, cv); err != nil {
			log.Printf("dupcheck: cache search hit %s: %v", v.VideoID, err)
		}
		return result, nil
	}

	return result, nil
}

// Register writes a freshly uploaded video into the cache so subsequent
// checks for the same product and episode hit locally without a remote
// round trip.
func (c *Checker) Register(ctx context.Context, t *task.VideoTask, title, description string) error {
	if t.YouTubeVideoID == "" {
		return fmt.Errorf("dupcheck: register %s: missing video id", t)
	}

	cv := &storage.ChannelVideo{
		YouTubeVideoID: t.YouTubeVideoID,
		YouTubeURL:     t.YouTubeURL,
		ProdCode:       t.ProdCode,
		Episode:        t.Episode,
		Title:          title,
		Description:    description,
		Privacy:        t.Privacy,
		PlaylistID:     t.PlaylistID,
		AffURLs:        marshalAffURLs(t.AffURLs),
		UploadedAt:     time.Now().Format(time.RFC3339),
	}
	if _, err := c.store.UpsertChannelVideo(ctx, cv); err != nil {
		return fmt.Errorf("dupcheck: register %s: %w", t, err)
	}
	return nil
}

func remoteToCache(v youtube.RemoteVideo) *storage.ChannelVideo {
	cv := &storage.ChannelVideo{
		YouTubeVideoID: v.VideoID,
		YouTubeURL:     v.URL,
		Title:          v.Title,
		Description:    v.Description,
		UploadedAt:     v.PublishedAt,
		Episode:        1,
	}
	if code, ep, ok := template.ParseTitle(v.Title); ok {
		cv.ProdCode = code
		cv.Episode = ep
	}
	return cv
}

func marshalAffURLs(urls []task.AffiliateURL) string {
	if len(urls) == 0 {
		return ""
	}
	flat := make([]string, 0, len(urls))
	for _, u := range urls {
		flat = append(flat, u.URL)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return string(b)
}
