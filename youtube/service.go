// Package youtube wraps the YouTube Data API v3 for the upload pipeline:
// resumable uploads with progress, metadata updates, channel listing, title
// search and playlist management, with per-credential lazy OAuth and
// automatic key rotation on quota exhaustion.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/idev006/MTYoutubeAutoPost/apikey"
)

// Options configures the service.
type Options struct {
	// ChunkSize is the resumable upload chunk size in bytes (default 8MB).
	ChunkSize int
	// RequestsPerSecond paces metadata calls against the API.
	RequestsPerSecond float64
	// Prompt handles interactive OAuth grants. Nil means fail instead of
	// prompting (headless runs with pre-cached tokens).
	Prompt AuthPrompt
}

// Service performs the remote video operations. Authentication happens
// lazily on first use and again after every credential rotation. Safe for
// concurrent use by multiple upload workers; only one authentication runs at
// a time.
type Service struct {
	rotator *apikey.Rotator
	opts    Options
	limiter *rate.Limiter

	mu      sync.Mutex
	client  *yt.Service
	keyName string // credential set the client was built for
}

// New creates a service over the given key rotator.
func New(rotator *apikey.Rotator, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 * 1024 * 1024
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	return &Service{
		rotator: rotator,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

// ensureClient returns an API client authenticated under the rotator's
// current credential set, building one if the set changed since the last
// call. Concurrent callers during a refresh serialize on s.mu.
func (s *Service) ensureClient(ctx context.Context) (*yt.Service, error) {
	key, err := s.rotator.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.keyName == key.Name {
		return s.client, nil
	}

	oauthCfg, err := oauthConfig(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	tok, err := obtainToken(ctx, key, oauthCfg, s.opts.Prompt)
	if err != nil {
		return nil, err
	}

	client, err := yt.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	s.client = client
	s.keyName = key.Name
	log.Printf("youtube: authenticated under %s", key.Name)
	return client, nil
}

// dropClient forgets the cached client so the next call re-authenticates.
func (s *Service) dropClient() {
	s.mu.Lock()
	s.client = nil
	s.keyName = ""
	s.mu.Unlock()
}

// withQuotaRotation runs op and, when it fails with a quota-exceeded 403,
// rotates to the next credential set and retries the operation exactly once
// under the new identity. Every other error class surfaces unchanged;
// retrying those is the caller's policy, not this layer's.
func (s *Service) withQuotaRotation(ctx context.Context, name string, op func(*yt.Service) error) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return &OpError{Op: name, Err: err}
	}

	err = op(client)
	if err == nil || !isQuotaExceeded(err) {
		if err != nil {
			return &OpError{Op: name, Err: err}
		}
		return nil
	}

	log.Printf("youtube: quota exceeded during %s, rotating credential", name)
	if !s.rotator.MarkQuotaExceeded() {
		return &OpError{Op: name, Err: ErrAllKeysExhausted}
	}
	s.dropClient()

	client, err = s.ensureClient(ctx)
	if err != nil {
		return &OpError{Op: name, Err: err}
	}
	if err := op(client); err != nil {
		return &OpError{Op: name, Err: err}
	}
	return nil
}

// wait paces an API call; upload media transfer itself is not limited.
func (s *Service) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// UploadRequest describes a fresh video upload.
type UploadRequest struct {
	FilePath          string
	Title             string
	Description       string
	Tags              []string
	CategoryID        int
	Privacy           string
	MadeForKids       bool
	NotifySubscribers bool
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	VideoID string
	URL     string
	Title   string
}

// ProgressFunc receives upload progress in percent [0,100], once per
// transferred chunk.
type ProgressFunc func(percent float64)

// Upload performs a resumable chunked upload, reporting progress per chunk.
func (s *Service) Upload(ctx context.Context, req UploadRequest, progress ProgressFunc) (*UploadResult, error) {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, &OpError{Op: "upload", Err: err}
	}
	totalBytes := info.Size()

	var result *UploadResult
	err = s.withQuotaRotation(ctx, "upload", func(client *yt.Service) error {
		if err := s.wait(ctx); err != nil {
			return err
		}

		f, err := os.Open(req.FilePath)
		if err != nil {
			return err
		}
		defer f.Close()

		video := &yt.Video{
			Snippet: &yt.VideoSnippet{
				Title:       truncate(req.Title, 100),
				Description: truncate(req.Description, 5000),
				Tags:        req.Tags,
				CategoryId:  strconv.Itoa(req.CategoryID),
			},
			Status: &yt.VideoStatus{
				PrivacyStatus:           req.Privacy,
				SelfDeclaredMadeForKids: req.MadeForKids,
				ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
			},
		}

		call := client.Videos.Insert([]string{"snippet", "status"}, video).
			NotifySubscribers(req.NotifySubscribers).
			Media(f, googleapi.ChunkSize(s.opts.ChunkSize)).
			Context(ctx)

		if progress != nil {
			call = call.ProgressUpdater(func(current, total int64) {
				size := total
				if size <= 0 {
					size = totalBytes
				}
				if size > 0 {
					progress(float64(current) / float64(size) * 100)
				}
			})
		}

		resp, err := call.Do()
		if err != nil {
			return err
		}

		result = &UploadResult{
			VideoID: resp.Id,
			URL:     WatchURL(resp.Id),
			Title:   req.Title,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(100)
	}
	log.Printf("youtube: uploaded %s -> %s", req.FilePath, result.URL)
	return result, nil
}

// UpdateRequest describes a metadata update of an existing video. Nil
// pointers leave the remote value untouched.
type UpdateRequest struct {
	VideoID     string
	Title       *string
	Description *string
	Tags        []string
	CategoryID  *int
	Privacy     *string
}

// Update fetches the video's current snippet, applies the requested fields
// and writes it back.
func (s *Service) Update(ctx context.Context, req UpdateRequest) error {
	return s.withQuotaRotation(ctx, "update", func(client *yt.Service) error {
		if err := s.wait(ctx); err != nil {
			return err
		}

		current, err := client.Videos.List([]string{"snippet", "status"}).
			Id(req.VideoID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(current.Items) == 0 {
			return ErrVideoNotFound
		}

		video := current.Items[0]
		if req.Title != nil {
			video.Snippet.Title = truncate(*req.Title, 100)
		}
		if req.Description != nil {
			video.Snippet.Description = truncate(*req.Description, 5000)
		}
		if req.Tags != nil {
			video.Snippet.Tags = req.Tags
		}
		if req.CategoryID != nil {
			video.Snippet.CategoryId = strconv.Itoa(*req.CategoryID)
		}
		if req.Privacy != nil {
			video.Status.PrivacyStatus = *req.Privacy
		}

		if err := s.wait(ctx); err != nil {
			return err
		}
		_, err = client.Videos.Update([]string{"snippet", "status"}, video).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		log.Printf("youtube: updated video %s", req.VideoID)
		return nil
	})
}

// RemoteVideo is one video observed on the channel.
type RemoteVideo struct {
	VideoID     string
	URL         string
	Title       string
	Description string
	PublishedAt string
}

// ListChannelVideos pages through the authenticated channel's uploads
// playlist, returning at most maxResults videos.
func (s *Service) ListChannelVideos(ctx context.Context, maxResults int) ([]RemoteVideo, error) {
	var videos []RemoteVideo

	err := s.withQuotaRotation(ctx, "list", func(client *yt.Service) error {
		videos = videos[:0]

		if err := s.wait(ctx); err != nil {
			return err
		}
		channels, err := client.Channels.List([]string{"contentDetails"}).
			Mine(true).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(channels.Items) == 0 {
			return ErrChannelNotFound
		}
		uploadsID := channels.Items[0].ContentDetails.RelatedPlaylists.Uploads

		pageToken := ""
		for len(videos) < maxResults {
			if err := s.wait(ctx); err != nil {
				return err
			}
			page, err := client.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(uploadsID).
				MaxResults(int64(min(50, maxResults-len(videos)))).
				PageToken(pageToken).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}

			for _, item := range page.Items {
				id := item.ContentDetails.VideoId
				v := RemoteVideo{VideoID: id, URL: WatchURL(id)}
				if item.Snippet != nil {
					v.Title = item.Snippet.Title
					v.Description = item.Snippet.Description
					v.PublishedAt = item.Snippet.PublishedAt
				}
				videos = append(videos, v)
			}

			pageToken = page.NextPageToken
			if pageToken == "" {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("youtube: listed %d channel videos", len(videos))
	return videos, nil
}

// SearchByTitle searches the authenticated channel's videos by title.
func (s *Service) SearchByTitle(ctx context.Context, query string, maxResults int64) ([]RemoteVideo, error) {
	var videos []RemoteVideo

	err := s.withQuotaRotation(ctx, "search", func(client *yt.Service) error {
		videos = videos[:0]

		if err := s.wait(ctx); err != nil {
			return err
		}
		resp, err := client.Search.List([]string{"snippet"}).
			ForMine(true).
			Type("video").
			Q(query).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" {
				continue
			}
			v := RemoteVideo{VideoID: item.Id.VideoId, URL: WatchURL(item.Id.VideoId)}
			if item.Snippet != nil {
				v.Title = item.Snippet.Title
				v.Description = item.Snippet.Description
				v.PublishedAt = item.Snippet.PublishedAt
			}
			videos = append(videos, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return videos, nil
}

// RemotePlaylist is one playlist on the channel.
type RemotePlaylist struct {
	PlaylistID  string
	Title       string
	Description string
	Privacy     string
	VideoCount  int64
}

// ListPlaylists returns the authenticated channel's playlists.
func (s *Service) ListPlaylists(ctx context.Context, maxResults int) ([]RemotePlaylist, error) {
	var playlists []RemotePlaylist

	err := s.withQuotaRotation(ctx, "list playlists", func(client *yt.Service) error {
		playlists = playlists[:0]

		pageToken := ""
		for len(playlists) < maxResults {
			if err := s.wait(ctx); err != nil {
				return err
			}
			page, err := client.Playlists.List([]string{"snippet", "contentDetails", "status"}).
				Mine(true).
				MaxResults(int64(min(50, maxResults-len(playlists)))).
				PageToken(pageToken).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}

			for _, item := range page.Items {
				pl := RemotePlaylist{
					PlaylistID: item.Id,
				}
				if item.Snippet != nil {
					pl.Title = item.Snippet.Title
					pl.Description = item.Snippet.Description
				}
				if item.ContentDetails != nil {
					pl.VideoCount = item.ContentDetails.ItemCount
				}
				if item.Status != nil {
					pl.Privacy = item.Status.PrivacyStatus
				}
				playlists = append(playlists, pl)
			}

			pageToken = page.NextPageToken
			if pageToken == "" {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// CreatePlaylist creates a playlist on the channel.
func (s *Service) CreatePlaylist(ctx context.Context, title, description, privacy string) (*RemotePlaylist, error) {
	if privacy == "" {
		privacy = "public"
	}

	var created *RemotePlaylist
	err := s.withQuotaRotation(ctx, "create playlist", func(client *yt.Service) error {
		if err := s.wait(ctx); err != nil {
			return err
		}
		resp, err := client.Playlists.Insert([]string{"snippet", "status"}, &yt.Playlist{
			Snippet: &yt.PlaylistSnippet{Title: title, Description: description},
			Status:  &yt.PlaylistStatus{PrivacyStatus: privacy},
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		created = &RemotePlaylist{
			PlaylistID:  resp.Id,
			Title:       title,
			Description: description,
			Privacy:     privacy,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("youtube: created playlist %q (%s)", title, created.PlaylistID)
	return created, nil
}

// AddToPlaylist inserts a video into a playlist. An "already present"
// conflict counts as success.
func (s *Service) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	return s.withQuotaRotation(ctx, "playlist add", func(client *yt.Service) error {
		if err := s.wait(ctx); err != nil {
			return err
		}
		_, err := client.PlaylistItems.Insert([]string{"snippet"}, &yt.PlaylistItem{
			Snippet: &yt.PlaylistItemSnippet{
				PlaylistId: playlistID,
				ResourceId: &yt.ResourceId{
					Kind:    "youtube#video",
					VideoId: videoID,
				},
			},
		}).Context(ctx).Do()

		if isConflict(err) {
			log.Printf("youtube: video %s already in playlist %s", videoID, playlistID)
			return nil
		}
		return err
	})
}

// GetOrCreatePlaylist finds a playlist by title (case-insensitive) or
// creates it.
func (s *Service) GetOrCreatePlaylist(ctx context.Context, title, description string) (string, error) {
	playlists, err := s.ListPlaylists(ctx, 200)
	if err != nil {
		return "", err
	}
	for _, pl := range playlists {
		if strings.EqualFold(pl.Title, title) {
			return pl.PlaylistID, nil
		}
	}

	created, err := s.CreatePlaylist(ctx, title, description, "public")
	if err != nil {
		return "", err
	}
	return created.PlaylistID, nil
}

// WatchURL builds the public watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

// truncate caps s at max characters. Byte slicing would split Thai text
// mid-rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
