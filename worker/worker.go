package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/idev006/MTYoutubeAutoPost/retry"
	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/template"
	"github.com/idev006/MTYoutubeAutoPost/youtube"
)

// uploadWorker is one sequential execution loop. It holds at most one task,
// handed to it by the pool's distributor.
type uploadWorker struct {
	id   int
	pool *Pool
	done chan struct{}

	mu   sync.Mutex
	task *task.VideoTask
}

func (w *uploadWorker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.task != nil
}

func (w *uploadWorker) setTask(t *task.VideoTask) {
	w.mu.Lock()
	w.task = t
	w.mu.Unlock()
}

func (w *uploadWorker) takeTask() *task.VideoTask {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.task
	w.task = nil
	return t
}

// loop runs until the pool is stopped. Stop takes precedence over pause.
func (w *uploadWorker) loop(ctx context.Context) {
	defer close(w.done)
	log.Printf("worker %d: started", w.id)

	for w.pool.run.Load() {
		if w.pool.paused.Load() {
			time.Sleep(pausePoll)
			continue
		}

		t := w.takeTask()
		if t == nil {
			time.Sleep(idlePoll)
			continue
		}
		w.process(ctx, t)
	}

	log.Printf("worker %d: stopped", w.id)
}

// wait sleeps for d in sub-second slices, returning false if the pool was
// stopped meanwhile. Pause stretches the wait without consuming it.
func (w *uploadWorker) wait(d time.Duration) bool {
	var elapsed time.Duration
	for elapsed < d {
		if !w.pool.run.Load() {
			return false
		}
		if w.pool.paused.Load() {
			time.Sleep(pausePoll)
			continue
		}
		slice := delaySlice
		if remaining := d - elapsed; remaining < slice {
			slice = remaining
		}
		time.Sleep(slice)
		elapsed += slice
	}
	return w.pool.run.Load()
}

// process runs one task end to end. A panic inside task processing is
// converted into a failure outcome so the loop survives.
func (w *uploadWorker) process(ctx context.Context, t *task.VideoTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker %d: panic processing %s: %v", w.id, t, r)
			w.pool.taskFailed(t, fmt.Sprintf("internal error: %v", r))
		}
	}()

	delay := w.pool.randomDelay()
	log.Printf("worker %d: waiting %s before %s", w.id, delay, t)
	if !w.wait(delay) {
		// Stopped before the task began; leave it for recovery.
		return
	}

	w.pool.statusChanged(t, task.StatusUploading)

	title := template.GenerateTitleFromTask(t)
	description := template.GenerateDescriptionFromTask(t)
	tags := template.GenerateTags(t.ProdTags, nil)

	if t.Action == task.ActionUpdate && t.ExistingVideoID != "" {
		w.updateVideo(ctx, t, title, description, tags)
	} else {
		w.uploadVideo(ctx, t, title, description, tags)
	}
}

func (w *uploadWorker) uploadVideo(ctx context.Context, t *task.VideoTask, title, description string, tags []string) {
	log.Printf("worker %d: uploading %s", w.id, t.Filename)

	req := youtube.UploadRequest{
		FilePath:          t.FilePath,
		Title:             title,
		Description:       description,
		Tags:              tags,
		CategoryID:        t.CategoryID,
		Privacy:           t.Privacy,
		MadeForKids:       t.MadeForKids,
		NotifySubscribers: t.NotifySubscribers,
	}

	var result *youtube.UploadResult
	err := w.callWithRetry(t, func() error {
		var err error
		result, err = w.pool.deps.Service.Upload(ctx, req, func(percent float64) {
			w.pool.progress(t, percent)
		})
		return err
	})
	if err != nil {
		log.Printf("worker %d: upload failed: %v", w.id, err)
		w.pool.taskFailed(t, err.Error())
		return
	}

	t.YouTubeVideoID = result.VideoID
	t.YouTubeURL = result.URL
	t.YouTubeTitle = result.Title

	if w.pool.deps.Registrar != nil {
		if err := w.pool.deps.Registrar.Register(ctx, t, title, description); err != nil {
			log.Printf("worker %d: register in duplicate cache: %v", w.id, err)
		}
	}

	if t.PlaylistID != "" || t.PlaylistName != "" {
		w.addToPlaylist(ctx, t, result.VideoID)
	}

	log.Printf("worker %d: upload complete: %s", w.id, result.URL)
	w.pool.taskCompleted(t, result.VideoID, result.URL)
}

func (w *uploadWorker) updateVideo(ctx context.Context, t *task.VideoTask, title, description string, tags []string) {
	log.Printf("worker %d: updating %s", w.id, t.ExistingVideoID)

	req := youtube.UpdateRequest{
		VideoID:     t.ExistingVideoID,
		Title:       &title,
		Description: &description,
		Tags:        tags,
		CategoryID:  &t.CategoryID,
	}

	err := w.callWithRetry(t, func() error {
		return w.pool.deps.Service.Update(ctx, req)
	})
	if err != nil {
		log.Printf("worker %d: update failed: %v", w.id, err)
		w.pool.taskFailed(t, err.Error())
		return
	}

	videoURL := youtube.WatchURL(t.ExistingVideoID)
	t.YouTubeVideoID = t.ExistingVideoID
	t.YouTubeURL = videoURL
	t.YouTubeTitle = title
	if t.PlaylistID != "" || t.PlaylistName != "" {
		w.addToPlaylist(ctx, t, t.ExistingVideoID)
	}

	log.Printf("worker %d: update complete: %s", w.id, videoURL)
	w.pool.taskCompleted(t, t.ExistingVideoID, videoURL)
}

// callWithRetry retries fn on transient errors, tracking attempts in the
// task's retry counter and backing off between attempts. The backoff wait is
// interruptible like the anti-throttle delay.
func (w *uploadWorker) callWithRetry(t *task.VideoTask, fn func() error) error {
	cfg := w.pool.cfg.Retry
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !retry.MessageClassifier(err) {
			return err
		}
		if !retry.ShouldRetry(t.RetryCount, cfg.MaxRetries) {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		d := retry.Delay(t.RetryCount, cfg.BaseDelay)
		t.RetryCount++
		log.Printf("worker %d: retry %d/%d for %s in %s: %v",
			w.id, t.RetryCount, cfg.MaxRetries, t, d, err)
		if !w.wait(d) {
			return err
		}
	}
}

// addToPlaylist resolves the target playlist, preferring the local cache
// over a remote lookup, and adds the video. Playlist failures are logged,
// never fatal to the task.
func (w *uploadWorker) addToPlaylist(ctx context.Context, t *task.VideoTask, videoID string) {
	playlistID := t.PlaylistID

	if playlistID == "" && t.PlaylistName != "" && t.CreatePlaylist {
		playlistID = w.resolvePlaylist(ctx, t.PlaylistName)
	}
	if playlistID == "" {
		return
	}

	if err := w.pool.deps.Service.AddToPlaylist(ctx, playlistID, videoID); err != nil {
		log.Printf("worker %d: add %s to playlist %s: %v", w.id, videoID, playlistID, err)
	}
}

func (w *uploadWorker) resolvePlaylist(ctx context.Context, name string) string {
	if cache := w.pool.deps.Playlists; cache != nil {
		if pl, err := cache.PlaylistByTitle(ctx, name); err == nil {
			return pl.YouTubePlaylistID
		}
	}

	id, err := w.pool.deps.Service.GetOrCreatePlaylist(ctx, name, "")
	if err != nil {
		log.Printf("worker %d: resolve playlist %q: %v", w.id, name, err)
		return ""
	}

	if cache := w.pool.deps.Playlists; cache != nil {
		err := cache.SavePlaylist(ctx, &storage.Playlist{
			YouTubePlaylistID: id,
			Title:             name,
		})
		if err != nil {
			log.Printf("worker %d: cache playlist %q: %v", w.id, name, err)
		}
	}
	return id
}
