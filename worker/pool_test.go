package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idev006/MTYoutubeAutoPost/retry"
	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/youtube"
)

// fakeService counts calls and can be programmed to fail or stall.
type fakeService struct {
	mu          sync.Mutex
	uploads     []string // titles in upload order
	updates     []string // video ids
	uploadErrs  map[string]error // keyed by file path, consumed one call at a time
	uploadDelay time.Duration
	uploadPanic bool

	playlistCalls int32
	addedTo       []string

	started chan string // receives file path when an upload begins, if set
}

func (f *fakeService) Upload(ctx context.Context, req youtube.UploadRequest, progress youtube.ProgressFunc) (*youtube.UploadResult, error) {
	if f.started != nil {
		f.started <- req.FilePath
	}
	if f.uploadPanic {
		panic("exploded")
	}
	if f.uploadDelay > 0 {
		time.Sleep(f.uploadDelay)
	}

	f.mu.Lock()
	if err, ok := f.uploadErrs[req.FilePath]; ok && err != nil {
		delete(f.uploadErrs, req.FilePath)
		f.mu.Unlock()
		return nil, err
	}
	f.uploads = append(f.uploads, req.Title)
	n := len(f.uploads)
	f.mu.Unlock()

	if progress != nil {
		progress(100)
	}
	id := fmt.Sprintf("vid-%d", n)
	return &youtube.UploadResult{VideoID: id, URL: youtube.WatchURL(id), Title: req.Title}, nil
}

func (f *fakeService) Update(ctx context.Context, req youtube.UpdateRequest) error {
	f.mu.Lock()
	f.updates = append(f.updates, req.VideoID)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) GetOrCreatePlaylist(ctx context.Context, title, description string) (string, error) {
	atomic.AddInt32(&f.playlistCalls, 1)
	return "pl-" + title, nil
}

func (f *fakeService) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	f.mu.Lock()
	f.addedTo = append(f.addedTo, playlistID)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// fakePlaylists is an in-memory PlaylistCache.
type fakePlaylists struct {
	mu    sync.Mutex
	byKey map[string]string
	saves int
}

func (f *fakePlaylists) PlaylistByTitle(ctx context.Context, title string) (*storage.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byKey[title]; ok {
		return &storage.Playlist{YouTubePlaylistID: id, Title: title}, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakePlaylists) SavePlaylist(ctx context.Context, pl *storage.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byKey == nil {
		f.byKey = map[string]string{}
	}
	f.byKey[pl.Title] = pl.YouTubePlaylistID
	f.saves++
	return nil
}

// recorder collects pool events thread-safely.
type recorder struct {
	mu           sync.Mutex
	completed    []string
	failed       map[string]string
	allCompleted int32
}

func newRecorder() *recorder { return &recorder{failed: map[string]string{}} }

func (r *recorder) events() Events {
	return Events{
		OnTaskCompleted: func(taskID, videoID, videoURL string) {
			r.mu.Lock()
			r.completed = append(r.completed, taskID)
			r.mu.Unlock()
		},
		OnTaskFailed: func(taskID, message string) {
			r.mu.Lock()
			r.failed[taskID] = message
			r.mu.Unlock()
		},
		OnAllCompleted: func() { atomic.AddInt32(&r.allCompleted, 1) },
	}
}

func (r *recorder) counts() (completed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed), len(r.failed)
}

func testConfig(workers int) Config {
	return Config{
		WorkerCount: workers,
		DelayFrom:   0,
		DelayTo:     0,
		Retry:       retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFraction: 0},
	}
}

func makeTasks(n int) []*task.VideoTask {
	tasks := make([]*task.VideoTask, n)
	for i := range tasks {
		tasks[i] = &task.VideoTask{
			TaskID:   fmt.Sprintf("t-%d", i),
			ProdCode: "P1",
			Episode:  i + 1,
			FilePath: fmt.Sprintf("/v/%d.mp4", i),
			Status:   task.StatusPending,
			Action:   task.ActionUpload,
		}
	}
	return tasks
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPool_AllCompletedFiresExactlyOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 5} {
		svc := &fakeService{}
		rec := newRecorder()
		p := NewPool(Deps{Service: svc}, testConfig(workers), rec.events())
		defer p.StopAll()

		p.AddTasks(makeTasks(8))
		p.StartWorkers(context.Background())

		waitFor(t, "all tasks done", func() bool {
			c, _ := rec.counts()
			return c == 8
		})
		// Give a straggling duplicate signal a chance to fire before checking.
		time.Sleep(100 * time.Millisecond)
		if got := atomic.LoadInt32(&rec.allCompleted); got != 1 {
			t.Errorf("workers=%d: allCompleted fired %d times, want 1", workers, got)
		}
		p.StopAll()
	}
}

func TestPool_EachTaskProcessedOnce(t *testing.T) {
	svc := &fakeService{}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(4), rec.events())
	defer p.StopAll()

	p.AddTasks(makeTasks(10))
	p.StartWorkers(context.Background())

	waitFor(t, "completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := map[string]int{}
	for _, id := range rec.completed {
		seen[id]++
	}
	if len(seen) != 10 {
		t.Fatalf("completed %d distinct tasks, want 10", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s completed %d times", id, n)
		}
	}
}

func TestPool_WorkerCountClamped(t *testing.T) {
	p := NewPool(Deps{Service: &fakeService{}}, testConfig(9), Events{})
	p.StartWorkers(context.Background())
	defer p.StopAll()

	if got := p.Status().WorkerCount; got != 5 {
		t.Errorf("worker count = %d, want 5", got)
	}
}

func TestPool_StartWorkersIdempotent(t *testing.T) {
	p := NewPool(Deps{Service: &fakeService{}}, testConfig(2), Events{})
	ctx := context.Background()
	p.StartWorkers(ctx)
	defer p.StopAll()
	p.StartWorkers(ctx)

	if got := p.Status().WorkerCount; got != 2 {
		t.Errorf("worker count after double start = %d, want 2", got)
	}
}

func TestPool_FailureIsTerminalAndCounted(t *testing.T) {
	svc := &fakeService{uploadErrs: map[string]error{
		"/v/0.mp4": errors.New("invalid video file"),
	}}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())
	defer p.StopAll()

	p.AddTasks(makeTasks(2))
	p.StartWorkers(context.Background())

	waitFor(t, "completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	completed, failed := rec.counts()
	if completed != 1 || failed != 1 {
		t.Errorf("completed=%d failed=%d, want 1 and 1", completed, failed)
	}
	rec.mu.Lock()
	msg := rec.failed["t-0"]
	rec.mu.Unlock()
	if msg == "" {
		t.Error("failed task carries no error message")
	}
	st := p.Status()
	if st.Completed != 1 || st.Failed != 1 || st.Remaining != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestPool_TransientErrorRetriedThenSucceeds(t *testing.T) {
	svc := &fakeService{uploadErrs: map[string]error{
		"/v/0.mp4": errors.New("connection reset by peer"),
	}}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())
	defer p.StopAll()

	tasks := makeTasks(1)
	p.AddTasks(tasks)
	p.StartWorkers(context.Background())

	waitFor(t, "completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	completed, failed := rec.counts()
	if completed != 1 || failed != 0 {
		t.Fatalf("completed=%d failed=%d, want retried success", completed, failed)
	}
	if tasks[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", tasks[0].RetryCount)
	}
}

func TestPool_PermanentErrorNotRetried(t *testing.T) {
	svc := &fakeService{uploadErrs: map[string]error{
		"/v/0.mp4": errors.New("403 permission denied"),
	}}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())
	defer p.StopAll()

	tasks := makeTasks(1)
	p.AddTasks(tasks)
	p.StartWorkers(context.Background())

	waitFor(t, "completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	if _, failed := rec.counts(); failed != 1 {
		t.Fatal("expected one failure")
	}
	if tasks[0].RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 for a permanent error", tasks[0].RetryCount)
	}
}

func TestPool_PauseStopsDistributionUntilResume(t *testing.T) {
	svc := &fakeService{}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(2), rec.events())
	defer p.StopAll()

	p.StartWorkers(context.Background())
	p.PauseAll()
	p.AddTasks(makeTasks(3))

	time.Sleep(300 * time.Millisecond)
	if n := svc.uploadCount(); n != 0 {
		t.Fatalf("uploads while paused = %d, want 0", n)
	}

	p.ResumeAll()
	waitFor(t, "completion after resume", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})
}

func TestPool_PauseThenStopDuringDelayNeverUploads(t *testing.T) {
	svc := &fakeService{}
	rec := newRecorder()
	cfg := testConfig(1)
	cfg.DelayFrom = time.Hour // park the worker in the anti-throttle delay
	cfg.DelayTo = time.Hour
	p := NewPool(Deps{Service: svc}, cfg, rec.events())

	p.AddTask(makeTasks(1)[0])
	p.StartWorkers(context.Background())

	time.Sleep(100 * time.Millisecond) // let the worker enter the delay
	p.PauseAll()
	p.StopAll()

	if n := svc.uploadCount(); n != 0 {
		t.Errorf("uploads = %d, want 0 when stopped mid-delay", n)
	}
	completed, failed := rec.counts()
	if completed != 0 || failed != 0 {
		t.Errorf("outcomes = %d/%d, want none", completed, failed)
	}
}

func TestPool_StopFinishesInFlightTask(t *testing.T) {
	svc := &fakeService{uploadDelay: 200 * time.Millisecond, started: make(chan string, 1)}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())

	p.AddTasks(makeTasks(2))
	p.StartWorkers(context.Background())

	<-svc.started
	p.StopAll()

	completed, _ := rec.counts()
	if completed != 1 {
		t.Errorf("completed after stop = %d, want the in-flight task finished", completed)
	}
	if st := p.Status(); st.QueueSize != 1 {
		t.Errorf("queue size after stop = %d, want 1 still queued", st.QueueSize)
	}
}

func TestPool_PanicBecomesFailureAndLoopSurvives(t *testing.T) {
	svc := &fakeService{uploadPanic: true}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())
	defer p.StopAll()

	p.AddTask(makeTasks(1)[0])
	p.StartWorkers(context.Background())

	waitFor(t, "panic converted to failure", func() bool {
		_, failed := rec.counts()
		return failed == 1
	})

	// The loop must survive and pick up the next task.
	svc.uploadPanic = false
	next := makeTasks(2)[1]
	p.AddTask(next)
	waitFor(t, "next task after panic", func() bool {
		completed, _ := rec.counts()
		return completed == 1
	})
}

func TestPool_UpdatePathUsesExistingVideo(t *testing.T) {
	svc := &fakeService{}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc}, testConfig(1), rec.events())
	defer p.StopAll()

	vt := makeTasks(1)[0]
	vt.Action = task.ActionUpdate
	vt.ExistingVideoID = "existing"
	p.AddTask(vt)
	p.StartWorkers(context.Background())

	waitFor(t, "update completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.updates) != 1 || svc.updates[0] != "existing" {
		t.Errorf("updates = %v, want [existing]", svc.updates)
	}
	if len(svc.uploads) != 0 {
		t.Errorf("uploads = %v, want none on update path", svc.uploads)
	}
	if vt.YouTubeVideoID != "existing" {
		t.Errorf("YouTubeVideoID = %s", vt.YouTubeVideoID)
	}
}

func TestPool_PlaylistResolvedOnceViaCache(t *testing.T) {
	svc := &fakeService{}
	cache := &fakePlaylists{}
	rec := newRecorder()
	p := NewPool(Deps{Service: svc, Playlists: cache}, testConfig(1), rec.events())
	defer p.StopAll()

	tasks := makeTasks(2)
	for _, vt := range tasks {
		vt.PlaylistName = "Shirts"
		vt.CreatePlaylist = true
	}
	p.AddTasks(tasks)
	p.StartWorkers(context.Background())

	waitFor(t, "completion", func() bool {
		return atomic.LoadInt32(&rec.allCompleted) == 1
	})

	if got := atomic.LoadInt32(&svc.playlistCalls); got != 1 {
		t.Errorf("remote playlist resolutions = %d, want 1 (cache hit second time)", got)
	}
	svc.mu.Lock()
	added := len(svc.addedTo)
	svc.mu.Unlock()
	if added != 2 {
		t.Errorf("playlist additions = %d, want 2", added)
	}
}
