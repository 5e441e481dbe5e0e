// Package worker runs the upload pool: a FIFO task queue feeding a fixed set
// of worker loops. Each worker applies a randomized anti-throttling delay,
// drives the remote service and reports outcomes through the pool's event
// callbacks. The pool owns completion detection: the all-completed event
// fires exactly once, after every submitted task has a terminal outcome.
package worker

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/idev006/MTYoutubeAutoPost/retry"
	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/youtube"
)

const (
	// idlePoll is how often an idle worker checks for a handed task.
	idlePoll = 100 * time.Millisecond
	// pausePoll is how often a paused worker re-checks the pause flag.
	pausePoll = 500 * time.Millisecond
	// delaySlice is the granularity of the anti-throttle wait, so pause and
	// stop take effect mid-delay.
	delaySlice = 500 * time.Millisecond
	// joinTimeout bounds how long StopAll waits for each worker to finish
	// its current task.
	joinTimeout = 5 * time.Second
)

// VideoService is the slice of the remote service the pool drives. The
// concrete *youtube.Service satisfies it.
type VideoService interface {
	Upload(ctx context.Context, req youtube.UploadRequest, progress youtube.ProgressFunc) (*youtube.UploadResult, error)
	Update(ctx context.Context, req youtube.UpdateRequest) error
	GetOrCreatePlaylist(ctx context.Context, title, description string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// Registrar records a finished upload in the duplicate cache. The concrete
// *dupcheck.Checker satisfies it.
type Registrar interface {
	Register(ctx context.Context, t *task.VideoTask, title, description string) error
}

// PlaylistCache avoids a remote playlist lookup when the name was resolved
// before. The concrete *storage.Store satisfies it.
type PlaylistCache interface {
	PlaylistByTitle(ctx context.Context, title string) (*storage.Playlist, error)
	SavePlaylist(ctx context.Context, pl *storage.Playlist) error
}

// Events carries the pool's outcome callbacks. Nil fields are skipped.
// Callbacks run on worker goroutines and must be safe for concurrent use.
// The consumer owns task state: the pool reports outcomes by task ID and
// never writes a task's status, progress or error fields itself.
type Events struct {
	OnProgress      func(taskID string, percent float64)
	OnTaskCompleted func(taskID, videoID, videoURL string)
	OnTaskFailed    func(taskID, message string)
	OnStatusChanged func(taskID string, status task.Status)
	OnAllCompleted  func()
}

// Config holds the pool's tunables.
type Config struct {
	// WorkerCount is clamped to 1-5.
	WorkerCount int
	// DelayFrom and DelayTo bound the per-task anti-throttle delay.
	DelayFrom time.Duration
	DelayTo   time.Duration
	// Retry governs per-call retries inside a worker.
	Retry retry.Config
}

// Deps bundles the collaborators a pool drives. Registrar and Playlists may
// be nil; the corresponding steps are then skipped.
type Deps struct {
	Service   VideoService
	Registrar Registrar
	Playlists PlaylistCache
}

// Pool is the task queue plus its workers.
type Pool struct {
	deps   Deps
	cfg    Config
	events Events

	run    atomic.Bool
	paused atomic.Bool

	mu       sync.Mutex
	queue    []*task.VideoTask
	workers  []*uploadWorker
	total    int
	done     int
	failed   int
	signaled bool
}

// NewPool builds a pool. Workers are not started until StartWorkers.
func NewPool(deps Deps, cfg Config, events Events) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.WorkerCount > 5 {
		cfg.WorkerCount = 5
	}
	if cfg.DelayTo < cfg.DelayFrom {
		cfg.DelayTo = cfg.DelayFrom
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Pool{deps: deps, cfg: cfg, events: events}
}

// AddTask appends a task to the queue.
func (p *Pool) AddTask(t *task.VideoTask) {
	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.total++
	p.signaled = false
	p.mu.Unlock()
	log.Printf("worker: task queued: %s", t)
	p.distribute()
}

// AddTasks appends tasks in order.
func (p *Pool) AddTasks(tasks []*task.VideoTask) {
	for _, t := range tasks {
		p.AddTask(t)
	}
	log.Printf("worker: %d tasks queued", len(tasks))
}

// ClearQueue drops all queued tasks and resets the counters. Tasks already
// handed to a worker are unaffected.
func (p *Pool) ClearQueue() {
	p.mu.Lock()
	p.queue = nil
	p.total = 0
	p.done = 0
	p.failed = 0
	p.mu.Unlock()
	log.Printf("worker: queue cleared")
}

// StartWorkers launches the configured number of worker loops and hands out
// the first tasks. Calling while already running is a no-op.
func (p *Pool) StartWorkers(ctx context.Context) {
	if !p.run.CompareAndSwap(false, true) {
		log.Printf("worker: workers already running")
		return
	}
	p.paused.Store(false)

	p.mu.Lock()
	p.workers = p.workers[:0]
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := &uploadWorker{id: i + 1, pool: p, done: make(chan struct{})}
		p.workers = append(p.workers, w)
	}
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		go w.loop(ctx)
	}
	log.Printf("worker: started %d workers", len(workers))

	p.distribute()
}

// StopAll signals every worker to exit after its current task and waits for
// each with a bounded timeout. Queued tasks stay queued.
func (p *Pool) StopAll() {
	if !p.run.CompareAndSwap(true, false) {
		return
	}

	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	for _, w := range workers {
		select {
		case <-w.done:
		case <-time.After(joinTimeout):
			log.Printf("worker: worker %d did not stop in time", w.id)
		}
	}
	log.Printf("worker: all workers stopped")
}

// PauseAll suspends idle polling and pre-task delays. In-flight network
// calls run to completion.
func (p *Pool) PauseAll() {
	p.paused.Store(true)
	log.Printf("worker: all workers paused")
}

// ResumeAll clears the pause flag and hands queued tasks to idle workers.
func (p *Pool) ResumeAll() {
	p.paused.Store(false)
	log.Printf("worker: all workers resumed")
	p.distribute()
}

// Running reports whether the worker loops are active.
func (p *Pool) Running() bool { return p.run.Load() }

// Paused reports whether the pause flag is set.
func (p *Pool) Paused() bool { return p.paused.Load() }

// PoolStatus is a snapshot of the pool's counters.
type PoolStatus struct {
	Running     bool
	WorkerCount int
	QueueSize   int
	Total       int
	Completed   int
	Failed      int
	Remaining   int
}

// Status returns a consistent snapshot.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStatus{
		Running:     p.run.Load(),
		WorkerCount: len(p.workers),
		QueueSize:   len(p.queue),
		Total:       p.total,
		Completed:   p.done,
		Failed:      p.failed,
		Remaining:   p.total - p.done - p.failed,
	}
}

// distribute hands queued tasks to idle workers in worker-id order. Paused
// or stopped pools hand out nothing; ResumeAll re-triggers.
func (p *Pool) distribute() {
	if !p.run.Load() || p.paused.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if len(p.queue) == 0 {
			break
		}
		if w.busy() {
			continue
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		w.setTask(t)
	}
}

func (p *Pool) randomDelay() time.Duration {
	from, to := p.cfg.DelayFrom, p.cfg.DelayTo
	if to <= from {
		return from
	}
	return from + time.Duration(rand.Int63n(int64(to-from)+1))
}

// The outcome helpers below only count and emit. Task status and progress
// are mutated by the event consumer under its own lock; several workers
// report outcomes at once and the pool holds no lock over task fields.

func (p *Pool) progress(t *task.VideoTask, percent float64) {
	if p.events.OnProgress != nil {
		p.events.OnProgress(t.TaskID, percent)
	}
}

func (p *Pool) statusChanged(t *task.VideoTask, status task.Status) {
	if p.events.OnStatusChanged != nil {
		p.events.OnStatusChanged(t.TaskID, status)
	}
}

func (p *Pool) taskCompleted(t *task.VideoTask, videoID, videoURL string) {
	p.mu.Lock()
	p.done++
	p.mu.Unlock()

	if p.events.OnTaskCompleted != nil {
		p.events.OnTaskCompleted(t.TaskID, videoID, videoURL)
	}
	p.afterOutcome()
}

func (p *Pool) taskFailed(t *task.VideoTask, message string) {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()

	if p.events.OnTaskFailed != nil {
		p.events.OnTaskFailed(t.TaskID, message)
	}
	p.afterOutcome()
}

// afterOutcome re-checks completion after every terminal outcome so the
// all-completed event fires exactly once, and otherwise keeps tasks flowing.
func (p *Pool) afterOutcome() {
	p.mu.Lock()
	remaining := p.total - p.done - p.failed
	fire := remaining <= 0 && len(p.queue) == 0 && !p.signaled
	if fire {
		p.signaled = true
	}
	p.mu.Unlock()

	if fire {
		if p.events.OnAllCompleted != nil {
			p.events.OnAllCompleted()
		}
		return
	}
	p.distribute()
}
