// Package orchestrator is the top-level controller: it builds the task list
// from scanned folders, drives the worker pool through start/pause/resume/
// stop, mirrors every task transition into the state store and rebuilds
// pending work from that store after an abnormal termination.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/idev006/MTYoutubeAutoPost/scanner"
	"github.com/idev006/MTYoutubeAutoPost/storage"
	"github.com/idev006/MTYoutubeAutoPost/task"
	"github.com/idev006/MTYoutubeAutoPost/worker"
)

// DuplicateChecker decides whether a product code and episode already exist
// on the channel. The concrete *dupcheck.Checker satisfies it.
type DuplicateChecker interface {
	Check(ctx context.Context, prodCode string, episode int) (task.DuplicateCheckResult, error)
}

// Events carries the orchestrator's lifecycle callbacks. Nil fields are
// skipped. Outcome callbacks run on worker goroutines.
type Events struct {
	OnStarted   func()
	OnPaused    func()
	OnResumed   func()
	OnStopped   func()
	OnCompleted func()

	OnProgress          func(total, completed, failed int)
	OnTaskProgress      func(taskID string, percent float64)
	OnTaskStatusChanged func(taskID string, status task.Status)
}

// Orchestrator owns one upload session at a time.
type Orchestrator struct {
	store   *storage.Store
	checker DuplicateChecker
	events  Events
	pool    *worker.Pool

	mu        sync.Mutex
	sessionID string
	tasks     []*task.VideoTask
	running   bool
	paused    bool
}

// New builds an orchestrator. The worker pool is constructed here so its
// outcome events feed the orchestrator's persistence hooks. checker may be
// nil, in which case every task takes the upload path.
func New(store *storage.Store, deps worker.Deps, cfg worker.Config, checker DuplicateChecker, events Events) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		checker: checker,
		events:  events,
	}
	o.pool = worker.NewPool(deps, cfg, worker.Events{
		OnProgress:      o.onTaskProgress,
		OnTaskCompleted: o.onTaskCompleted,
		OnTaskFailed:    o.onTaskFailed,
		OnStatusChanged: o.onStatusChanged,
		OnAllCompleted:  o.onAllCompleted,
	})
	return o
}

// SessionID returns the active session's id, empty when none.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Running reports whether processing is active (paused counts as running).
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Paused reports whether processing is paused.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// TaskCount returns the size of the current task list.
func (o *Orchestrator) TaskCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// ProcessFolders scans the given product folders, creates a session, runs
// the duplicate check on every task and persists the initial task states.
// Processing does not start until Start is called.
func (o *Orchestrator) ProcessFolders(ctx context.Context, folderPaths []string) ([]*task.VideoTask, error) {
	sessionID, err := o.store.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.sessionID = sessionID
	o.tasks = nil
	o.mu.Unlock()

	folders := scanner.ValidFolders(scanner.ScanFolders(folderPaths))
	if len(folders) == 0 {
		log.Printf("orchestrator: no valid folders found")
		return nil, nil
	}

	var tasks []*task.VideoTask
	for _, folder := range folders {
		for _, t := range scanner.BuildTasks(folder, sessionID) {
			o.applyDuplicateCheck(ctx, t)
			tasks = append(tasks, t)
			if err := o.store.SaveTaskState(ctx, t); err != nil {
				log.Printf("orchestrator: persist initial state of %s: %v", t, err)
			}
		}
	}

	o.mu.Lock()
	o.tasks = tasks
	o.mu.Unlock()

	log.Printf("orchestrator: prepared %d tasks from %d folders", len(tasks), len(folders))
	return tasks, nil
}

// applyDuplicateCheck flips a task to the update path when its product code
// and episode already exist on the channel. A failed check counts as no
// duplicate; worst case the channel ends up with a second copy to reconcile.
func (o *Orchestrator) applyDuplicateCheck(ctx context.Context, t *task.VideoTask) {
	if o.checker == nil {
		return
	}
	result, err := o.checker.Check(ctx, t.ProdCode, t.Episode)
	if err != nil {
		log.Printf("orchestrator: duplicate check %s: %v", t, err)
		return
	}
	if result.Exists {
		t.Action = task.ActionUpdate
		t.ExistingVideoID = result.YouTubeVideoID
		t.YouTubeURL = result.YouTubeURL
		log.Printf("orchestrator: duplicate found: %s -> update", t)
	} else {
		log.Printf("orchestrator: new video: %s -> upload", t)
	}
}

// Start enqueues the prepared tasks and launches the workers. No-op when
// already running or when there is nothing to do.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		log.Printf("orchestrator: already running")
		return
	}
	if len(o.tasks) == 0 {
		o.mu.Unlock()
		log.Printf("orchestrator: no tasks to process")
		return
	}
	o.running = true
	o.paused = false
	sessionID := o.sessionID
	tasks := o.tasks
	o.mu.Unlock()

	if sessionID != "" {
		if err := o.store.SetSessionStatus(ctx, sessionID, storage.SessionRunning); err != nil {
			log.Printf("orchestrator: mark session running: %v", err)
		}
	}

	o.pool.AddTasks(tasks)
	o.pool.StartWorkers(ctx)

	log.Printf("orchestrator: processing started")
	o.emit(o.events.OnStarted)
}

// Pause suspends the workers. Only valid while running and not yet paused.
func (o *Orchestrator) Pause(ctx context.Context) {
	o.mu.Lock()
	if !o.running || o.paused {
		o.mu.Unlock()
		return
	}
	o.paused = true
	sessionID := o.sessionID
	o.mu.Unlock()

	o.pool.PauseAll()
	if sessionID != "" {
		if err := o.store.SetSessionStatus(ctx, sessionID, storage.SessionPaused); err != nil {
			log.Printf("orchestrator: mark session paused: %v", err)
		}
	}

	log.Printf("orchestrator: processing paused")
	o.emit(o.events.OnPaused)
}

// Resume lifts a pause. Only valid while running and paused.
func (o *Orchestrator) Resume(ctx context.Context) {
	o.mu.Lock()
	if !o.running || !o.paused {
		o.mu.Unlock()
		return
	}
	o.paused = false
	sessionID := o.sessionID
	o.mu.Unlock()

	o.pool.ResumeAll()
	if sessionID != "" {
		if err := o.store.SetSessionStatus(ctx, sessionID, storage.SessionRunning); err != nil {
			log.Printf("orchestrator: mark session running: %v", err)
		}
	}

	log.Printf("orchestrator: processing resumed")
	o.emit(o.events.OnResumed)
}

// Stop halts the workers after their current tasks and cancels the session.
// Valid while running, paused or not.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.paused = false
	sessionID := o.sessionID
	o.mu.Unlock()

	o.pool.StopAll()
	if sessionID != "" {
		if err := o.store.SetSessionStatus(ctx, sessionID, storage.SessionCancelled); err != nil {
			log.Printf("orchestrator: mark session cancelled: %v", err)
		}
	}

	log.Printf("orchestrator: processing stopped")
	o.emit(o.events.OnStopped)
}

// CheckResumableSession returns the most recent non-terminal session id, or
// empty when there is nothing to resume.
func (o *Orchestrator) CheckResumableSession(ctx context.Context) string {
	sessionID, err := o.store.ResumableSession(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("orchestrator: look up resumable session: %v", err)
		}
		return ""
	}
	return sessionID
}

// ResumeFromCrash rebuilds the task list from the most recent interrupted
// session's persisted state. Recovered tasks get fresh task ids, start as
// pending and keep their retry counters. Processing does not start until
// Start is called. Returns false when there is nothing to recover.
func (o *Orchestrator) ResumeFromCrash(ctx context.Context) (bool, error) {
	sessionID, err := o.store.ResumableSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("orchestrator: no session to resume")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pending, err := o.store.PendingTasks(ctx)
	if err != nil {
		return false, err
	}
	if len(pending) == 0 {
		log.Printf("orchestrator: no pending tasks to resume")
		return false, nil
	}

	tasks := make([]*task.VideoTask, 0, len(pending))
	for _, p := range pending {
		tasks = append(tasks, &task.VideoTask{
			TaskID:    uuid.New().String(),
			SessionID: sessionID,

			ProdCode:       p.ProdCode,
			ProdName:       p.ProdName,
			ProdShortDescr: p.ProdShortDescr,
			ProdLongDescr:  p.ProdLongDescr,
			ProdTags:       p.ProdTags,
			CategoryID:     p.CategoryID,
			Privacy:        "public",

			Filename:  p.Filename,
			FilePath:  p.FilePath,
			FileSize:  p.FileSize,
			VideoType: p.VideoType,
			Episode:   p.Episode,

			Status:     task.StatusPending,
			RetryCount: p.RetryCount,
			Action:     task.ActionUpload,
		})
	}

	o.mu.Lock()
	o.sessionID = sessionID
	o.tasks = tasks
	o.mu.Unlock()

	log.Printf("orchestrator: recovered %d tasks from session %s", len(tasks), sessionID)
	return true, nil
}

// Status is a snapshot of the orchestrator and its pool.
type Status struct {
	Running   bool
	Paused    bool
	SessionID string
	Tasks     int
	Pool      worker.PoolStatus
}

// GetStatus returns a consistent snapshot.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	st := Status{
		Running:   o.running,
		Paused:    o.paused,
		SessionID: o.sessionID,
		Tasks:     len(o.tasks),
	}
	o.mu.Unlock()
	st.Pool = o.pool.Status()
	return st
}

// --- pool event handlers ---

func (o *Orchestrator) onTaskProgress(taskID string, percent float64) {
	if o.events.OnTaskProgress != nil {
		o.events.OnTaskProgress(taskID, percent)
	}
}

func (o *Orchestrator) onTaskCompleted(taskID, videoID, videoURL string) {
	ctx := context.Background()
	t := o.applyTask(taskID, func(t *task.VideoTask) {
		t.Status = task.StatusCompleted
		t.Progress = 100
		t.YouTubeVideoID = videoID
		t.YouTubeURL = videoURL
	})
	if t != nil {
		if err := o.store.SaveTaskState(ctx, t); err != nil {
			log.Printf("orchestrator: persist completion of %s: %v", t, err)
		}
	}
	o.updateProgress(ctx)
	o.emitStatus(taskID, task.StatusCompleted)
}

func (o *Orchestrator) onTaskFailed(taskID, message string) {
	ctx := context.Background()
	t := o.applyTask(taskID, func(t *task.VideoTask) {
		t.Status = task.StatusFailed
		t.ErrorMessage = message
	})
	if t != nil {
		if err := o.store.SaveTaskState(ctx, t); err != nil {
			log.Printf("orchestrator: persist failure of %s: %v", t, err)
		}
	}
	o.updateProgress(ctx)
	o.emitStatus(taskID, task.StatusFailed)
}

func (o *Orchestrator) onStatusChanged(taskID string, status task.Status) {
	t := o.applyTask(taskID, func(t *task.VideoTask) {
		t.Status = status
	})
	if t != nil {
		if err := o.store.SaveTaskState(context.Background(), t); err != nil {
			log.Printf("orchestrator: persist status of %s: %v", t, err)
		}
	}
	o.emitStatus(taskID, status)
}

func (o *Orchestrator) onAllCompleted() {
	o.mu.Lock()
	o.running = false
	o.paused = false
	sessionID := o.sessionID
	o.mu.Unlock()

	if sessionID != "" {
		if err := o.store.SetSessionStatus(context.Background(), sessionID, storage.SessionCompleted); err != nil {
			log.Printf("orchestrator: mark session completed: %v", err)
		}
	}

	log.Printf("orchestrator: all tasks completed")
	o.emit(o.events.OnCompleted)
}

// applyTask mutates the identified task under the lock and returns it, or
// nil when unknown. updateProgress reads task statuses under the same lock
// from other workers' callbacks, so status writes must not escape it.
func (o *Orchestrator) applyTask(taskID string, mutate func(*task.VideoTask)) *task.VideoTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tasks {
		if t.TaskID == taskID {
			mutate(t)
			return t
		}
	}
	return nil
}

// updateProgress recomputes the aggregate counters, emits the progress
// event and mirrors the split into the session row.
func (o *Orchestrator) updateProgress(ctx context.Context) {
	o.mu.Lock()
	var completed, failed, uploaded, updated, skipped int
	total := len(o.tasks)
	for _, t := range o.tasks {
		switch t.Status {
		case task.StatusCompleted:
			completed++
			if t.Action == task.ActionUpdate {
				updated++
			} else {
				uploaded++
			}
		case task.StatusFailed:
			failed++
		case task.StatusSkipped:
			skipped++
		}
	}
	sessionID := o.sessionID
	o.mu.Unlock()

	if o.events.OnProgress != nil {
		o.events.OnProgress(total, completed, failed)
	}

	if sessionID != "" {
		err := o.store.UpdateSessionStats(ctx, sessionID, uploaded, updated, failed, skipped)
		if err != nil {
			log.Printf("orchestrator: update session stats: %v", err)
		}
	}
}

func (o *Orchestrator) emitStatus(taskID string, status task.Status) {
	if o.events.OnTaskStatusChanged != nil {
		o.events.OnTaskStatusChanged(taskID, status)
	}
}

func (o *Orchestrator) emit(fn func()) {
	if fn != nil {
		fn()
	}
}
