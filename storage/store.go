package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/idev006/MTYoutubeAutoPost/task"
)

// Store is the SQLite-backed state store. Writes are serialized with a
// mutex: SQLite allows a single writer, and every write here belongs to the
// one active session.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", Err: err}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", Err: err}
	}

	if err := db.AutoMigrate(
		&UploadSession{},
		&Product{},
		&Video{},
		&ChannelVideo{},
		&Playlist{},
	); err != nil {
		return nil, &StorageError{Op: "migrate", Entity: "store", Err: err}
	}

	log.Printf("storage: database ready at %s", path)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Sessions ---

// CreateSession inserts a new pending session and returns its ID.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &UploadSession{
		SessionID: uuid.NewString(),
		Status:    SessionPending,
		StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return "", &StorageError{Op: "create", Entity: "session", Err: err}
	}
	log.Printf("storage: created upload session %s", sess.SessionID)
	return sess.SessionID, nil
}

// SetSessionStatus updates a session's status, stamping completed_at for
// terminal completion.
func (s *Store) SetSessionStatus(ctx context.Context, sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := map[string]any{"status": status}
	if status == SessionCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	res := s.db.WithContext(ctx).Model(&UploadSession{}).
		Where("session_id = ?", sessionID).
		Updates(updates)
	if res.Error != nil {
		return &StorageError{Op: "update", Entity: "session", ID: sessionID, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &StorageError{Op: "update", Entity: "session", ID: sessionID, Err: ErrNotFound}
	}
	return nil
}

// UpdateSessionStats writes the aggregate counters for a session.
func (s *Store) UpdateSessionStats(ctx context.Context, sessionID string, uploaded, updated, failed, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&UploadSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"uploaded_count": uploaded,
			"updated_count":  updated,
			"failed_count":   failed,
			"skipped_count":  skipped,
		})
	if res.Error != nil {
		return &StorageError{Op: "update", Entity: "session", ID: sessionID, Err: res.Error}
	}
	return nil
}

// GetSession fetches a session by its session ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*UploadSession, error) {
	var sess UploadSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StorageError{Op: "read", Entity: "session", ID: sessionID, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "session", ID: sessionID, Err: err}
	}
	return &sess, nil
}

// ResumableSession returns the session ID of the most recently started
// session still in a non-terminal status. ErrNotFound when there is none.
func (s *Store) ResumableSession(ctx context.Context) (string, error) {
	var sess UploadSession
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{SessionPending, SessionRunning, SessionPaused}).
		Order("started_at DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &StorageError{Op: "read", Entity: "session", Err: err}
	}
	return sess.SessionID, nil
}

// --- Task state ---

// SaveTaskState upserts the product and video rows mirroring a task.
// Called on every status transition.
func (s *Store) SaveTaskState(ctx context.Context, t *task.VideoTask) error {
	if t.ProdCode == "" {
		return &StorageError{Op: "save", Entity: "video", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.upsertProduct(tx, t)
		if err != nil {
			return err
		}
		return s.upsertVideo(tx, product.ID, t)
	})
}

func (s *Store) upsertProduct(tx *gorm.DB, t *task.VideoTask) (*Product, error) {
	var product Product
	err := tx.Where("prod_code = ?", t.ProdCode).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = Product{
			ProdCode:       t.ProdCode,
			ProdName:       t.ProdName,
			ProdShortDescr: t.ProdShortDescr,
			ProdLongDescr:  t.ProdLongDescr,
			ProdTags:       marshalJSON(t.ProdTags),
			CategoryID:     t.CategoryID,
			PlaylistID:     t.PlaylistID,
			PlaylistName:   t.PlaylistName,
			AffURLs:        marshalJSON(t.AffURLs),
			DiscountCode:   t.DiscountCode,
		}
		if err := tx.Create(&product).Error; err != nil {
			return nil, &StorageError{Op: "create", Entity: "product", ID: t.ProdCode, Err: err}
		}
		return &product, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "product", ID: t.ProdCode, Err: err}
	}
	return &product, nil
}

func (s *Store) upsertVideo(tx *gorm.DB, productID uint, t *task.VideoTask) error {
	var video Video
	err := tx.Where("product_id = ? AND episode = ?", productID, t.Episode).First(&video).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		video = Video{
			ProductID:       productID,
			Filename:        t.Filename,
			FilePath:        t.FilePath,
			FileSize:        t.FileSize,
			VideoType:       t.VideoType,
			DurationSeconds: t.DurationSeconds,
			Episode:         t.Episode,
			YouTubeVideoID:  t.YouTubeVideoID,
			YouTubeURL:      t.YouTubeURL,
			YouTubeTitle:    t.YouTubeTitle,
			Status:          string(t.Status),
			Progress:        t.Progress,
			ErrorMessage:    t.ErrorMessage,
			RetryCount:      t.RetryCount,
		}
		if t.Status == task.StatusCompleted {
			now := time.Now()
			video.UploadedAt = &now
		}
		if err := tx.Create(&video).Error; err != nil {
			return &StorageError{Op: "create", Entity: "video", ID: t.String(), Err: err}
		}
		return nil
	}
	if err != nil {
		return &StorageError{Op: "read", Entity: "video", ID: t.String(), Err: err}
	}

	// Identity (product, episode) never changes; only run state does.
	updates := map[string]any{
		"status":           string(t.Status),
		"progress":         t.Progress,
		"youtube_video_id": t.YouTubeVideoID,
		"youtube_url":      t.YouTubeURL,
		"youtube_title":    t.YouTubeTitle,
		"error_message":    t.ErrorMessage,
		"retry_count":      t.RetryCount,
	}
	if t.Status == task.StatusCompleted {
		now := time.Now()
		updates["uploaded_at"] = &now
	}
	if err := tx.Model(&video).Updates(updates).Error; err != nil {
		return &StorageError{Op: "update", Entity: "video", ID: t.String(), Err: err}
	}
	return nil
}

// PendingTask is the recovery view of one non-completed video row joined
// with its product.
type PendingTask struct {
	ProdCode       string
	ProdName       string
	ProdShortDescr string
	ProdLongDescr  string
	ProdTags       []string
	CategoryID     int
	Filename       string
	FilePath       string
	FileSize       int64
	VideoType      string
	Episode        int
	Status         string
	RetryCount     int
	ErrorMessage   string
}

// PendingTasks returns every video row not yet completed, joined with its
// product, for crash recovery.
func (s *Store) PendingTasks(ctx context.Context) ([]PendingTask, error) {
	var videos []Video
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{
			string(task.StatusPending),
			string(task.StatusUploading),
			string(task.StatusFailed),
		}).
		Order("id ASC").
		Find(&videos).Error
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "video", Err: err}
	}

	out := make([]PendingTask, 0, len(videos))
	for _, v := range videos {
		var product Product
		if err := s.db.WithContext(ctx).First(&product, v.ProductID).Error; err != nil {
			// Orphan row; skip rather than abort the whole recovery.
			log.Printf("storage: video %d references missing product %d", v.ID, v.ProductID)
			continue
		}
		out = append(out, PendingTask{
			ProdCode:       product.ProdCode,
			ProdName:       product.ProdName,
			ProdShortDescr: product.ProdShortDescr,
			ProdLongDescr:  product.ProdLongDescr,
			ProdTags:       unmarshalStrings(product.ProdTags),
			CategoryID:     product.CategoryID,
			Filename:       v.Filename,
			FilePath:       v.FilePath,
			FileSize:       v.FileSize,
			VideoType:      v.VideoType,
			Episode:        v.Episode,
			Status:         v.Status,
			RetryCount:     v.RetryCount,
			ErrorMessage:   v.ErrorMessage,
		})
	}
	return out, nil
}

// --- Duplicate cache ---

// LookupChannelVideo returns the cached channel video for a (prod code,
// episode) pair, or ErrNotFound.
func (s *Store) LookupChannelVideo(ctx context.Context, prodCode string, episode int) (*ChannelVideo, error) {
	var cv ChannelVideo
	err := s.db.WithContext(ctx).
		Where("prod_code = ? AND episode = ?", prodCode, episode).
		First(&cv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "channel_video", ID: fmt.Sprintf("%s ep.%d", prodCode, episode), Err: err}
	}
	return &cv, nil
}

// UpsertChannelVideo inserts or refreshes a duplicate-cache row keyed by
// YouTube video ID. Returns true when a new row was inserted.
func (s *Store) UpsertChannelVideo(ctx context.Context, cv *ChannelVideo) (bool, error) {
	if cv.YouTubeVideoID == "" {
		return false, &StorageError{Op: "save", Entity: "channel_video", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing ChannelVideo
	err := s.db.WithContext(ctx).
		Where("youtube_video_id = ?", cv.YouTubeVideoID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		cv.LastSyncedAt = time.Now()
		if err := s.db.WithContext(ctx).Create(cv).Error; err != nil {
			return false, &StorageError{Op: "create", Entity: "channel_video", ID: cv.YouTubeVideoID, Err: err}
		}
		return true, nil
	}
	if err != nil {
		return false, &StorageError{Op: "read", Entity: "channel_video", ID: cv.YouTubeVideoID, Err: err}
	}

	updates := map[string]any{
		"title":          cv.Title,
		"description":    cv.Description,
		"last_synced_at": time.Now(),
	}
	// A parsed identity wins over a blank one from an earlier sync.
	if cv.ProdCode != "" {
		updates["prod_code"] = cv.ProdCode
		updates["episode"] = cv.Episode
	}
	if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return false, &StorageError{Op: "update", Entity: "channel_video", ID: cv.YouTubeVideoID, Err: err}
	}
	return false, nil
}

// --- Playlist cache ---

// PlaylistByTitle returns the cached playlist with the given title,
// case-insensitively, or ErrNotFound.
func (s *Store) PlaylistByTitle(ctx context.Context, title string) (*Playlist, error) {
	var pl Playlist
	err := s.db.WithContext(ctx).
		Where("LOWER(title) = LOWER(?)", title).
		First(&pl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "playlist", ID: title, Err: err}
	}
	return &pl, nil
}

// SavePlaylist inserts or refreshes a playlist cache row.
func (s *Store) SavePlaylist(ctx context.Context, pl *Playlist) error {
	if pl.YouTubePlaylistID == "" {
		return &StorageError{Op: "save", Entity: "playlist", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing Playlist
	err := s.db.WithContext(ctx).
		Where("youtube_playlist_id = ?", pl.YouTubePlaylistID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		pl.LastSyncedAt = time.Now()
		if err := s.db.WithContext(ctx).Create(pl).Error; err != nil {
			return &StorageError{Op: "create", Entity: "playlist", ID: pl.YouTubePlaylistID, Err: err}
		}
		return nil
	}
	if err != nil {
		return &StorageError{Op: "read", Entity: "playlist", ID: pl.YouTubePlaylistID, Err: err}
	}

	return s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"title":          pl.Title,
		"description":    pl.Description,
		"privacy":        pl.Privacy,
		"video_count":    pl.VideoCount,
		"last_synced_at": time.Now(),
	}).Error
}

// --- helpers ---

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
