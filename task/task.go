// Package task defines the unit-of-work data model shared by the scanner,
// worker pool, orchestrator, and state store.
package task

import "fmt"

// Status is the lifecycle state of a VideoTask.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Action distinguishes a fresh upload from a metadata refresh of an
// existing remote video.
type Action string

const (
	ActionUpload Action = "upload"
	ActionUpdate Action = "update"
)

// AffiliateURL is a single affiliate link rendered into the description.
type AffiliateURL struct {
	Label     string `json:"label"`
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
}

// VideoTask is one video's upload-or-update unit of work. It is created by
// task building (scanner + prod.json) or reconstructed from the state store
// during crash recovery, and mutated only by the worker pool (progress,
// status) and the orchestrator (persisted copies).
type VideoTask struct {
	// Identification
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`

	// Product info
	ProdCode       string   `json:"prod_code"`
	ProdName       string   `json:"prod_name"`
	ProdShortDescr string   `json:"prod_short_descr"`
	ProdLongDescr  string   `json:"prod_long_descr"`
	ProdTags       []string `json:"prod_tags"`
	CategoryID     int      `json:"category_id"`
	Privacy        string   `json:"privacy"`

	// Video file
	Filename        string  `json:"filename"`
	FilePath        string  `json:"file_path"`
	FileSize        int64   `json:"file_size"`
	VideoType       string  `json:"video_type"` // "video" or "short"
	DurationSeconds float64 `json:"duration_seconds"`
	Episode         int     `json:"episode"`

	// Affiliate
	AffURLs      []AffiliateURL `json:"aff_urls"`
	DiscountCode string         `json:"discount_code,omitempty"`

	// Playlist
	PlaylistID     string `json:"playlist_id,omitempty"`
	PlaylistName   string `json:"playlist_name,omitempty"`
	CreatePlaylist bool   `json:"create_playlist"`

	// Upload settings
	MadeForKids       bool `json:"made_for_kids"`
	NotifySubscribers bool `json:"notify_subscribers"`

	// Status
	Status       Status  `json:"status"`
	Progress     float64 `json:"progress"` // 0-100
	RetryCount   int     `json:"retry_count"`
	ErrorMessage string  `json:"error_message,omitempty"`

	// YouTube result
	YouTubeVideoID string `json:"youtube_video_id,omitempty"`
	YouTubeURL     string `json:"youtube_url,omitempty"`
	YouTubeTitle   string `json:"youtube_title,omitempty"`

	// Action
	Action          Action `json:"action"`
	ExistingVideoID string `json:"existing_video_id,omitempty"`
}

// PrimaryAffURL returns the primary affiliate URL, falling back to the first
// entry. Empty string when the task carries no affiliate links.
func (t *VideoTask) PrimaryAffURL() string {
	for _, u := range t.AffURLs {
		if u.IsPrimary {
			return u.URL
		}
	}
	if len(t.AffURLs) > 0 {
		return t.AffURLs[0].URL
	}
	return ""
}

// IsTerminal reports whether the task has reached a final outcome.
func (t *VideoTask) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// String identifies the task in log output.
func (t *VideoTask) String() string {
	return fmt.Sprintf("%s ep.%d", t.ProdCode, t.Episode)
}

// DuplicateCheckResult reports whether a (prod code, episode) pair already
// exists on the channel, and where.
type DuplicateCheckResult struct {
	Exists         bool
	ProdCode       string
	Episode        int
	YouTubeVideoID string
	YouTubeURL     string
	Title          string
}
