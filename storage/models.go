package storage

import "time"

// Session status values.
const (
	SessionPending   = "pending"
	SessionRunning   = "running"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// UploadSession is one run of the pipeline over a set of folders.
// Terminal states are completed and cancelled; rows are never deleted.
type UploadSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"uniqueIndex;not null"`

	// Statistics
	TotalVideos   int
	UploadedCount int
	UpdatedCount  int
	FailedCount   int
	SkippedCount  int

	Status string `gorm:"default:pending"`

	StartedAt   time.Time
	CompletedAt *time.Time
}

// TableName maps UploadSession to the upload_sessions table.
func (UploadSession) TableName() string { return "upload_sessions" }

// Product is the durable product row, keyed by its unique prod code.
type Product struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ProdCode       string `gorm:"uniqueIndex;not null"`
	ProdName       string `gorm:"not null"`
	ProdShortDescr string
	ProdLongDescr  string
	ProdTags       string // JSON array
	CategoryID     int    `gorm:"default:22"`
	PlaylistID     string
	PlaylistName   string

	// Affiliate
	AffURLs      string // JSON array
	DiscountCode string

	SourceFolder string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Videos []Video `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName maps Product to the products table.
func (Product) TableName() string { return "products" }

// Video is the durable mirror of one VideoTask, keyed by (product, episode).
// Identity never changes after creation; only status, progress, error and
// retry fields mutate. Any row not in status completed is pending work for
// crash recovery.
type Video struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	ProductID uint `gorm:"index;not null"`

	// File info
	Filename        string `gorm:"not null"`
	FilePath        string `gorm:"not null"`
	FileSize        int64
	VideoType       string // "video" or "short"
	DurationSeconds float64
	Episode         int `gorm:"default:1"`

	// YouTube. GORM would split these as you_tube_*, so the column names
	// are pinned explicitly.
	YouTubeVideoID string `gorm:"column:youtube_video_id;index"`
	YouTubeURL     string `gorm:"column:youtube_url"`
	YouTubeTitle   string `gorm:"column:youtube_title"`

	// Status
	Status       string  `gorm:"index;default:pending"`
	Progress     float64 `gorm:"default:0"`
	ErrorMessage string
	RetryCount   int `gorm:"default:0"`

	CreatedAt  time.Time
	UploadedAt *time.Time
}

// TableName maps Video to the videos table.
func (Video) TableName() string { return "videos" }

// ChannelVideo is one duplicate-cache row: a known (prod code, episode) pair
// observed on the remote channel. Existence here means "update, don't
// re-upload". Populated by channel sync, by direct search hits, and by
// successful fresh uploads.
type ChannelVideo struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	YouTubeVideoID string `gorm:"column:youtube_video_id;uniqueIndex;not null"`
	YouTubeURL     string `gorm:"column:youtube_url;index;not null"`

	ProdCode string `gorm:"index:idx_channel_prod_episode;not null"`
	Episode  int    `gorm:"index:idx_channel_prod_episode;default:1"`

	Title       string
	Description string
	Tags        string // JSON array
	Privacy     string
	PlaylistID  string
	AffURLs     string // JSON array

	VideoType       string
	DurationSeconds float64
	ViewCount       int64

	UploadedAt    string
	LastSyncedAt  time.Time
	LastUpdatedAt *time.Time
}

// TableName maps ChannelVideo to the youtube_channel_videos table.
func (ChannelVideo) TableName() string { return "youtube_channel_videos" }

// Playlist caches a channel playlist for name lookups.
type Playlist struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	YouTubePlaylistID string `gorm:"column:youtube_playlist_id;uniqueIndex;not null"`
	Title             string `gorm:"not null"`
	Description       string
	Privacy           string `gorm:"default:public"`
	VideoCount        int

	CreatedAt    time.Time
	LastSyncedAt time.Time
}

// TableName maps Playlist to the playlists table.
func (Playlist) TableName() string { return "playlists" }
