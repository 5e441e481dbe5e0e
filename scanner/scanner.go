// Package scanner discovers product folders on disk. A product folder holds
// one prod.json and one or more video files; episodes are assigned from the
// alphabetical order of the video filenames.
package scanner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/idev006/MTYoutubeAutoPost/task"
)

const prodJSONFilename = "prod.json"

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

var thumbnailExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Video is a video file discovered inside a product folder.
type Video struct {
	Filename string
	FilePath string
	FileSize int64
	Episode  int
}

// Folder is the result of scanning one product folder. Errors collects
// validation problems; a folder with any is not uploadable.
type Folder struct {
	FolderPath string
	FolderName string

	HasProdJSON  bool
	ProdJSONPath string
	Prod         *task.ProdJSON

	Videos        []Video
	ThumbnailPath string

	Errors []string
}

// Valid reports whether the folder can produce upload tasks.
func (f *Folder) Valid() bool {
	return f.HasProdJSON && f.Prod != nil && len(f.Videos) > 0
}

// ProdCode returns the folder's product code, empty when prod.json is
// missing or unparseable.
func (f *Folder) ProdCode() string {
	if f.Prod == nil {
		return ""
	}
	return f.Prod.ProdDetail.ProdCode
}

// ScanFolder inspects a single product folder: reads prod.json, lists video
// files in filename order and picks a thumbnail candidate.
func ScanFolder(path string) *Folder {
	f := &Folder{
		FolderPath: path,
		FolderName: filepath.Base(path),
	}

	info, err := os.Stat(path)
	if err != nil {
		f.Errors = append(f.Errors, "folder does not exist")
		return f
	}
	if !info.IsDir() {
		f.Errors = append(f.Errors, "path is not a directory")
		return f
	}

	prodPath := filepath.Join(path, prodJSONFilename)
	if data, err := os.ReadFile(prodPath); err == nil {
		f.HasProdJSON = true
		f.ProdJSONPath = prodPath
		prod, perr := task.ParseProdJSON(data)
		if perr != nil {
			f.Errors = append(f.Errors, perr.Error())
		} else {
			f.Prod = prod
		}
	} else {
		f.Errors = append(f.Errors, "no prod.json found")
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		f.Errors = append(f.Errors, fmt.Sprintf("read folder: %v", err))
		return f
	}

	var videoNames []string
	thumbNamed := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if videoExtensions[ext] {
			videoNames = append(videoNames, e.Name())
			continue
		}
		if thumbnailExtensions[ext] && !thumbNamed {
			stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			if strings.Contains(strings.ToLower(stem), "thumb") {
				f.ThumbnailPath = filepath.Join(path, e.Name())
				thumbNamed = true
			} else if f.ThumbnailPath == "" {
				f.ThumbnailPath = filepath.Join(path, e.Name())
			}
		}
	}

	// Filename order decides episode numbering, so keep it stable and
	// case-insensitive.
	sort.Slice(videoNames, func(i, j int) bool {
		return strings.ToLower(videoNames[i]) < strings.ToLower(videoNames[j])
	})

	for i, name := range videoNames {
		full := filepath.Join(path, name)
		var size int64
		if st, err := os.Stat(full); err == nil {
			size = st.Size()
		}
		f.Videos = append(f.Videos, Video{
			Filename: name,
			FilePath: full,
			FileSize: size,
			Episode:  i + 1,
		})
	}

	if len(f.Videos) == 0 {
		f.Errors = append(f.Errors, "no video files found")
	}

	if f.Valid() {
		log.Printf("scanner: %s: %d videos, prod_code %s", f.FolderName, len(f.Videos), f.ProdCode())
	} else {
		log.Printf("scanner: %s invalid: %s", f.FolderName, strings.Join(f.Errors, "; "))
	}
	return f
}

// ScanFolders scans each path in order.
func ScanFolders(paths []string) []*Folder {
	folders := make([]*Folder, 0, len(paths))
	for _, p := range paths {
		folders = append(folders, ScanFolder(p))
	}
	return folders
}

// ScanParent scans every immediate subdirectory of parent.
func ScanParent(parent string) ([]*Folder, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, fmt.Errorf("scanner: read parent %s: %w", parent, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			paths = append(paths, filepath.Join(parent, e.Name()))
		}
	}
	return ScanFolders(paths), nil
}

// ValidFolders filters to folders that can produce tasks.
func ValidFolders(folders []*Folder) []*Folder {
	var valid []*Folder
	for _, f := range folders {
		if f.Valid() {
			valid = append(valid, f)
		}
	}
	return valid
}

// BuildTasks turns a valid folder into one pending upload task per video.
// The action starts as upload; duplicate checking may later flip it to
// update.
func BuildTasks(f *Folder, sessionID string) []*task.VideoTask {
	if !f.Valid() {
		return nil
	}

	prod := f.Prod.ProdDetail
	aff := f.Prod.AffDetail
	cfg := f.Prod.UploadConfig

	tasks := make([]*task.VideoTask, 0, len(f.Videos))
	for _, v := range f.Videos {
		t := &task.VideoTask{
			TaskID:    uuid.New().String(),
			SessionID: sessionID,

			ProdCode:       prod.ProdCode,
			ProdName:       prod.ProdName,
			ProdShortDescr: prod.ProdShortDescr,
			ProdLongDescr:  prod.ProdLongDescr,
			ProdTags:       prod.ProdTags,
			CategoryID:     prod.CategoryID,
			Privacy:        prod.Privacy,

			Filename:  v.Filename,
			FilePath:  v.FilePath,
			FileSize:  v.FileSize,
			VideoType: "video",
			Episode:   v.Episode,

			AffURLs:      aff.URLsList,
			DiscountCode: aff.DiscountCode,

			MadeForKids:       cfg.MadeForKids,
			NotifySubscribers: cfg.NotifySubscribers,

			Status: task.StatusPending,
			Action: task.ActionUpload,
		}
		if f.Prod.Playlist != nil {
			t.PlaylistID = f.Prod.Playlist.PlaylistID
			t.PlaylistName = f.Prod.Playlist.PlaylistName
			t.CreatePlaylist = f.Prod.Playlist.CreateIfNotExists
		}
		tasks = append(tasks, t)
	}
	return tasks
}
