// Package apikey manages a directory of YouTube API credential sets and
// rotates between them when quota is exhausted.
//
// Credential sets are stored as ytkey_1.json, ytkey_2.json, ... in the config
// directory, each an OAuth client secrets file. Once authenticated, the
// cached token lives next to it as <name>_token.json.
package apikey

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// keyFilePattern matches credential set files in the config directory.
const keyFilePattern = "ytkey_*.json"

// quotaResetHour is the daily quota reset boundary in UTC. YouTube resets
// quota at midnight Pacific, which is 07:00 UTC outside daylight saving.
// Inherited constant; a DST shift makes the rotator reuse a key up to an
// hour early or late.
const quotaResetHour = 7

// CredentialSet is one named API key bundle.
type CredentialSet struct {
	// Name is the file stem, e.g. "ytkey_1".
	Name string
	// Path is the absolute path of the client secrets file.
	Path string
	// Index is the rotation order (lexicographic by filename).
	Index int
}

// TokenPath returns where the cached OAuth token for this set is stored.
func (c CredentialSet) TokenPath() string {
	return filepath.Join(filepath.Dir(c.Path), c.Name+"_token.json")
}

// Rotator tracks the credential sets, the current one, and per-set quota
// exhaustion timestamps. Safe for concurrent use by upload workers.
type Rotator struct {
	dir string

	mu           sync.Mutex
	keys         []CredentialSet
	currentIndex int
	exhausted    map[int]time.Time // index -> when quota ran out
	now          func() time.Time  // stubbed in tests
}

// ErrNoKeys is returned when the credential directory holds no key files.
var ErrNoKeys = fmt.Errorf("apikey: no ytkey_*.json files found")

// NewRotator scans dir for credential files. It does not fail when the
// directory is empty; Current reports ErrNoKeys instead, so the rest of the
// app can start and surface the problem on first use.
func NewRotator(dir string) (*Rotator, error) {
	r := &Rotator{
		dir:       dir,
		exhausted: make(map[int]time.Time),
		now:       time.Now,
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	log.Printf("apikey: loaded %d credential sets from %s", len(r.keys), dir)
	return r, nil
}

// scan reloads the key list from disk. Caller holds no lock on construction;
// Reload takes it.
func (r *Rotator) scan() error {
	paths, err := filepath.Glob(filepath.Join(r.dir, keyFilePattern))
	if err != nil {
		return fmt.Errorf("apikey: scan %s: %w", r.dir, err)
	}
	sort.Strings(paths)

	keys := make([]CredentialSet, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, "_token.json") {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		keys = append(keys, CredentialSet{Name: name, Path: abs, Index: len(keys)})
	}
	r.keys = keys
	if r.currentIndex >= len(r.keys) {
		r.currentIndex = 0
	}
	return nil
}

// Current returns the active credential set.
func (r *Rotator) Current() (CredentialSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return CredentialSet{}, ErrNoKeys
	}
	return r.keys[r.currentIndex], nil
}

// TotalKeys returns the number of loaded credential sets.
func (r *Rotator) TotalKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// AvailableKeys returns the number of sets not currently exhausted.
func (r *Rotator) AvailableKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpired()
	return len(r.keys) - len(r.exhausted)
}

// MarkQuotaExceeded records the current set as exhausted and advances to the
// next non-exhausted set in round-robin order, starting just after the
// current one. It returns false only when every set is exhausted; the
// current set is then left unchanged.
func (r *Rotator) MarkQuotaExceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return false
	}

	r.exhausted[r.currentIndex] = r.now()
	log.Printf("apikey: %s quota exceeded, marked exhausted", r.keys[r.currentIndex].Name)

	return r.switchToNextAvailable()
}

// switchToNextAvailable advances current to the next usable index.
// Caller must hold mu.
func (r *Rotator) switchToNextAvailable() bool {
	r.purgeExpired()

	for i := 0; i < len(r.keys); i++ {
		next := (r.currentIndex + 1 + i) % len(r.keys)
		if _, dead := r.exhausted[next]; !dead {
			r.currentIndex = next
			log.Printf("apikey: switched to %s", r.keys[next].Name)
			return true
		}
	}

	log.Printf("apikey: all %d credential sets exhausted", len(r.keys))
	return false
}

// purgeExpired drops exhaustion records older than the most recent daily
// quota reset boundary. Caller must hold mu.
func (r *Rotator) purgeExpired() {
	now := r.now()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), quotaResetHour, 0, 0, 0, now.Location())
	if now.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}

	for idx, when := range r.exhausted {
		if when.Before(boundary) {
			delete(r.exhausted, idx)
			if idx < len(r.keys) {
				log.Printf("apikey: %s quota reset, available again", r.keys[idx].Name)
			}
		}
	}
}

// ResetAll clears all exhaustion records and returns to the first key.
func (r *Rotator) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = make(map[int]time.Time)
	r.currentIndex = 0
	log.Printf("apikey: all credential sets reset")
}

// Reload re-scans the credential directory. Exhaustion state is kept for
// indices that still exist and dropped for those that no longer do.
func (r *Rotator) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.scan(); err != nil {
		return err
	}
	for idx := range r.exhausted {
		if idx >= len(r.keys) {
			delete(r.exhausted, idx)
		}
	}
	log.Printf("apikey: reloaded, %d credential sets", len(r.keys))
	return nil
}

// KeyStatus describes one credential set for status reporting.
type KeyStatus struct {
	Index       int
	Name        string
	IsCurrent   bool
	IsExhausted bool
	ExhaustedAt time.Time
}

// Status returns a snapshot of every credential set.
func (r *Rotator) Status() []KeyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpired()

	out := make([]KeyStatus, 0, len(r.keys))
	for i, k := range r.keys {
		when, dead := r.exhausted[i]
		out = append(out, KeyStatus{
			Index:       i,
			Name:        k.Name,
			IsCurrent:   i == r.currentIndex,
			IsExhausted: dead,
			ExhaustedAt: when,
		})
	}
	return out
}

// EnsureDir creates the credential directory when missing so a first run can
// tell the user where to drop key files.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
