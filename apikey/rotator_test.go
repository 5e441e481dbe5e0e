package apikey

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestRotator creates a rotator over a temp dir holding n key files.
func newTestRotator(t *testing.T, n int) *Rotator {
	t.Helper()
	dir := t.TempDir()
	writeKeys(t, dir, n)

	r, err := NewRotator(dir)
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}
	return r
}

func writeKeys(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, "ytkey_"+string(rune('0'+i))+".json")
		if err := os.WriteFile(path, []byte(`{"installed":{}}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCurrent_StartsAtFirstKey(t *testing.T) {
	r := newTestRotator(t, 3)

	cur, err := r.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cur.Name != "ytkey_1" || cur.Index != 0 {
		t.Errorf("Current() = %s (index %d), want ytkey_1 (index 0)", cur.Name, cur.Index)
	}
}

func TestCurrent_NoKeys(t *testing.T) {
	r, err := NewRotator(t.TempDir())
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}
	if _, err := r.Current(); err != ErrNoKeys {
		t.Errorf("Current() error = %v, want ErrNoKeys", err)
	}
}

func TestMarkQuotaExceeded_SingleKey(t *testing.T) {
	r := newTestRotator(t, 1)
	before, _ := r.Current()

	if r.MarkQuotaExceeded() {
		t.Error("MarkQuotaExceeded() = true with a single key, want false")
	}

	after, _ := r.Current()
	if after != before {
		t.Errorf("Current() changed from %s to %s, want unchanged", before.Name, after.Name)
	}
}

func TestMarkQuotaExceeded_RotatesThreeKeys(t *testing.T) {
	r := newTestRotator(t, 3)

	if !r.MarkQuotaExceeded() {
		t.Fatal("first MarkQuotaExceeded() = false, want true")
	}
	cur, _ := r.Current()
	if cur.Index != 1 {
		t.Errorf("after first rotation index = %d, want 1", cur.Index)
	}

	if !r.MarkQuotaExceeded() {
		t.Fatal("second MarkQuotaExceeded() = false, want true")
	}
	cur, _ = r.Current()
	if cur.Index != 2 {
		t.Errorf("after second rotation index = %d, want 2", cur.Index)
	}

	// Third rotation has nowhere left to go.
	if r.MarkQuotaExceeded() {
		t.Error("third MarkQuotaExceeded() = true, want false (all exhausted)")
	}
	if r.AvailableKeys() != 0 {
		t.Errorf("AvailableKeys() = %d, want 0", r.AvailableKeys())
	}
}

func TestMarkQuotaExceeded_SkipsExhaustedIndex(t *testing.T) {
	r := newTestRotator(t, 3)

	r.MarkQuotaExceeded() // 0 -> 1
	r.MarkQuotaExceeded() // 1 -> 2
	r.ResetAll()

	// Exhaust index 1 manually, then rotate away from 0: must land on 2.
	r.mu.Lock()
	r.exhausted[1] = r.now()
	r.mu.Unlock()

	if !r.MarkQuotaExceeded() {
		t.Fatal("MarkQuotaExceeded() = false, want true")
	}
	cur, _ := r.Current()
	if cur.Index != 2 {
		t.Errorf("Current().Index = %d, want 2 (skipping exhausted 1)", cur.Index)
	}
}

func TestPurge_AfterResetBoundary(t *testing.T) {
	r := newTestRotator(t, 2)

	// Freeze "now" just after today's reset boundary; the exhaustion was
	// recorded yesterday evening, i.e. before the boundary.
	now := time.Date(2026, 3, 10, quotaResetHour, 30, 0, 0, time.Local)
	r.now = func() time.Time { return now }

	r.mu.Lock()
	r.exhausted[0] = now.Add(-10 * time.Hour)
	r.mu.Unlock()

	if got := r.AvailableKeys(); got != 2 {
		t.Errorf("AvailableKeys() = %d, want 2 (stale exhaustion purged)", got)
	}
}

func TestPurge_BeforeResetBoundary(t *testing.T) {
	r := newTestRotator(t, 2)

	// "Now" is before today's boundary, so the relevant boundary is
	// yesterday's. An exhaustion from two hours ago is still in force.
	now := time.Date(2026, 3, 10, quotaResetHour-2, 0, 0, 0, time.Local)
	r.now = func() time.Time { return now }

	r.mu.Lock()
	r.exhausted[0] = now.Add(-2 * time.Hour)
	r.mu.Unlock()

	if got := r.AvailableKeys(); got != 1 {
		t.Errorf("AvailableKeys() = %d, want 1 (exhaustion still in force)", got)
	}
}

func TestResetAll(t *testing.T) {
	r := newTestRotator(t, 3)
	r.MarkQuotaExceeded()
	r.MarkQuotaExceeded()

	r.ResetAll()

	cur, _ := r.Current()
	if cur.Index != 0 {
		t.Errorf("Current().Index = %d after ResetAll, want 0", cur.Index)
	}
	if r.AvailableKeys() != 3 {
		t.Errorf("AvailableKeys() = %d after ResetAll, want 3", r.AvailableKeys())
	}
}

func TestReload_DropsStaleExhaustion(t *testing.T) {
	dir := t.TempDir()
	writeKeys(t, dir, 3)
	r, err := NewRotator(dir)
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}

	r.MarkQuotaExceeded() // exhausts index 0
	r.mu.Lock()
	r.exhausted[2] = r.now()
	r.mu.Unlock()

	// Remove the third key file and reload.
	if err := os.Remove(filepath.Join(dir, "ytkey_3.json")); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := r.TotalKeys(); got != 2 {
		t.Fatalf("TotalKeys() = %d after reload, want 2", got)
	}
	// Index 0 survives with its exhaustion, index 2 is gone.
	if got := r.AvailableKeys(); got != 1 {
		t.Errorf("AvailableKeys() = %d, want 1", got)
	}
}

func TestStatus(t *testing.T) {
	r := newTestRotator(t, 2)
	r.MarkQuotaExceeded()

	st := r.Status()
	if len(st) != 2 {
		t.Fatalf("Status() returned %d entries, want 2", len(st))
	}
	if !st[0].IsExhausted {
		t.Error("Status()[0].IsExhausted = false, want true")
	}
	if !st[1].IsCurrent {
		t.Error("Status()[1].IsCurrent = false, want true")
	}
	if st[0].ExhaustedAt.IsZero() {
		t.Error("Status()[0].ExhaustedAt is zero, want timestamp")
	}
}

func TestTokenPath(t *testing.T) {
	c := CredentialSet{Name: "ytkey_1", Path: "/tmp/cfg/ytkey_1.json"}
	want := filepath.Join("/tmp/cfg", "ytkey_1_token.json")
	if got := c.TokenPath(); got != want {
		t.Errorf("TokenPath() = %q, want %q", got, want)
	}
}
