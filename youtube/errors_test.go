package youtube

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestIsQuotaExceeded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			"quota reason",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}},
			true,
		},
		{
			"daily limit reason",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "dailyLimitExceeded"}}},
			true,
		},
		{
			"quota in message",
			&googleapi.Error{Code: 403, Message: "The request cannot be completed because you have exceeded your quota."},
			true,
		},
		{
			"plain 403 permission",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}},
			false,
		},
		{
			"404",
			&googleapi.Error{Code: 404},
			false,
		},
		{
			"wrapped quota error",
			fmt.Errorf("insert: %w", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}),
			true,
		},
		{
			"non-api error",
			errors.New("connection refused"),
			false,
		},
	}

	for _, tt := range tests {
		if got := isQuotaExceeded(tt.err); got != tt.want {
			t.Errorf("%s: isQuotaExceeded() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsConflict(t *testing.T) {
	if !isConflict(&googleapi.Error{Code: 409}) {
		t.Error("isConflict(409) = false, want true")
	}
	if isConflict(&googleapi.Error{Code: 403}) {
		t.Error("isConflict(403) = true, want false")
	}
	if isConflict(nil) {
		t.Error("isConflict(nil) = true, want false")
	}
}

func TestOpError(t *testing.T) {
	inner := ErrVideoNotFound
	err := &OpError{Op: "update", Err: inner}

	if !errors.Is(err, ErrVideoNotFound) {
		t.Error("errors.Is(OpError, ErrVideoNotFound) = false, want true")
	}
	if got := err.Error(); got != "youtube: update: youtube: video not found" {
		t.Errorf("OpError.Error() = %q", got)
	}
}

func TestWatchURL(t *testing.T) {
	if got := WatchURL("abc"); got != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("WatchURL() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Errorf("truncate() = %q, want %q", got, "hel")
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Errorf("truncate() = %q, want %q", got, "hi")
	}
	// Caps are in characters; Thai text must not be split mid-rune.
	if got := truncate("กขค", 2); got != "กข" {
		t.Errorf("truncate() = %q, want %q", got, "กข")
	}
}
