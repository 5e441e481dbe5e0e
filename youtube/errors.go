package youtube

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for remote conditions callers branch on.
var (
	// ErrNotAuthenticated indicates no valid credential could be obtained.
	ErrNotAuthenticated = errors.New("youtube: not authenticated")
	// ErrVideoNotFound indicates the remote video does not exist.
	ErrVideoNotFound = errors.New("youtube: video not found")
	// ErrChannelNotFound indicates no channel exists for the credential.
	ErrChannelNotFound = errors.New("youtube: channel not found")
	// ErrAllKeysExhausted indicates every credential set is out of quota.
	ErrAllKeysExhausted = errors.New("youtube: all api keys exhausted")
)

// OpError wraps a failed remote operation with its name for log and
// task-failure messages.
type OpError struct {
	// Op is the operation that failed ("upload", "update", "search", ...).
	Op string
	// Err is the underlying error.
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// isQuotaExceeded reports whether err is the 403 quota-exhaustion response
// that should trigger credential rotation, as opposed to a 403 permission
// failure.
func isQuotaExceeded(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code != 403 {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "quotaExceeded" || item.Reason == "dailyLimitExceeded" {
			return true
		}
	}
	return strings.Contains(apiErr.Message, "quota")
}
