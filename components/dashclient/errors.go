package dashclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Local precondition errors. These are detected before any network call and
// never carry side effects.
var (
	ErrPasswordsDoNotMatch = errors.New("dashclient: passwords do not match")
	ErrMissingFile         = errors.New("dashclient: upload requires a file")
	ErrUploadInFlight      = errors.New("dashclient: an upload is already in progress")
	ErrUnknownUpload       = errors.New("dashclient: upload id not present in history")
	ErrNotAuthenticated    = errors.New("dashclient: no active session")
)

// APIError is the normalized shape of every HTTP failure surfaced by the
// gateway adapter. Field-keyed validation messages are preserved so callers
// can render per-field guidance; Flatten is available when a single string
// is all the display needs.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dashclient: api error (%d): %s", e.Status, e.Message)
	}
	if flat := e.Flatten(); flat != "" {
		return fmt.Sprintf("dashclient: api error (%d): %s", e.Status, flat)
	}
	return fmt.Sprintf("dashclient: api error (%d)", e.Status)
}

// Flatten joins field messages into one display string, fields in stable
// order. Mirrors what the web UI does before rendering a banner.
func (e *APIError) Flatten() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, e.Fields[k]...)
	}
	return strings.Join(parts, " ")
}

// IsAuthError reports whether err represents a rejected or expired
// credential. On any protected call this is the session-invalidation
// signal.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized
}

// IsServerError reports whether err is a 5xx-class failure.
func IsServerError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusInternalServerError
}
