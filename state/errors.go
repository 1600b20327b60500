package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for provider operations. Every operation returns these as
// values; no provider panics on ordinary input errors.
var (
	ErrNotFound            = errors.New("variable not found")
	ErrAlreadyExists       = errors.New("variable already registered")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidExportFormat = errors.New("invalid export format")
	ErrWatchUnsupported    = errors.New("watch not supported by backend")
)

// PartialFailureError reports a batch update where some entries succeeded
// and some failed. Successfully validated entries are committed and stay
// committed; there is no rollback. Errors is keyed by the identifier the
// caller passed.
type PartialFailureError struct {
	Errors map[string]error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("batch update partially failed: %s", formatErrorMap(e.Errors))
}

// ImportError reports the entries that failed state import. Entries imported
// before a failure are not rolled back; callers needing all-or-nothing
// semantics must compare variable counts before and after.
type ImportError struct {
	Failed map[string]error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed: %s", formatErrorMap(e.Failed))
}

func formatErrorMap(m map[string]error) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return strings.Join(parts, "; ")
}
