package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned for empty or blank player names.
	ErrInvalidName = errors.New("ledger: player name is required")

	// ErrInvalidDelta is returned when a delta would decrease a counter.
	ErrInvalidDelta = errors.New("ledger: delta components must be non-negative")

	// ErrRemoteDisabled is returned by remote reads when no remote store is configured.
	ErrRemoteDisabled = errors.New("ledger: remote store not configured")
)

// RemoteError wraps a failed call against the remote store. Remote failures
// are transient by contract: they are never retried and never roll back the
// local cache.
type RemoteError struct {
	Op   string
	Name string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("ledger: remote %s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("ledger: remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err came from the remote store.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
