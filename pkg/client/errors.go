package client

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrDaemonNotRunning means the daemon socket does not exist.
	ErrDaemonNotRunning = errors.New("acpibatt daemon not running")

	// ErrPermissionDenied means the socket exists but the caller may not
	// connect to it.
	ErrPermissionDenied = errors.New("permission denied on daemon socket")

	// ErrNotFound is returned for an unknown battery slot or route.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the daemon cannot act in its current
	// state, such as skipping a refresh when none is scheduled.
	ErrConflict = errors.New("conflict")
)

// statusError turns a non-2xx daemon response into an error. Known
// statuses wrap one of the sentinels above.
func statusError(code int, body string) error {
	switch code {
	case http.StatusNotFound:
		return pkgerrors.Wrap(ErrNotFound, body)
	case http.StatusConflict:
		return pkgerrors.Wrap(ErrConflict, body)
	default:
		return fmt.Errorf("got %d: %s", code, body)
	}
}
