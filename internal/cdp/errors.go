package cdp

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnectFailed wraps a failure to establish the websocket.
	ErrConnectFailed = errors.New("devtools connect failed")

	// ErrClosed is returned by sends attempted after the transport closed.
	ErrClosed = errors.New("transport closed")

	// ErrConnectionClosed settles every command and wait that was still
	// outstanding when the connection went away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrWaitTimeout is returned when a wait primitive's deadline elapses.
	ErrWaitTimeout = errors.New("wait timed out")
)

// RemoteError is a structured rejection the peer returned for one specific
// command. It reaches only that command's caller, never other subscribers.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error [%d]: %s", e.Code, e.Message)
}

// IsConnectionError reports whether err means the transport is unusable,
// as opposed to a per-command rejection or an elapsed wait.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectFailed) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrConnectionClosed)
}

// IsTimeout reports whether err came from an elapsed wait deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrWaitTimeout) || errors.Is(err, context.DeadlineExceeded)
}
