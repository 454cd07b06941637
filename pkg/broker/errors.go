package broker

import (
	"errors"

	"github.com/entrhq/browsermcp/pkg/transport"
)

// Transport sentinels, re-exported so callers only need this package.
var (
	ErrNotConnected       = transport.ErrNotConnected
	ErrConnectionReplaced = transport.ErrConnectionReplaced
	ErrConnectionLost     = transport.ErrConnectionLost
)

var (
	// ErrTimeout settles a call whose reply did not arrive before its deadline.
	ErrTimeout = errors.New("broker: timed out waiting for executor reply")

	// ErrCancelled settles a call removed by Cancel or by its caller's context.
	ErrCancelled = errors.New("broker: call cancelled")

	// ErrNoFreeID is returned when every correlation id is pending.
	ErrNoFreeID = errors.New("broker: no free correlation id")
)

// RemoteError is a reply that carried an error field. Error returns the
// executor's message unchanged.
type RemoteError struct {
	ID      int64
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
