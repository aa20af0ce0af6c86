package relay

import "errors"

var (
	// ErrDuplicateID is returned when a connection is registered under an id
	// that is already live. The existing entry is left untouched.
	ErrDuplicateID = errors.New("relay: duplicate connection id")

	// ErrRelayClosed is returned by Accept once Shutdown has started.
	ErrRelayClosed = errors.New("relay: shutting down")

	// ErrTooManyConnections is returned by Accept when MaxConnections is reached.
	ErrTooManyConnections = errors.New("relay: connection limit reached")

	// ErrClientClosed is returned when enqueueing to a connection that is no longer open.
	ErrClientClosed = errors.New("relay: connection closed")

	// ErrSlowConsumer is returned when a recipient's send queue stayed full for
	// longer than the send timeout.
	ErrSlowConsumer = errors.New("relay: send queue full")
)
