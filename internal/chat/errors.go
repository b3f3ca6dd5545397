package chat

import "errors"

var (
	// ErrMalformedPayload marks an inbound chat message whose payload is not
	// a string. Such payloads are logged and never displayed.
	ErrMalformedPayload = errors.New("malformed chat message payload")
	// ErrClientClosed is returned by operations issued after Close or after
	// the event loop stopped.
	ErrClientClosed = errors.New("chat client closed")
)
