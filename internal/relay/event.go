package relay

// Event is a chat message delivered to peers.
type Event struct {
	// From is the sending peer id. It never leaves the relay.
	From string
	Text string
}

// RelayError wraps a wire error code and human-readable message.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

func relayError(code, msg string) *RelayError {
	return &RelayError{Code: code, Message: msg}
}
