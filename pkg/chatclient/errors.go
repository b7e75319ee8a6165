package chatclient

import (
	"errors"
	"fmt"
)

// User-facing failures of a chat turn. The messages are shown verbatim.
var (
	ErrRateLimited    = errors.New("Rate limit exceeded. Please wait a moment and try again.")
	ErrQuotaExhausted = errors.New("AI credits exhausted. Please add credits to continue.")
	ErrTurnInProgress = errors.New("a reply is still streaming")
	ErrEmptyMessage   = errors.New("message is empty")
)

// ConnectionError reports a transport failure talking to the chat endpoint.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to chat service failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RequestError is a non-retryable error response from the chat endpoint.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}
