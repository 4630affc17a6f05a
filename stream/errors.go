package stream

import (
	"errors"
	"fmt"
)

// Common errors for agent-backed output streams
var (
	// ErrStreamClosed indicates the output stream has been closed, either
	// explicitly or because its stream was removed from the agent
	ErrStreamClosed = errors.New("output stream is closed")

	// ErrAgentGone indicates the underlying agent has been finalized.
	// It wraps ErrStreamClosed: a stream whose agent is gone is closed.
	ErrAgentGone = fmt.Errorf("%w: agent finalized", ErrStreamClosed)

	// ErrWouldBlock indicates a non-blocking send could not accept any data;
	// retry after the next writability event. Agent implementations must
	// wrap this sentinel from SendNonblocking when capacity is exhausted.
	ErrWouldBlock = errors.New("write would block")

	// ErrNilAgent indicates a stream was constructed without an agent
	ErrNilAgent = errors.New("agent must not be nil")

	// ErrInvalidStreamID indicates a stream ID outside the valid range (>= 1)
	ErrInvalidStreamID = errors.New("stream ID must be >= 1")

	// ErrInvalidComponentID indicates a component ID outside the valid range (>= 1)
	ErrInvalidComponentID = errors.New("component ID must be >= 1")

	// ErrComponentNotFound indicates the agent has no component for the
	// given stream/component pair
	ErrComponentNotFound = errors.New("component not found")
)

// StreamError represents an error with stream/component context
type StreamError struct {
	Op          string // operation that caused the error
	StreamID    uint32
	ComponentID uint32
	Err         error // underlying error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("nice stream %d/%d: %s: %v", e.StreamID, e.ComponentID, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// newStreamError creates a new StreamError
func newStreamError(op string, streamID, componentID uint32, err error) *StreamError {
	return &StreamError{
		Op:          op,
		StreamID:    streamID,
		ComponentID: componentID,
		Err:         err,
	}
}
