package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// OutputStream adapts a connectivity agent's non-blocking send into ordinary
// blocking stream output for a single stream/component pair. It also
// implements the pollable surface: IsWritable, WriteNonblocking and
// CreateEventSource.
//
// The stream holds a non-owning handle to the agent and closes itself when
// the agent removes its stream or is finalized. Closing the stream never
// removes the underlying transport from the agent; use the agent's own
// stream removal for that.
type OutputStream struct {
	ref         *AgentRef
	streamID    uint32
	componentID uint32

	mu           sync.Mutex
	closed       bool
	waiters      map[*writeWaiter]struct{}
	unsubRemoved func()
}

var _ io.Writer = (*OutputStream)(nil)

// New creates an output stream over the given stream/component of agent.
// The agent must be live and the IDs must both be >= 1.
//
// The stream does not own the agent. If the agent is torn down first,
// invalidate the ref created for it (see NewWithRef to share one ref across
// several streams) or rely on the agent's stream-removed notification; all
// subsequent operations report ErrAgentGone.
func New(agent Agent, streamID, componentID uint32) (*OutputStream, error) {
	if agent == nil {
		return nil, ErrNilAgent
	}
	return NewWithRef(NewAgentRef(agent), streamID, componentID)
}

// NewWithRef creates an output stream resolving the agent through a shared
// ref. A ref that no longer resolves is accepted, matching construction
// after the agent has already been finalized: the stream is created but
// every operation reports ErrAgentGone.
func NewWithRef(ref *AgentRef, streamID, componentID uint32) (*OutputStream, error) {
	if ref == nil {
		return nil, ErrNilAgent
	}
	if streamID < 1 {
		return nil, ErrInvalidStreamID
	}
	if componentID < 1 {
		return nil, ErrInvalidComponentID
	}

	s := &OutputStream{
		ref:         ref,
		streamID:    streamID,
		componentID: componentID,
		waiters:     make(map[*writeWaiter]struct{}),
	}
	if agent, ok := ref.get(); ok {
		s.unsubRemoved = agent.OnStreamsRemoved(s.streamsRemoved)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewWithRef",
		"stream_id":    streamID,
		"component_id": componentID,
	}).Debug("Created output stream")

	return s, nil
}

// StreamID returns the agent stream ID this output stream is bound to.
func (s *OutputStream) StreamID() uint32 { return s.streamID }

// ComponentID returns the agent component ID this output stream is bound to.
func (s *OutputStream) ComponentID() uint32 { return s.componentID }

// resolve checks the closed flag and resolves the agent ref to a strong
// handle for the duration of one operation.
func (s *OutputStream) resolve() (Agent, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}
	agent, ok := s.ref.get()
	if !ok {
		return nil, ErrAgentGone
	}
	return agent, nil
}

// registerWaiter attaches a waiter so Close can wake it. Reports false when
// the stream closed between the caller's open check and registration.
func (s *OutputStream) registerWaiter(w *writeWaiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.waiters[w] = struct{}{}
	return true
}

func (s *OutputStream) unregisterWaiter(w *writeWaiter) {
	s.mu.Lock()
	delete(s.waiters, w)
	s.mu.Unlock()
}

// Write writes len(p) bytes, blocking until the agent has accepted them all
// or an unrecoverable error occurs. Equivalent to WriteContext with a
// background context; with no cancellation in play it satisfies the io.Writer
// contract exactly.
func (s *OutputStream) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext writes len(p) bytes, parking the calling goroutine between
// send attempts until the agent signals writability, ctx is cancelled, or
// the stream is closed.
//
// Bytes accepted before a failure are never un-sent: whenever at least one
// byte was accepted the call returns that count with a nil error, even if a
// cancellation or send failure followed. A later call observes the error.
// Only an all-zero-progress call surfaces the cancellation (ctx.Err()) or
// send error; a (0, nil) return happens only for empty input. Callers using
// a cancellable context must therefore tolerate short writes, which is
// looser than the strict io.Writer contract.
//
// Whether two goroutines may block in WriteContext on the same stream
// concurrently is a caller contract, not enforced here; interleaving of
// their send attempts is unspecified.
func (s *OutputStream) WriteContext(ctx context.Context, p []byte) (int, error) {
	agent, err := s.resolve()
	if err != nil {
		return 0, newStreamError("write", s.streamID, s.componentID, err)
	}
	if len(p) == 0 {
		return 0, nil
	}

	w := newWriteWaiter()
	if !s.registerWaiter(w) {
		return 0, newStreamError("write", s.streamID, s.componentID, ErrStreamClosed)
	}
	defer s.unregisterWaiter(w)

	// Cancellation watcher. The stop channel releases it on every exit path.
	stop := make(chan struct{})
	defer close(stop)
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				w.fail(ctx.Err())
			case <-stop:
			}
		}()
	}

	unsubWritable := agent.OnWritable(s.streamID, s.componentID, w.signalWritable)

	sent := 0
	var sendErr error

	w.mu.Lock()
	for sent < len(p) && w.err == nil {
		// Clear the writability edge before attempting, and drop the waiter
		// lock across the agent call: the writability callback takes the
		// waiter lock from an agent-owned context.
		w.writable = false
		w.mu.Unlock()

		n, err := agent.SendNonblocking(s.streamID, s.componentID, p[sent:])

		w.mu.Lock()
		switch {
		case err == nil:
			sent += n
		case errors.Is(err, ErrWouldBlock):
			w.wait()
		default:
			sendErr = err
		}
		if sendErr != nil {
			break
		}
	}
	w.mu.Unlock()

	// Unsubscribe outside the waiter lock; delivery may be in flight on
	// another goroutine wanting that lock.
	unsubWritable()

	w.mu.Lock()
	werr := w.err
	w.mu.Unlock()

	switch {
	case sent > 0:
		// Partial progress is never discarded; a cancellation or send
		// failure after the first accepted byte is dropped here and will be
		// observed by the next call.
		if sendErr != nil || werr != nil {
			logrus.WithFields(logrus.Fields{
				"function":     "WriteContext",
				"stream_id":    s.streamID,
				"component_id": s.componentID,
				"sent":         sent,
				"send_error":   sendErr,
				"wake_error":   werr,
			}).Debug("Returning partial write, suppressing error")
		}
		return sent, nil
	case sendErr != nil:
		return 0, newStreamError("write", s.streamID, s.componentID, sendErr)
	case werr != nil:
		return 0, newStreamError("write", s.streamID, s.componentID, werr)
	}
	return sent, nil
}

// WriteNonblocking attempts a single send without waiting. When the
// component is not currently writable it fails with ErrWouldBlock instead of
// parking; otherwise it performs exactly one send attempt and passes its
// result through.
func (s *OutputStream) WriteNonblocking(p []byte) (int, error) {
	agent, err := s.resolve()
	if err != nil {
		return 0, newStreamError("write_nonblocking", s.streamID, s.componentID, err)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !s.IsWritable() {
		return 0, newStreamError("write_nonblocking", s.streamID, s.componentID, ErrWouldBlock)
	}

	n, err := agent.SendNonblocking(s.streamID, s.componentID, p)
	if err != nil {
		return n, newStreamError("write_nonblocking", s.streamID, s.componentID, err)
	}
	return n, nil
}

// IsWritable reports whether a send attempt could accept data right now:
// the component's reliable-transport layer has buffer space, or one of its
// raw sockets polls writable. The answer is point-in-time and intentionally
// racy; the blocking write's retry loop is what provides correctness.
// Closed streams and streams whose agent is gone are never writable.
func (s *OutputStream) IsWritable() bool {
	agent, err := s.resolve()
	if err != nil {
		return false
	}

	comp, err := agent.FindComponent(s.streamID, s.componentID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "IsWritable",
			"stream_id":    s.streamID,
			"component_id": s.componentID,
			"error":        err,
		}).Warn("Could not find component")
		return false
	}

	return comp.CanSend() || comp.SocketWritable()
}

// Close marks the stream closed and wakes any parked writers, which return
// their partial progress or ErrStreamClosed. Idempotent. The underlying
// agent stream is not removed.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsubRemoved
	s.unsubRemoved = nil
	waiters := make([]*writeWaiter, 0, len(s.waiters))
	for w := range s.waiters {
		waiters = append(waiters, w)
	}
	s.mu.Unlock()

	for _, w := range waiters {
		w.fail(ErrStreamClosed)
	}
	if unsub != nil {
		unsub()
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Close",
		"stream_id":    s.streamID,
		"component_id": s.componentID,
		"woken":        len(waiters),
	}).Debug("Closed output stream")

	return nil
}

// streamsRemoved is the agent's stream-teardown notification. Removal of
// this stream's ID closes the adapter, which is what bounds the wait of any
// writer parked on a transport that no longer exists.
func (s *OutputStream) streamsRemoved(streamIDs []uint32) {
	for _, id := range streamIDs {
		if id == s.streamID {
			logrus.WithFields(logrus.Fields{
				"function":  "streamsRemoved",
				"stream_id": s.streamID,
			}).Debug("Stream removed from agent, closing output stream")
			_ = s.Close()
			return
		}
	}
}
