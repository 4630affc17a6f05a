package stream

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventSource is a poll-integrated readiness handle for an output stream.
// Ready delivers a wakeup whenever the component may have become writable or
// the supplied context was cancelled. Wakeups are hints, not guarantees:
// after waking, re-check with IsWritable or WriteNonblocking.
type EventSource struct {
	ready chan struct{}
	stop  chan struct{}
	unsub func()
	once  sync.Once
}

// CreateEventSource builds a readiness source for the stream, driven by the
// agent's writability notifications, the component's internal writable
// trigger when it has one, and ctx cancellation.
//
// A source created on a closed stream, or after the agent is gone, is
// immediately and permanently ready but signals no further readiness; the
// caller learns the reason by re-checking IsWritable or WriteNonblocking.
// The caller owns the returned source and must Close it to release the
// writability subscription.
func (s *OutputStream) CreateEventSource(ctx context.Context) *EventSource {
	agent, err := s.resolve()
	if err != nil {
		return newReadyEventSource()
	}

	es := &EventSource{
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	es.unsub = agent.OnWritable(s.streamID, s.componentID, es.signal)

	var trigger <-chan struct{}
	if comp, err := agent.FindComponent(s.streamID, s.componentID); err == nil {
		trigger = comp.WritableSignal()
	} else {
		logrus.WithFields(logrus.Fields{
			"function":     "CreateEventSource",
			"stream_id":    s.streamID,
			"component_id": s.componentID,
			"error":        err,
		}).Warn("Could not find component")
	}

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	if trigger != nil || done != nil {
		go es.relay(trigger, done)
	}

	return es
}

// newReadyEventSource returns a source that is permanently ready.
func newReadyEventSource() *EventSource {
	ch := make(chan struct{})
	close(ch)
	return &EventSource{ready: ch}
}

// Ready returns the wakeup channel. For a permanently-ready source the
// channel is closed and every receive succeeds immediately.
func (es *EventSource) Ready() <-chan struct{} {
	return es.ready
}

// signal posts one wakeup without blocking; a pending wakeup absorbs it.
func (es *EventSource) signal() {
	select {
	case es.ready <- struct{}{}:
	default:
	}
}

// relay forwards the component trigger and context cancellation onto the
// wakeup channel. Each input fires at most once (both are close-based), so
// it is nilled out after delivery.
func (es *EventSource) relay(trigger, done <-chan struct{}) {
	for trigger != nil || done != nil {
		select {
		case <-es.stop:
			return
		case <-trigger:
			es.signal()
			trigger = nil
		case <-done:
			es.signal()
			done = nil
		}
	}
}

// Close releases the source: the writability subscription is dropped and the
// relay goroutine stops. Idempotent; a nil-safe no-op for permanently-ready
// sources.
func (es *EventSource) Close() {
	es.once.Do(func() {
		if es.unsub != nil {
			es.unsub()
		}
		if es.stop != nil {
			close(es.stop)
		}
	})
}
