package stream

import "sync"

// Agent is the surface an output stream consumes from a connectivity agent.
// This abstraction allows the same adapter to sit on top of a real
// NAT-traversal agent or a simulated one in tests; the adapter never drives
// the agent's lifecycle, it only observes it.
type Agent interface {
	// SendNonblocking attempts to send data on the given stream/component
	// and returns the number of bytes accepted. It never blocks: when send
	// capacity is exhausted it returns an error satisfying
	// errors.Is(err, ErrWouldBlock). A later writability event signals that
	// capacity has freed up.
	SendNonblocking(streamID, componentID uint32, data []byte) (int, error)

	// FindComponent returns the component for the given pair, or an error
	// satisfying errors.Is(err, ErrComponentNotFound).
	FindComponent(streamID, componentID uint32) (Component, error)

	// OnWritable registers a callback fired whenever previously exhausted
	// send capacity for the given stream/component frees up. Callbacks may
	// run on agent-owned goroutines, concurrently with adapter code. The
	// returned function unsubscribes; it must be safe to call from within a
	// delivered callback and after the agent has shut down.
	OnWritable(streamID, componentID uint32, fn func()) (unsubscribe func())

	// OnStreamsRemoved registers a callback fired when streams are torn
	// down, with the IDs of the removed streams. Same delivery and
	// unsubscribe contract as OnWritable.
	OnStreamsRemoved(fn func(streamIDs []uint32)) (unsubscribe func())
}

// Component exposes the point-in-time writability state of one component.
type Component interface {
	// CanSend reports whether the component's embedded reliable-transport
	// layer can currently accept more data.
	CanSend() bool

	// SocketWritable reports whether any raw socket bound to the component
	// currently polls writable.
	SocketWritable() bool

	// WritableSignal returns the component's internal writable trigger, a
	// channel closed when the reliable layer becomes writable, or nil when
	// the component has none.
	WritableSignal() <-chan struct{}
}

// AgentRef is a non-owning handle to an Agent. Output streams resolve it at
// the start of every operation; whoever tears the agent down calls
// Invalidate, after which every resolution fails and all streams bound to
// the ref report ErrAgentGone. A ref never extends the agent's lifetime in
// any observable way: it is only a revocable pointer.
type AgentRef struct {
	mu    sync.RWMutex
	agent Agent
}

// NewAgentRef creates a handle for the given agent. A nil agent yields a
// ref that never resolves.
func NewAgentRef(agent Agent) *AgentRef {
	return &AgentRef{agent: agent}
}

// Invalidate drops the agent. Idempotent; safe to call after the agent has
// already been destroyed.
func (r *AgentRef) Invalidate() {
	r.mu.Lock()
	r.agent = nil
	r.mu.Unlock()
}

// get resolves the ref to a strong handle for the duration of one operation.
func (r *AgentRef) get() (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.agent == nil {
		return nil, false
	}
	return r.agent, true
}
