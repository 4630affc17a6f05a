package stream

import (
	"sync"
)

// sendResult scripts one SendNonblocking outcome.
type sendResult struct {
	n   int
	err error
}

// mockComponent implements Component for testing.
type mockComponent struct {
	mu             sync.Mutex
	canSend        bool
	socketWritable bool
	trigger        chan struct{}
}

func newMockComponent() *mockComponent {
	return &mockComponent{}
}

func (c *mockComponent) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSend
}

func (c *mockComponent) SocketWritable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketWritable
}

func (c *mockComponent) WritableSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trigger == nil {
		return nil
	}
	return c.trigger
}

func (c *mockComponent) setCanSend(v bool) {
	c.mu.Lock()
	c.canSend = v
	c.mu.Unlock()
}

func (c *mockComponent) setSocketWritable(v bool) {
	c.mu.Lock()
	c.socketWritable = v
	c.mu.Unlock()
}

// armTrigger installs an internal writable trigger and returns the func that
// fires it.
func (c *mockComponent) armTrigger() func() {
	c.mu.Lock()
	ch := make(chan struct{})
	c.trigger = ch
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// mockAgent implements Agent for testing. SendNonblocking consumes scripted
// results in order; once the script is exhausted it keeps replying with the
// last entry. Every attempt is recorded and announced on attemptCh so tests
// can synchronize with a writer goroutine.
type mockAgent struct {
	mu        sync.Mutex
	script    []sendResult
	attempts  [][]byte
	attemptCh chan sendResult

	component *mockComponent

	writableSubs map[int]subscription
	removedSubs  map[int]func([]uint32)
	nextSubID    int
}

type subscription struct {
	streamID    uint32
	componentID uint32
	fn          func()
}

func newMockAgent() *mockAgent {
	return &mockAgent{
		component:    newMockComponent(),
		attemptCh:    make(chan sendResult, 64),
		writableSubs: make(map[int]subscription),
		removedSubs:  make(map[int]func([]uint32)),
	}
}

// scriptSend appends scripted SendNonblocking outcomes.
func (a *mockAgent) scriptSend(results ...sendResult) {
	a.mu.Lock()
	a.script = append(a.script, results...)
	a.mu.Unlock()
}

func (a *mockAgent) SendNonblocking(streamID, componentID uint32, data []byte) (int, error) {
	a.mu.Lock()
	var res sendResult
	switch {
	case len(a.script) == 0:
		res = sendResult{n: len(data)}
	case len(a.script) == 1:
		res = a.script[0]
	default:
		res = a.script[0]
		a.script = a.script[1:]
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.attempts = append(a.attempts, buf)
	a.mu.Unlock()

	select {
	case a.attemptCh <- res:
	default:
	}
	return res.n, res.err
}

func (a *mockAgent) FindComponent(streamID, componentID uint32) (Component, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.component == nil {
		return nil, ErrComponentNotFound
	}
	return a.component, nil
}

func (a *mockAgent) OnWritable(streamID, componentID uint32, fn func()) func() {
	a.mu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.writableSubs[id] = subscription{streamID: streamID, componentID: componentID, fn: fn}
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.writableSubs, id)
		a.mu.Unlock()
	}
}

func (a *mockAgent) OnStreamsRemoved(fn func([]uint32)) func() {
	a.mu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.removedSubs[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.removedSubs, id)
		a.mu.Unlock()
	}
}

// fireWritable delivers a writability event for the given pair. Callbacks
// run on a snapshot without the agent lock held, matching the contract that
// unsubscribe is callable from inside a delivery.
func (a *mockAgent) fireWritable(streamID, componentID uint32) {
	a.mu.Lock()
	var fns []func()
	for _, sub := range a.writableSubs {
		if sub.streamID == streamID && sub.componentID == componentID {
			fns = append(fns, sub.fn)
		}
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// removeStreams delivers a streams-removed event.
func (a *mockAgent) removeStreams(streamIDs ...uint32) {
	a.mu.Lock()
	fns := make([]func([]uint32), 0, len(a.removedSubs))
	for _, fn := range a.removedSubs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(streamIDs)
	}
}

func (a *mockAgent) attemptCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attempts)
}

func (a *mockAgent) attempt(i int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[i]
}

func (a *mockAgent) writableSubCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writableSubs)
}

func (a *mockAgent) removedSubCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.removedSubs)
}

func (a *mockAgent) dropComponent() {
	a.mu.Lock()
	a.component = nil
	a.mu.Unlock()
}
