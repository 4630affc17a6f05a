package stream

import "sync"

// writeWaiter is the record shared between one blocking write call and the
// notification contexts that can wake it: the agent's writability callback
// and the cancellation watcher. It is the only state crossing those
// goroutines; the agent must never be called while holding its lock.
type writeWaiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	writable bool
	err      error // write-once; cancellation or stream close
}

func newWriteWaiter() *writeWaiter {
	w := &writeWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// signalWritable marks send capacity as available and wakes the writer.
// Called from the agent's writability delivery context.
func (w *writeWaiter) signalWritable() {
	w.mu.Lock()
	w.writable = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// fail records a terminal error (first one wins) and wakes the writer.
// Called from the cancellation watcher and from stream close.
func (w *writeWaiter) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.cond.Broadcast()
	w.mu.Unlock()
}

// wait parks the calling goroutine until a writability event or a failure
// arrives. Caller must hold w.mu; the condition wait releases it while
// parked. Spurious wakeups are absorbed by the send retry loop.
func (w *writeWaiter) wait() {
	if !w.writable && w.err == nil {
		w.cond.Wait()
	}
}
