// Package stream provides blocking stream output on top of a connectivity
// agent's non-blocking, event-driven send primitive.
//
// An OutputStream is bound to a single stream/component pair of one agent.
// Blocking writes park the calling goroutine between send attempts and wake
// on the agent's writability notifications; partial progress is accumulated
// and never discarded. The stream observes the agent's lifecycle (it closes
// itself when its stream is removed) but never manages it.
//
// Example:
//
//	out, err := stream.New(agent, streamID, 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer out.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	n, err := out.WriteContext(ctx, payload)
//	if err != nil {
//	    log.Printf("write failed: %v", err)
//	}
//	log.Printf("accepted %d bytes", n)
//
// The non-blocking surface (IsWritable, WriteNonblocking, CreateEventSource)
// integrates with poll-style event loops: wait on the event source, then
// retry WriteNonblocking until it stops returning ErrWouldBlock.
package stream
