// Package completion resolves each tracked task exactly once, no matter
// how its terminal state is observed.
//
// Two independent feeders report observations: status polls and webhook
// deliveries. Either may see the terminal state first, both may see it,
// and webhook events may arrive duplicated or out of order. The tracker's
// per-task state is binary — pending or resolved — and the first terminal
// observation wins; everything after it is a no-op.
//
// Track returns a Handle whose Done channel closes on resolution; an
// optional callback fires exactly once. Events that arrive before their
// task is tracked can be replayed from a ReplaySource at Track time.
//
//	handle, err := tracker.Track(taskID, func(res *completion.Resolution) {
//	    // terminal state, exactly once
//	})
//	<-handle.Done()
package completion
