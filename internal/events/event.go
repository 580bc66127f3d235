// Package events defines the event values emitted as sessions and kernels
// change state, and the at-most-once publishing pipeline built on top of
// NATS. Events are buffered during a scheduling transaction and flushed
// only after the transaction's store commit succeeds, so a rolled-back
// transaction never leaks a published event.
package events

import "time"

// Kind names the event types a SchedulingTx can emit. Subjects published to
// NATS are "schedcore.session.<kind>" in lower-kebab form.
type Kind string

const (
	KindSessionEnqueued    Kind = "enqueued"
	KindSessionScheduled   Kind = "scheduled"
	KindSessionPreparing   Kind = "preparing"
	KindSessionPrepared    Kind = "prepared"
	KindSessionRunning     Kind = "running"
	KindSessionTerminating Kind = "terminating"
	KindSessionTerminated  Kind = "terminated"
	KindSessionCancelled   Kind = "cancelled"
	KindSessionError       Kind = "error"
)

// Event is one state-change notification. SequenceNo matches the
// StatusHistoryEntry it was derived from, giving subscribers a dedupe key
// for the at-most-once contract (NATS core does not dedupe on its own).
type Event struct {
	ID         string
	Kind       Kind
	SessionID  string
	SequenceNo int
	Info       string
	OccurredAt time.Time
}
