package upload

import "time"

// Metrics provides observability for governor decisions.
//
// This interface is optional - pass nil to New to disable metrics
// collection with zero overhead.
type Metrics interface {
	// RecordEnqueued increments the enqueued uploads counter.
	RecordEnqueued()

	// RecordReleased records an upload released from the named group,
	// with the time it spent waiting between becoming ready and being
	// released.
	RecordReleased(group string, waited time.Duration)

	// RecordCompleted records a finished upload and the time it spent
	// active. Group is empty when the pinned group no longer exists.
	RecordCompleted(group string, active time.Duration)

	// SetQueueDepth updates the total number of uploads currently
	// tracked by the governor, pending and active.
	SetQueueDepth(count int)

	// SetUsedSlots updates the active slot gauge for a group.
	SetUsedSlots(group string, used int, capacity int)
}
