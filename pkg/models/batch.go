package models

import "time"

// BatchQueueEntry is a target waiting for its turn in the batch scheduler.
type BatchQueueEntry struct {
	TargetID   int64     `json:"target_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// BatchStatus is a point-in-time snapshot of the batch scheduler.
type BatchStatus struct {
	QueueDepth      int     `json:"queue_depth"`
	CurrentTargetID *int64  `json:"current_target_id,omitempty"`
	InFlight        []int64 `json:"in_flight"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	// Abandoned counts jobs that were in flight when the scheduler stopped.
	Abandoned       int     `json:"abandoned"`
}
