// Package models contains shared data models used across the matchscope codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle label the remote engine writes on an analysis job.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusIngesting        JobStatus = "ingesting"
	JobStatusDataReady        JobStatus = "data_ready"
	JobStatusAnalyzing        JobStatus = "analyzing"
	JobStatusDone             JobStatus = "done"
	JobStatusInsufficientData JobStatus = "insufficient_data"
	JobStatusFailed           JobStatus = "failed"
)

// TerminalStatuses lists every status a job never leaves.
var TerminalStatuses = []JobStatus{JobStatusDone, JobStatusInsufficientData, JobStatusFailed}

// statusRank orders the non-terminal states. Terminal states share the top rank.
var statusRank = map[JobStatus]int{
	JobStatusQueued:           0,
	JobStatusIngesting:        1,
	JobStatusDataReady:        2,
	JobStatusAnalyzing:        3,
	JobStatusDone:             4,
	JobStatusInsufficientData: 4,
	JobStatusFailed:           4,
}

// IsTerminal reports whether no further transition can happen from s.
// Unknown labels are non-terminal.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusInsufficientData, JobStatusFailed:
		return true
	}
	return false
}

// IsKnown reports whether s is one of the documented labels.
func (s JobStatus) IsKnown() bool {
	_, ok := statusRank[s]
	return ok
}

// IsFailure reports whether s is a terminal state other than done.
func (s JobStatus) IsFailure() bool {
	return s == JobStatusInsufficientData || s == JobStatusFailed
}

// CanTransition reports whether the engine may move a job from one status to
// another. Moves go forward only and may skip intermediate states; nothing
// leaves a terminal state. Staying in place is not a transition.
func CanTransition(from, to JobStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	fromRank, fromKnown := statusRank[from]
	toRank, toKnown := statusRank[to]
	if !fromKnown || !toKnown {
		// Unknown non-terminal labels may only be left for a terminal state.
		return to.IsTerminal()
	}
	return toRank > fromRank
}

// JobProgress is advisory progress reported by the engine. It is display-only
// and never drives control flow.
type JobProgress struct {
	Step              string `json:"step"`
	CompletenessScore int    `json:"completeness_score"`
	FetchedItems      int    `json:"fetched_items"`
	TotalItems        int    `json:"total_items"`
}

// AnalysisJob is one remote analysis run for a fixture. Rows are written by the
// remote engine; this service only reads them, except for the reclaim sweep.
type AnalysisJob struct {
	ID            uuid.UUID    `db:"id"             json:"id"`
	TargetID      int64        `db:"fixture_id"     json:"target_id"`
	Status        JobStatus    `db:"status"         json:"status"`
	Progress      *JobProgress `db:"progress"       json:"progress,omitempty"`
	EstimatedCost int          `db:"estimated_cost" json:"estimated_cost"`
	ActualCost    int          `db:"actual_cost"    json:"actual_cost"`
	ErrorMessage  *string      `db:"error_message"  json:"error_message,omitempty"`
	CreatedAt     time.Time    `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"     json:"updated_at"`
}

// SubmitContext is forwarded verbatim to the engine alongside a submission.
type SubmitContext struct {
	Source       string `json:"source"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// Submission sources.
const (
	SourceManual = "manual"
	SourceBatch  = "batch"
)
