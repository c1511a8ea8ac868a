package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/pkg/models"
)

var (
	ErrNoJobID   = errors.New("engine response carried no job id")
	ErrJobActive = errors.New("target already has an active job")
)

// SubmissionError is returned when a job could not be started for a target.
// No job exists for the target afterwards.
type SubmissionError struct {
	TargetID int64
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit analysis for target %d: %v", e.TargetID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is a failed status read. It never ends a watch.
type PollError struct {
	JobID uuid.UUID
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll job %s: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// TerminalFailure describes a job that ended without a report.
type TerminalFailure struct {
	JobID   uuid.UUID
	Status  models.JobStatus
	Message string
}

func (e *TerminalFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s ended %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("job %s ended %s: %s", e.JobID, e.Status, e.Message)
}

// TerminalError returns a *TerminalFailure for jobs that vanished or reached
// insufficient_data or failed, and nil for done or still-running jobs.
func TerminalError(jobID uuid.UUID, job *models.AnalysisJob) error {
	if job == nil {
		return &TerminalFailure{JobID: jobID, Message: "job no longer exists"}
	}
	if !job.Status.IsFailure() {
		return nil
	}
	f := &TerminalFailure{JobID: job.ID, Status: job.Status}
	switch {
	case job.Status == models.JobStatusInsufficientData:
		f.Message = "not enough data to produce a report"
	case job.ErrorMessage != nil:
		f.Message = *job.ErrorMessage
	}
	return f
}
