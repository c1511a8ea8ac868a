package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification statuses stored on a prediction.
const (
	VerificationUnresolved = "unresolved"
	VerificationCorrect    = "correct"
	VerificationPartial    = "partial"
	VerificationIncorrect  = "incorrect"
	VerificationVoid       = "void"
)

// Prediction is the locally stored outcome forecast produced by a finished job.
// It stays unresolved until the engine's verify call reconciles it against
// the real result.
type Prediction struct {
	ID                 uuid.UUID  `db:"id"                  json:"id"`
	TargetID           int64      `db:"fixture_id"          json:"target_id"`
	JobID              *uuid.UUID `db:"job_id"              json:"job_id,omitempty"`
	HomeLabel          string     `db:"home_label"          json:"home_label"`
	AwayLabel          string     `db:"away_label"          json:"away_label"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	PostAnalysis       *string    `db:"post_analysis"       json:"post_analysis,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at"         json:"verified_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at"          json:"created_at"`
}

// MatchMeta is what the external fixture source reports about a target.
type MatchMeta struct {
	TargetID    int64     `json:"target_id"`
	Kickoff     time.Time `json:"kickoff"`
	StatusShort string    `json:"status_short"`
	HomeLabel   string    `json:"home_label"`
	AwayLabel   string    `json:"away_label"`
}

// finishedStatuses are the external short codes for a match that has ended:
// full time, after extra time, after penalties.
var finishedStatuses = map[string]bool{
	"FT":  true,
	"AET": true,
	"PEN": true,
}

// IsFinished reports whether the external source considers the match over.
func (m MatchMeta) IsFinished() bool {
	return finishedStatuses[m.StatusShort]
}

// VerificationCandidate is a target eligible for outcome verification.
type VerificationCandidate struct {
	TargetID  int64     `json:"target_id"`
	MatchDate time.Time `json:"match_date"`
	HomeLabel string    `json:"home_label"`
	AwayLabel string    `json:"away_label"`
}

// CandidateSummary describes a resolved prediction still missing its
// post-match narrative.
type CandidateSummary struct {
	PredictionID       uuid.UUID `json:"prediction_id"`
	TargetID           int64     `json:"target_id"`
	MatchDate          time.Time `json:"match_date"`
	HomeLabel          string    `json:"home_label"`
	AwayLabel          string    `json:"away_label"`
	VerificationStatus string    `json:"verification_status"`
}

// ItemResult is the per-target outcome of a verification or backfill call.
type ItemResult struct {
	TargetID  int64  `json:"target_id"`
	OK        bool   `json:"ok"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// VerificationSummary aggregates a sequential verification or backfill run.
type VerificationSummary struct {
	ProcessedCount int          `json:"processed_count"`
	Items          []ItemResult `json:"items"`
}
