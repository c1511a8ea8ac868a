package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ReclaimMessage is written into error_message of every job forced to failed
// by a reclaim sweep.
const ReclaimMessage = "reclaimed by operator: job stopped reporting progress"

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	FindActiveJob(ctx context.Context, targetID int64) (*models.AnalysisJob, error)
	ReclaimJobs(ctx context.Context, filter ReclaimFilter) (int64, error)

	ListUnresolvedPredictions(ctx context.Context) ([]*models.Prediction, error)
	ListResolvedWithoutPostAnalysis(ctx context.Context, from, to time.Time) ([]*models.Prediction, error)
}

// ReclaimFilter narrows a reclaim sweep. The zero value matches every
// non-terminal job.
type ReclaimFilter struct {
	// UpdatedBefore, when set, only reclaims jobs with no update since then.
	UpdatedBefore time.Time
	Message       string
}
