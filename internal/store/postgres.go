package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Analysis Jobs ---

const jobColumns = `id, fixture_id, status, progress, estimated_cost, actual_cost, error_message, created_at, updated_at`

func (s *PostgresStore) GetAnalysisJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return j, nil
}

// FindActiveJob returns the most recent non-terminal job for a target.
func (s *PostgresStore) FindActiveJob(ctx context.Context, targetID int64) (*models.AnalysisJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs
		 WHERE fixture_id = $1 AND status <> ALL($2)
		 ORDER BY created_at DESC LIMIT 1`, targetID, terminalLabels()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return j, nil
}

// ReclaimJobs forces every non-terminal job matching filter to failed in a
// single statement and returns the number of rows changed.
func (s *PostgresStore) ReclaimJobs(ctx context.Context, filter ReclaimFilter) (int64, error) {
	msg := filter.Message
	if msg == "" {
		msg = ReclaimMessage
	}

	query := `UPDATE analysis_jobs SET status = $1, error_message = $2, updated_at = NOW()
		 WHERE status <> ALL($3)`
	args := []any{string(models.JobStatusFailed), msg, terminalLabels()}
	if !filter.UpdatedBefore.IsZero() {
		query += ` AND updated_at < $4`
		args = append(args, filter.UpdatedBefore)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var (
		j        models.AnalysisJob
		status   string
		progress []byte
	)
	if err := row.Scan(&j.ID, &j.TargetID, &status, &progress, &j.EstimatedCost, &j.ActualCost,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.Progress = decodeProgress(j.ID, progress)
	return &j, nil
}

// decodeProgress is best effort: the engine does not enforce a schema, so a
// document that does not fit is dropped instead of failing the read.
func decodeProgress(jobID uuid.UUID, raw []byte) *models.JobProgress {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p models.JobProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Debug("ignoring malformed job progress", "job_id", jobID, "error", err)
		return nil
	}
	return &p
}

func terminalLabels() []string {
	labels := make([]string, len(models.TerminalStatuses))
	for i, s := range models.TerminalStatuses {
		labels[i] = string(s)
	}
	return labels
}

// --- Predictions ---

const predictionColumns = `id, fixture_id, job_id, home_label, away_label, verification_status, post_analysis, verified_at, created_at`

func (s *PostgresStore) ListUnresolvedPredictions(ctx context.Context) ([]*models.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE verification_status = $1 ORDER BY created_at ASC`, models.VerificationUnresolved)
	if err != nil {
		return nil, fmt.Errorf("list unresolved predictions: %w", err)
	}
	return collectPredictions(rows)
}

// ListResolvedWithoutPostAnalysis returns resolved predictions created within
// [from, to] that have no post-match narrative yet.
func (s *PostgresStore) ListResolvedWithoutPostAnalysis(ctx context.Context, from, to time.Time) ([]*models.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE verification_status <> $1 AND post_analysis IS NULL
		   AND created_at >= $2 AND created_at <= $3
		 ORDER BY created_at ASC`, models.VerificationUnresolved, from, to)
	if err != nil {
		return nil, fmt.Errorf("list resolved predictions: %w", err)
	}
	return collectPredictions(rows)
}

func collectPredictions(rows pgx.Rows) ([]*models.Prediction, error) {
	defer rows.Close()

	preds := []*models.Prediction{}
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.TargetID, &p.JobID, &p.HomeLabel, &p.AwayLabel,
			&p.VerificationStatus, &p.PostAnalysis, &p.VerifiedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		preds = append(preds, &p)
	}
	return preds, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
