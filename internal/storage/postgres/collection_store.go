// Package postgres provides Postgres-backed persistence for collections,
// labels and run summaries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// CollectionStore implements fog.CollectionStore on a pgx pool.
type CollectionStore struct {
	pool dbPool
}

// New creates a Postgres-backed CollectionStore using the provided config.
func New(ctx context.Context, cfg Config) (*CollectionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CollectionStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*CollectionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CollectionStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CollectionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database connection.
func (s *CollectionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InsertCollection writes one collection row. Rows are immutable after insert.
func (s *CollectionStore) InsertCollection(ctx context.Context, rec fog.CollectionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("collection id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO collections (id, webcam_id, captured_at, filename, blob_path)
VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.WebcamID, rec.Timestamp, rec.Filename, rec.BlobPath,
	)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

// UpsertLabel writes one label row. The (image_id, labeler_name,
// labeler_version) key is unique; re-labeling overwrites instead of
// duplicating.
func (s *CollectionStore) UpsertLabel(ctx context.Context, rec fog.LabelRecord) error {
	if rec.ImageID == "" {
		return fmt.Errorf("label image id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO labels (
	image_id,
	labeler_name,
	labeler_version,
	fog_score,
	fog_level,
	confidence,
	reasoning,
	visibility_estimate,
	weather_conditions,
	raw_payload,
	execution_time_ms
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (image_id, labeler_name, labeler_version) DO UPDATE SET
	fog_score = EXCLUDED.fog_score,
	fog_level = EXCLUDED.fog_level,
	confidence = EXCLUDED.confidence,
	reasoning = EXCLUDED.reasoning,
	visibility_estimate = EXCLUDED.visibility_estimate,
	weather_conditions = EXCLUDED.weather_conditions,
	raw_payload = EXCLUDED.raw_payload,
	execution_time_ms = EXCLUDED.execution_time_ms`,
		rec.ImageID,
		rec.LabelerName,
		rec.LabelerVersion,
		rec.FogScore,
		rec.FogLevel,
		rec.Confidence,
		rec.Reasoning,
		rec.VisibilityEstimate,
		rec.WeatherConditions,
		[]byte(rec.RawPayload),
		rec.ExecutionTimeMs,
	)
	if err != nil {
		return fmt.Errorf("upsert label: %w", err)
	}
	return nil
}

// LatestCollection returns the most recent collection for a webcam at or
// after the since bound, or nil when none exists in the window.
func (s *CollectionStore) LatestCollection(ctx context.Context, webcamID string, since time.Time) (*fog.CollectionRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, webcam_id, captured_at, filename, blob_path
FROM collections
WHERE webcam_id = $1 AND captured_at >= $2
ORDER BY captured_at DESC
LIMIT 1`,
		webcamID, since,
	)
	var rec fog.CollectionRecord
	err := row.Scan(&rec.ID, &rec.WebcamID, &rec.Timestamp, &rec.Filename, &rec.BlobPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest collection: %w", err)
	}
	return &rec, nil
}

// LabelsFor returns every label attached to a collected image.
func (s *CollectionStore) LabelsFor(ctx context.Context, imageID string) ([]fog.LabelRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT image_id, labeler_name, labeler_version, fog_score, fog_level,
       confidence, reasoning, visibility_estimate, weather_conditions,
       raw_payload, execution_time_ms
FROM labels
WHERE image_id = $1
ORDER BY labeler_name, labeler_version`,
		imageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []fog.LabelRecord
	for rows.Next() {
		var (
			rec fog.LabelRecord
			raw []byte
		)
		if err := rows.Scan(
			&rec.ImageID,
			&rec.LabelerName,
			&rec.LabelerVersion,
			&rec.FogScore,
			&rec.FogLevel,
			&rec.Confidence,
			&rec.Reasoning,
			&rec.VisibilityEstimate,
			&rec.WeatherConditions,
			&raw,
			&rec.ExecutionTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan label row: %w", err)
		}
		rec.RawPayload = raw
		labels = append(labels, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label rows: %w", err)
	}
	return labels, nil
}

// CreateRun inserts a run summary at run start.
func (s *CollectionStore) CreateRun(ctx context.Context, run fog.RunSummary) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO runs (id, status, started_at, total_cameras, succeeded, failed, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Status, run.StartedAt, run.TotalCameras, run.Succeeded, run.Failed, run.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinalizeRun records the outcome counters at run end.
func (s *CollectionStore) FinalizeRun(ctx context.Context, run fog.RunSummary) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE runs
SET status = $2, finished_at = $3, total_cameras = $4, succeeded = $5, failed = $6, summary = $7
WHERE id = $1`,
		run.ID, run.Status, run.FinishedAt, run.TotalCameras, run.Succeeded, run.Failed, run.Summary,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize run %s: %w", run.ID, fog.ErrNotFound)
	}
	return nil
}

// GetRun fetches one run summary by id.
func (s *CollectionStore) GetRun(ctx context.Context, runID string) (fog.RunSummary, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, status, started_at, finished_at, total_cameras, succeeded, failed, summary
FROM runs
WHERE id = $1`,
		runID,
	)
	var run fog.RunSummary
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.TotalCameras,
		&run.Succeeded,
		&run.Failed,
		&run.Summary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return fog.RunSummary{}, fmt.Errorf("run %s: %w", runID, fog.ErrNotFound)
	}
	if err != nil {
		return fog.RunSummary{}, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}
