// Package directory reads the webcam fleet from Postgres with a static file
// fallback. Webcam rows are owned by an external management process; the only
// write this package performs is the best-effort discovery cache update.
package directory

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

// PostgresConfig controls the directory connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type dbPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresDirectory reads webcam rows from Postgres.
type PostgresDirectory struct {
	pool dbPool
}

// NewPostgres creates a Postgres-backed directory using the provided config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDirectory, error) {
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

// NewPostgresWithPool constructs a directory from an existing pool
// (primarily for testing).
func NewPostgresWithPool(pool dbPool) (*PostgresDirectory, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresDirectory{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (d *PostgresDirectory) Close() {
	if d == nil || d.pool == nil {
		return
	}
	d.pool.Close()
}

// ListActiveWebcams returns every active camera with its fetch descriptor.
func (d *PostgresDirectory) ListActiveWebcams(ctx context.Context) ([]fog.Webcam, error) {
	query := `
SELECT id, name, camera_type, url, alias, cached_url, cached_at, ttl_seconds, latitude, longitude
FROM webcams
WHERE active = TRUE
ORDER BY id`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query webcams: %w", err)
	}
	defer rows.Close()

	var cams []fog.Webcam
	for rows.Next() {
		var (
			cam        fog.Webcam
			cameraType string
			url        *string
			alias      *string
			cachedURL  *string
			cachedAt   *time.Time
			ttlSeconds *int
		)
		if err := rows.Scan(
			&cam.ID,
			&cam.Name,
			&cameraType,
			&url,
			&alias,
			&cachedURL,
			&cachedAt,
			&ttlSeconds,
			&cam.Latitude,
			&cam.Longitude,
		); err != nil {
			return nil, fmt.Errorf("scan webcam row: %w", err)
		}
		cam.Active = true
		cam.Descriptor = buildDescriptor(cameraType, url, alias, cachedURL, cachedAt, ttlSeconds)
		cams = append(cams, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webcam rows: %w", err)
	}
	return cams, nil
}

// GetWebcam returns one camera by id regardless of its active flag.
func (d *PostgresDirectory) GetWebcam(ctx context.Context, webcamID string) (fog.Webcam, error) {
	query := `
SELECT id, name, camera_type, url, alias, cached_url, cached_at, ttl_seconds, latitude, longitude, active
FROM webcams
WHERE id = $1`
	rows, err := d.pool.Query(ctx, query, webcamID)
	if err != nil {
		return fog.Webcam{}, fmt.Errorf("query webcam: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fog.Webcam{}, fmt.Errorf("query webcam: %w", err)
		}
		return fog.Webcam{}, fmt.Errorf("webcam %s: %w", webcamID, fog.ErrNotFound)
	}
	var (
		cam        fog.Webcam
		cameraType string
		url        *string
		alias      *string
		cachedURL  *string
		cachedAt   *time.Time
		ttlSeconds *int
	)
	if err := rows.Scan(
		&cam.ID,
		&cam.Name,
		&cameraType,
		&url,
		&alias,
		&cachedURL,
		&cachedAt,
		&ttlSeconds,
		&cam.Latitude,
		&cam.Longitude,
		&cam.Active,
	); err != nil {
		return fog.Webcam{}, fmt.Errorf("scan webcam row: %w", err)
	}
	cam.Descriptor = buildDescriptor(cameraType, url, alias, cachedURL, cachedAt, ttlSeconds)
	return cam, nil
}

// UpdateDiscoveryCache persists a freshly discovered snapshot URL onto the
// webcam row. Concurrent discoveries for the same camera race last-write-wins;
// the result is re-verified via TTL and probe on every future use.
func (d *PostgresDirectory) UpdateDiscoveryCache(ctx context.Context, webcamID string, url string, discoveredAt time.Time) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE webcams SET cached_url = $2, cached_at = $3 WHERE id = $1`,
		webcamID, url, discoveredAt,
	)
	if err != nil {
		return fmt.Errorf("update discovery cache: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update discovery cache: webcam %s: %w", webcamID, fog.ErrNotFound)
	}
	return nil
}

func buildDescriptor(cameraType string, url, alias, cachedURL *string, cachedAt *time.Time, ttlSeconds *int) fog.FetchDescriptor {
	if cameraType == string(fog.DescriptorDynamic) {
		desc := fog.FetchDescriptor{Kind: fog.DescriptorDynamic}
		if alias != nil {
			desc.Alias = *alias
		}
		if cachedURL != nil {
			desc.CachedURL = *cachedURL
		}
		desc.CachedAt = cachedAt
		if ttlSeconds != nil {
			desc.TTLSeconds = *ttlSeconds
		}
		return desc
	}
	desc := fog.FetchDescriptor{Kind: fog.DescriptorStatic}
	if url != nil {
		desc.URL = *url
	}
	return desc
}

// IsNotFound reports whether the error marks a missing webcam row.
func IsNotFound(err error) bool {
	return errors.Is(err, fog.ErrNotFound)
}
