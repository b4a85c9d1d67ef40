package directory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// Resolver serves the primary directory and degrades to the static fallback
// when the primary is unreachable. A scheduled run only fails fatally on
// directory errors when no fallback is configured.
type Resolver struct {
	primary  fog.Directory
	fallback fog.Directory
	logger   *zap.Logger
}

// NewResolver builds a Resolver. fallback may be nil.
func NewResolver(primary fog.Directory, fallback fog.Directory, logger *zap.Logger) *Resolver {
	return &Resolver{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// ListActiveWebcams lists from the primary source, falling back on error.
func (r *Resolver) ListActiveWebcams(ctx context.Context) ([]fog.Webcam, error) {
	cams, err := r.primary.ListActiveWebcams(ctx)
	if err == nil {
		return cams, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("directory unavailable and no fallback configured: %w", err)
	}
	r.logger.Warn("directory unavailable, using static fallback", zap.Error(err))
	cams, fbErr := r.fallback.ListActiveWebcams(ctx)
	if fbErr != nil {
		return nil, fmt.Errorf("directory fallback failed: %w", fbErr)
	}
	return cams, nil
}

// GetWebcam looks up one camera from the primary, falling back on error.
func (r *Resolver) GetWebcam(ctx context.Context, webcamID string) (fog.Webcam, error) {
	cam, err := r.primary.GetWebcam(ctx, webcamID)
	if err == nil {
		return cam, nil
	}
	if IsNotFound(err) || r.fallback == nil {
		return fog.Webcam{}, err
	}
	r.logger.Warn("directory unavailable, using static fallback",
		zap.String("webcam_id", webcamID), zap.Error(err))
	return r.fallback.GetWebcam(ctx, webcamID)
}

// UpdateDiscoveryCache writes through to the primary. Cache persistence is
// best-effort, so fallback-only operation just keeps the cams in memory.
func (r *Resolver) UpdateDiscoveryCache(ctx context.Context, webcamID string, url string, discoveredAt time.Time) error {
	if err := r.primary.UpdateDiscoveryCache(ctx, webcamID, url, discoveredAt); err != nil {
		if r.fallback != nil {
			if fbErr := r.fallback.UpdateDiscoveryCache(ctx, webcamID, url, discoveredAt); fbErr == nil {
				return nil
			}
		}
		return fmt.Errorf("update discovery cache: %w", err)
	}
	return nil
}
