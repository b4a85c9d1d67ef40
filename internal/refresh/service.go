// Package refresh serves the current fog assessment for one camera, fetching
// a fresh snapshot synchronously when the stored one is stale or missing.
package refresh

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/metrics"
	"github.com/coastalfog/fogwatch/internal/pipeline"
)

// Source describes where the returned assessment came from.
const (
	SourceCache = "cache"
	SourceFresh = "fresh"
	SourceStale = "stale"
)

// Config controls staleness and fallback behavior.
type Config struct {
	Staleness    time.Duration
	Lookback     time.Duration
	FetchTimeout time.Duration
	BlobPrefix   string
	ContentType  string
}

// Result is the current assessment for one camera.
type Result struct {
	WebcamID   string               `json:"webcam_id"`
	Collection fog.CollectionRecord `json:"collection"`
	Labels     []fog.LabelRecord    `json:"labels"`
	ImageURL   string               `json:"image_url"`
	AgeMinutes int                  `json:"age_minutes"`
	Source     string               `json:"source"`
}

// Service answers "what does this camera see right now". A stored record
// younger than the staleness threshold is served as-is; otherwise a single
// synchronous fetch-store-label pass runs, with the prior record as the
// fallback if that pass fails.
type Service struct {
	directory fog.Directory
	fetcher   fog.SnapshotFetcher
	labeler   fog.Labeler
	blobs     fog.BlobStore
	store     fog.CollectionStore
	clock     fog.Clock
	ids       fog.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a refresh Service. labeler may be nil, in which case fresh
// records are stored without an assessment.
func New(
	directory fog.Directory,
	fetcher fog.SnapshotFetcher,
	labeler fog.Labeler,
	blobs fog.BlobStore,
	store fog.CollectionStore,
	clock fog.Clock,
	ids fog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Staleness <= 0 {
		cfg.Staleness = 30 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/jpeg"
	}
	return &Service{
		directory: directory,
		fetcher:   fetcher,
		labeler:   labeler,
		blobs:     blobs,
		store:     store,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Current returns the freshest available assessment for a camera. It returns
// fog.ErrNoData only when nothing could be served at all: no stored record
// within the lookback window and the synchronous refresh failed too.
func (s *Service) Current(ctx context.Context, webcamID string) (Result, error) {
	now := s.clock.Now()
	prior, err := s.store.LatestCollection(ctx, webcamID, now.Add(-s.cfg.Lookback))
	if err != nil {
		return Result{}, fmt.Errorf("load latest collection: %w", err)
	}

	if prior != nil {
		labels, err := s.store.LabelsFor(ctx, prior.ID)
		if err != nil {
			return Result{}, fmt.Errorf("load labels: %w", err)
		}
		if len(labels) > 0 && now.Sub(prior.Timestamp) < s.cfg.Staleness {
			metrics.ObserveRefresh(SourceCache)
			return s.result(webcamID, *prior, labels, SourceCache), nil
		}
	}

	fresh, err := s.refresh(ctx, webcamID)
	if err != nil {
		if prior != nil {
			s.logger.Warn("refresh failed, serving stale record",
				zap.String("webcam_id", webcamID),
				zap.Error(err))
			labels, labelsErr := s.store.LabelsFor(ctx, prior.ID)
			if labelsErr != nil {
				return Result{}, fmt.Errorf("load labels: %w", labelsErr)
			}
			metrics.ObserveRefresh(SourceStale)
			return s.result(webcamID, *prior, labels, SourceStale), nil
		}
		metrics.ObserveRefresh("error")
		return Result{}, fmt.Errorf("no usable data for webcam %s: %w: %w", webcamID, fog.ErrNoData, err)
	}
	metrics.ObserveRefresh(SourceFresh)
	return fresh, nil
}

// refresh performs one synchronous fetch-store-label pass for the camera.
func (s *Service) refresh(ctx context.Context, webcamID string) (Result, error) {
	cam, err := s.directory.GetWebcam(ctx, webcamID)
	if err != nil {
		return Result{}, fmt.Errorf("look up webcam: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	image, err := s.fetcher.Fetch(fetchCtx, &cam)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("fetch: %w", err)
	}

	capturedAt := s.clock.Now()
	filename := pipeline.SnapshotFilename(cam.ID, capturedAt)
	blobPath := pipeline.BlobPath(s.cfg.BlobPrefix, filename)
	if _, err := s.blobs.PutObject(ctx, blobPath, s.cfg.ContentType, image); err != nil {
		return Result{}, fmt.Errorf("store snapshot: %w", err)
	}

	collectionID, err := s.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate collection id: %w", err)
	}
	rec := fog.CollectionRecord{
		ID:        collectionID,
		WebcamID:  cam.ID,
		Timestamp: capturedAt,
		Filename:  filename,
		BlobPath:  blobPath,
	}
	if err := s.store.InsertCollection(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("insert collection: %w", err)
	}

	var labels []fog.LabelRecord
	if s.labeler != nil {
		meta := fog.ImageMeta{
			WebcamID:   cam.ID,
			WebcamName: cam.Name,
			Latitude:   cam.Latitude,
			Longitude:  cam.Longitude,
			CapturedAt: capturedAt,
		}
		result := s.labeler.LabelImage(ctx, image, meta)
		metrics.ObserveLabel(s.labeler.Name(), string(result.Status),
			time.Duration(result.ExecutionTimeMs)*time.Millisecond)
		label := pipeline.ToLabelRecord(rec.ID, s.labeler.Name(), s.labeler.Version(), result)
		if err := s.store.UpsertLabel(ctx, label); err != nil {
			s.logger.Error("persist label failed",
				zap.String("webcam_id", cam.ID),
				zap.String("labeler", label.LabelerName),
				zap.Error(err))
		} else {
			labels = append(labels, label)
		}
	}
	return s.result(webcamID, rec, labels, SourceFresh), nil
}

func (s *Service) result(webcamID string, rec fog.CollectionRecord, labels []fog.LabelRecord, source string) Result {
	age := int(s.clock.Now().Sub(rec.Timestamp).Minutes())
	if age < 0 {
		age = 0
	}
	return Result{
		WebcamID:   webcamID,
		Collection: rec,
		Labels:     labels,
		ImageURL:   s.blobs.PublicURL(rec.BlobPath),
		AgeMinutes: age,
		Source:     source,
	}
}
