// Package pipeline coordinates batch collection runs across the webcam fleet.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/labeler"
	"github.com/coastalfog/fogwatch/internal/metrics"
)

// Config controls orchestrator behavior.
type Config struct {
	Concurrency  int
	FetchTimeout time.Duration
	BlobPrefix   string
	ContentType  string
	Topic        string
}

// LabelerSource resolves the labelers to run for each image.
type LabelerSource interface {
	ReadyLabelers() []labeler.ReadyLabeler
}

// Orchestrator fans one run out across all active cameras under a global
// concurrency cap. Per-camera failures are isolated; a run always completes
// with aggregate counters.
type Orchestrator struct {
	directory fog.Directory
	fetcher   fog.SnapshotFetcher
	labelers  LabelerSource
	blobs     fog.BlobStore
	store     fog.CollectionStore
	publisher fog.Publisher
	clock     fog.Clock
	ids       fog.IDGenerator
	cfg       Config
	logger    *zap.Logger
	limiter   chan struct{}
}

// New constructs an Orchestrator.
func New(
	directory fog.Directory,
	fetcher fog.SnapshotFetcher,
	labelers LabelerSource,
	blobs fog.BlobStore,
	store fog.CollectionStore,
	publisher fog.Publisher,
	clock fog.Clock,
	ids fog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/jpeg"
	}
	return &Orchestrator{
		directory: directory,
		fetcher:   fetcher,
		labelers:  labelers,
		blobs:     blobs,
		store:     store,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		limiter:   make(chan struct{}, cfg.Concurrency),
	}
}

// Run executes one collection pass over every active camera and returns the
// run id. It fails fatally only when the directory (including any fallback)
// is unavailable or run bookkeeping cannot be written.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	start := o.clock.Now()
	runID, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	cams, err := o.directory.ListActiveWebcams(ctx)
	if err != nil {
		return "", fmt.Errorf("load webcam directory: %w", err)
	}

	run := fog.RunSummary{
		ID:           runID,
		Status:       fog.RunStatusRunning,
		StartedAt:    start,
		TotalCameras: len(cams),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	o.logger.Info("collection run started",
		zap.String("run_id", runID),
		zap.Int("cameras", len(cams)))

	ready := o.labelers.ReadyLabelers()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)
	for i := range cams {
		cam := cams[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case o.limiter <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			defer func() { <-o.limiter }()

			metrics.IncActiveCameraTasks()
			defer metrics.DecActiveCameraTasks()

			if err := o.processCamera(ctx, &cam, ready); err != nil {
				o.logger.Error("camera task failed",
					zap.String("run_id", runID),
					zap.String("webcam_id", cam.ID),
					zap.Error(err))
				metrics.ObserveCamera("failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			metrics.ObserveCamera("succeeded")
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	finished := o.clock.Now()
	elapsed := finished.Sub(start)
	run.Succeeded = succeeded
	run.Failed = failed
	run.FinishedAt = &finished
	run.Status = deriveRunStatus(len(cams), succeeded)
	run.Summary = fmt.Sprintf("%d/%d cameras collected in %.1fs", succeeded, len(cams), elapsed.Seconds())

	if err := o.store.FinalizeRun(ctx, run); err != nil {
		return "", fmt.Errorf("finalize run: %w", err)
	}
	metrics.ObserveRun(elapsed)
	o.publishEvent(ctx, map[string]any{
		"type":          "run.completed",
		"run_id":        runID,
		"total_cameras": len(cams),
		"succeeded":     succeeded,
		"failed":        failed,
		"total_seconds": elapsed.Seconds(),
	})

	o.logger.Info("collection run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed))
	return runID, nil
}

// processCamera runs the full per-camera pipeline: fetch, then blob upload
// and labeling in parallel, then the collection row, then labels. The
// collection row is durable before any label write since labels reference it.
func (o *Orchestrator) processCamera(ctx context.Context, cam *fog.Webcam, ready []labeler.ReadyLabeler) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	image, err := o.fetcher.Fetch(fetchCtx, cam)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	capturedAt := o.clock.Now()
	filename := SnapshotFilename(cam.ID, capturedAt)
	blobPath := BlobPath(o.cfg.BlobPrefix, filename)
	meta := fog.ImageMeta{
		WebcamID:   cam.ID,
		WebcamName: cam.Name,
		Latitude:   cam.Latitude,
		Longitude:  cam.Longitude,
		CapturedAt: capturedAt,
	}

	var (
		wg        sync.WaitGroup
		uploadErr error
		results   []fog.LabelResult
		names     []labeler.ReadyLabeler
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, uploadErr = o.blobs.PutObject(ctx, blobPath, o.cfg.ContentType, image)
	}()
	go func() {
		defer wg.Done()
		results, names = o.runLabelers(ctx, image, meta, ready)
	}()
	wg.Wait()

	if uploadErr != nil {
		return fmt.Errorf("store snapshot: %w", uploadErr)
	}

	collectionID, err := o.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate collection id: %w", err)
	}
	rec := fog.CollectionRecord{
		ID:        collectionID,
		WebcamID:  cam.ID,
		Timestamp: capturedAt,
		Filename:  filename,
		BlobPath:  blobPath,
	}
	if err := o.store.InsertCollection(ctx, rec); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	var labelErr error
	for i, result := range results {
		label := ToLabelRecord(rec.ID, names[i].Labeler.Name(), names[i].Labeler.Version(), result)
		if err := o.store.UpsertLabel(ctx, label); err != nil {
			o.logger.Error("persist label failed",
				zap.String("webcam_id", cam.ID),
				zap.String("labeler", label.LabelerName),
				zap.Error(err))
			if labelErr == nil {
				labelErr = fmt.Errorf("persist label %s: %w", label.LabelerName, err)
			}
		}
	}
	// The collection row stays durable either way, but a camera whose labels
	// could not be written counts as failed.
	if labelErr != nil {
		return labelErr
	}

	o.publishEvent(ctx, map[string]any{
		"type":        "collection.stored",
		"webcam_id":   cam.ID,
		"image_id":    rec.ID,
		"blob_path":   rec.BlobPath,
		"captured_at": capturedAt.Format(time.RFC3339),
		"labels":      len(results),
	})
	return nil
}

// runLabelers executes every ready labeler against the in-memory image.
// Error results are kept: the attempt is recorded either way.
func (o *Orchestrator) runLabelers(ctx context.Context, image []byte, meta fog.ImageMeta, ready []labeler.ReadyLabeler) ([]fog.LabelResult, []labeler.ReadyLabeler) {
	results := make([]fog.LabelResult, 0, len(ready))
	used := make([]labeler.ReadyLabeler, 0, len(ready))
	for _, rl := range ready {
		result := rl.Labeler.LabelImage(ctx, image, meta)
		metrics.ObserveLabel(rl.Labeler.Name(), string(result.Status),
			time.Duration(result.ExecutionTimeMs)*time.Millisecond)
		results = append(results, result)
		used = append(used, rl)
	}
	return results, used
}

func (o *Orchestrator) publishEvent(ctx context.Context, payload map[string]any) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("publish event failed",
			zap.String("type", fmt.Sprint(payload["type"])),
			zap.Error(err))
	}
}

func deriveRunStatus(total, succeeded int) fog.RunStatus {
	if total > 0 && succeeded == 0 {
		return fog.RunStatusFailed
	}
	return fog.RunStatusSucceeded
}

// SnapshotFilename builds the canonical image filename for a camera capture.
func SnapshotFilename(webcamID string, capturedAt time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", webcamID, capturedAt.UTC().Format("20060102_150405"))
}

// BlobPath places a filename under the configured storage prefix.
func BlobPath(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}

// ToLabelRecord converts a labeler result into its persisted form. Error
// results are persisted too, carrying the error text as reasoning.
func ToLabelRecord(imageID, labelerName, labelerVersion string, result fog.LabelResult) fog.LabelRecord {
	rec := fog.LabelRecord{
		ImageID:            imageID,
		LabelerName:        labelerName,
		LabelerVersion:     labelerVersion,
		FogScore:           result.FogScore,
		FogLevel:           result.FogLevel,
		Confidence:         result.Confidence,
		Reasoning:          result.Reasoning,
		VisibilityEstimate: result.VisibilityEstimate,
		WeatherConditions:  result.WeatherConditions,
		RawPayload:         result.RawPayload,
		ExecutionTimeMs:    result.ExecutionTimeMs,
	}
	if result.Status == fog.LabelStatusError {
		rec.Reasoning = result.ErrorText
	}
	return rec
}
