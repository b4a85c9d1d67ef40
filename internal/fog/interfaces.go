package fog

import (
	"context"
	"time"
)

// Directory reads the webcam fleet and accepts best-effort writes of
// discovery cache metadata.
type Directory interface {
	ListActiveWebcams(ctx context.Context) ([]Webcam, error)
	GetWebcam(ctx context.Context, webcamID string) (Webcam, error)
	UpdateDiscoveryCache(ctx context.Context, webcamID string, url string, discoveredAt time.Time) error
}

// SnapshotFetcher resolves a webcam's current image URL and downloads one
// image. It may mutate the webcam's descriptor cache in place.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, cam *Webcam) ([]byte, error)
}

// Labeler turns one image into one fog assessment.
type Labeler interface {
	Name() string
	Version() string
	LabelImage(ctx context.Context, image []byte, meta ImageMeta) LabelResult
}

// BlobStore writes raw artifacts and resolves public URLs.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	PublicURL(path string) string
}

// CollectionStore persists collections, labels and run summaries.
type CollectionStore interface {
	InsertCollection(ctx context.Context, rec CollectionRecord) error
	UpsertLabel(ctx context.Context, rec LabelRecord) error
	LatestCollection(ctx context.Context, webcamID string, since time.Time) (*CollectionRecord, error)
	LabelsFor(ctx context.Context, imageID string) ([]LabelRecord, error)
	CreateRun(ctx context.Context, run RunSummary) error
	FinalizeRun(ctx context.Context, run RunSummary) error
	GetRun(ctx context.Context, runID string) (RunSummary, error)
	Ping(ctx context.Context) error
}

// Publisher pushes pipeline events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
