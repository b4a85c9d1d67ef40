// Package fog defines core types shared across subsystems.
package fog

import (
	"encoding/json"
	"time"
)

// DescriptorKind distinguishes how a webcam's snapshot URL is obtained.
type DescriptorKind string

// Descriptor kinds stored on webcam rows.
const (
	DescriptorStatic  DescriptorKind = "static"
	DescriptorDynamic DescriptorKind = "dynamic"
)

// FetchDescriptor tells the fetcher where a webcam's current image lives.
// Static cameras carry a fixed URL. Dynamic cameras carry a player alias plus
// the last discovered URL and when it was discovered; a cached URL older than
// TTLSeconds must be re-validated before use.
type FetchDescriptor struct {
	Kind       DescriptorKind `json:"kind"`
	URL        string         `json:"url,omitempty"`
	Alias      string         `json:"alias,omitempty"`
	CachedURL  string         `json:"cached_url,omitempty"`
	CachedAt   *time.Time     `json:"cached_at,omitempty"`
	TTLSeconds int            `json:"ttl_seconds,omitempty"`
}

// CacheValid reports whether the cached discovery URL is inside its TTL.
func (d FetchDescriptor) CacheValid(now time.Time) bool {
	if d.CachedURL == "" || d.CachedAt == nil || d.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(*d.CachedAt) < time.Duration(d.TTLSeconds)*time.Second
}

// Webcam is one camera in the fleet directory. Rows are owned by an external
// management process; the pipeline only reads them, except for the discovery
// cache on the descriptor which is written back best-effort.
type Webcam struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Descriptor FetchDescriptor `json:"descriptor"`
	Latitude   float64         `json:"lat"`
	Longitude  float64         `json:"lon"`
	Active     bool            `json:"active"`
}

// CollectionRecord is persisted once per successful image fetch and is
// immutable afterwards.
type CollectionRecord struct {
	ID        string    `json:"id"`
	WebcamID  string    `json:"webcam_id"`
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	BlobPath  string    `json:"blob_path"`
}

// LabelRecord is one labeler's assessment of one collected image.
// (ImageID, LabelerName, LabelerVersion) is unique; re-labeling overwrites.
type LabelRecord struct {
	ImageID            string          `json:"image_id"`
	LabelerName        string          `json:"labeler_name"`
	LabelerVersion     string          `json:"labeler_version"`
	FogScore           int             `json:"fog_score"`
	FogLevel           string          `json:"fog_level"`
	Confidence         float64         `json:"confidence"`
	Reasoning          string          `json:"reasoning"`
	VisibilityEstimate string          `json:"visibility_estimate"`
	WeatherConditions  []string        `json:"weather_conditions"`
	RawPayload         json.RawMessage `json:"raw_payload,omitempty"`
	ExecutionTimeMs    int64           `json:"execution_time_ms"`
}

// LabelStatus marks a label result as a real assessment or a recorded failure.
type LabelStatus string

// Label result statuses.
const (
	LabelStatusSuccess LabelStatus = "success"
	LabelStatusError   LabelStatus = "error"
)

// LabelResult is what a labeler returns for one image. Labeling never raises
// out of the labeling path: exhausted retries come back as LabelStatusError
// with ErrorText set, so the attempt can still be recorded.
type LabelResult struct {
	Status             LabelStatus     `json:"status"`
	FogScore           int             `json:"fog_score"`
	FogLevel           string          `json:"fog_level"`
	Confidence         float64         `json:"confidence"`
	Reasoning          string          `json:"reasoning"`
	VisibilityEstimate string          `json:"visibility_estimate"`
	WeatherConditions  []string        `json:"weather_conditions"`
	RawPayload         json.RawMessage `json:"raw_payload,omitempty"`
	ErrorText          string          `json:"error_text,omitempty"`
	ExecutionTimeMs    int64           `json:"execution_time_ms"`
	LabelerVersion     string          `json:"labeler_version,omitempty"`
}

// ErrorResult builds a LabelResult recording a failed labeling attempt.
func ErrorResult(err error) LabelResult {
	return LabelResult{
		Status:    LabelStatusError,
		FogLevel:  "Error",
		ErrorText: err.Error(),
	}
}

// ImageMeta carries camera context alongside the raw image bytes.
type ImageMeta struct {
	WebcamID   string
	WebcamName string
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// RunStatus is the lifecycle state of a collection run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary is created at run start and finalized once per orchestrator
// invocation; rows are append-only.
type RunSummary struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	TotalCameras int        `json:"total_cameras"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Summary      string     `json:"summary,omitempty"`
}
