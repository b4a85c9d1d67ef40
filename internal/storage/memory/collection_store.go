package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// labelKey is the uniqueness key for label rows.
type labelKey struct {
	imageID string
	name    string
	version string
}

// CollectionStore provides an in-memory fog.CollectionStore for development
// and testing. It enforces the same label uniqueness as the Postgres store.
type CollectionStore struct {
	mu          sync.RWMutex
	collections map[string]fog.CollectionRecord
	labels      map[labelKey]fog.LabelRecord
	runs        map[string]fog.RunSummary
}

// NewCollectionStore constructs a CollectionStore.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		collections: make(map[string]fog.CollectionRecord),
		labels:      make(map[labelKey]fog.LabelRecord),
		runs:        make(map[string]fog.RunSummary),
	}
}

// InsertCollection stores a collection row once.
func (s *CollectionStore) InsertCollection(_ context.Context, rec fog.CollectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[rec.ID]; exists {
		return fmt.Errorf("collection %s already exists", rec.ID)
	}
	s.collections[rec.ID] = rec
	return nil
}

// UpsertLabel stores a label row, overwriting on key conflict.
func (s *CollectionStore) UpsertLabel(_ context.Context, rec fog.LabelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[labelKey{rec.ImageID, rec.LabelerName, rec.LabelerVersion}] = rec
	return nil
}

// LatestCollection returns the newest collection in the window, or nil.
func (s *CollectionStore) LatestCollection(_ context.Context, webcamID string, since time.Time) (*fog.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *fog.CollectionRecord
	for _, rec := range s.collections {
		if rec.WebcamID != webcamID || rec.Timestamp.Before(since) {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

// LabelsFor returns labels for an image ordered by labeler name.
func (s *CollectionStore) LabelsFor(_ context.Context, imageID string) ([]fog.LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fog.LabelRecord
	for key, rec := range s.labels {
		if key.imageID == imageID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LabelerName != out[j].LabelerName {
			return out[i].LabelerName < out[j].LabelerName
		}
		return out[i].LabelerVersion < out[j].LabelerVersion
	})
	return out, nil
}

// CreateRun stores a run summary.
func (s *CollectionStore) CreateRun(_ context.Context, run fog.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// FinalizeRun replaces the stored run summary.
func (s *CollectionStore) FinalizeRun(_ context.Context, run fog.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("run %s: %w", run.ID, fog.ErrNotFound)
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run summary by id.
func (s *CollectionStore) GetRun(_ context.Context, runID string) (fog.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return fog.RunSummary{}, fmt.Errorf("run %s: %w", runID, fog.ErrNotFound)
	}
	return run, nil
}

// Ping always succeeds for the in-memory store.
func (s *CollectionStore) Ping(context.Context) error { return nil }

// CollectionsFor returns all collections for a webcam (test helper).
func (s *CollectionStore) CollectionsFor(webcamID string) []fog.CollectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fog.CollectionRecord
	for _, rec := range s.collections {
		if rec.WebcamID == webcamID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// LabelCount returns the number of stored label rows (test helper).
func (s *CollectionStore) LabelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}
