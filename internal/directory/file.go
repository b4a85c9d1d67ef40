package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// fileWebcam mirrors the JSON shape of the static directory snapshot.
type fileWebcam struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	URL               string             `json:"url"`
	Lat               float64            `json:"lat"`
	Lon               float64            `json:"lon"`
	Active            bool               `json:"active"`
	CameraType        string             `json:"cameraType"`
	DiscoveryMetadata *discoveryMetadata `json:"discoveryMetadata,omitempty"`
}

type discoveryMetadata struct {
	Alias      string     `json:"alias"`
	CachedURL  string     `json:"cachedUrl,omitempty"`
	CachedAt   *time.Time `json:"cachedAt,omitempty"`
	TTLSeconds int        `json:"ttlSeconds,omitempty"`
}

type fileSnapshot struct {
	Webcams []fileWebcam `json:"webcams"`
}

// FileDirectory serves webcams from a static JSON snapshot. It exists as the
// fallback when the relational directory is unavailable; discovery cache
// updates are held in memory only.
type FileDirectory struct {
	mu   sync.RWMutex
	cams []fog.Webcam
}

// NewFile loads a directory snapshot from disk.
func NewFile(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory snapshot: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse directory snapshot: %w", err)
	}
	cams := make([]fog.Webcam, 0, len(snap.Webcams))
	for _, fw := range snap.Webcams {
		cams = append(cams, fw.toWebcam())
	}
	return &FileDirectory{cams: cams}, nil
}

// ListActiveWebcams returns the active cameras from the snapshot.
func (d *FileDirectory) ListActiveWebcams(_ context.Context) ([]fog.Webcam, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []fog.Webcam
	for _, cam := range d.cams {
		if cam.Active {
			out = append(out, cam)
		}
	}
	return out, nil
}

// GetWebcam returns one camera from the snapshot by id.
func (d *FileDirectory) GetWebcam(_ context.Context, webcamID string) (fog.Webcam, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, cam := range d.cams {
		if cam.ID == webcamID {
			return cam, nil
		}
	}
	return fog.Webcam{}, fmt.Errorf("webcam %s: %w", webcamID, fog.ErrNotFound)
}

// UpdateDiscoveryCache records the discovered URL in memory so later fetches
// within the same process still benefit from it.
func (d *FileDirectory) UpdateDiscoveryCache(_ context.Context, webcamID string, url string, discoveredAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cams {
		if d.cams[i].ID != webcamID {
			continue
		}
		at := discoveredAt
		d.cams[i].Descriptor.CachedURL = url
		d.cams[i].Descriptor.CachedAt = &at
		return nil
	}
	return fmt.Errorf("webcam %s: %w", webcamID, fog.ErrNotFound)
}

func (fw fileWebcam) toWebcam() fog.Webcam {
	cam := fog.Webcam{
		ID:        fw.ID,
		Name:      fw.Name,
		Latitude:  fw.Lat,
		Longitude: fw.Lon,
		Active:    fw.Active,
	}
	if fw.CameraType == string(fog.DescriptorDynamic) && fw.DiscoveryMetadata != nil {
		cam.Descriptor = fog.FetchDescriptor{
			Kind:       fog.DescriptorDynamic,
			Alias:      fw.DiscoveryMetadata.Alias,
			CachedURL:  fw.DiscoveryMetadata.CachedURL,
			CachedAt:   fw.DiscoveryMetadata.CachedAt,
			TTLSeconds: fw.DiscoveryMetadata.TTLSeconds,
		}
		return cam
	}
	cam.Descriptor = fog.FetchDescriptor{
		Kind: fog.DescriptorStatic,
		URL:  fw.URL,
	}
	return cam
}
