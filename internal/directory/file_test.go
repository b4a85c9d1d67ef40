package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coastalfog/fogwatch/internal/fog"
)

const snapshotJSON = `{
  "webcams": [
    {
      "id": "cam-static",
      "name": "Harbor South",
      "url": "https://cams.example.com/harbor.jpg",
      "lat": 37.8,
      "lon": -122.4,
      "active": true,
      "cameraType": "static"
    },
    {
      "id": "cam-dynamic",
      "name": "Point Lookout",
      "lat": 37.5,
      "lon": -122.5,
      "active": true,
      "cameraType": "dynamic",
      "discoveryMetadata": {
        "alias": "lookout-1",
        "cachedUrl": "https://cdn.example.com/streams/abc/snapshot.jpg",
        "cachedAt": "2025-06-01T12:00:00Z",
        "ttlSeconds": 3600
      }
    },
    {
      "id": "cam-retired",
      "name": "Old Pier",
      "url": "https://cams.example.com/pier.jpg",
      "active": false,
      "cameraType": "static"
    }
  ]
}`

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webcams.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON), 0o600))
	return path
}

func TestFileDirectory_ListActiveWebcams(t *testing.T) {
	t.Parallel()

	dir, err := NewFile(writeSnapshot(t))
	require.NoError(t, err)

	cams, err := dir.ListActiveWebcams(context.Background())
	require.NoError(t, err)
	require.Len(t, cams, 2)

	require.Equal(t, "cam-static", cams[0].ID)
	require.Equal(t, fog.DescriptorStatic, cams[0].Descriptor.Kind)
	require.Equal(t, "https://cams.example.com/harbor.jpg", cams[0].Descriptor.URL)

	require.Equal(t, "cam-dynamic", cams[1].ID)
	require.Equal(t, fog.DescriptorDynamic, cams[1].Descriptor.Kind)
	require.Equal(t, "lookout-1", cams[1].Descriptor.Alias)
	require.Equal(t, 3600, cams[1].Descriptor.TTLSeconds)
	require.NotNil(t, cams[1].Descriptor.CachedAt)
}

func TestFileDirectory_GetWebcam(t *testing.T) {
	t.Parallel()

	dir, err := NewFile(writeSnapshot(t))
	require.NoError(t, err)

	cam, err := dir.GetWebcam(context.Background(), "cam-retired")
	require.NoError(t, err)
	require.False(t, cam.Active)

	_, err = dir.GetWebcam(context.Background(), "cam-unknown")
	require.ErrorIs(t, err, fog.ErrNotFound)
}

func TestFileDirectory_UpdateDiscoveryCache(t *testing.T) {
	t.Parallel()

	dir, err := NewFile(writeSnapshot(t))
	require.NoError(t, err)

	discovered := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	err = dir.UpdateDiscoveryCache(context.Background(), "cam-dynamic", "https://cdn.example.com/streams/new/snapshot.jpg", discovered)
	require.NoError(t, err)

	cam, err := dir.GetWebcam(context.Background(), "cam-dynamic")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/streams/new/snapshot.jpg", cam.Descriptor.CachedURL)
	require.Equal(t, discovered, *cam.Descriptor.CachedAt)

	err = dir.UpdateDiscoveryCache(context.Background(), "cam-unknown", "https://x", discovered)
	require.ErrorIs(t, err, fog.ErrNotFound)
}

func TestNewFile_MissingOrBadFile(t *testing.T) {
	t.Parallel()

	_, err := NewFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))
	_, err = NewFile(bad)
	require.Error(t, err)
}
