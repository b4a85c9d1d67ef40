package snapshot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type fakeDiscoverer struct {
	url   string
	err   error
	calls atomic.Int32
}

func (f *fakeDiscoverer) Discover(context.Context, string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeDirectory struct {
	updates atomic.Int32
	err     error
}

func (f *fakeDirectory) ListActiveWebcams(context.Context) ([]fog.Webcam, error) {
	return nil, nil
}

func (f *fakeDirectory) GetWebcam(context.Context, string) (fog.Webcam, error) {
	return fog.Webcam{}, fog.ErrNotFound
}

func (f *fakeDirectory) UpdateDiscoveryCache(context.Context, string, string, time.Time) error {
	f.updates.Add(1)
	return f.err
}

func imageServer(t *testing.T, payload []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(payload)
	}))
}

func TestFetcher_Fetch_StaticCamera(t *testing.T) {
	t.Parallel()

	payload := []byte("jpegbytes")
	srv := imageServer(t, payload, nil)
	defer srv.Close()

	f := New(Config{}, nil, &fakeDirectory{}, &fakeClock{now: time.Now()}, zap.NewNop())
	cam := &fog.Webcam{
		ID:         "cam-static",
		Descriptor: fog.FetchDescriptor{Kind: fog.DescriptorStatic, URL: srv.URL + "/cam.jpg"},
	}

	body, err := f.Fetch(context.Background(), cam)
	require.NoError(t, err)
	require.Equal(t, payload, body)
}

func TestFetcher_Fetch_StaticCameraMissingURL(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, &fakeDirectory{}, &fakeClock{now: time.Now()}, zap.NewNop())
	cam := &fog.Webcam{ID: "cam-static", Descriptor: fog.FetchDescriptor{Kind: fog.DescriptorStatic}}

	_, err := f.Fetch(context.Background(), cam)
	require.Error(t, err)
}

func TestFetcher_Fetch_DynamicCacheValidSkipsDiscovery(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, []byte("cachedimage"), nil)
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cachedAt := now.Add(-5 * time.Minute)
	disc := &fakeDiscoverer{url: "https://should-not-be-called.example.com/snapshot.jpg"}

	f := New(Config{}, disc, &fakeDirectory{}, &fakeClock{now: now}, zap.NewNop())
	cam := &fog.Webcam{
		ID: "cam-dyn",
		Descriptor: fog.FetchDescriptor{
			Kind:       fog.DescriptorDynamic,
			Alias:      "lookout-1",
			CachedURL:  srv.URL + "/snapshot.jpg",
			CachedAt:   &cachedAt,
			TTLSeconds: 3600,
		},
	}

	body, err := f.Fetch(context.Background(), cam)
	require.NoError(t, err)
	require.Equal(t, []byte("cachedimage"), body)
	require.Equal(t, int32(0), disc.calls.Load())
}

func TestFetcher_Fetch_DynamicExpiredCacheRunsDiscovery(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, []byte("freshimage"), nil)
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cachedAt := now.Add(-3 * time.Hour)
	disc := &fakeDiscoverer{url: srv.URL + "/snapshot.jpg"}
	dir := &fakeDirectory{}

	f := New(Config{}, disc, dir, &fakeClock{now: now}, zap.NewNop())
	cam := &fog.Webcam{
		ID: "cam-dyn",
		Descriptor: fog.FetchDescriptor{
			Kind:       fog.DescriptorDynamic,
			Alias:      "lookout-1",
			CachedURL:  "http://gone.invalid/snapshot.jpg",
			CachedAt:   &cachedAt,
			TTLSeconds: 3600,
		},
	}

	body, err := f.Fetch(context.Background(), cam)
	require.NoError(t, err)
	require.Equal(t, []byte("freshimage"), body)
	require.Equal(t, int32(1), disc.calls.Load())
	require.Equal(t, int32(1), dir.updates.Load())

	// The in-memory descriptor is refreshed too.
	require.Equal(t, srv.URL+"/snapshot.jpg", cam.Descriptor.CachedURL)
	require.NotNil(t, cam.Descriptor.CachedAt)
	require.Equal(t, now, *cam.Descriptor.CachedAt)
}

func TestFetcher_Fetch_DiscoveryFailureUsesLastKnownURL(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, []byte("lastknown"), nil)
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cachedAt := now.Add(-3 * time.Hour)
	disc := &fakeDiscoverer{err: errors.New("player page unreachable")}

	f := New(Config{}, disc, &fakeDirectory{}, &fakeClock{now: now}, zap.NewNop())
	cam := &fog.Webcam{
		ID: "cam-dyn",
		Descriptor: fog.FetchDescriptor{
			Kind:       fog.DescriptorDynamic,
			Alias:      "lookout-1",
			CachedURL:  srv.URL + "/snapshot.jpg",
			CachedAt:   &cachedAt,
			TTLSeconds: 3600,
		},
	}

	body, err := f.Fetch(context.Background(), cam)
	require.NoError(t, err)
	require.Equal(t, []byte("lastknown"), body)
}

func TestFetcher_Fetch_DiscoveryFailureWithoutCacheFails(t *testing.T) {
	t.Parallel()

	disc := &fakeDiscoverer{err: errors.New("player page unreachable")}
	f := New(Config{}, disc, &fakeDirectory{}, &fakeClock{now: time.Now()}, zap.NewNop())
	cam := &fog.Webcam{
		ID:         "cam-dyn",
		Descriptor: fog.FetchDescriptor{Kind: fog.DescriptorDynamic, Alias: "lookout-1"},
	}

	_, err := f.Fetch(context.Background(), cam)
	require.Error(t, err)
	require.Contains(t, err.Error(), "discover snapshot url")
}

func TestFetcher_Fetch_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, nil, nil)
	defer srv.Close()

	f := New(Config{}, nil, &fakeDirectory{}, &fakeClock{now: time.Now()}, zap.NewNop())
	cam := &fog.Webcam{
		ID:         "cam-static",
		Descriptor: fog.FetchDescriptor{Kind: fog.DescriptorStatic, URL: srv.URL + "/cam.jpg"},
	}

	_, err := f.Fetch(context.Background(), cam)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty body")
}
