package discover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/metrics"
)

const playerPage = `<html><body><script>
var player = { "address": "http://cdn-wp-07.example.com", "streamId": "a81f22c9" };
</script></body></html>`

func TestExtractTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		address  string
		streamID string
		ok       bool
	}{
		{
			name:     "json style",
			body:     playerPage,
			address:  "http://cdn-wp-07.example.com",
			streamID: "a81f22c9",
			ok:       true,
		},
		{
			name:     "assignment style",
			body:     `address = 'https://cdn.example.com'; streamId = 'xyz';`,
			address:  "https://cdn.example.com",
			streamID: "xyz",
			ok:       true,
		},
		{
			name: "missing stream id",
			body: `"address": "http://cdn.example.com"`,
		},
		{
			name: "empty body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			address, streamID, ok := ExtractTokens(tt.body)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.address, address)
			require.Equal(t, tt.streamID, streamID)
		})
	}
}

func TestComposeSnapshotURL(t *testing.T) {
	t.Parallel()

	url, err := ComposeSnapshotURL("http://cdn-wp-07.example.com", "a81f22c9")
	require.NoError(t, err)
	require.Equal(t, "https://cdn-wp-07.example.com/streams/a81f22c9/snapshot.jpg", url)

	url, err = ComposeSnapshotURL("https://cdn.example.com/path/", "xyz")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/path/streams/xyz/snapshot.jpg", url)

	_, err = ComposeSnapshotURL("not a url at all %%%", "xyz")
	require.Error(t, err)
}

func TestDiscoverer_Discover_PlainPage(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/player/lookout-1/day", r.URL.Path)
		_, _ = w.Write([]byte(playerPage))
	}))
	defer srv.Close()

	d := New(Config{
		PlayerURLTemplate: srv.URL + "/player/%s/day",
	}, nil, zap.NewNop())

	url, err := d.Discover(context.Background(), "lookout-1")
	require.NoError(t, err)
	require.Equal(t, "https://cdn-wp-07.example.com/streams/a81f22c9/snapshot.jpg", url)
}

type fakeRenderer struct {
	body string
	err  error
}

func (f *fakeRenderer) Render(context.Context, string) (string, error) {
	return f.body, f.err
}

func (f *fakeRenderer) Close() {}

func TestDiscoverer_Discover_FallsBackToRenderer(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>loading...</body></html>"))
	}))
	defer srv.Close()

	d := New(Config{
		PlayerURLTemplate: srv.URL + "/player/%s/day",
	}, &fakeRenderer{body: playerPage}, zap.NewNop())

	url, err := d.Discover(context.Background(), "lookout-1")
	require.NoError(t, err)
	require.Equal(t, "https://cdn-wp-07.example.com/streams/a81f22c9/snapshot.jpg", url)
}

func TestDiscoverer_Discover_NoTokensAnywhere(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	d := New(Config{
		PlayerURLTemplate: srv.URL + "/player/%s/day",
	}, &fakeRenderer{body: "<html></html>"}, zap.NewNop())

	_, err := d.Discover(context.Background(), "lookout-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "address/streamId")
}

func TestDiscoverer_Discover_RendererError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	d := New(Config{
		PlayerURLTemplate: srv.URL + "/player/%s/day",
	}, &fakeRenderer{err: errors.New("chrome crashed")}, zap.NewNop())

	_, err := d.Discover(context.Background(), "lookout-1")
	require.Error(t, err)
}

func TestDiscoverer_Discover_EmptyAlias(t *testing.T) {
	t.Parallel()
	metrics.Init()

	d := New(Config{PlayerURLTemplate: "https://example.com/%s"}, nil, zap.NewNop())
	_, err := d.Discover(context.Background(), "")
	require.Error(t, err)
}
