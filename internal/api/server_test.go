package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/refresh"
)

type fakeRefresher struct {
	result refresh.Result
	err    error
}

func (f *fakeRefresher) Current(context.Context, string) (refresh.Result, error) {
	return f.result, f.err
}

type fakeStore struct {
	pingErr error
	runs    map[string]fog.RunSummary
}

func (f *fakeStore) InsertCollection(context.Context, fog.CollectionRecord) error { return nil }
func (f *fakeStore) UpsertLabel(context.Context, fog.LabelRecord) error           { return nil }

func (f *fakeStore) LatestCollection(context.Context, string, time.Time) (*fog.CollectionRecord, error) {
	return nil, nil
}

func (f *fakeStore) LabelsFor(context.Context, string) ([]fog.LabelRecord, error) { return nil, nil }
func (f *fakeStore) CreateRun(context.Context, fog.RunSummary) error              { return nil }
func (f *fakeStore) FinalizeRun(context.Context, fog.RunSummary) error            { return nil }

func (f *fakeStore) GetRun(_ context.Context, runID string) (fog.RunSummary, error) {
	run, ok := f.runs[runID]
	if !ok {
		return fog.RunSummary{}, fog.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRefresher{}, &fakeStore{}, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRefresher{}, &fakeStore{}, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	s = NewServer(&fakeRefresher{}, &fakeStore{pingErr: errors.New("connection refused")}, zap.NewNop())
	rec = doRequest(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_GetCurrent_Success(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{result: refresh.Result{
		WebcamID: "cam-1",
		Collection: fog.CollectionRecord{
			ID:       "col-1",
			WebcamID: "cam-1",
		},
		Labels:     []fog.LabelRecord{{ImageID: "col-1", LabelerName: "plain", FogScore: 72, FogLevel: "Heavy Fog"}},
		ImageURL:   "https://blobs.example.com/webcam_images/cam-1.jpg",
		AgeMinutes: 10,
		Source:     refresh.SourceCache,
	}}
	s := NewServer(refresher, &fakeStore{}, zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/v1/webcams/cam-1/current")
	require.Equal(t, http.StatusOK, rec.Code)

	var body refresh.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "cam-1", body.WebcamID)
	require.Equal(t, "cache", body.Source)
	require.Equal(t, 72, body.Labels[0].FogScore)
}

func TestServer_GetCurrent_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown webcam", fog.ErrNotFound, http.StatusNotFound},
		{"no data", fog.ErrNoData, http.StatusNotFound},
		{"internal failure", errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewServer(&fakeRefresher{err: tt.err}, &fakeStore{}, zap.NewNop())
			rec := doRequest(t, s, http.MethodGet, "/v1/webcams/cam-1/current")
			require.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	finished := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	store := &fakeStore{runs: map[string]fog.RunSummary{
		"run-1": {
			ID:           "run-1",
			Status:       fog.RunStatusSucceeded,
			TotalCameras: 12,
			Succeeded:    11,
			Failed:       1,
			FinishedAt:   &finished,
		},
	}}
	s := NewServer(&fakeRefresher{}, store, zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var run fog.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, fog.RunStatusSucceeded, run.Status)
	require.Equal(t, 11, run.Succeeded)

	rec = doRequest(t, s, http.MethodGet, "/v1/runs/run-missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRefresher{}, &fakeStore{}, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
