package fog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_ShouldRetry_TransientError(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy()
	err := errors.New("connection reset")
	require.True(t, p.ShouldRetry(err, 1))
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3))
}

func TestRetryPolicy_ShouldRetry_AuthErrorShortCircuits(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy()
	wrapped := errors.Join(errors.New("401 from upstream"), ErrAuth)
	require.False(t, p.ShouldRetry(wrapped, 1))
}

func TestRetryPolicy_ShouldRetry_ContextErrors(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy()
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.False(t, p.ShouldRetry(nil, 1))
}

func TestRetryPolicy_Backoff_GrowsAndStaysBounded(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy()
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestErrorResult_RecordsFailure(t *testing.T) {
	t.Parallel()

	result := ErrorResult(errors.New("model unavailable"))
	require.Equal(t, LabelStatusError, result.Status)
	require.Equal(t, "Error", result.FogLevel)
	require.Equal(t, "model unavailable", result.ErrorText)
}

func TestFetchDescriptor_CacheValid(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	old := now.Add(-2 * time.Hour)

	tests := []struct {
		name string
		desc FetchDescriptor
		want bool
	}{
		{
			name: "within ttl",
			desc: FetchDescriptor{CachedURL: "https://cdn.example.com/a.jpg", CachedAt: &recent, TTLSeconds: 3600},
			want: true,
		},
		{
			name: "expired",
			desc: FetchDescriptor{CachedURL: "https://cdn.example.com/a.jpg", CachedAt: &old, TTLSeconds: 3600},
			want: false,
		},
		{
			name: "no cached url",
			desc: FetchDescriptor{CachedAt: &recent, TTLSeconds: 3600},
			want: false,
		},
		{
			name: "no timestamp",
			desc: FetchDescriptor{CachedURL: "https://cdn.example.com/a.jpg", TTLSeconds: 3600},
			want: false,
		},
		{
			name: "zero ttl",
			desc: FetchDescriptor{CachedURL: "https://cdn.example.com/a.jpg", CachedAt: &recent},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.desc.CacheValid(now))
		})
	}
}
