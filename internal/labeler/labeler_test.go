package labeler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/labeler/vision"
)

const goodResponse = "```json\n" +
	`{"fog_score": 72, "fog_level": "Heavy Fog", "confidence": 0.9, "reasoning": "marine layer"}` +
	"\n```"

type fakeVisionClient struct {
	responses []string
	errs      []error
	calls     atomic.Int32
}

func (f *fakeVisionClient) Analyze(_ context.Context, _ vision.Request) (string, error) {
	i := int(f.calls.Add(1)) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func testMeta() fog.ImageMeta {
	return fog.ImageMeta{WebcamID: "cam-1", WebcamName: "Harbor South"}
}

func TestStrategy_LabelImage_Success(t *testing.T) {
	t.Parallel()

	client := &fakeVisionClient{responses: []string{goodResponse}}
	lab := NewPlain(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("jpeg"), testMeta())
	require.Equal(t, fog.LabelStatusSuccess, result.Status)
	require.Equal(t, 72, result.FogScore)
	require.Equal(t, "Heavy Fog", result.FogLevel)
	require.Equal(t, 0.9, result.Confidence)
	require.NotEmpty(t, result.RawPayload)
	require.Equal(t, int32(1), client.calls.Load())
}

func TestStrategy_LabelImage_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	client := &fakeVisionClient{
		errs:      []error{errors.New("503 from upstream"), nil},
		responses: []string{"", goodResponse},
	}
	lab := NewPlain(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("jpeg"), testMeta())
	require.Equal(t, fog.LabelStatusSuccess, result.Status)
	require.Equal(t, int32(2), client.calls.Load())
}

func TestStrategy_LabelImage_ExhaustedRetriesReturnErrorResult(t *testing.T) {
	t.Parallel()

	boom := errors.New("503 from upstream")
	client := &fakeVisionClient{errs: []error{boom, boom, boom}}
	lab := NewPlain(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("jpeg"), testMeta())
	require.Equal(t, fog.LabelStatusError, result.Status)
	require.Equal(t, "Error", result.FogLevel)
	require.Contains(t, result.ErrorText, "503")
	require.Equal(t, int32(3), client.calls.Load())
}

func TestStrategy_LabelImage_AuthErrorShortCircuits(t *testing.T) {
	t.Parallel()

	client := &fakeVisionClient{errs: []error{fmt.Errorf("vision api: %w", fog.ErrAuth)}}
	lab := NewPlain(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("jpeg"), testMeta())
	require.Equal(t, fog.LabelStatusError, result.Status)
	require.Equal(t, int32(1), client.calls.Load())
}

func TestStrategy_LabelImage_ParseFailureRetries(t *testing.T) {
	t.Parallel()

	client := &fakeVisionClient{responses: []string{"no json here", goodResponse}}
	lab := NewPlain(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("jpeg"), testMeta())
	require.Equal(t, fog.LabelStatusSuccess, result.Status)
	require.Equal(t, int32(2), client.calls.Load())
}

func TestStrategy_LabelImage_MaskedPreprocessFailure(t *testing.T) {
	t.Parallel()

	client := &fakeVisionClient{responses: []string{goodResponse}}
	lab := NewMasked(client, "1.0", "gpt-4o-mini", zap.NewNop())

	result := lab.LabelImage(context.Background(), []byte("not an image"), testMeta())
	require.Equal(t, fog.LabelStatusError, result.Status)
	require.Contains(t, result.ErrorText, "preprocess")
	require.Equal(t, int32(0), client.calls.Load())
}

func TestStrategy_NameAndVersion(t *testing.T) {
	t.Parallel()

	plain := NewPlain(&fakeVisionClient{}, "2.1", "gpt-4o-mini", zap.NewNop())
	require.Equal(t, VariantPlain, plain.Name())
	require.Equal(t, "2.1", plain.Version())

	masked := NewMasked(&fakeVisionClient{}, "1.0", "gpt-4o-mini", zap.NewNop())
	require.Equal(t, VariantMasked, masked.Name())
}
