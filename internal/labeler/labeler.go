// Package labeler turns webcam images into structured fog assessments using
// an external vision model. Two strategy variants exist: plain submits the
// image as-is, masked darkens the sky region first.
package labeler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/labeler/vision"
)

// Variant names selectable from configuration.
const (
	VariantPlain  = "plain"
	VariantMasked = "masked"
)

// strategy is the shared labeling skeleton; variants differ only in prompt
// and preprocessing.
type strategy struct {
	name       string
	version    string
	model      string
	prompt     string
	preprocess func([]byte) ([]byte, error)
	client     vision.Client
	retry      *fog.RetryPolicy
	logger     *zap.Logger
}

// NewPlain builds the plain labeler variant.
func NewPlain(client vision.Client, version, model string, logger *zap.Logger) fog.Labeler {
	return &strategy{
		name:    VariantPlain,
		version: version,
		model:   model,
		prompt:  plainPrompt,
		client:  client,
		retry:   fog.NewRetryPolicy(),
		logger:  logger,
	}
}

// NewMasked builds the sky-masked labeler variant.
func NewMasked(client vision.Client, version, model string, logger *zap.Logger) fog.Labeler {
	return &strategy{
		name:       VariantMasked,
		version:    version,
		model:      model,
		prompt:     maskedPrompt,
		preprocess: ApplyGradientMask,
		client:     client,
		retry:      fog.NewRetryPolicy(),
		logger:     logger,
	}
}

// Name returns the variant name.
func (s *strategy) Name() string { return s.name }

// Version returns the configured labeler version.
func (s *strategy) Version() string { return s.version }

// LabelImage runs the full analyze-parse-validate cycle with retries.
// It never returns an error: exhausted retries come back as an Error result
// so the attempt is still recordable.
func (s *strategy) LabelImage(ctx context.Context, image []byte, meta fog.ImageMeta) fog.LabelResult {
	submitted := image
	if s.preprocess != nil {
		masked, err := s.preprocess(image)
		if err != nil {
			s.logger.Error("preprocess failed",
				zap.String("labeler", s.name),
				zap.String("webcam_id", meta.WebcamID),
				zap.Error(err))
			return fog.ErrorResult(fmt.Errorf("preprocess image: %w", err))
		}
		submitted = masked
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := s.attempt(ctx, submitted)
		if err == nil {
			return result
		}
		lastErr = err
		if !s.retry.ShouldRetry(err, attempt+1) {
			break
		}
		s.logger.Warn("label attempt failed, retrying",
			zap.String("labeler", s.name),
			zap.String("webcam_id", meta.WebcamID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fog.ErrorResult(fmt.Errorf("labeling canceled: %w", ctx.Err()))
		case <-time.After(s.retry.Backoff(attempt)):
		}
	}

	s.logger.Error("labeling exhausted retries",
		zap.String("labeler", s.name),
		zap.String("webcam_id", meta.WebcamID),
		zap.Error(lastErr))
	return fog.ErrorResult(lastErr)
}

func (s *strategy) attempt(ctx context.Context, image []byte) (fog.LabelResult, error) {
	text, err := s.client.Analyze(ctx, vision.Request{
		Prompt: s.prompt,
		Image:  image,
		Model:  s.model,
	})
	if err != nil {
		return fog.LabelResult{}, err
	}
	payload, raw, err := ParseResponse(text)
	if err != nil {
		return fog.LabelResult{}, err
	}
	return fog.LabelResult{
		Status:             fog.LabelStatusSuccess,
		FogScore:           int(*payload.FogScore),
		FogLevel:           payload.FogLevel,
		Confidence:         *payload.Confidence,
		Reasoning:          payload.Reasoning,
		VisibilityEstimate: payload.VisibilityEstimate,
		WeatherConditions:  payload.WeatherConditions,
		RawPayload:         raw,
	}, nil
}
