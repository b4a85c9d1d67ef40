package labeler

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/config"
	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/labeler/vision"
)

// ReadyLabeler pairs a constructed labeler with the config it was built from.
type ReadyLabeler struct {
	Labeler fog.Labeler
	Config  config.LabelerConfig
}

// Registry resolves enabled labeler configurations into instances, each
// wrapped with execution timing.
type Registry struct {
	configs map[string]config.LabelerConfig
	client  vision.Client
	clock   fog.Clock
	logger  *zap.Logger
}

// NewRegistry builds a Registry over the configured variants.
func NewRegistry(configs map[string]config.LabelerConfig, client vision.Client, clock fog.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		configs: configs,
		client:  client,
		clock:   clock,
		logger:  logger,
	}
}

// ReadyLabelers returns the labelers to run for an image, in variant-name
// order so downstream selection is stable across restarts. A variant that
// fails to construct is logged and excluded rather than aborting the batch.
func (r *Registry) ReadyLabelers() []ReadyLabeler {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var ready []ReadyLabeler
	for _, name := range names {
		cfg := r.configs[name]
		if !cfg.Enabled {
			continue
		}
		lab, err := r.build(name, cfg)
		if err != nil {
			r.logger.Warn("skipping labeler",
				zap.String("labeler", name),
				zap.Error(err))
			continue
		}
		ready = append(ready, ReadyLabeler{
			Labeler: newTimed(lab, r.clock),
			Config:  cfg,
		})
	}
	return ready
}

// PreferredLabeler returns the ready labeler matching name, or the first
// ready one in variant-name order when that variant is absent or disabled.
// The second return is false when no labeler is available at all.
func (r *Registry) PreferredLabeler(name string) (fog.Labeler, bool) {
	ready := r.ReadyLabelers()
	if len(ready) == 0 {
		return nil, false
	}
	for _, rl := range ready {
		if rl.Labeler.Name() == name {
			return rl.Labeler, true
		}
	}
	return ready[0].Labeler, true
}

func (r *Registry) build(name string, cfg config.LabelerConfig) (fog.Labeler, error) {
	if r.client == nil {
		return nil, fmt.Errorf("no vision client configured")
	}
	switch name {
	case VariantPlain:
		return NewPlain(r.client, cfg.Version, cfg.Model, r.logger.Named(name)), nil
	case VariantMasked:
		return NewMasked(r.client, cfg.Version, cfg.Model, r.logger.Named(name)), nil
	default:
		return nil, fmt.Errorf("unknown labeler variant %q", name)
	}
}

// timedLabeler wraps a labeler so every call is measured. Timing metadata is
// attached to successful results without touching their domain fields.
type timedLabeler struct {
	inner fog.Labeler
	clock fog.Clock
}

func newTimed(inner fog.Labeler, clock fog.Clock) *timedLabeler {
	return &timedLabeler{inner: inner, clock: clock}
}

// Name returns the wrapped labeler's name.
func (t *timedLabeler) Name() string { return t.inner.Name() }

// Version returns the wrapped labeler's version.
func (t *timedLabeler) Version() string { return t.inner.Version() }

// LabelImage delegates and stamps execution time and version onto the result.
func (t *timedLabeler) LabelImage(ctx context.Context, image []byte, meta fog.ImageMeta) fog.LabelResult {
	start := t.clock.Now()
	result := t.inner.LabelImage(ctx, image, meta)
	result.ExecutionTimeMs = t.clock.Now().Sub(start).Milliseconds()
	result.LabelerVersion = t.inner.Version()
	return result
}
