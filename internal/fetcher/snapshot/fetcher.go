// Package snapshot downloads one current image per webcam, resolving dynamic
// snapshot URLs through the discovery cache as needed.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// Config controls fetch behavior.
type Config struct {
	Timeout      time.Duration
	ProbeTimeout time.Duration
	UserAgent    string
}

// Discoverer resolves a dynamic camera alias to a live snapshot URL.
type Discoverer interface {
	Discover(ctx context.Context, alias string) (string, error)
}

// Fetcher implements fog.SnapshotFetcher over HTTP via Colly.
type Fetcher struct {
	cfg        Config
	discoverer Discoverer
	directory  fog.Directory
	clock      fog.Clock
	logger     *zap.Logger
	base       *colly.Collector
}

// New builds a Fetcher. discoverer may be nil when the fleet has no dynamic
// cameras.
func New(cfg Config, discoverer Discoverer, directory fog.Directory, clock fog.Clock, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Fetcher{
		cfg:        cfg,
		discoverer: discoverer,
		directory:  directory,
		clock:      clock,
		logger:     logger,
		base:       c,
	}
}

// Fetch resolves the camera's current image URL and downloads one image.
// Dynamic cameras may have their descriptor cache updated in place as a side
// effect; failures there never abort the fetch.
func (f *Fetcher) Fetch(ctx context.Context, cam *fog.Webcam) ([]byte, error) {
	imageURL, err := f.resolveURL(ctx, cam)
	if err != nil {
		return nil, err
	}
	body, err := f.get(ctx, imageURL, f.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot for %s: %w", cam.ID, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch snapshot for %s: empty body", cam.ID)
	}
	return body, nil
}

func (f *Fetcher) resolveURL(ctx context.Context, cam *fog.Webcam) (string, error) {
	desc := &cam.Descriptor
	if desc.Kind != fog.DescriptorDynamic {
		if desc.URL == "" {
			return "", fmt.Errorf("webcam %s has no snapshot url", cam.ID)
		}
		return desc.URL, nil
	}

	now := f.clock.Now()
	if desc.CacheValid(now) && f.probe(ctx, desc.CachedURL) {
		return desc.CachedURL, nil
	}

	if f.discoverer == nil {
		return "", fmt.Errorf("webcam %s is dynamic but no discoverer is configured", cam.ID)
	}
	discovered, err := f.discoverer.Discover(ctx, desc.Alias)
	if err != nil {
		// Last known URL beats failing the whole camera.
		if desc.CachedURL != "" {
			f.logger.Warn("discovery failed, using last known url",
				zap.String("webcam_id", cam.ID),
				zap.Error(err))
			return desc.CachedURL, nil
		}
		return "", fmt.Errorf("discover snapshot url for %s: %w", cam.ID, err)
	}

	desc.CachedURL = discovered
	at := now
	desc.CachedAt = &at
	if err := f.directory.UpdateDiscoveryCache(ctx, cam.ID, discovered, now); err != nil {
		f.logger.Warn("persist discovery cache failed",
			zap.String("webcam_id", cam.ID),
			zap.Error(err))
	}
	return discovered, nil
}

// probe performs a lightweight existence check on a cached URL.
func (f *Fetcher) probe(ctx context.Context, rawURL string) bool {
	collector := f.base.Clone()
	collector.SetRequestTimeout(f.cfg.ProbeTimeout)

	ok := false
	collector.OnResponse(func(r *colly.Response) {
		ok = r.StatusCode >= 200 && r.StatusCode < 300
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Head(rawURL)
	}()

	select {
	case <-ctx.Done():
		return false
	case err := <-done:
		return err == nil && ok
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	collector := f.base.Clone()
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("snapshot fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response from %s: %w", rawURL, fetchErr)
		}
		return body, nil
	}
}
