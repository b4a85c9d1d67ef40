// Package discover resolves a dynamic webcam's live snapshot URL from its
// intermediary player page.
package discover

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/metrics"
)

// Player pages inline the stream address and id in a script blob; both tokens
// appear as quoted key/value pairs regardless of how the page is built.
var (
	addressPattern  = regexp.MustCompile(`["']?address["']?\s*[:=]\s*["']([^"']+)["']`)
	streamIDPattern = regexp.MustCompile(`["']?streamId["']?\s*[:=]\s*["']([^"']+)["']`)
)

// Config controls discovery behavior.
type Config struct {
	// PlayerURLTemplate is an fmt template with one %s verb for the alias.
	PlayerURLTemplate string
	Timeout           time.Duration
	UserAgent         string
}

// Renderer produces the DOM of a player page after script execution. It is
// consulted only when the plain page body yields no tokens.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
	Close()
}

// Discoverer fetches player pages and extracts snapshot URLs.
type Discoverer struct {
	cfg      Config
	renderer Renderer
	logger   *zap.Logger
	base     *colly.Collector
}

// New builds a Discoverer. renderer may be nil.
func New(cfg Config, renderer Renderer, logger *zap.Logger) *Discoverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Discoverer{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
		base:     c,
	}
}

// Discover fetches the camera's player page and composes the snapshot URL
// from the embedded address and stream id tokens.
func (d *Discoverer) Discover(ctx context.Context, alias string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("discovery alias is required")
	}
	playerURL := fmt.Sprintf(d.cfg.PlayerURLTemplate, alias)

	body, err := d.fetchPlayerPage(ctx, playerURL)
	if err != nil {
		metrics.ObserveDiscovery("error")
		return "", fmt.Errorf("fetch player page: %w", err)
	}

	address, streamID, ok := ExtractTokens(body)
	if !ok && d.renderer != nil {
		d.logger.Debug("player page missing tokens, rendering",
			zap.String("alias", alias))
		rendered, renderErr := d.renderer.Render(ctx, playerURL)
		if renderErr != nil {
			metrics.ObserveDiscovery("error")
			return "", fmt.Errorf("render player page: %w", renderErr)
		}
		address, streamID, ok = ExtractTokens(rendered)
	}
	if !ok {
		metrics.ObserveDiscovery("error")
		return "", fmt.Errorf("player page for %q does not contain address/streamId tokens", alias)
	}

	snapshot, err := ComposeSnapshotURL(address, streamID)
	if err != nil {
		metrics.ObserveDiscovery("error")
		return "", err
	}
	metrics.ObserveDiscovery("success")
	return snapshot, nil
}

func (d *Discoverer) fetchPlayerPage(ctx context.Context, pageURL string) (string, error) {
	collector := d.base.Clone()
	collector.SetRequestTimeout(d.cfg.Timeout)

	var (
		body     string
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("player fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit player page: %w", err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("player page response: %w", fetchErr)
		}
		return body, nil
	}
}

// ExtractTokens pulls the stream address and id out of a player page body.
func ExtractTokens(body string) (address string, streamID string, ok bool) {
	addr := addressPattern.FindStringSubmatch(body)
	stream := streamIDPattern.FindStringSubmatch(body)
	if addr == nil || stream == nil {
		return "", "", false
	}
	return addr[1], stream[1], true
}

// ComposeSnapshotURL joins the discovered address and stream id into the
// snapshot endpoint, forcing secure transport.
func ComposeSnapshotURL(address string, streamID string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parse discovered address %q: %w", address, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("discovered address %q has no host", address)
	}
	u.Scheme = "https"
	base := u.String()
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "streams/" + streamID + "/snapshot.jpg", nil
}
