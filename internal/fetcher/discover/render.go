package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// RenderConfig controls the headless rendering fallback.
type RenderConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// ChromedpRenderer renders player pages with headless Chrome for the cameras
// whose token blob is injected by script.
type ChromedpRenderer struct {
	cfg         RenderConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer backed by chromedp.
func NewChromedpRenderer(cfg RenderConfig) (*ChromedpRenderer, error) {
	if cfg.MaxParallel <= 0 {
		return nil, fmt.Errorf("render max parallel must be > 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpRenderer{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *ChromedpRenderer) Close() {
	r.allocCancel()
}

// Render navigates to the page and returns the fully rendered DOM.
func (r *ChromedpRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	select {
	case r.limiter <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
	defer func() { <-r.limiter }()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if r.cfg.UserAgent == "" {
				return nil
			}
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}
