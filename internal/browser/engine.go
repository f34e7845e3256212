// Package browser provides headless browser engines for page rendering and
// PDF generation. Two implementations exist, chromedp and Playwright, both
// driving the bundled Chromium.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrEngineDisabled indicates the browser engine has been disabled via
// configuration.
var ErrEngineDisabled = errors.New("browser engine disabled")

// Engine abstracts a headless browser.
type Engine interface {
	// Title navigates to the URL and returns the page title, used by the
	// health probe endpoint.
	Title(ctx context.Context, url string) (string, error)

	// Render returns the page's outer HTML after scripts have run.
	Render(ctx context.Context, url string) (string, error)

	// PDF prints the page to a PDF document.
	PDF(ctx context.Context, url string) ([]byte, error)

	// Close tears down the browser processes.
	Close(ctx context.Context) error
}

// Config controls engine behavior.
type Config struct {
	// MaxParallel bounds concurrent pages; the container ships a single
	// Chromium, so this defaults to 1.
	MaxParallel int
	NavTimeout  time.Duration
	UserAgent   string
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 25 * time.Second
	}
	return c
}

// NoOpEngine is used when no browser is configured. All operations fail
// with ErrEngineDisabled.
type NoOpEngine struct{}

// Title implements Engine.
func (NoOpEngine) Title(context.Context, string) (string, error) { return "", ErrEngineDisabled }

// Render implements Engine.
func (NoOpEngine) Render(context.Context, string) (string, error) { return "", ErrEngineDisabled }

// PDF implements Engine.
func (NoOpEngine) PDF(context.Context, string) ([]byte, error) { return nil, ErrEngineDisabled }

// Close implements Engine.
func (NoOpEngine) Close(context.Context) error { return nil }
