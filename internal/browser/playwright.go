package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// PlaywrightEngine drives Chromium through the Playwright protocol. It
// installs the driver on first start, so cold boots take longer than
// chromedp.
type PlaywrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	sem     chan struct{}
	cfg     Config
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPlaywrightEngine installs the driver if needed and launches Chromium.
func NewPlaywrightEngine(cfg Config, logger *zap.Logger) (*PlaywrightEngine, error) {
	cfg = cfg.withDefaults()

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	headless := true
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	return &PlaywrightEngine{
		pw:      pw,
		browser: browser,
		sem:     make(chan struct{}, cfg.MaxParallel),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Title implements Engine.
func (e *PlaywrightEngine) Title(ctx context.Context, url string) (string, error) {
	var title string
	err := e.withPage(ctx, url, func(page playwright.Page) error {
		t, terr := page.Title()
		if terr != nil {
			return fmt.Errorf("read title: %w", terr)
		}
		title = t
		return nil
	})
	return title, err
}

// Render implements Engine.
func (e *PlaywrightEngine) Render(ctx context.Context, url string) (string, error) {
	var html string
	err := e.withPage(ctx, url, func(page playwright.Page) error {
		content, cerr := page.Content()
		if cerr != nil {
			return fmt.Errorf("read content: %w", cerr)
		}
		html = content
		return nil
	})
	return html, err
}

// PDF implements Engine.
func (e *PlaywrightEngine) PDF(ctx context.Context, url string) ([]byte, error) {
	var pdf []byte
	err := e.withPage(ctx, url, func(page playwright.Page) error {
		printBackground := true
		data, perr := page.PDF(playwright.PagePdfOptions{
			PrintBackground: &printBackground,
		})
		if perr != nil {
			return fmt.Errorf("print pdf: %w", perr)
		}
		pdf = data
		return nil
	})
	return pdf, err
}

// withPage opens a fresh context and page, navigates and hands the page to
// fn, bounded by the parallelism limit.
func (e *PlaywrightEngine) withPage(ctx context.Context, url string, fn func(playwright.Page) error) error {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return fmt.Errorf("acquire browser slot: %w", ctx.Err())
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if e.cfg.UserAgent != "" {
		contextOpts.UserAgent = &e.cfg.UserAgent
	}
	browserCtx, err := e.browser.NewContext(contextOpts)
	if err != nil {
		return fmt.Errorf("new browser context: %w", err)
	}
	defer func() {
		if cerr := browserCtx.Close(); cerr != nil {
			e.logger.Warn("close browser context failed", zap.Error(cerr))
		}
	}()

	page, err := browserCtx.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	timeout := float64(e.cfg.NavTimeout.Milliseconds())
	page.SetDefaultTimeout(timeout)

	waitUntil := playwright.WaitUntilStateNetworkidle
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   &timeout,
	}); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return fn(page)
}

// Close shuts down the browser and the driver process.
func (e *PlaywrightEngine) Close(_ context.Context) error {
	e.closeOnce.Do(func() {
		if err := e.browser.Close(); err != nil {
			e.closeErr = fmt.Errorf("close browser: %w", err)
		}
		if err := e.pw.Stop(); err != nil && e.closeErr == nil {
			e.closeErr = fmt.Errorf("stop playwright: %w", err)
		}
	})
	return e.closeErr
}
