package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpEngine drives headless Chrome through the DevTools protocol.
type ChromedpEngine struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	cfg             Config
	logger          *zap.Logger
}

// NewChromedpEngine launches the browser and verifies it responds.
func NewChromedpEngine(cfg Config, logger *zap.Logger) (*ChromedpEngine, error) {
	cfg = cfg.withDefaults()

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpEngine{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxParallel),
		cfg:             cfg,
		logger:          logger,
	}, nil
}

// Title implements Engine.
func (e *ChromedpEngine) Title(ctx context.Context, url string) (string, error) {
	var title string
	err := e.run(ctx, chromedp.Tasks{
		e.navigate(url),
		chromedp.Title(&title),
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

// Render implements Engine.
func (e *ChromedpEngine) Render(ctx context.Context, url string) (string, error) {
	var html string
	err := e.run(ctx, chromedp.Tasks{
		e.navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	})
	if err != nil {
		return "", err
	}
	return html, nil
}

// PDF implements Engine.
func (e *ChromedpEngine) PDF(ctx context.Context, url string) ([]byte, error) {
	var pdf []byte
	err := e.run(ctx, chromedp.Tasks{
		e.navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, perr := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if perr != nil {
				return perr
			}
			pdf = data
			return nil
		}),
	})
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

func (e *ChromedpEngine) navigate(url string) chromedp.Tasks {
	tasks := chromedp.Tasks{}
	if e.cfg.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(e.cfg.UserAgent))
	}
	return append(tasks,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// run executes the tasks in a fresh tab, bounded by the parallelism limit
// and the navigation timeout.
func (e *ChromedpEngine) run(ctx context.Context, tasks chromedp.Tasks) error {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return fmt.Errorf("acquire browser slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.cfg.NavTimeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Close tears down the chromedp allocator and browser contexts.
func (e *ChromedpEngine) Close(_ context.Context) error {
	if e == nil {
		return nil
	}
	e.browserCancel()
	e.allocatorCancel()
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
