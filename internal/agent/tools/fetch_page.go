package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	fetchTimeout = 15 * time.Second

	// Pages shorter than this after extraction are assumed to be
	// script-rendered and retried through the headless browser.
	renderFallbackBytes = 200

	maxPageRunes = 4000
)

// PageRenderer renders a page with a real browser, used as the fallback for
// script-heavy sites.
type PageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// FetchPage retrieves a web page and returns its readable text so the model
// can ground an answer in live content.
type FetchPage struct {
	userAgent string
	renderer  PageRenderer
}

// NewFetchPage constructs the fetch_page tool. renderer may be nil, in
// which case no headless fallback happens.
func NewFetchPage(userAgent string, renderer PageRenderer) *FetchPage {
	return &FetchPage{userAgent: userAgent, renderer: renderer}
}

// Name implements Tool.
func (f *FetchPage) Name() string { return "fetch_page" }

// Invoke implements Tool.
func (f *FetchPage) Invoke(ctx context.Context, params map[string]any) (Output, error) {
	pageURL := stringParam(params, "url")
	if pageURL == "" {
		return Output{Text: "请提供网页地址"}, nil
	}
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		pageURL = "https://" + pageURL
	}

	title, text, err := f.collect(ctx, pageURL)
	if err == nil && len(text) < renderFallbackBytes && f.renderer != nil {
		if html, rerr := f.renderer.Render(ctx, pageURL); rerr == nil {
			if rendered := strings.TrimSpace(stripTags(html)); len(rendered) > len(text) {
				text = rendered
			}
		}
	}
	if err != nil {
		return Output{Text: fmt.Sprintf("网页获取失败：%v", err)}, nil
	}
	if text == "" {
		return Output{Text: "网页没有可读取的内容"}, nil
	}

	text = clampRunes(text, maxPageRunes)
	if title != "" {
		return Output{Text: fmt.Sprintf("《%s》\n%s", title, text)}, nil
	}
	return Output{Text: text}, nil
}

func (f *FetchPage) collect(ctx context.Context, pageURL string) (title, text string, err error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.SetRequestTimeout(fetchTimeout)
	collector.IgnoreRobotsTxt = false
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}

	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if title == "" {
			title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("body", func(e *colly.HTMLElement) {
		text = normalizeWhitespace(e.Text)
	})
	collector.OnError(func(_ *colly.Response, cerr error) {
		err = cerr
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if verr := collector.Visit(pageURL); verr != nil && err == nil {
			err = verr
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return "", "", fmt.Errorf("page fetch canceled: %w", ctx.Err())
	}
	if err != nil {
		return "", "", fmt.Errorf("visit %s: %w", pageURL, err)
	}
	return title, text, nil
}

var (
	tagPattern    = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)
	spacesPattern = regexp.MustCompile(`[ \t\r\f\v]+`)
	linesPattern  = regexp.MustCompile(`\n{3,}`)
)

func stripTags(html string) string {
	return normalizeWhitespace(tagPattern.ReplaceAllString(html, " "))
}

func normalizeWhitespace(s string) string {
	s = spacesPattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return linesPattern.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
}

func clampRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
