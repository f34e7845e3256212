package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PDFRenderer prints a page to PDF with a real browser.
type PDFRenderer interface {
	PDF(ctx context.Context, url string) ([]byte, error)
}

// Clock abstracts time for report naming.
type Clock interface {
	Now() time.Time
}

// RenderReport turns a web page into a PDF report the worker delivers via
// blob storage.
type RenderReport struct {
	renderer PDFRenderer
	clock    Clock
}

// NewRenderReport constructs the render_report tool.
func NewRenderReport(renderer PDFRenderer, clock Clock) *RenderReport {
	return &RenderReport{renderer: renderer, clock: clock}
}

// Name implements Tool.
func (r *RenderReport) Name() string { return "render_report" }

// Invoke implements Tool.
func (r *RenderReport) Invoke(ctx context.Context, params map[string]any) (Output, error) {
	pageURL := stringParam(params, "url")
	name := stringParam(params, "name")
	if pageURL == "" {
		return Output{Text: "请提供报告页面地址"}, nil
	}
	if r.renderer == nil {
		return Output{Text: "报告生成失败：浏览器引擎未启用"}, nil
	}
	if name == "" {
		name = "分析报告"
	}

	data, err := r.renderer.PDF(ctx, pageURL)
	if err != nil {
		return Output{Text: fmt.Sprintf("报告生成失败：%v", err)}, nil
	}

	fileName := fmt.Sprintf("%s_%s.pdf", sanitizeName(name), r.clock.Now().Format("20060102"))
	return Output{
		Text:   fmt.Sprintf("📈 %s 已生成", name),
		Report: &Report{Name: fileName, Data: data},
	}, nil
}

// Object key characters only; slashes would split the blob path.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", "..", "_")
	return replacer.Replace(name)
}
