package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubPDF struct {
	data []byte
	err  error
	url  string
}

func (s *stubPDF) PDF(_ context.Context, url string) ([]byte, error) {
	s.url = url
	return s.data, s.err
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func TestRenderReport(t *testing.T) {
	t.Parallel()

	renderer := &stubPDF{data: []byte("%PDF-1.7 fake")}
	clock := fixedClock{at: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	tool := NewRenderReport(renderer, clock)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"url":  "https://example.com/report",
		"name": "季度 分析/报告",
	})
	require.NoError(t, err)
	require.Equal(t, "📈 季度 分析/报告 已生成", out.Text)
	require.NotNil(t, out.Report)
	require.Equal(t, "季度_分析_报告_20240315.pdf", out.Report.Name)
	require.Equal(t, renderer.data, out.Report.Data)
	require.Equal(t, "https://example.com/report", renderer.url)
}

func TestRenderReportDefaultsName(t *testing.T) {
	t.Parallel()

	clock := fixedClock{at: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	tool := NewRenderReport(&stubPDF{data: []byte("%PDF-")}, clock)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"url": "https://example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "分析报告_20240315.pdf", out.Report.Name)
}

func TestRenderReportWithoutEngine(t *testing.T) {
	t.Parallel()

	tool := NewRenderReport(nil, fixedClock{at: time.Now()})
	out, err := tool.Invoke(context.Background(), map[string]any{
		"url": "https://example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "报告生成失败：浏览器引擎未启用", out.Text)
	require.Nil(t, out.Report)
}

func TestRenderReportRendererFailure(t *testing.T) {
	t.Parallel()

	tool := NewRenderReport(&stubPDF{err: errors.New("chrome crashed")}, fixedClock{at: time.Now()})
	out, err := tool.Invoke(context.Background(), map[string]any{
		"url": "https://example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "报告生成失败：chrome crashed", out.Text)
}

func TestRenderReportMissingURL(t *testing.T) {
	t.Parallel()

	tool := NewRenderReport(&stubPDF{}, fixedClock{at: time.Now()})
	out, err := tool.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "请提供报告页面地址", out.Text)
}
