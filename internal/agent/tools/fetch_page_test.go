package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>行业观察</title></head>
<body>
<h1>第三季度回顾</h1>
<p>本季度整体需求保持平稳，制造业采购经理指数连续三个月位于扩张区间，
企业补库存意愿有所增强。出口订单环比小幅回升，主要受益于消费电子产业链的
季节性备货。服务业景气度继续高于制造业，餐饮和旅游相关行业恢复明显。</p>
<p>价格方面，上游原材料价格涨幅收窄，中下游利润空间得到一定修复。</p>
</body>
</html>`

type stubRenderer struct {
	html  string
	calls int
}

func (r *stubRenderer) Render(context.Context, string) (string, error) {
	r.calls++
	return r.html, nil
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	renderer := &stubRenderer{}
	fetch := NewFetchPage("bot-test/1.0", renderer)
	out, err := fetch.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Text, "《行业观察》\n"))
	require.Contains(t, out.Text, "第三季度回顾")
	require.Contains(t, out.Text, "采购经理指数")
	// static extraction succeeded, no browser fallback
	require.Equal(t, 0, renderer.calls)
}

func TestFetchPageFallsBackToRenderer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>App</title></head><body><div id="root"></div></body></html>`))
	}))
	defer srv.Close()

	renderer := &stubRenderer{html: "<html><body><p>" + articleHTML + "</p></body></html>"}
	fetch := NewFetchPage("", renderer)
	out, err := fetch.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.Equal(t, 1, renderer.calls)
	require.Contains(t, out.Text, "第三季度回顾")
}

func TestFetchPageMissingURL(t *testing.T) {
	t.Parallel()

	fetch := NewFetchPage("", nil)
	out, err := fetch.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "请提供网页地址", out.Text)
}

func TestFetchPageUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fetch := NewFetchPage("", nil)
	out, err := fetch.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.Contains(t, out.Text, "网页获取失败")
}

func TestClampRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "短文本", clampRunes("短文本", 10))
	require.Equal(t, "一二三…", clampRunes("一二三四五", 3))
}
