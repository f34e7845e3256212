package dingtalk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time { return f.now }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		AccessToken: "tok",
		Secret:      "SECc2354d3cde7a",
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
	}, fixedClock{now: time.UnixMilli(1693276800000)}, zap.NewNop())
	require.NoError(t, err)
	return client, srv
}

func TestClient_SendText_SignsAndPosts(t *testing.T) {
	t.Parallel()

	var gotPath, gotSign, gotToken string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		gotSign = r.URL.Query().Get("sign")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	})

	err := client.SendText(context.Background(), "Test1：你好", At{AtUserIDs: []string{"u1"}})
	require.NoError(t, err)

	require.Equal(t, "/robot/send", gotPath)
	require.Equal(t, "tok", gotToken)
	// The query layer decodes the escaped signature back to base64.
	require.Equal(t, "LxiCiBc5H9G62R6rLXLTuol4kJoBZBB8Fv47IXEhTnQ=", gotSign)
	require.Equal(t, "text", gotBody["msgtype"])
	text, ok := gotBody["text"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Test1：你好", text["content"])
	at, ok := gotBody["at"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, []any{"u1"}, at["atUserIds"])
	require.Equal(t, []any{}, at["atMobiles"])
}

func TestClient_SendMarkdown(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	})

	err := client.SendMarkdown(context.Background(), "报告", "**已生成**", At{})
	require.NoError(t, err)
	require.Equal(t, "markdown", gotBody["msgtype"])
}

func TestClient_SendText_APIError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	})

	err := client.SendText(context.Background(), "msg", At{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "310000")
}

func TestClient_SendText_HTTPError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.SendText(context.Background(), "msg", At{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, fixedClock{}, zap.NewNop())
	require.Error(t, err)
}
