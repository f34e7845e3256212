package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the production robot send endpoint.
const DefaultBaseURL = "https://oapi.dingtalk.com"

const sendTimeout = 10 * time.Second

// At controls the @-mention envelope of an outbound message.
type At struct {
	IsAtAll   bool     `json:"isAtAll"`
	AtUserIDs []string `json:"atUserIds"`
	AtMobiles []string `json:"atMobiles"`
}

// Clock abstracts time so tests can pin the signature timestamp.
type Clock interface {
	Now() time.Time
}

// Config holds the robot credentials and transport knobs.
type Config struct {
	AccessToken string
	Secret      string
	BaseURL     string
	HTTPClient  *http.Client
}

// Client sends messages through a DingTalk custom robot.
type Client struct {
	accessToken string
	secret      string
	baseURL     string
	httpClient  *http.Client
	clock       Clock
	logger      *zap.Logger
}

// NewClient constructs a Client. The logger and clock must not be nil.
func NewClient(cfg Config, clock Clock, logger *zap.Logger) (*Client, error) {
	if cfg.AccessToken == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("robot access token and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: sendTimeout}
	}
	return &Client{
		accessToken: cfg.AccessToken,
		secret:      cfg.Secret,
		baseURL:     cfg.BaseURL,
		httpClient:  cfg.HTTPClient,
		clock:       clock,
		logger:      logger,
	}, nil
}

type textPayload struct {
	MsgType string      `json:"msgtype"`
	Text    textContent `json:"text"`
	At      At          `json:"at"`
}

type textContent struct {
	Content string `json:"content"`
}

type markdownPayload struct {
	MsgType  string          `json:"msgtype"`
	Markdown markdownContent `json:"markdown"`
	At       At              `json:"at"`
}

type markdownContent struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// SendText posts a text message to the group.
func (c *Client) SendText(ctx context.Context, content string, at At) error {
	return c.send(ctx, textPayload{
		MsgType: "text",
		Text:    textContent{Content: content},
		At:      normalizeAt(at),
	})
}

// SendMarkdown posts a markdown message to the group.
func (c *Client) SendMarkdown(ctx context.Context, title, text string, at At) error {
	return c.send(ctx, markdownPayload{
		MsgType:  "markdown",
		Markdown: markdownContent{Title: title, Text: text},
		At:       normalizeAt(at),
	})
}

func (c *Client) send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal robot payload: %w", err)
	}

	ts := c.clock.Now().UnixMilli()
	url := fmt.Sprintf(
		"%s/robot/send?access_token=%s&timestamp=%d&sign=%s",
		c.baseURL, c.accessToken, ts, Sign(ts, c.secret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build robot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send robot message: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close robot response body", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read robot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("robot API status %d: %s", resp.StatusCode, raw)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("decode robot response: %w", err)
	}
	if apiResp.ErrCode != 0 {
		return fmt.Errorf("robot API errcode %d: %s", apiResp.ErrCode, apiResp.ErrMsg)
	}
	return nil
}

// The send API rejects null at-lists, so empty slices are materialized.
func normalizeAt(at At) At {
	if at.AtUserIDs == nil {
		at.AtUserIDs = []string{}
	}
	if at.AtMobiles == nil {
		at.AtMobiles = []string{}
	}
	return at
}
