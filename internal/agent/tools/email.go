package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEmailBaseURL is the Brevo transactional API.
const DefaultEmailBaseURL = "https://api.brevo.com"

const emailTimeout = 30 * time.Second

// EmailConfig holds Brevo credentials for the send_email tool.
type EmailConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	BaseURL     string
}

// Email sends transactional mail through the Brevo v3 API.
type Email struct {
	cfg        EmailConfig
	httpClient *http.Client
}

// NewEmail constructs the email tool.
func NewEmail(cfg EmailConfig, httpClient *http.Client) *Email {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEmailBaseURL
	}
	if cfg.SenderEmail == "" {
		cfg.SenderEmail = "noreply@brevo.com"
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "智能助手"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: emailTimeout}
	}
	return &Email{cfg: cfg, httpClient: httpClient}
}

// Name implements Tool.
func (e *Email) Name() string { return "send_email" }

type brevoAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type brevoPayload struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
}

type brevoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Invoke implements Tool.
func (e *Email) Invoke(ctx context.Context, params map[string]any) (Output, error) {
	to := stringParam(params, "to")
	subject := stringParam(params, "subject")
	body := stringParam(params, "body")
	if to == "" || subject == "" || body == "" {
		return Output{Text: "收件人、主题或正文不能为空"}, nil
	}
	if e.cfg.APIKey == "" {
		return Output{Text: "❌ 邮件服务未配置：BREVO_API_KEY 未找到"}, nil
	}

	payload := brevoPayload{
		Sender:      brevoAddress{Name: e.cfg.SenderName, Email: e.cfg.SenderEmail},
		To:          []brevoAddress{{Name: localPart(to), Email: to}},
		Subject:     subject,
		HTMLContent: renderHTMLBody(subject, body),
		TextContent: body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Output{}, fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.cfg.BaseURL+"/v3/smtp/email", bytes.NewReader(raw),
	)
	if err != nil {
		return Output{}, fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Output{Text: fmt.Sprintf("❌ 邮件发送异常：%v", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusCreated {
		return Output{Text: fmt.Sprintf("📧 邮件发送成功！已发送至：%s", to)}, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var apiErr brevoError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
		return Output{Text: fmt.Sprintf(
			"❌ 邮件发送失败 [%d]: %s (代码: %s)", resp.StatusCode, apiErr.Message, apiErr.Code,
		)}, nil
	}
	return Output{Text: fmt.Sprintf("❌ 邮件发送失败 [%d]: %s", resp.StatusCode, respBody)}, nil
}

func localPart(addr string) string {
	if i := strings.Index(addr, "@"); i > 0 {
		return addr[:i]
	}
	return addr
}

func renderHTMLBody(subject, body string) string {
	return fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; line-height: 1.6;"><h2>%s</h2><div style="white-space: pre-line;">%s</div></div>`,
		subject, body,
	)
}
