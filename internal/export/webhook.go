package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"novelrank/pkg/logger"
	"novelrank/pkg/models"
)

// ErrWebhookNotConfigured is returned when no URL is set.
var ErrWebhookNotConfigured = errors.New("webhook url not configured")

const webhookTimeout = 10 * time.Second

// Webhook posts refresh reports to a Feishu custom bot.
type Webhook struct {
	URL    string
	AppURL string // dashboard link rendered as a card button
	Client *http.Client
	Now    func() time.Time

	log *zap.Logger
}

func NewWebhook(url, appURL string, log *zap.Logger) *Webhook {
	return &Webhook{
		URL:    url,
		AppURL: appURL,
		Client: &http.Client{Timeout: webhookTimeout},
		Now:    time.Now,
		log:    logger.OrNop(log).Named("webhook"),
	}
}

func (w *Webhook) Configured() bool { return w != nil && w.URL != "" }

// SendText posts a plain text message.
func (w *Webhook) SendText(ctx context.Context, text string) error {
	return w.send(ctx, map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
}

// Notify sends the refresh summary as an interactive card.
func (w *Webhook) Notify(ctx context.Context, s models.RefreshSummary) error {
	return w.send(ctx, w.Card(s))
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag     string       `json:"tag"`
	Text    *cardText    `json:"text,omitempty"`
	Actions []cardButton `json:"actions,omitempty"`
}

type cardButton struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
	Type string   `json:"type"`
	URL  string   `json:"url"`
}

func markdown(s string) cardElement {
	return cardElement{Tag: "div", Text: &cardText{Tag: "lark_md", Content: s}}
}

var hr = cardElement{Tag: "hr"}

// Card builds the interactive message body for a summary.
func (w *Webhook) Card(s models.RefreshSummary) map[string]any {
	at := s.FinishedAt
	if at.IsZero() {
		at = w.Now()
	}

	lines := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		lines = append(lines, sourceLine(r))
	}

	elements := []cardElement{
		markdown(fmt.Sprintf("📅 **日期**: %s\n⏰ **时间**: %s\n📊 **总数据量**: **%d** 条",
			s.Date, at.Format("15:04:05"), s.Total)),
		hr,
		markdown("**各平台详情：**\n" + strings.Join(lines, "\n")),
	}
	if len(s.Errors) > 0 {
		errLines := make([]string, len(s.Errors))
		for i, e := range s.Errors {
			errLines[i] = "⚠️ " + e
		}
		elements = append(elements, hr, markdown("**异常信息：**\n"+strings.Join(errLines, "\n")))
	}
	if w.AppURL != "" {
		elements = append(elements, hr, cardElement{Tag: "action", Actions: []cardButton{{
			Tag:  "button",
			Text: cardText{Tag: "plain_text", Content: "📊 打开市场看板"},
			Type: "primary",
			URL:  w.AppURL,
		}}})
	}

	template := "turquoise"
	if s.Status == models.StatusFailed {
		template = "red"
	}
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    cardText{Tag: "plain_text", Content: "📚 小说排行榜数据更新完成"},
				"template": template,
			},
			"elements": elements,
		},
	}
}

func sourceLine(r models.SourceResult) string {
	name := r.Name
	if name == "" {
		name = r.Source
	}
	switch r.Outcome {
	case models.OutcomeError:
		return fmt.Sprintf("❌ %s: 失败 (%s)", name, r.Error)
	case models.OutcomeCached:
		return fmt.Sprintf("📦 %s: %d 条 (缓存)", name, r.Count)
	case models.OutcomeEmpty:
		return fmt.Sprintf("⚪ %s: 无数据", name)
	default:
		return fmt.Sprintf("✅ %s: %d 条 (新抓取)", name, r.Count)
	}
}

type webhookResp struct {
	Code       *int   `json:"code"`
	StatusCode *int   `json:"StatusCode"`
	Msg        string `json:"msg"`
}

func (w *Webhook) send(ctx context.Context, payload any) error {
	if !w.Configured() {
		return ErrWebhookNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	var out webhookResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}
	if (out.Code != nil && *out.Code == 0) || (out.StatusCode != nil && *out.StatusCode == 0) {
		w.log.Info("webhook delivered")
		return nil
	}
	return fmt.Errorf("webhook rejected: %s", strings.TrimSpace(string(raw)))
}
