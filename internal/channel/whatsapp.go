package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/telemetry"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com"
	defaultGraphVersion = "v20.0"
	maxResponseBody     = 64 << 10
)

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	APIBase       string // default https://graph.facebook.com
	APIVersion    string // default v20.0
	PhoneNumberID string
	AccessToken   string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// WhatsApp sends messages through the WhatsApp Business Cloud API.
// It implements domain.Sender.
type WhatsApp struct {
	url         string
	accessToken string
	client      *http.Client
	logger      *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultGraphAPIBase
	}
	version := strings.Trim(cfg.APIVersion, "/")
	if version == "" {
		version = defaultGraphVersion
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		url:         fmt.Sprintf("%s/%s/%s/messages", base, version, cfg.PhoneNumberID),
		accessToken: cfg.AccessToken,
		client:      client,
		logger:      logger,
	}
}

// MessagesURL is the endpoint every send posts to.
func (w *WhatsApp) MessagesURL() string { return w.url }

// SendText sends a free-form text message. Only a transport failure returns
// an error; provider rejections come back in the SendResult.
func (w *WhatsApp) SendText(ctx context.Context, to, body string) (domain.SendResult, error) {
	return w.send(ctx, "text", to, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendTemplate sends a pre-registered template, which is the only message
// type allowed to open a conversation.
func (w *WhatsApp) SendTemplate(ctx context.Context, to string, tmpl domain.Template) (domain.SendResult, error) {
	return w.send(ctx, "template", to, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     tmpl.Name,
			"language": map[string]string{"code": tmpl.Language},
		},
	})
}

func (w *WhatsApp) send(ctx context.Context, kind, to string, payload map[string]any) (domain.SendResult, error) {
	ctx, span := telemetry.Start(ctx, "whatsapp.send", attribute.String("type", kind))
	defer span.End()

	start := time.Now()
	defer func() { metrics.SendLatency.Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("marshal %s message: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.accessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		metrics.Send(kind, "error")
		telemetry.Fail(span, err)
		w.logger.Error("whatsapp send failed", "type", kind, "to", to, "err", err)
		return domain.SendResult{}, fmt.Errorf("send %s: %w", kind, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result := domain.SendResult{StatusCode: resp.StatusCode, Body: string(respBody)}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !result.OK() {
		metrics.Send(kind, "rejected")
		telemetry.Fail(span, fmt.Errorf("whatsapp API %d", resp.StatusCode))
		w.logger.Warn("whatsapp send rejected", "type", kind, "to", to, "status", result.StatusCode, "body", result.Body)
		return result, nil
	}

	metrics.Send(kind, "ok")
	w.logger.Info("whatsapp send", "type", kind, "to", to, "status", result.StatusCode, "body", result.Body)
	return result, nil
}
