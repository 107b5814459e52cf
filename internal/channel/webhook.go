package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"wabridge/internal/agent"
	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/telemetry"
)

const maxWebhookBody = 1 << 20

// Response statuses written by the relay endpoints.
const (
	StatusOK             = "ok"
	StatusIgnored        = "ignored"
	StatusDegraded       = "degraded"
	StatusTemplateSent   = "template_sent"
	StatusTemplateFailed = "template_failed"
)

// HandlerConfig wires the relay endpoints to their collaborators.
type HandlerConfig struct {
	VerifyToken   string
	AppSecret     string // enables X-Hub-Signature-256 checks when set
	Template      domain.Template
	SessionPrefix string
	StrictSend    bool

	Sender  domain.Sender
	Engine  agent.Completer
	Journal domain.Journal // optional
	Logger  *slog.Logger
}

// Handler serves the webhook verification, webhook receive and
// conversation start endpoints.
type Handler struct {
	cfg     HandlerConfig
	sender  domain.Sender
	engine  agent.Completer
	journal domain.Journal
	logger  *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = agent.DefaultSessionPrefix
	}
	return &Handler{
		cfg:     cfg,
		sender:  cfg.Sender,
		engine:  cfg.Engine,
		journal: cfg.Journal,
		logger:  logger,
	}
}

// Register mounts the relay routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleVerification)
	mux.HandleFunc("POST /{$}", h.handleWebhook)
	mux.HandleFunc("POST /start", h.handleStart)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// --- Verification ---

func (h *Handler) handleVerification(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && h.tokenMatches(q.Get("hub.verify_token")) {
		h.logger.Info("webhook verified")
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusOK)
		io.WriteString(rw, challenge)
		return
	}

	h.logger.Warn("webhook verification failed", "mode", mode)
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusForbidden)
	io.WriteString(rw, "Verification failed")
}

func (h *Handler) tokenMatches(token string) bool {
	if h.cfg.VerifyToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerifyToken)) == 1
}

// --- Conversation start ---

func (h *Handler) handleStart(rw http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	_, err := h.StartConversation(r.Context(), phone)
	if err != nil && h.cfg.StrictSend {
		writeJSON(rw, http.StatusBadGateway, map[string]string{"status": StatusTemplateFailed})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"status": StatusTemplateSent})
}

// StartConversation sends the configured template to phone. A provider
// rejection is reported as an error wrapping the status code.
func (h *Handler) StartConversation(ctx context.Context, phone string) (domain.SendResult, error) {
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID, "to", phone)
	metrics.TemplatesSent.Inc()

	start := time.Now()
	result, err := h.sender.SendTemplate(ctx, phone, h.cfg.Template)
	if err == nil && !result.OK() {
		err = fmt.Errorf("template %q rejected with status %d", h.cfg.Template.Name, result.StatusCode)
	}
	if err != nil {
		logger.Error("template send failed", "template", h.cfg.Template.Name, "err", err)
	} else {
		logger.Info("template sent", "template", h.cfg.Template.Name, "status", result.StatusCode)
	}

	h.record(ctx, logger, domain.Interaction{
		RequestID:  requestID,
		SessionID:  agent.SessionID(h.cfg.SessionPrefix, phone),
		SenderID:   phone,
		Kind:       "template",
		SendStatus: result.StatusCode,
		LatencyMs:  time.Since(start).Milliseconds(),
	})
	return result, err
}

// --- Webhook receive ---

func (h *Handler) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	requestID := uuid.NewString()
	rw.Header().Set("X-Request-ID", requestID)
	logger := h.logger.With("request_id", requestID)

	ctx, span := telemetry.Start(r.Context(), "webhook.handle", attribute.String("request_id", requestID))
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookEvent("rejected")
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if h.cfg.AppSecret != "" && !verifySignature(body, h.cfg.AppSecret, r.Header.Get("X-Hub-Signature-256")) {
		logger.Warn("webhook signature mismatch")
		metrics.WebhookEvent("rejected")
		writeJSON(rw, http.StatusForbidden, map[string]string{"error": "invalid signature"})
		return
	}

	if !gjson.ValidBytes(body) {
		logger.Warn("webhook body is not JSON", "bytes", len(body))
		metrics.WebhookEvent("rejected")
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	kind := ClassifyEvent(body)
	span.SetAttributes(attribute.String("event", string(kind)))
	if kind != domain.EventMessage {
		logger.Debug("webhook event ignored", "kind", kind)
		h.ignore(rw)
		return
	}

	msgs := ExtractMessages(body)
	if len(msgs) == 0 {
		logger.Debug("webhook has no text messages")
		h.ignore(rw)
		return
	}

	status := StatusOK
	for _, msg := range msgs {
		if !h.relay(ctx, logger, requestID, msg) && h.cfg.StrictSend {
			status = StatusDegraded
		}
	}

	metrics.WebhookEvent(status)
	writeJSON(rw, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) ignore(rw http.ResponseWriter) {
	metrics.WebhookEvent(StatusIgnored)
	writeJSON(rw, http.StatusOK, map[string]string{"status": StatusIgnored})
}

// relay runs one message through the completion flow and sends the reply.
// It reports whether the send was accepted.
func (h *Handler) relay(ctx context.Context, logger *slog.Logger, requestID string, msg domain.InboundMessage) bool {
	sessionID := agent.SessionID(h.cfg.SessionPrefix, msg.SenderID)
	logger = logger.With("session", sessionID)
	logger.Info("message received", "message_id", msg.MessageID, "text_len", len(msg.Content))

	res := h.engine.Complete(ctx, sessionID, msg.Content)
	reply := res.Reply()

	result, err := h.sender.SendText(ctx, msg.SenderID, reply.Reply)
	sent := err == nil && result.OK()
	if !sent {
		logger.Error("reply send failed", "status", result.StatusCode, "err", err)
	} else {
		logger.Info("reply sent", "status", result.StatusCode, "fallback", !res.OK(), "next_action", reply.NextAction)
	}

	h.record(ctx, logger, domain.Interaction{
		RequestID:      requestID,
		SessionID:      sessionID,
		SenderID:       msg.SenderID,
		Kind:           "reply",
		Intent:         reply.Intent,
		Sentiment:      string(reply.Sentiment),
		Confidence:     reply.Confidence,
		NextAction:     reply.NextAction,
		Fallback:       !res.OK(),
		FallbackReason: string(res.Reason),
		SendStatus:     result.StatusCode,
		LatencyMs:      res.Latency.Milliseconds(),
	})
	return sent
}

// record writes to the journal when one is configured. Failures are logged only.
func (h *Handler) record(ctx context.Context, logger *slog.Logger, it domain.Interaction) {
	if h.journal == nil {
		return
	}
	it.CreatedAt = time.Now().UTC()
	if err := h.journal.Record(context.WithoutCancel(ctx), it); err != nil {
		logger.Warn("journal write failed", "err", err)
	}
}

func (h *Handler) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": StatusOK})
}

// verifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the HMAC of body.
func verifySignature(body []byte, secret, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || hexSig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(hexSig)), []byte(computed))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
