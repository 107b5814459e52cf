package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/telemetry"
)

// FailureReason classifies why a completion could not be used.
type FailureReason string

const (
	ReasonNone            FailureReason = ""
	ReasonBackendError    FailureReason = "backend_error"
	ReasonEmptyOutput     FailureReason = "empty_output"
	ReasonInvalidJSON     FailureReason = "invalid_json"
	ReasonSchemaViolation FailureReason = "schema_violation"
)

// Result is the outcome of one completion flow. Exactly one of Parsed or
// Reason is meaningful.
type Result struct {
	Parsed  domain.Reply
	Reason  FailureReason
	Err     error
	Raw     string
	Latency time.Duration
}

// OK reports whether the model produced a valid structured reply.
func (r Result) OK() bool { return r.Reason == ReasonNone }

// Reply collapses the result to what is sent: the parsed reply, or the
// fixed fallback on any failure.
func (r Result) Reply() domain.Reply {
	if r.OK() {
		return r.Parsed
	}
	return domain.FallbackReply()
}

// Completer is what the webhook handler needs from the engine.
type Completer interface {
	Complete(ctx context.Context, sessionID, text string) Result
}

type EngineConfig struct {
	Provider     domain.Provider
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
	Throttle     *Throttle
	Logger       *slog.Logger
}

// Engine runs the completion flow: prompt, backend call, parse.
type Engine struct {
	provider     domain.Provider
	model        string
	temperature  *float64
	maxTokens    int
	systemPrompt string
	throttle     *Throttle
	logger       *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompt := cfg.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = SystemPrompt
	}
	return &Engine{
		provider:     cfg.Provider,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: prompt,
		throttle:     cfg.Throttle,
		logger:       logger,
	}
}

// Complete never returns an error: every failure is folded into the Result.
func (e *Engine) Complete(ctx context.Context, sessionID, text string) Result {
	ctx, span := telemetry.Start(ctx, "agent.complete", attribute.String("session", sessionID))
	defer span.End()

	res := e.complete(ctx, sessionID, text)

	span.SetAttributes(attribute.Bool("fallback", !res.OK()))
	if !res.OK() {
		metrics.Fallback(string(res.Reason))
		telemetry.Fail(span, res.Err)
		e.logger.Warn("completion fell back",
			"session", sessionID,
			"reason", res.Reason,
			"err", res.Err,
			"latency_ms", res.Latency.Milliseconds(),
		)
		return res
	}
	span.SetAttributes(
		attribute.String("intent", res.Parsed.Intent),
		attribute.String("sentiment", string(res.Parsed.Sentiment)),
	)
	e.logger.Debug("completion parsed",
		"session", sessionID,
		"reply", res.Parsed.String(),
		"latency_ms", res.Latency.Milliseconds(),
	)
	return res
}

func (e *Engine) complete(ctx context.Context, sessionID, text string) Result {
	if e.provider == nil {
		return Result{Reason: ReasonBackendError, Err: errors.New("no completion provider configured")}
	}
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{Reason: ReasonBackendError, Err: fmt.Errorf("throttle: %w", err)}
	}

	req := domain.ChatRequest{
		Messages:    BuildMessages(e.systemPrompt, sessionID, text),
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	}

	metrics.LLMRequestsTotal.Inc()
	start := time.Now()
	resp, err := e.provider.Chat(ctx, req)
	latency := time.Since(start)
	metrics.LLMLatency.Observe(latency.Seconds())

	if err != nil {
		return Result{Reason: ReasonBackendError, Err: fmt.Errorf("%s: %w", e.provider.Name(), err), Latency: latency}
	}
	if resp == nil {
		return Result{Reason: ReasonEmptyOutput, Err: ErrEmptyOutput, Latency: latency}
	}

	reply, err := ParseReply(resp.Content)
	if err != nil {
		return Result{Reason: classify(err), Err: err, Raw: resp.Content, Latency: latency}
	}
	return Result{Parsed: reply, Raw: resp.Content, Latency: latency}
}

func classify(err error) FailureReason {
	var schemaErr *SchemaError
	switch {
	case errors.Is(err, ErrEmptyOutput):
		return ReasonEmptyOutput
	case errors.As(err, &schemaErr):
		return ReasonSchemaViolation
	default:
		return ReasonInvalidJSON
	}
}
