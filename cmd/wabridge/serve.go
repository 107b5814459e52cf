package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wabridge/internal/agent"
	"wabridge/internal/audit"
	"wabridge/internal/channel"
	"wabridge/internal/config"
	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/provider"
	"wabridge/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// relay holds every component built once at startup.
type relay struct {
	handler   *channel.Handler
	journal   *audit.Store
	retention *audit.Retention
}

func (r *relay) close() {
	if r.retention != nil {
		r.retention.Stop()
	}
	if r.journal != nil {
		r.journal.Close()
	}
}

// buildRelay wires the completion backend, the WhatsApp client and the
// optional journal into a handler.
func buildRelay(cfg *config.Config) (*relay, error) {
	client := provider.SharedHTTPClient(httpTimeout(cfg))

	factory := provider.NewFactory(cfg, client, logger)
	prov, err := factory.Build()
	if err != nil {
		return nil, fmt.Errorf("completion backend: %w", err)
	}
	temperature, maxTokens := factory.Settings()

	engine := agent.NewEngine(agent.EngineConfig{
		Provider:    prov,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Throttle:    agent.NewThrottle(cfg.Relay.CompletionsPerMinute, cfg.Relay.CompletionBurst),
		Logger:      logger,
	})

	wa := channel.NewWhatsApp(channel.WhatsAppConfig{
		APIBase:       cfg.WhatsApp.APIBase,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		HTTPClient:    client,
		Logger:        logger,
	})

	r := &relay{}
	var journal domain.Journal
	if cfg.Journal.Enabled {
		store, err := audit.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		r.journal = store
		journal = store

		r.retention, err = audit.NewRetention(store, cfg.Journal.RetentionDays, cfg.Journal.PurgeSchedule, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("journal retention: %w", err)
		}
	}

	r.handler = channel.NewHandler(channel.HandlerConfig{
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		AppSecret:     cfg.WhatsApp.AppSecret,
		Template:      domain.Template{Name: cfg.WhatsApp.TemplateName, Language: cfg.WhatsApp.TemplateLanguage},
		SessionPrefix: cfg.WhatsApp.SessionPrefix,
		StrictSend:    cfg.Relay.StrictSend,
		Sender:        wa,
		Engine:        engine,
		Journal:       journal,
		Logger:        logger,
	})

	logger.Info("relay ready",
		"backend", prov.Name(),
		"models", prov.Models(),
		"graph_url", wa.MessagesURL(),
		"journal", cfg.Journal.Enabled,
		"strict_send", cfg.Relay.StrictSend,
	)
	return r, nil
}

// httpTimeout is the transport timeout for every outbound call.
func httpTimeout(cfg *config.Config) time.Duration {
	if cfg.General.HTTPTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(cfg.General.HTTPTimeoutSeconds) * time.Second
}

// newMux mounts the relay routes and, when enabled, the metrics endpoint.
func newMux(cfg *config.Config, h *channel.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Endpoint, metrics.Collector.Handler())
	}
	return mux
}

// warnMissing logs credentials the relay can start without but cannot work without.
func warnMissing(cfg *config.Config) {
	if cfg.WhatsApp.PhoneNumberID == "" || cfg.WhatsApp.AccessToken == "" {
		logger.Warn("whatsapp credentials incomplete; sends will be rejected",
			"env", []string{config.EnvPhoneNumberID, config.EnvAccessToken})
	}
	if cfg.WhatsApp.VerifyToken == "" {
		logger.Warn("verify token unset; webhook verification will always fail", "env", config.EnvVerifyToken)
	}
}

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook relay HTTP server",
		Long:  "Serves webhook verification (GET /), webhook delivery (POST /), POST /start and GET /healthz. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.General.ListenAddr = listen
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides general.listenAddr)")
	return cmd
}

func runServe(cfg *config.Config) error {
	logger = newLogger(os.Stderr, cfg.General.LogLevel, cfg.General.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	warnMissing(cfg)
	r, err := buildRelay(cfg)
	if err != nil {
		return err
	}
	defer r.close()
	if r.retention != nil {
		r.retention.Start()
	}

	server := &http.Server{
		Addr:              cfg.General.ListenAddr,
		Handler:           newMux(cfg, r.handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wabridge listening", "addr", cfg.General.ListenAddr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "err", err)
		shutdownErr = err
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "err", err)
	}
	logger.Info("shutdown complete")
	return shutdownErr
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <phone>",
		Short: "Open a conversation by sending the configured template",
		Long:  "Sends the registered WhatsApp template to a phone number in international format without '+', e.g. 15551234567.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := buildRelay(cfg)
			if err != nil {
				return err
			}
			defer r.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), httpTimeout(cfg))
			defer cancel()

			res, err := r.handler.StartConversation(ctx, args[0])
			if res.StatusCode != 0 {
				fmt.Printf("TEMPLATE STATUS: %d\nTEMPLATE BODY: %s\n", res.StatusCode, res.Body)
			}
			return err
		},
	}
}
