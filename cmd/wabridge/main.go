package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wabridge/internal/audit"
	"wabridge/internal/config"
	"wabridge/internal/provider"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	envFiles   []string
)

func main() {
	logger = newLogger(os.Stderr, "info", "text")

	root := &cobra.Command{
		Use:   "wabridge",
		Short: "wabridge: WhatsApp to LLM webhook relay",
		Long: "wabridge receives WhatsApp Cloud API webhooks, asks a chat completion backend for a\n" +
			"structured reply and sends the reply text back to the sender.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadDotEnv(envFiles...)
			if err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			if len(loaded) > 0 {
				logger.Debug("env files loaded", "files", loaded)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.wabridge/config.json)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default: .env.local, .env)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(startCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(serviceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the general.logLevel and
// general.logFormat settings.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file. When the file does not exist and no
// --config flag was given, defaults plus environment overrides are used.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if configPath == "" && errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config file not found, using defaults and environment", "path", cfgPath)
		return config.FromEnv()
	}
	return nil, err
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Printf("Set %s, %s and %s (or edit the file) before running 'wabridge serve'.\n",
				config.EnvPhoneNumberID, config.EnvAccessToken, config.EnvVerifyToken)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, backend health and journal summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			fmt.Printf("wabridge %s\n", version)
			fmt.Printf("  config:        %s\n", resolveConfigPath())
			fmt.Printf("  listen:        %s\n", cfg.General.ListenAddr)
			fmt.Printf("  phone number:  %s\n", orUnset(cfg.WhatsApp.PhoneNumberID))
			fmt.Printf("  template:      %s (%s)\n", cfg.WhatsApp.TemplateName, cfg.WhatsApp.TemplateLanguage)

			client := provider.SharedHTTPClient(httpTimeout(cfg))
			factory := provider.NewFactory(cfg, client, logger)
			if p := factory.HealthyProvider(ctx); p != nil {
				fmt.Printf("  backend:       %s (healthy, models %v)\n", p.Name(), p.Models())
			} else {
				fmt.Printf("  backend:       no healthy provider\n")
			}

			if !cfg.Journal.Enabled {
				fmt.Printf("  journal:       disabled\n")
				return nil
			}
			store, err := audit.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				fmt.Printf("  journal:       unavailable (%v)\n", err)
				return nil
			}
			defer store.Close()
			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("  journal:       %d interactions, %d fallbacks, %d templates\n", st.Total, st.Fallbacks, st.Templates)
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. whatsapp.templateName)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. relay.strictSend true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List settable keys with their descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			for _, k := range config.Keys(cfg) {
				fmt.Printf("%-36s %s\n", k.Key, k.Doc)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
