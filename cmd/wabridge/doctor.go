package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wabridge/internal/audit"
	"wabridge/internal/config"
	"wabridge/internal/provider"
)

// checkReport tallies doctor results.
type checkReport struct {
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	var skipNetwork bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies that the configuration, WhatsApp credentials, completion backend,
journal and listen address are usable. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wabridge doctor v%s\n\n", version)
			r := &checkReport{}

			var cfg *config.Config
			if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
				r.warn("Config file", fmt.Sprintf("not found at %s, checking defaults + environment", cfgPath))
				cfg, err = config.FromEnv()
				if err != nil {
					r.fail("Config validation", err.Error())
				}
			} else {
				r.pass("Config file", cfgPath)
				cfg, err = config.Load(cfgPath)
				if err != nil {
					r.fail("Config validation", err.Error())
				} else {
					r.pass("Config validation", "valid")
				}
			}
			if cfg == nil {
				return r.summary()
			}

			checkWhatsApp(r, cfg)

			if !skipNetwork {
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				defer cancel()
				checkBackend(ctx, r, cfg)
			}

			if cfg.Journal.Enabled {
				if err := checkJournal(cfg.Journal.DBPath); err != nil {
					r.fail("Journal", err.Error())
				} else {
					r.pass("Journal", cfg.Journal.DBPath)
				}
			}

			if err := checkListen(cfg.General.ListenAddr); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.General.ListenAddr, err))
			} else {
				r.pass("Listen address", cfg.General.ListenAddr+" available")
			}

			if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
				r.warn("Telemetry", "enabled without endpoint; OTEL_EXPORTER_OTLP_ENDPOINT or localhost:4318 will be used")
			}

			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&skipNetwork, "offline", false, "skip the completion backend health check")
	return cmd
}

func checkWhatsApp(r *checkReport, cfg *config.Config) {
	wa := cfg.WhatsApp
	if wa.PhoneNumberID == "" {
		r.fail("Phone number ID", "unset ("+config.EnvPhoneNumberID+")")
	} else {
		r.pass("Phone number ID", wa.PhoneNumberID)
	}
	if wa.AccessToken == "" {
		r.fail("Access token", "unset ("+config.EnvAccessToken+")")
	} else {
		r.pass("Access token", "configured")
	}
	if wa.VerifyToken == "" {
		r.fail("Verify token", "unset ("+config.EnvVerifyToken+"); webhook verification will fail")
	} else {
		r.pass("Verify token", "configured")
	}
	if wa.AppSecret == "" {
		r.warn("App secret", "unset; webhook signatures are not checked")
	} else {
		r.pass("App secret", "configured")
	}
}

func checkBackend(ctx context.Context, r *checkReport, cfg *config.Config) {
	factory := provider.NewFactory(cfg, provider.SharedHTTPClient(httpTimeout(cfg)), logger)
	prov, err := factory.Build()
	if err != nil {
		r.fail("Backend", err.Error())
		return
	}
	if err := prov.Healthy(ctx); err != nil {
		r.fail("Backend: "+prov.Name(), err.Error())
		return
	}
	r.pass("Backend: "+prov.Name(), fmt.Sprintf("reachable, models %v", prov.Models()))
}

func checkJournal(dbPath string) error {
	store, err := audit.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Stats(ctx); err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func (r *checkReport) summary() error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned == 0 {
		fmt.Printf("All checks passed. Run 'wabridge serve' to start the relay.\n")
	}
	return nil
}
