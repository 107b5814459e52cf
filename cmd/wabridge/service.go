package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.wabridge.relay"
	systemdUnit  = "wabridge.service"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install or remove wabridge serve as a user service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Write a service file that runs 'wabridge serve' at login",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			path, err := servicePath(runtime.GOOS)
			if err != nil {
				return err
			}
			content, err := renderService(runtime.GOOS, serviceParams{
				Label:   launchdLabel,
				Exec:    execPath,
				Config:  resolveConfigPath(),
				WorkDir: filepath.Dir(resolveConfigPath()),
				LogDir:  filepath.Join(filepath.Dir(resolveConfigPath()), "logs"),
			})
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Printf("Service installed: %s\n", path)
			if runtime.GOOS == "darwin" {
				fmt.Printf("To start: launchctl load %s\n", path)
			} else {
				fmt.Printf("To start: systemctl --user enable --now %s\n", strings.TrimSuffix(systemdUnit, ".service"))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := servicePath(runtime.GOOS)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service removed: %s\n", path)
			return nil
		},
	})
	return cmd
}

type serviceParams struct {
	Label   string
	Exec    string
	Config  string
	WorkDir string
	LogDir  string
}

func servicePath(goos string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

// renderService produces the launchd plist or systemd unit for goos.
func renderService(goos string, p serviceParams) (string, error) {
	var src string
	switch goos {
	case "darwin":
		src = launchdTemplate
	case "linux":
		src = systemdTemplate
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
	tmpl, err := template.New(goos).Parse(src)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, p); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.WorkDir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/wabridge.log</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=wabridge WhatsApp webhook relay
After=network-online.target

[Service]
Type=simple
WorkingDirectory={{.WorkDir}}
ExecStart={{.Exec}} serve --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
