// ABOUTME: Root cobra command and dependency wiring for fold-console
// ABOUTME: Builds the transport, API client, mirror, coordinator, and directory from config

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/fold-console/internal/api"
	"github.com/2389/fold-console/internal/auth"
	"github.com/2389/fold-console/internal/config"
	"github.com/2389/fold-console/internal/directory"
	"github.com/2389/fold-console/internal/session"
	"github.com/2389/fold-console/internal/store"
	"github.com/2389/fold-console/internal/transport"
)

// app holds the wired dependencies shared by all subcommands
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	api       *api.Client
	mirror    *store.Mirror
	coord     *session.Coordinator
	dir       *directory.Directory
	statePath string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "fold-console",
		Short:         "Terminal console for fold-gateway conversations",
		Long:          "fold-console chats with fold-gateway agents from the terminal: streaming responses, conversation management, local transcript search and export.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.wire(configPath)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.mirror != nil {
				a.mirror.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/fold/console.yaml)")

	rootCmd.AddCommand(
		newChatCmd(a),
		newConversationsCmd(a),
		newSearchCmd(a),
		newExportCmd(a),
	)

	return rootCmd
}

// wire loads config and builds the dependency graph. Called once per
// invocation from PersistentPreRunE, after flags are parsed.
func (a *app) wire(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = setupLogger(cfg.Logging)
	slog.SetDefault(a.logger)

	token, err := cfg.ResolveToken()
	if err != nil {
		return err
	}
	if token != "" {
		if warning, ok := tokenWarning(token, time.Now()); ok {
			a.logger.Warn("gateway token problem", "detail", warning)
		}
	}

	var tokenSource transport.TokenSource
	if token != "" {
		tokenSource = func() string { return token }
	}

	port := transport.NewClient(cfg.Gateway.URL, tokenSource, a.logger)
	a.api = api.NewClient(cfg.Gateway.URL, tokenSource, a.logger)

	a.mirror, err = store.NewMirror(cfg.Database.Path, a.logger)
	if err != nil {
		return fmt.Errorf("opening transcript mirror: %w", err)
	}

	a.coord = session.New(port, a.api, a.mirror, cfg.Chat.Sender, a.logger)
	a.dir = directory.New(a.api, a.coord, a.logger)
	a.dir.SetReloadTimeout(cfg.Chat.ReloadTimeout)
	a.statePath = filepath.Join(dataDir(), "state.toml")

	return nil
}

// tokenExpiryWarning is how far ahead we warn about an expiring token.
const tokenExpiryWarning = 24 * time.Hour

// tokenWarning reports whether a gateway token deserves a startup warning:
// already rejected by a structural check, or expiring inside the warning
// window. Opaque (non-JWT) tokens never warn.
func tokenWarning(token string, now time.Time) (string, bool) {
	if err := auth.Check(token, now); err != nil {
		return err.Error(), true
	}
	info, err := auth.Inspect(token)
	if err != nil {
		return "", false
	}
	if info.ExpiresWithin(now, tokenExpiryWarning) {
		return fmt.Sprintf("token expires at %s", info.ExpiresAt.Format(time.RFC3339)), true
	}
	return "", false
}

// loadConfig resolves the config file path and loads it. A missing default
// config file yields built-in defaults so the console works out of the box
// against a local gateway.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}

	defaultPath := filepath.Join(configDir(), "console.yaml")
	if _, err := os.Stat(defaultPath); err == nil {
		return config.Load(defaultPath)
	}

	cfg := &config.Config{
		Gateway:  config.GatewayConfig{URL: "http://localhost:8080"},
		Database: config.DatabaseConfig{Path: filepath.Join(dataDir(), "transcripts.db")},
		Chat:     config.ChatConfig{Sender: "console-user", ReloadTimeout: 10 * time.Second},
		Logging:  config.LoggingConfig{Level: "warn", Format: "text"},
	}
	if token := os.Getenv("FOLD_TOKEN"); token != "" {
		cfg.Gateway.Token = token
	}
	return cfg, nil
}

func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fold")
}

func dataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "fold")
}
