// Package cli implements sentinelctl, a terminal client that keeps a local
// AI Sentinel profile (saved accounts, session cookie, backup) in sync with
// the identity server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/pkg/logger"
	"github.com/aisentinel/session-service/pkg/session"
)

// env carries state shared by every command of one invocation.
type env struct {
	configPath string
	baseURL    string
	dataDir    string
	logLevel   string
	output     string

	lookupEnv func(string) (string, bool)

	cfg     *Config
	logger  *zap.Logger
	manager *session.Manager
}

// NewRootCommand builds the sentinelctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{lookupEnv: os.LookupEnv})
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "sentinelctl",
		Short: "Manage AI Sentinel sessions from the terminal",
		Long: `sentinelctl keeps a local AI Sentinel profile: the active session cookie,
the saved accounts you can switch between and the session backup.

Examples:
  # Hand over a session from a sign-in link
  sentinelctl open "https://app.aisentinel.com/?session_token=prod-session-...&verified_email=me@acme.com"

  # Show who the active session belongs to
  sentinelctl whoami

  # Switch between saved accounts
  sentinelctl accounts list
  sentinelctl accounts switch me@acme.com`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "config file (default is $HOME/.aisentinel/config.yaml)")
	flags.StringVar(&e.baseURL, "base-url", "", "identity server URL")
	flags.StringVar(&e.dataDir, "data-dir", "", "profile directory holding cookies and saved accounts")
	flags.StringVar(&e.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&e.output, "output", "o", "text", "output format (text, json)")

	root.AddCommand(
		newOpenCommand(e),
		newWhoamiCommand(e),
		newAccountsCommand(e),
		newLoginCommand(e),
		newLogoutCommand(e),
		newEnsureCommand(e),
		newVerifyCommand(e),
		newWatchCommand(e),
		newConfigCommand(e),
	)
	return root
}

// Execute runs sentinelctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// load resolves the configuration: defaults, then the file, then
// AISENTINEL_* variables, then flags.
func (e *env) load() error {
	path := e.configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}
	e.configPath = path

	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(e.lookupEnv); err != nil {
		return err
	}
	if e.baseURL != "" {
		cfg.BaseURL = e.baseURL
	}
	if e.dataDir != "" {
		cfg.DataDir = e.dataDir
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	if e.output != "text" && e.output != "json" {
		return fmt.Errorf("unsupported output format %q", e.output)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg

	zl, err := logger.New(cfg.LogLevel, "development")
	if err != nil {
		return err
	}
	e.logger = zl
	return nil
}

// session opens the profile on first use.
func (e *env) session() (*session.Manager, error) {
	if e.manager != nil {
		return e.manager, nil
	}
	if e.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	storage, err := session.NewFileStorage(e.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile %s: %w", e.cfg.DataDir, err)
	}

	m, err := session.NewManager(session.Options{
		BaseURL:     e.cfg.BaseURL,
		RealtimeURL: e.cfg.RealtimeURL,
		Storage:     storage,
		CookieName:  e.cfg.CookieName,
		Timeout:     e.cfg.Timeout,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.manager = m
	return m, nil
}
