package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/events"
	"github.com/aisentinel/session-service/pkg/session"
)

func newOpenCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Apply the session parameters of a link",
		Long: `Evaluate a link the way the web app does on navigation: session parameters
(auth_token, session_token, backup-session, direct-session, logout) are applied
to the local profile and the cleaned link is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}

			res, err := m.HandleNavigation(cmd.Context(), args[0])
			if res == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if e.output == "json" {
				view := struct {
					URL    string    `json:"url"`
					Source string    `json:"source"`
					State  stateView `json:"identity"`
					Saved  bool      `json:"saved"`
				}{res.URL.String(), res.Candidate.Source.String(), viewOf(res.State), res.Saved != nil}
				if printErr := e.printJSON(out, view); printErr != nil {
					return printErr
				}
				return err
			}

			fmt.Fprintf(out, "URL: %s\n", res.URL)
			if res.Matched {
				fmt.Fprintf(out, "Credential source: %s\n", res.Candidate.Source)
			}
			if res.Saved != nil {
				fmt.Fprintf(out, "Saved account %s\n", res.Saved.Email)
			}
			if printErr := e.printState(out, res.State); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func newWhoamiCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity of the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			state, err := m.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return e.printState(cmd.OutOrStdout(), state)
		},
	}
}

func newAccountsCommand(e *env) *cobra.Command {
	accounts := &cobra.Command{
		Use:   "accounts",
		Short: "List, switch and remove saved accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved accounts, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			token, _ := m.Activator().Token()
			return e.printAccounts(cmd.OutOrStdout(), m.Accounts().ByLastUsed(), token)
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <email>",
		Short: "Make a saved account the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			state, err := m.SwitchAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.printState(cmd.OutOrStdout(), state)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <email>",
		Short: "Forget a saved account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			// Resolve the active identity first so the active account is refused.
			if _, err := m.Refresh(cmd.Context()); err != nil {
				e.logger.Debug("identity refresh failed before remove", zap.Error(err))
			}
			if err := m.GuardMutation(); err != nil {
				return err
			}
			if err := m.RemoveAccount(args[0]); err != nil {
				if errors.Is(err, session.ErrActiveAccount) {
					return fmt.Errorf("%w: switch to another account or log out first", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", strings.ToLower(strings.TrimSpace(args[0])))
			return nil
		},
	}

	accounts.AddCommand(list, switchCmd, remove)
	return accounts
}

func newLoginCommand(e *env) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. The password is read from --password or
AISENTINEL_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password, _ = e.lookupEnv(EnvPrefix + "PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			m, err := e.session()
			if err != nil {
				return err
			}
			state, err := m.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return e.printState(cmd.OutOrStdout(), state)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the active session and clear it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			if err := m.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newEnsureCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create a session when the profile has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			state, err := m.EnsureSession(cmd.Context())
			if err != nil {
				return err
			}
			return e.printState(cmd.OutOrStdout(), state)
		},
	}
}

func newVerifyCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <email>",
		Short: "E-mail a sign-in link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			if err := m.Client().RequestVerification(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sign-in link sent to %s\n", args[0])
			return nil
		},
	}
}

func newWatchCommand(e *env) *cobra.Command {
	var accountsOnly bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow session events until interrupted",
		Long: `Follow session events pushed by the server and print the identity after each
one. With --accounts, follow changes other processes make to the saved
accounts instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.session()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if accountsOnly {
				return m.WatchAccounts(cmd.Context(), func(accounts []session.SavedAccount) {
					token, _ := m.Activator().Token()
					if err := e.printAccounts(out, accounts, token); err != nil {
						e.logger.Debug("failed to print accounts", zap.Error(err))
					}
				})
			}

			return m.Watch(cmd.Context(), func(evt events.Event, state session.AuthState) {
				if e.output == "json" {
					_ = e.printJSON(out, struct {
						Event    events.Event `json:"event"`
						Identity stateView    `json:"identity"`
					}{evt, viewOf(state)})
					return
				}
				fmt.Fprintf(out, "%s %s\n", evt.At, evt.Type)
				if evt.Type == events.TypeSessionActivated || evt.Type == events.TypeSessionRevoked {
					_ = e.printState(out, state)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&accountsOnly, "accounts", false, "watch saved accounts instead of server events")
	return cmd
}

func newConfigCommand(e *env) *cobra.Command {
	config := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the sentinelctl configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), e.configPath)
			return nil
		},
	}

	view := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.output == "json" {
				return e.printJSON(cmd.OutOrStdout(), e.cfg)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "base_url:     %s\n", e.cfg.BaseURL)
			if e.cfg.RealtimeURL != "" {
				fmt.Fprintf(out, "realtime_url: %s\n", e.cfg.RealtimeURL)
			}
			fmt.Fprintf(out, "data_dir:     %s\n", e.cfg.DataDir)
			fmt.Fprintf(out, "timeout:      %s\n", e.cfg.Timeout)
			fmt.Fprintf(out, "log_level:    %s\n", e.cfg.LogLevel)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := SaveConfig(e.cfg, e.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", e.configPath)
			return nil
		},
	}

	config.AddCommand(path, view, initCmd)
	return config
}
