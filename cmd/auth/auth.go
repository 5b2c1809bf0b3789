package auth

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-remote/cmd/version"
	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/errors"
	"github.com/scan-io-git/scanio-remote/pkg/shared/logger"
)

var (
	AppConfig *config.Config

	exampleAuthUsage = `  # Sign in through the browser
  scanio-remote auth login

  # Show whether a valid session exists
  scanio-remote auth status

  # Forget the stored credentials
  scanio-remote auth logout`
)

// AuthCmd groups the session management commands.
var AuthCmd = &cobra.Command{
	Use:                   "auth [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleAuthUsage,
	Short:                 "Manage the session with the scanning service",
}

var loginCmd = &cobra.Command{
	Use:                   "login",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Short:                 "Sign in with the browser using OAuth 2.0 and PKCE",
	RunE:                  runLoginCommand,
}

var logoutCmd = &cobra.Command{
	Use:                   "logout",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Short:                 "Remove the stored credentials",
	RunE:                  runLogoutCommand,
}

var statusCmd = &cobra.Command{
	Use:                   "status",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Short:                 "Show the state of the stored session",
	RunE:                  runStatusCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	AuthCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}

func openApp(name string) (*app.App, hclog.Logger, error) {
	log := logger.NewLogger(AppConfig, name)
	a, err := app.New(AppConfig, log, app.Options{Version: version.CoreVersion})
	if err != nil {
		log.Error("failed to initialize the client", "error", err)
		return nil, nil, errors.NewCommandError(err, 1)
	}
	a.Auth.Init()
	return a, log, nil
}

func runLoginCommand(cmd *cobra.Command, args []string) error {
	a, log, err := openApp("core-auth")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := a.Auth.Authenticate(ctx); err != nil {
		log.Error("authentication failed", "state", a.Auth.State().String(), "error", err)
		return errors.NewCommandError(fmt.Errorf("login failed: %w", err), 2)
	}

	token, _ := a.Auth.Token()
	fmt.Fprintln(cmd.OutOrStdout(), describeSession(token, true, time.Now()))
	log.Info("login command completed successfully")
	return nil
}

func runLogoutCommand(cmd *cobra.Command, args []string) error {
	a, log, err := openApp("core-auth")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Auth.Logout(); err != nil {
		log.Error("failed to remove stored credentials", "error", err)
		return errors.NewCommandError(fmt.Errorf("logout failed: %w", err), 2)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	a, _, err := openApp("core-auth")
	if err != nil {
		return err
	}
	defer a.Close()

	token, ok := a.Auth.Token()
	fmt.Fprintln(cmd.OutOrStdout(), describeSession(token, ok, time.Now()))
	return nil
}
