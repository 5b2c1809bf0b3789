package cmd

import (
	goerrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-remote/cmd/auth"
	"github.com/scan-io-git/scanio-remote/cmd/results"
	"github.com/scan-io-git/scanio-remote/cmd/scan"
	"github.com/scan-io-git/scanio-remote/cmd/version"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/errors"
)

const defaultConfigFile = "config.yml"

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "scanio-remote [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "Scanio Remote submits code to a remote security scanning service.",
		Long: `Scanio Remote authenticates against the scanning service, submits source files for analysis,
	tracks scans until they finish and keeps a local history of the latest results.
	`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml)")

	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(scan.ScanCmd)
	rootCmd.AddCommand(results.ResultsCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)

		var cmdErr *errors.CommandError
		if goerrors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
			return cmdErr.ExitCode
		}
		return 1
	}
	return 0
}

func initConfig() {
	var err error

	required := cfgFile != ""
	if !required {
		cfgFile = defaultConfigFile
	}
	AppConfig, err = config.LoadConfig(cfgFile, required)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	version.Init(AppConfig)
	auth.Init(AppConfig)
	scan.Init(AppConfig)
	results.Init(AppConfig)
}
