package scan

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-remote/cmd/version"
	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/internal/ci"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/internal/sarif"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/errors"
	"github.com/scan-io-git/scanio-remote/pkg/shared/logger"
)

// RunOptionsScan holds the arguments of the scan command.
type RunOptionsScan struct {
	ProjectName string   `json:"project_name,omitempty"`
	Meta        []string `json:"meta,omitempty"`
	Wait        bool     `json:"wait,omitempty"`
	CIMetadata  bool     `json:"ci_metadata,omitempty"`
	OutputPath  string   `json:"output_path,omitempty"`
	Files       []string `json:"files"`
}

var (
	AppConfig   *config.Config
	scanOptions RunOptionsScan

	exampleScanUsage = `  # Submit a single contract
  scanio-remote scan contracts/Token.sol

  # Submit several files and wait until the scan finishes
  scanio-remote scan --wait contracts/Token.sol contracts/Vault.sol

  # Attach metadata and write a SARIF report once the scan completes
  scanio-remote scan --meta branch=main --meta pr=42 --wait -o report.sarif contracts/*.sol`
)

// ScanCmd represents the command for submitting files to the scanning service.
var ScanCmd = &cobra.Command{
	Use:                   "scan [--project NAME] [--meta KEY=VALUE]... [--wait [--output/-o PATH]] FILE...",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleScanUsage,
	Short:                 "Submit source files for a security scan",
	RunE:                  runScanCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !hasFlags(cmd.Flags()) {
		return cmd.Help()
	}

	log := logger.NewLogger(AppConfig, "core-scan")

	metadata, err := validateScanArgs(&scanOptions, args)
	if err != nil {
		log.Error("invalid scan arguments", "error", err)
		return errors.NewCommandError(fmt.Errorf("invalid arguments: %w", err), 1)
	}

	if scanOptions.ProjectName != "" {
		AppConfig.ScanioRemote.ProjectName = scanOptions.ProjectName
	}
	if scanOptions.CIMetadata {
		if env, ok := ci.Detect(); ok {
			log.Debug("attaching CI metadata", "ci", env.Kind.String(), "repository", env.Repository)
			metadata = ci.Merge(metadata, env)
			if AppConfig.ScanioRemote.ProjectName == "" {
				AppConfig.ScanioRemote.ProjectName = env.RepositoryName
			}
		}
	}

	a, err := app.New(AppConfig, log, app.Options{Version: version.CoreVersion})
	if err != nil {
		log.Error("failed to initialize the client", "error", err)
		return errors.NewCommandError(err, 1)
	}
	defer a.Close()

	a.Auth.Init()
	a.Results.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	id, err := a.Submitter.StartScan(ctx, scanOptions.Files, metadata)
	if err != nil {
		log.Error("scan submission failed", "error", err)
		return errors.NewCommandError(err, 2)
	}

	out := cmd.OutOrStdout()
	if !scanOptions.Wait {
		fmt.Fprintf(out, "Scan %s submitted. Track it with 'scanio-remote results wait %s'.\n", id, id)
		log.Info("scan command completed successfully", "id", id)
		return nil
	}

	fmt.Fprintf(out, "Scan %s submitted, waiting for the result...\n", id)
	rec, err := waitForScan(ctx, a, id)
	if err != nil {
		log.Error("stopped waiting for the scan", "id", id, "error", err)
		return errors.NewCommandError(err, 2)
	}

	if rec.Status != results.StatusCompleted {
		return errors.NewCommandError(fmt.Errorf("scan %s finished with status %s", id, rec.Status), 2)
	}

	if scanOptions.OutputPath != "" {
		report, err := sarif.FromScanRecord(rec, version.CoreVersion, log)
		if err != nil {
			return errors.NewCommandError(err, 2)
		}
		path, err := report.WriteFile(scanOptions.OutputPath, id)
		if err != nil {
			log.Error("failed to write the SARIF report", "error", err)
			return errors.NewCommandError(err, 2)
		}
		fmt.Fprintf(out, "SARIF report written to %s\n", path)
	}

	log.Info("scan command completed successfully", "id", id)
	return nil
}

func init() {
	ScanCmd.Flags().StringVar(&scanOptions.ProjectName, "project", "", "Project name used in the scan title. Defaults to the workspace folder name.")
	ScanCmd.Flags().StringArrayVar(&scanOptions.Meta, "meta", nil, "Metadata attached to the scan as KEY=VALUE. Can be repeated.")
	ScanCmd.Flags().BoolVar(&scanOptions.CIMetadata, "ci", true, "Attach commit, branch and repository metadata when running in GitHub, GitLab or Bitbucket pipelines.")
	ScanCmd.Flags().BoolVarP(&scanOptions.Wait, "wait", "w", false, "Wait until the scan reaches a final status.")
	ScanCmd.Flags().StringVarP(&scanOptions.OutputPath, "output", "o", "", "Path to a SARIF report written when the scan completes. Requires --wait.")
	ScanCmd.Flags().BoolP("help", "h", false, "Show help for the scan command.")
}
