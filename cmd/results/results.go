package results

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-remote/cmd/version"
	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/internal/sarif"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/errors"
	"github.com/scan-io-git/scanio-remote/pkg/shared/files"
	"github.com/scan-io-git/scanio-remote/pkg/shared/logger"
)

var (
	AppConfig *config.Config

	showJSON     bool
	exportPath   string
	exportFormat string

	exampleResultsUsage = `  # List the scans of the current workspace
  scanio-remote results list

  # Show the issues of a scan
  scanio-remote results show 6f1c2a

  # Keep polling unfinished scans until they reach a final status
  scanio-remote results wait

  # Export a completed scan as SARIF
  scanio-remote results export 6f1c2a -o /path/to/reports/

  # Export the raw scan record as JSON
  scanio-remote results export 6f1c2a --format json -o scan.json

  # Remove one scan or the whole history
  scanio-remote results remove 6f1c2a
  scanio-remote results clear`
)

// ResultsCmd groups the commands working with the local scan history.
var ResultsCmd = &cobra.Command{
	Use:                   "results [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleResultsUsage,
	Short:                 "Browse and manage the scan history of the workspace",
}

var listCmd = &cobra.Command{
	Use:                   "list",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Short:                 "List stored scans, newest first",
	RunE:                  runListCommand,
}

var showCmd = &cobra.Command{
	Use:                   "show [--json] SCAN_ID",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),
	Short:                 "Show a scan and its issues ordered by severity",
	RunE:                  runShowCommand,
}

var removeCmd = &cobra.Command{
	Use:                   "remove SCAN_ID...",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.MinimumNArgs(1),
	Short:                 "Remove scans from the history and stop tracking them",
	RunE:                  runRemoveCommand,
}

var clearCmd = &cobra.Command{
	Use:                   "clear",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Short:                 "Remove every scan from the history",
	RunE:                  runClearCommand,
}

var exportCmd = &cobra.Command{
	Use:                   "export SCAN_ID [--format sarif|json] [--output/-o PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),
	Short:                 "Export a completed scan as a SARIF report or raw JSON",
	RunE:                  runExportCommand,
}

var waitCmd = &cobra.Command{
	Use:                   "wait [SCAN_ID...]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Resume polling of unfinished scans and wait for their final status",
	RunE:                  runWaitCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	ResultsCmd.AddCommand(listCmd, showCmd, removeCmd, clearCmd, exportCmd, waitCmd)

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the stored record as JSON")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "Path to the report file or folder. Defaults to the current folder.")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatSARIF, "Report format: sarif or json.")
}

// openApp builds the client and loads the stored history without resuming polling.
func openApp() (*app.App, hclog.Logger, error) {
	log := logger.NewLogger(AppConfig, "core-results")
	a, err := app.New(AppConfig, log, app.Options{Version: version.CoreVersion})
	if err != nil {
		log.Error("failed to initialize the client", "error", err)
		return nil, nil, errors.NewCommandError(err, 1)
	}
	a.Results.Load()
	return a, log, nil
}

func runListCommand(cmd *cobra.Command, args []string) error {
	a, _, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return renderList(cmd.OutOrStdout(), a.Results.All())
}

func runShowCommand(cmd *cobra.Command, args []string) error {
	a, _, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, ok := a.Results.Get(args[0])
	if !ok {
		return errors.NewCommandError(fmt.Errorf("scan %q not found", args[0]), 1)
	}

	if showJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	renderRecord(cmd.OutOrStdout(), rec)
	return nil
}

func runRemoveCommand(cmd *cobra.Command, args []string) error {
	a, log, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var missing []string
	for _, id := range args {
		if !a.Results.Remove(id) {
			missing = append(missing, id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
	}
	if len(missing) > 0 {
		log.Warn("scans not found", "ids", missing)
		return errors.NewCommandError(fmt.Errorf("scans not found: %v", missing), 1)
	}
	return nil
}

func runClearCommand(cmd *cobra.Command, args []string) error {
	a, _, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.Results.Len()
	a.Results.RemoveAll()
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d scan(s)\n", n)
	return nil
}

func runExportCommand(cmd *cobra.Command, args []string) error {
	if err := validateExportArgs(exportFormat); err != nil {
		return errors.NewCommandError(fmt.Errorf("invalid arguments: %w", err), 1)
	}

	a, log, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if exportFormat == formatJSON {
		path, err := exportJSON(a, args[0], exportPath)
		if err != nil {
			log.Error("export failed", "id", args[0], "error", err)
			return errors.NewCommandError(err, 1)
		}
		fmt.Fprintf(out, "Scan record written to %s\n", path)
		log.Info("export command completed successfully", "path", path)
		return nil
	}

	path, info, err := exportRecord(a, args[0], exportPath, log)
	if err != nil {
		log.Error("export failed", "id", args[0], "error", err)
		return errors.NewCommandError(err, 1)
	}

	fmt.Fprintf(out, "SARIF report written to %s (%d results: %d error, %d warning, %d note, %d none)\n",
		path, info["total"], info["error"], info["warning"], info["note"], info["none"])
	log.Info("export command completed successfully", "path", path)
	return nil
}

func runWaitCommand(cmd *cobra.Command, args []string) error {
	log := logger.NewLogger(AppConfig, "core-results")
	a, err := app.New(AppConfig, log, app.Options{Version: version.CoreVersion})
	if err != nil {
		log.Error("failed to initialize the client", "error", err)
		return errors.NewCommandError(err, 1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	resumed := a.Init(ctx)
	ids, err := selectWaitTargets(a, args, resumed)
	if err != nil {
		return errors.NewCommandError(err, 1)
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No unfinished scans.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Waiting for %d scan(s)...\n", len(ids))
	for _, id := range ids {
		select {
		case <-a.Scheduler.Done(id):
		case <-ctx.Done():
			return errors.NewCommandError(fmt.Errorf("interrupted while waiting: %w", ctx.Err()), 2)
		}
	}

	var finished []string
	for _, id := range ids {
		if rec, ok := a.Results.Get(id); ok {
			finished = append(finished, fmt.Sprintf("%s: %s", id, rec.Status))
		}
	}
	renderLines(cmd.OutOrStdout(), finished)
	log.Info("wait command completed successfully", "scans", len(ids))
	return nil
}

func exportJSON(a *app.App, id, output string) (string, error) {
	rec, ok := a.Results.Get(id)
	if !ok {
		return "", fmt.Errorf("scan %q not found", id)
	}
	if output == "" {
		output = "."
	}

	fullPath, folder, err := files.DetermineFileFullPath(output, fmt.Sprintf("scanio-remote-%s.json", id))
	if err != nil {
		return "", err
	}
	if err := files.CreateFolderIfNotExists(folder); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode scan record: %w", err)
	}
	if err := files.WriteJsonFile(fullPath, data); err != nil {
		return "", err
	}
	return fullPath, nil
}

func exportRecord(a *app.App, id, output string, log hclog.Logger) (string, map[string]int, error) {
	rec, ok := a.Results.Get(id)
	if !ok {
		return "", nil, fmt.Errorf("scan %q not found", id)
	}
	if err := checkExportable(rec); err != nil {
		return "", nil, err
	}

	report, err := sarif.FromScanRecord(rec, version.CoreVersion, log)
	if err != nil {
		return "", nil, err
	}
	report.SortResultsByLevel()

	if output == "" {
		output = "."
	}
	path, err := report.WriteFile(output, id)
	if err != nil {
		return "", nil, err
	}
	return path, report.CollectSeverityInfo(), nil
}
