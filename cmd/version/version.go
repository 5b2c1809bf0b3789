package version

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
)

var (
	AppConfig     *config.Config
	CoreVersion   = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"

	outputJSON bool
)

// Versions holds build information of the binary.
type Versions struct {
	Version       string `json:"version"`
	GolangVersion string `json:"golang_version"`
	BuildTime     string `json:"build_time"`
	BaseURL       string `json:"base_url,omitempty"`
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "version [--json]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			versions := Versions{
				Version:       CoreVersion,
				GolangVersion: GolangVersion,
				BuildTime:     BuildTime,
			}
			if AppConfig != nil {
				versions.BaseURL = config.GetBaseURL(AppConfig)
			}
			return printVersionInfo(cmd.OutOrStdout(), versions, outputJSON)
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print version information as JSON")
	return cmd
}

// printVersionInfo prints the version information of the application.
func printVersionInfo(w io.Writer, versions Versions, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(versions)
	}

	fmt.Fprintf(w, "Core Version: v%s\n", versions.Version)
	fmt.Fprintf(w, "Go Version: %s\n", versions.GolangVersion)
	fmt.Fprintf(w, "Build Time: %s\n", versions.BuildTime)
	if versions.BaseURL != "" {
		fmt.Fprintf(w, "Service: %s\n", versions.BaseURL)
	}
	return nil
}
