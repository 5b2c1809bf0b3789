package results

import (
	"fmt"
)

const (
	formatSARIF = "sarif"
	formatJSON  = "json"
)

// validateExportArgs validates the arguments provided to the export command.
func validateExportArgs(format string) error {
	switch format {
	case formatSARIF, formatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported format %q, expected %q or %q", format, formatSARIF, formatJSON)
	}
}
