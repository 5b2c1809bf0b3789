package scan

import (
	"fmt"
)

// validateScanArgs validates the arguments provided to the scan command and returns the parsed metadata.
func validateScanArgs(options *RunOptionsScan, args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one file must be specified")
	}
	options.Files = args

	if options.OutputPath != "" && !options.Wait {
		return nil, fmt.Errorf("the 'output' flag requires the 'wait' flag")
	}

	return parseMetadata(options.Meta)
}
