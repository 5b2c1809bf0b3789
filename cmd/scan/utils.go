package scan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/internal/results"
)

// hasFlags reports whether any flag was set explicitly on the command line.
func hasFlags(flags *pflag.FlagSet) bool {
	changed := false
	flags.Visit(func(*pflag.Flag) { changed = true })
	return changed
}

// parseMetadata turns KEY=VALUE pairs into scan metadata. Values that look like
// booleans or numbers keep that type, everything else stays a string.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected KEY=VALUE", pair)
		}
		if _, exists := metadata[key]; exists {
			return nil, fmt.Errorf("duplicate metadata key %q", key)
		}
		metadata[key] = parseMetadataValue(value)
	}
	return metadata, nil
}

func parseMetadataValue(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// waitForScan blocks until polling of id stops and returns the final record.
func waitForScan(ctx context.Context, a *app.App, id string) (results.ScanRecord, error) {
	select {
	case <-a.Scheduler.Done(id):
	case <-ctx.Done():
		return results.ScanRecord{}, fmt.Errorf("scan %s is still running: %w", id, ctx.Err())
	}

	rec, ok := a.Results.Get(id)
	if !ok {
		return results.ScanRecord{}, fmt.Errorf("scan %s was removed while waiting", id)
	}
	return rec, nil
}
