package scan

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxDisplayName is the longest file name shown in a title before it is shortened.
const maxDisplayName = 40

// BuildTitle names a scan after its context and first file,
// e.g. "ProjectX / MyContract.sol and 2 other files".
func BuildTitle(projectName, workspace string, paths []string) string {
	if len(paths) == 0 {
		return titleContext(projectName, workspace, "")
	}

	title := fmt.Sprintf("%s / %s", titleContext(projectName, workspace, paths[0]), displayName(paths[0]))
	switch others := len(paths) - 1; {
	case others == 1:
		title += " and 1 other file"
	case others > 1:
		title += fmt.Sprintf(" and %d other files", others)
	}
	return title
}

// titleContext is the project name, else the workspace folder name, else the parent folder of the first file.
func titleContext(projectName, workspace, first string) string {
	if name := strings.TrimSpace(projectName); name != "" {
		return name
	}
	if workspace != "" {
		if base := filepath.Base(filepath.Clean(workspace)); base != "." && base != string(filepath.Separator) {
			return base
		}
	}
	if first != "" {
		if abs, err := filepath.Abs(first); err == nil {
			first = abs
		}
		if parent := filepath.Base(filepath.Dir(first)); parent != "." && parent != string(filepath.Separator) {
			return parent
		}
	}
	return "Scan"
}

func displayName(path string) string {
	return shortenName(filepath.Base(path), maxDisplayName)
}

// shortenName keeps the head and tail of long names around an ellipsis, preserving the extension.
func shortenName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}

	ext := []rune(filepath.Ext(name))
	if len(ext) >= limit/2 {
		ext = nil
	}
	stem := runes[:len(runes)-len(ext)]

	available := limit - len(ext) - 1
	head := (available + 1) / 2
	tail := available - head
	return string(stem[:head]) + "…" + string(stem[len(stem)-tail:]) + string(ext)
}
