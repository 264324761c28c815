package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// resolvePath turns a requested path into an absolute path and verifies it
// stays inside the allowed root, so tools can never escape it through ".."
// segments or absolute paths.
func resolvePath(root, requested string) (string, error) {
	candidate := requested
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied - path %s is outside the allowed directory %s", requested, root)
	}
	return candidate, nil
}

// formatDiff renders a line-oriented diff between the old and new content,
// with "-" and "+" prefixes for removed and added lines.
func formatDiff(oldContent, newContent string) string {
	dmp := diffmatchpatch.New()

	oldLines, newLines, lineStrings := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldLines, newLines, false), lineStrings)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
		}

		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
