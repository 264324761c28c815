// Package filesystem provides file access tools scoped to one allowed
// directory.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/MegaGrindStone/go-toolbus"
	"github.com/gobwas/glob"
)

// Server exposes file tools rooted at a single allowed directory. Paths
// outside the root are rejected.
type Server struct {
	root string
}

// NewServer creates a filesystem tool server rooted at root, which must be an
// existing directory.
func NewServer(root string) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	return &Server{root: abs}, nil
}

// Register adds the filesystem tools to reg.
func (s *Server) Register(reg *toolbus.Registry) error {
	handlers := map[string]toolbus.Handler{
		"read_file":  s.readFile,
		"write_file": s.writeFile,
		"list_files": s.listFiles,
	}

	for _, desc := range toolList {
		if err := reg.Register(desc, handlers[desc.Name]); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", desc.Name, err)
		}
	}
	return nil
}

func (s *Server) readFile(_ context.Context, args map[string]any) (any, error) {
	requested, _ := args["path"].(string)

	path, err := resolvePath(s.root, requested)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", requested, err)
	}
	return string(content), nil
}

func (s *Server) writeFile(_ context.Context, args map[string]any) (any, error) {
	requested, _ := args["path"].(string)
	content, _ := args["content"].(string)

	path, err := resolvePath(s.root, requested)
	if err != nil {
		return nil, err
	}

	// The previous content, if any, feeds the diff returned to the caller.
	oldContent := ""
	if old, err := os.ReadFile(path); err == nil {
		oldContent = string(old)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory for %s: %w", requested, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file %s: %w", requested, err)
	}

	return formatDiff(oldContent, content), nil
}

func (s *Server) listFiles(_ context.Context, args map[string]any) (any, error) {
	requested, _ := args["path"].(string)
	if requested == "" {
		requested = "."
	}

	path, err := resolvePath(s.root, requested)
	if err != nil {
		return nil, err
	}

	var matcher glob.Glob
	if pattern, ok := args["pattern"].(string); ok && pattern != "" {
		matcher, err = glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", requested, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if matcher != nil && !matcher.Match(name) {
			continue
		}
		if entry.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}
