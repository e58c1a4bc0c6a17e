package usage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogExt is the session log file extension.
const LogExt = ".jsonl"

// ListLogFiles returns the session logs found in the immediate
// subdirectories of root. A missing root yields nothing; an unreadable
// project directory is logged and skipped.
func ListLogFiles(root string, logger *slog.Logger) []string {
	if logger == nil {
		logger = discardLogger
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	projects, err := os.ReadDir(root)
	if err != nil {
		logger.Debug("list projects", "dir", root, "error", err)
		return nil
	}

	var files []string
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		dir := filepath.Join(root, p.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Debug("list project logs", "dir", dir, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), LogExt) {
				continue
			}
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files
}
