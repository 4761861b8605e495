package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays, then caps each target at maxFiles newest entries. A
// retentionDays value of 0 disables age pruning; maxFiles 0 disables the cap.
func CleanupOldLogs(logger *slog.Logger, retentionDays, maxFiles int, targets ...RetentionTarget) {
	if retentionDays <= 0 && maxFiles <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				if abs, err := filepath.Abs(trimmed); err == nil {
					exclusions[abs] = struct{}{}
				}
			}
		}
	}

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		type candidate struct {
			path    string
			modTime time.Time
		}
		var kept []candidate
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				matched, err := filepath.Match(pat, name)
				if err != nil || !matched {
					continue
				}
			}
			fullPath := filepath.Join(dir, name)
			if absPath, err := filepath.Abs(fullPath); err == nil {
				fullPath = absPath
			}
			if _, skip := exclusions[fullPath]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if retentionDays > 0 && info.ModTime().Before(cutoff) {
				removeLogFile(logger, fullPath)
				continue
			}
			kept = append(kept, candidate{path: fullPath, modTime: info.ModTime()})
		}

		if maxFiles > 0 && len(kept) > maxFiles {
			sort.Slice(kept, func(i, j int) bool {
				return kept[i].modTime.After(kept[j].modTime)
			})
			for _, stale := range kept[maxFiles:] {
				removeLogFile(logger, stale.path)
			}
		}
	}
}

func removeLogFile(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil {
		WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
			String("path", path),
			Error(err),
			String(FieldErrorHint, "check file permissions and log_dir ownership"),
			String(FieldImpact, "old log file remains on disk"),
		)
		return
	}
	if logger != nil {
		logger.Info("log pruned",
			String("path", path),
			String(FieldEventType, "log_pruned"),
		)
	}
}
