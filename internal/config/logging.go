package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const logFileLayout = "20060102T150405Z"

// LogFileName returns the rotated log file name of a redline binary started at t.
func LogFileName(binary string, t time.Time) string {
	return fmt.Sprintf("redline-%s-%s.log", binary, t.UTC().Format(logFileLayout))
}

// SetupLogFile opens a fresh log file for binary in dir and keeps at most
// maxFiles files of that binary. The caller closes the file.
func SetupLogFile(dir, binary string, maxFiles int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, LogFileName(binary, time.Now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// Rotation failures never block startup.
	if err := pruneLogs(dir, binary, maxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "warning: log rotation in %s: %v\n", dir, err)
	}
	return f, nil
}

// pruneLogs deletes the oldest log files of binary beyond maxFiles.
// The timestamp layout sorts lexically in time order.
func pruneLogs(dir, binary string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "redline-"+binary+"-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= maxFiles {
		return nil
	}
	slices.Sort(files)
	for _, stale := range files[:len(files)-maxFiles] {
		if err := os.Remove(stale); err != nil {
			return fmt.Errorf("remove %s: %w", stale, err)
		}
	}
	return nil
}
