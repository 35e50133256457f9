package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir resolves the log directory: $CODETRAWL_LOG_DIR when set,
// otherwise ~/.codetrawl/logs, falling back to the temp dir when no home
// directory is available.
func DefaultLogDir() string {
	if dir := os.Getenv("CODETRAWL_LOG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "codetrawl-logs")
	}
	return filepath.Join(home, ".codetrawl", "logs")
}

// DefaultLogPath is the default log file inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "codetrawl.log")
}

// EnsureLogDir creates the log directory if it does not exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
