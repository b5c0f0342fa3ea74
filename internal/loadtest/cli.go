package loadtest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/evalboard/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging points the global logger at stdout and logFile. An empty
// logFile gets a timestamped name. The returned closer flushes the file.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "loadtest_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`evalboard load test
===================

Uploads random prediction files for many users at once and checks that
every acknowledged result reached the shared history and the leaderboard.

Usage:
  loadtest [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -users int         Distinct users (default 20)
  -per-user int      Uploads per user (default 5)
  -rows int          Prediction rows per file, ids 1..rows (default 100)
  -repeat float      Share of uploads that resend the previous file (default 0.2)
  -mode string       Comma-separated modes to record under
  -workers int       Concurrent uploaders (default 8)
  -rps float         Upload rate limit, 0 for none
  -timeout duration  HTTP request timeout (default 30s)
  -log string        Log file (default: loadtest_TIMESTAMP.log)
  -verbose           Log every upload
  -help              Show this help message

Examples:
  loadtest -users 50 -per-user 10 -workers 32
  loadtest -url http://localhost:8080 -mode practice,final -rps 20
`)
}
