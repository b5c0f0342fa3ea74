package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/evalboard/internal/loadtest"
)

const (
	defaultRepeatRatio = 0.2
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users   = flag.Int("users", loadtest.DefaultUsers, "Distinct users")
		perUser = flag.Int("per-user", loadtest.DefaultSubmissionsPerUser, "Uploads per user")
		rows    = flag.Int("rows", loadtest.DefaultRows, "Prediction rows per file")
		repeat  = flag.Float64("repeat", defaultRepeatRatio, "Share of uploads that resend the previous file")
		modes   = flag.String("mode", "", "Comma-separated modes to record under")
		workers = flag.Int("workers", loadtest.DefaultWorkers, "Concurrent uploaders")
		rps     = flag.Float64("rps", 0, "Upload rate limit, 0 for none")
		timeout = flag.Duration("timeout", loadtest.DefaultTimeout, "HTTP request timeout")
		logFile = flag.String("log", "", "Log file (default: loadtest_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Log every upload")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	closer, err := loadtest.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &loadtest.Config{
		BaseURL:            *baseURL,
		Users:              *users,
		SubmissionsPerUser: *perUser,
		Rows:               *rows,
		RepeatRatio:        *repeat,
		Workers:            *workers,
		RPS:                *rps,
		Timeout:            *timeout,
		Verbose:            *verbose,
	}
	for _, m := range strings.Split(*modes, ",") {
		if m = strings.TrimSpace(m); m != "" {
			cfg.Modes = append(cfg.Modes, m)
		}
	}

	if _, err := loadtest.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
