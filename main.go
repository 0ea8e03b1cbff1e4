package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/raysh454/secscan/internal/app"
	"github.com/raysh454/secscan/internal/cli"
	"github.com/raysh454/secscan/internal/history"
	"github.com/raysh454/secscan/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		cli.Usage(os.Stderr)
		return app.ExitConfigInvalid
	}

	logger := logging.NewLogger(os.Stderr, "secscan")

	cfg := app.DefaultConfig()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		logger.Error("reading environment", logging.Err(err))
		return app.ExitConfigInvalid
	}
	if args.Concurrency > 0 {
		cfg.MaxConcurrency = args.Concurrency
	}
	if args.Timeout > 0 {
		cfg.ScannerTimeout = args.Timeout
	}
	if args.Runtime != "" {
		cfg.Runtime = args.Runtime
	}
	// A single CLI run writes reports only when asked to.
	cfg.ReportsRoot = args.ReportsDir
	// The CLI scans whatever path it is given.
	cfg.BaseRoot = ""
	if err := cfg.Normalize(); err != nil {
		logger.Error("normalizing config", logging.Err(err))
		return app.ExitConfigInvalid
	}

	var hist *history.Store
	if args.HistoryPath != "" {
		hist, err = history.Open(args.HistoryPath, logger)
		if err != nil {
			logger.Error("opening scan history", logging.F("path", args.HistoryPath), logging.Err(err))
			return app.ExitConfigInvalid
		}
		defer hist.Close()
		cfg.StorageRoot = filepath.Dir(args.HistoryPath)
	}

	orch := app.NewOrchestrator(cfg, hist, nil, logger)
	a := app.NewApplication(cfg, args, logger, orch)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			logger.Warn("interrupted, stopping scanners")
			_ = a.Shutdown(context.Background())
		}
	}()

	code, rep, err := a.Run(context.Background())
	if rep != nil {
		fmt.Println(rep.SummaryPath)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	_ = a.Shutdown(context.Background())
	return code
}
