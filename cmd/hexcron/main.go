package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hexpgame/hexcron/app"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "hexcron.yaml", "path to the YAML configuration")
	runOnce := flag.String("run", "", "run one job immediately and exit")
	listRuns := flag.Bool("job-runs", false, "print the persisted job runs as JSON and exit")
	runStatus := flag.String("job-status", "", "with -job-runs, only print runs in this status")
	flag.Parse()

	if err := run(*configPath, *runOnce, *listRuns, state.JobRunStatus(*runStatus)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, runOnce string, listRuns bool, runStatus state.JobRunStatus) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			container.Logger.Error("shutdown incomplete", zap.Error(err))
		}
	}()
	logger := container.Logger

	if listRuns {
		runs, err := container.ListJobRuns(ctx, runStatus)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if runOnce != "" {
		summary, err := container.Registry.RunNow(ctx, runOnce)
		if err != nil {
			return err
		}
		logger.Info("job finished", zap.String("job", runOnce), zap.Any("summary", summary))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := container.Registry.Start(gctx); err != nil {
			return err
		}
		logger.Info("hexcron started", zap.Strings("jobs", container.Jobs))
		<-gctx.Done()
		logger.Info("shutting down")
		return container.Registry.Stop()
	})
	g.Go(func() error {
		reportStatus(gctx, container)
		return nil
	})
	return g.Wait()
}

// reportStatus logs the process and job run population once a minute until ctx is done.
func reportStatus(ctx context.Context, container *app.Container) {
	ticker := container.Clock.Ticker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := container.ReportStatus(ctx); err != nil {
				container.Logger.Warn("status report failed", zap.Error(err))
			}
		}
	}
}
