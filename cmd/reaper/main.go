// Command reaper sweeps expired rooms outside the API process, either once
// (for cron or a Kubernetes CronJob) or on the configured interval.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
	"github.com/venkatram-2005/Quick-Share/pkg/di"
)

func main() {
	once := pflag.Bool("once", false, "run a single sweep and exit")
	reconcile := pflag.Bool("reconcile", false, "with --once, also remove orphaned blobs")
	pflag.Parse()

	cfg, err := configs.LoadConfig()
	if err != nil {
		logx.New("", "info").Error("config", "error", err)
		os.Exit(1)
	}
	log := logx.New(cfg.Env, cfg.LogLevel).With("cmd", "reaper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := di.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Close(cctx)
	}()

	if !*once {
		if err := c.Reaper.Run(ctx); err != nil {
			log.Error("reaper stopped", "error", err)
		}
		return
	}

	deleted, err := c.Reaper.Sweep(ctx)
	if err != nil {
		log.Error("sweep failed", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("sweep done", "deleted", deleted)

	if *reconcile {
		removed, err := c.Reaper.Reconcile(ctx)
		if err != nil {
			log.Error("reconcile failed", "error", err)
			stop()
			os.Exit(1)
		}
		log.Info("reconcile done", "removed", removed)
	}
}
