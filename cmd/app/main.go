package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/ratelimit"
	"github.com/venkatram-2005/Quick-Share/internal/realtime"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/httpx"
	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
	"github.com/venkatram-2005/Quick-Share/internal/shared/telemetry"
	"github.com/venkatram-2005/Quick-Share/pkg/di"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		logx.New("", "info").Error("config", "error", err)
		os.Exit(1)
	}
	log := logx.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled {
		shutdown, err := telemetry.InitOTEL(ctx, cfg.ServiceName, cfg.Env)
		if err != nil {
			log.Error("otel", "error", err)
			os.Exit(1)
		}
		defer func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(c)
		}()
	}

	c, err := di.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Close(cctx); err != nil {
			log.Warn("close", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	var limitCreate func(http.Handler) http.Handler
	if c.Limiter != nil && cfg.RateLimitCreatePerMin > 0 {
		limitCreate = func(next http.Handler) http.Handler {
			return ratelimit.Middleware(c.Limiter, "room_create", cfg.RateLimitCreatePerMin, time.Minute, log, next)
		}
	}
	room.NewHandler(mux, c.Rooms, log, limitCreate)
	attachment.NewHandler(mux, c.Attachments, log)
	realtime.NewHandler(mux, c.Rooms, c.Attachments, c.Feed, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := c.Feed.Run(ctx); err != nil {
			log.Error("feed transport stopped", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.Reaper.Run(ctx); err != nil {
			log.Error("reaper stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(httpx.RequestLogger(log, mux), "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("quick-share listening", "addr", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
		stop()
	}
	wg.Wait()
	log.Info("shutdown complete")
}
