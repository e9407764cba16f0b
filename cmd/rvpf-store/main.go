// Command rvpf-store runs one point-value store service:
// it opens TheStore, installs per-point retention rules, starts the
// chosen Archiver strategy and the listener-queue drain loop, and serves
// prometheus metrics until signalled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xapiens/rvpf/config"
	"github.com/xapiens/rvpf/rvpflog"
	"github.com/xapiens/rvpf/rvpfmetrics"
	"github.com/xapiens/rvpf/store"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: rvpf-store <config-path> <service-name>")
		os.Exit(2)
	}
	configPath, serviceName := os.Args[1], os.Args[2]

	cfg, err := config.LoadStoreConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		if err := rvpflog.SetLevel(cfg.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "%s: bad log_level %q: %v\n", serviceName, cfg.LogLevel, err)
			os.Exit(1)
		}
	}
	log := rvpflog.New(serviceName)

	st, err := store.Open(cfg.DataPath)
	if err != nil {
		log.Error("open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	for _, rc := range cfg.Retention {
		id, err := uuid.Parse(rc.Point)
		if err != nil {
			log.Error("bad retention.point, skipping", "point", rc.Point, "err", err)
			continue
		}
		st.SetRetention(id, store.RetentionRule{MaxAge: rc.MaxAge, MaxRows: rc.MaxRows, Attic: rc.Attic})
	}

	reg := prometheus.NewRegistry()
	st.SetMetrics(rvpfmetrics.NewStore(reg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ArchiverMode == "scheduled" {
		period := cfg.ArchiverPeriod
		if period <= 0 {
			period = 5 * time.Minute
		}
		rate := cfg.ArchiverRate
		if rate <= 0 {
			rate = 50
		}
		sched := store.NewScheduledArchiver(st, period, rate)
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Error("scheduled archiver stopped", "err", err)
			}
		}()
	}

	go func() {
		if err := st.RunListener(ctx); err != nil {
			log.Error("listener loop stopped", "err", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = server.Close()
		}()
	}

	log.Info("store ready", "data_path", cfg.DataPath, "archiver_mode", cfg.ArchiverMode)
	<-ctx.Done()
	log.Info("store shutting down")
}
