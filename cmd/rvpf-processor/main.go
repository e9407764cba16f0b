// Command rvpf-processor runs one batch-engine service: it
// loads a metadata arena, opens the store it drives, builds a Processor
// over the arena's relation graph, and runs the batch loop until
// signalled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xapiens/rvpf/config"
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/processor"
	"github.com/xapiens/rvpf/rvpflog"
	"github.com/xapiens/rvpf/rvpfmetrics"
	"github.com/xapiens/rvpf/store"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: rvpf-processor <config-path> <service-name>")
		os.Exit(2)
	}
	configPath, serviceName := os.Args[1], os.Args[2]

	cfg, err := config.LoadProcessorConfig(configPath)
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

	arena, err := metadata.LoadArena(cfg.MetadataPath)
	if err != nil {
		log.Error("metadata load failed", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	st.SetMetrics(rvpfmetrics.NewStore(reg))

	proc, err := processor.New(arena, st, cfg.BatchMaxSize, cfg.BatchMaxWait, cfg.LookupConcurrency, datetime.SystemClock{})
	if err != nil {
		log.Error("processor build failed", "err", err)
		os.Exit(1)
	}
	proc.SetMetrics(rvpfmetrics.NewProcessor(reg))
	if cfg.CacheMaxBytes > 0 {
		proc.SetCacheBudget(uint64(cfg.CacheMaxBytes))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	log.Info("processor ready", "points", len(arena.Points()), "relations", len(arena.Relations()))
	if err := proc.Run(ctx); err != nil {
		log.Error("processor loop stopped", "err", err)
		os.Exit(1)
	}
	log.Info("processor shutting down")
}
