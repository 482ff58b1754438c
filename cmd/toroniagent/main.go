// Command toroniagent is the demonstrator burst agent: it exercises the
// rmp/tp transport end to end with configurable writer and reader
// processes, recording write and read counts and write latency in a
// shared-memory stats block and logging host resource usage. No subcommand
// prints the stats block's totals.
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
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/toroni/internal/config"
	"github.com/adred-codev/toroni/internal/obslog"
	"github.com/adred-codev/toroni/internal/obsmetrics"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: toroniagent <init|write|read>")
		os.Exit(2)
	}
	subcommand := os.Args[1]

	bootstrapLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg, err := config.LoadConfig(&bootstrapLog)
	if err != nil {
		bootstrapLog.Fatal().Err(err).Msg("agent: config load failed")
	}

	log := obslog.New(obslog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(log)

	reg := prometheus.NewRegistry()
	obsmetrics.MustRegisterAll(reg)
	go serveMetrics(cfg.MetricsAddr, reg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel, log)

	switch subcommand {
	case "init":
		err = runInit(cfg, log)
	case "write":
		err = runWrite(ctx, cfg, log)
	case "read":
		err = runRead(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: want init, write, or read\n", subcommand)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("subcommand", subcommand).Msg("agent: run failed")
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("agent: metrics server stopped")
	}
}

func waitForSignal(cancel context.CancelFunc, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("agent: shutting down")
	cancel()
}
