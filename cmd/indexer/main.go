package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/agentindexer/internal/chainsource"
	"github.com/R3E-Network/agentindexer/internal/config"
	"github.com/R3E-Network/agentindexer/internal/engine"
	"github.com/R3E-Network/agentindexer/internal/rpcclient"
	"github.com/R3E-Network/agentindexer/pkg/logger"
	"github.com/R3E-Network/agentindexer/pkg/metrics"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LoggerConfig())

	if err := cfg.Validate(); err != nil {
		log.WithField("err", err).Fatal("invalid config")
	}

	rpc := rpcclient.New(cfg.RPCURL, cfg.RPCTimeout)

	// Raw-transaction decoding is program-specific and out of scope here
	// (spec.md §1); a real deployment replaces NoopDecoder with one that
	// understands its own agent-registry program's notification layout.
	decoder := chainsource.NoopDecoder{}

	svc, err := engine.New(cfg, rpc, decoder, log)
	if err != nil {
		log.WithField("err", err).Fatal("create engine")
	}

	reg := metrics.New()
	reg.MustRegister(prometheus.DefaultRegisterer, svc.Verifier(), svc.Queue())
	go serveMetrics(cfg.MetricsAddr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.WithField("err", err).Fatal("start engine")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	svc.Stop()
}

func serveMetrics(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.WithField("err", err).Error("metrics server stopped")
	}
}
