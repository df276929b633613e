package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/client"
	"github.com/cuemby/gateway/pkg/health"
	"github.com/cuemby/gateway/pkg/ingress"
	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/node"
	"github.com/cuemby/gateway/pkg/runtime"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a data-plane node: proxy, health checker, node loop",
	RunE:  runNode,
}

func init() {
	nodeCmd.Flags().String("node-id", "node-1", "Unique node ID reported to the control plane")
	nodeCmd.Flags().String("control-plane", "http://127.0.0.1:9090", "Control plane admin API URL")
	nodeCmd.Flags().String("data-dir", "./gateway-node-data", "Data directory for the local snapshot cache")
	nodeCmd.Flags().String("http-port-range", "8000-8099", "Bindable HTTP listener port range, START-END")
	nodeCmd.Flags().String("https-port-range", "8400-8499", "Bindable HTTPS listener port range, START-END")
	nodeCmd.Flags().Int("poll-interval-secs", 3, "Published snapshot poll interval, floored at 2s")
	nodeCmd.Flags().Int("heartbeat-interval-secs", 5, "Heartbeat interval, floored at 2s")
	nodeCmd.Flags().String("default-cert-file", "", "Default TLS certificate (PEM), used by HTTPS listeners with no matching TLS policy")
	nodeCmd.Flags().String("default-key-file", "", "Default TLS private key (PEM)")
	nodeCmd.Flags().String("metrics-addr", ":9100", "Listen address for /metrics, /health, /ready")
}

func runNode(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	controlPlaneURL, _ := cmd.Flags().GetString("control-plane")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	httpRangeFlag, _ := cmd.Flags().GetString("http-port-range")
	httpsRangeFlag, _ := cmd.Flags().GetString("https-port-range")
	pollSecs, _ := cmd.Flags().GetInt("poll-interval-secs")
	heartbeatSecs, _ := cmd.Flags().GetInt("heartbeat-interval-secs")
	certFile, _ := cmd.Flags().GetString("default-cert-file")
	keyFile, _ := cmd.Flags().GetString("default-key-file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	httpStart, httpEnd, err := parsePortRange(httpRangeFlag)
	if err != nil {
		return err
	}
	httpsStart, httpsEnd, err := parsePortRange(httpsRangeFlag)
	if err != nil {
		return err
	}
	httpRange := &runtime.PortRange{Start: httpStart, End: httpEnd}
	httpsRange := &runtime.PortRange{Start: httpsStart, End: httpsEnd}

	var defaultCert *tls.Certificate
	if certFile != "" && keyFile != "" {
		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("load default certificate: %w", err)
		}
		defaultCert = &pair
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	cache, err := node.OpenCache(dataDir)
	if err != nil {
		return fmt.Errorf("open local snapshot cache: %w", err)
	}
	defer cache.Close()
	metrics.RegisterComponent("storage", true, "")

	proxy := ingress.NewProxy(acme.NewChallengeClient(controlPlaneURL), httpRange, httpsRange)

	apply := func(snap *types.Snapshot) error {
		proxy.SetConfig(runtime.Build(snap, defaultCert, httpRange, httpsRange))
		metrics.RegisterComponent("snapshot", true, "")
		return nil
	}

	c := client.NewClient(controlPlaneURL, nodeID)
	loop := node.NewLoop(c, nodeID,
		time.Duration(pollSecs)*time.Second,
		time.Duration(heartbeatSecs)*time.Second,
		cache, apply)

	if err := loop.LoadCache(); err != nil {
		log.WithComponent("node").Warn().Err(err).Msg("failed to load local snapshot cache")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.NewPoolChecker(proxy.Config)

	go loop.Run(ctx)
	go checker.Run(ctx)
	go func() {
		if err := proxy.Start(ctx); err != nil {
			log.WithComponent("ingress").Error().Err(err).Msg("proxy stopped with error")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.HandleFunc("/health", metrics.HealthHandler())
	metricsMux.HandleFunc("/ready", metrics.ReadyHandler())
	metricsMux.HandleFunc("/live", metrics.LivenessHandler())
	metrics.RegisterComponent("api", true, "")
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("node").Error().Err(err).Msg("metrics server error")
		}
	}()

	log.WithComponent("node").Info().Str("node_id", nodeID).Msg("node running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down node")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return metricsServer.Shutdown(shutdownCtx)
}
