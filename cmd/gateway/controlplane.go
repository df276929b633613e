package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/controlplane"
	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/spf13/cobra"
)

var controlPlaneCmd = &cobra.Command{
	Use:   "control-plane",
	Short: "Run the control plane: entity store, publication state machine, admin API",
	RunE:  runControlPlane,
}

func init() {
	controlPlaneCmd.Flags().String("data-dir", "./gateway-control-plane-data", "Data directory for the entity store")
	controlPlaneCmd.Flags().String("listen-addr", ":9090", "Admin API listen address")
	controlPlaneCmd.Flags().String("http-port-range", "8000-8099", "Bindable HTTP listener port range, START-END")
	controlPlaneCmd.Flags().String("https-port-range", "8400-8499", "Bindable HTTPS listener port range, START-END")
}

func runControlPlane(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	httpRangeFlag, _ := cmd.Flags().GetString("http-port-range")
	httpsRangeFlag, _ := cmd.Flags().GetString("https-port-range")

	httpStart, httpEnd, err := parsePortRange(httpRangeFlag)
	if err != nil {
		return err
	}
	httpsStart, httpsEnd, err := parsePortRange(httpsRangeFlag)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open entity store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "")

	initial := &types.Snapshot{}
	if published, err := controlplane.GetPublished(store); err == nil {
		initial = &published.Snapshot
	}
	snapshots := snapshotstore.New(initial)
	metrics.RegisterComponent("snapshot", true, "")

	challenges := acme.NewChallengeStore()
	ranges := validate.Context{
		HTTPPortRange:  validate.PortRange{Start: httpStart, End: httpEnd},
		HTTPSPortRange: validate.PortRange{Start: httpsStart, End: httpsEnd},
	}

	server := controlplane.NewServer(store, snapshots, challenges, ranges)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", server.Handler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	metrics.RegisterComponent("api", true, "")

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithComponent("control-plane").Info().Str("addr", listenAddr).Msg("admin API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("control-plane").Error().Err(err).Msg("admin API server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down control plane")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
