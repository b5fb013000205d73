// Command helics-broker runs a federation-root (or interior) broker node:
// the process that coordinates child cores' name resolution, dependency
// merging, and init/exec grant barriers. Structured the way the retrieval
// pack's dittofs binaries wrap cobra commands around a root.go, in place of
// the teacher's bare flag.StringVar main().
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/timmyreynolds/HELICS/internal/broker"
	"github.com/timmyreynolds/HELICS/internal/capability"
	"github.com/timmyreynolds/HELICS/internal/config"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/logging"
	"github.com/timmyreynolds/HELICS/internal/metrics"
	"github.com/timmyreynolds/HELICS/internal/tracing"
)

var (
	version = "dev"

	cfgFile      string
	logLevel     string
	nodeName     string
	metricsAddr  string
	isRoot       bool
	federation   string
	joinSecret   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "helics-broker",
		Short:         "Run a HELICS-Go federation broker node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "topology/option config file (JSON, TOML or YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&nodeName, "name", "broker0", "this broker's name")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9100", "Prometheus metrics listen address")
	cmd.PersistentFlags().BoolVar(&isRoot, "root", true, "this broker is the federation root")
	cmd.PersistentFlags().StringVar(&federation, "federation", "default", "federation name carried in the join token")
	cmd.PersistentFlags().StringVar(&joinSecret, "join-secret", "", "hex-encoded HS256 secret for join-token signing (generated if empty)")

	cmd.AddCommand(runCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the helics-broker version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the broker and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if cfgFile != "" {
				if err := loader.ReadFile(cfgFile); err != nil {
					return err
				}
			}

			logger := logging.New(logLevel)
			log := logging.ForComponent(logger, "helics-broker")

			promReg := prometheus.NewRegistry()
			metricsReg := metrics.NewRegistry("broker")
			if err := metricsReg.Register(promReg); err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
			metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Warn("metrics server stopped")
				}
			}()

			tp, err := tracing.InstallProvider("helics-broker")
			if err != nil {
				return err
			}
			defer tp.Shutdown(context.Background())

			if joinSecret == "" {
				key, err := capability.GenerateKey()
				if err != nil {
					return err
				}
				joinSecret = key
			}
			secret, err := hex.DecodeString(joinSecret)
			if err != nil {
				return fmt.Errorf("--join-secret: %w", err)
			}
			capMgr := capability.NewManager(secret)

			b := broker.NewBroker(nodeName, logger, nil, isRoot)
			assign := capMgr.NegotiateAssign(federation, nodeName, "broker", time.Minute, ids.GlobalBrokerId(1))
			if err := b.Connect(assign); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.WithField("root", isRoot).Info("broker running")
			<-ctx.Done()

			log.Info("shutting down")
			b.Disconnect()
			return metricsServer.Close()
		},
	}
}
