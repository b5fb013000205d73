// Command helics-core hosts one federate under a single Core process: it
// loads the federate's option surface from a config file, drives it from
// CREATED through EXECUTING (or, with delay_init_entry set, only marks it as
// held at initialization entry), and blocks until terminated, at which
// point it finalizes and disconnects. This is the cmd/ counterpart of the
// original HELICS CoreApp, generalized for this port's internal/core.App.
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

	"github.com/timmyreynolds/HELICS/internal/capability"
	"github.com/timmyreynolds/HELICS/internal/config"
	"github.com/timmyreynolds/HELICS/internal/core"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/logging"
	"github.com/timmyreynolds/HELICS/internal/metrics"
	"github.com/timmyreynolds/HELICS/internal/tracing"
)

var (
	version = "dev"

	cfgFile      string
	logLevel     string
	federateName string
	metricsAddr  string
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
		Use:           "helics-core",
		Short:         "Host a federate under a HELICS-Go core process",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "federate option config file (JSON, TOML or YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&federateName, "federate", "", "federate name (overrides config file's name)")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9101", "Prometheus metrics listen address")
	cmd.PersistentFlags().StringVar(&federation, "federation", "default", "federation name carried in the join token")
	cmd.PersistentFlags().StringVar(&joinSecret, "join-secret", "", "hex-encoded HS256 secret for join-token signing (generated if empty)")

	cmd.AddCommand(runCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the helics-core version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Register the configured federate and run until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if cfgFile != "" {
				if err := loader.ReadFile(cfgFile); err != nil {
					return err
				}
			}
			opts, err := loader.FederateOptions()
			if err != nil {
				return err
			}
			name := opts.Name
			if federateName != "" {
				name = federateName
			}
			if name == "" {
				return fmt.Errorf("helics-core: a federate name is required (--federate or config name)")
			}

			logger := logging.New(logLevel)
			log := logging.ForComponent(logger, "helics-core")

			promReg := prometheus.NewRegistry()
			metricsReg := metrics.NewRegistry("core")
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

			tp, err := tracing.InstallProvider("helics-core")
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

			app := core.NewApp("core0", logger)
			assign := capMgr.NegotiateAssign(federation, name, "core", time.Minute, ids.GlobalBrokerId(1))
			if err := app.Core.Connect(assign); err != nil {
				return err
			}

			local, global, err := app.Core.RegisterFederate(name)
			if err != nil {
				return err
			}
			metricsReg.ActiveFederates.Inc()
			log.WithField("federate", name).WithField("global_id", global).Info("federate registered")

			if opts.Flags.DelayInitEntry {
				if err := app.Core.SetDelayInitEntry(local, true); err != nil {
					return err
				}
			} else {
				if err := app.Core.EnterInitializingMode(local); err != nil {
					return err
				}
				if err := app.Core.EnterExecutingMode(local); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info("core running")
			<-ctx.Done()

			log.Info("shutting down")
			_ = app.Core.Finalize(local)
			app.ForceTerminate()
			metricsReg.ActiveFederates.Dec()
			return metricsServer.Close()
		},
	}
}
