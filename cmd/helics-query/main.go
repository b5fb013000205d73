// Command helics-query answers a §6 query-protocol request against a
// federation topology manifest. This reference deployment carries no
// concrete cross-process transport beyond internal/route's in-process
// Route (spec §1 Non-goals), so helics-query builds the topology's root
// broker in-process from the manifest and issues one query against it,
// printing the JSON-shaped result to stdout — a static-topology inspector
// rather than an attach-to-a-running-remote-process client.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmyreynolds/HELICS/internal/broker"
	"github.com/timmyreynolds/HELICS/internal/capability"
	"github.com/timmyreynolds/HELICS/internal/config"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/logging"
)

var (
	version = "dev"

	topoFile    string
	logLevel    string
	queryTarget string
	queryString string
	ordered     bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "helics-query",
		Short:         "Issue a query against a federation topology manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&topoFile, "topology", "", "federation topology manifest (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(queryCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the helics-query version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the topology's root broker and issue one query against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topoFile == "" {
				return fmt.Errorf("helics-query: --topology is required")
			}
			if queryString == "" {
				return fmt.Errorf("helics-query: --query is required")
			}
			topo, err := config.LoadTopologyYAML(topoFile)
			if err != nil {
				return err
			}
			if len(topo.Brokers) == 0 {
				return fmt.Errorf("helics-query: topology %s declares no brokers", topoFile)
			}
			root := topo.Brokers[0]

			logger := logging.New(logLevel)
			capMgr := capability.NewManager([]byte("helics-query-ephemeral"))
			assign := capMgr.NegotiateAssign(root.Name, root.Name, "broker", time.Minute, ids.GlobalBrokerId(1))
			b := broker.NewBroker(root.Name, logger, nil, true)
			if err := b.Connect(assign); err != nil {
				return err
			}
			defer b.Disconnect()

			target := queryTarget
			if target == "" {
				target = root.Name
			}
			result, err := b.Query(ordered, target, queryString)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var js json.RawMessage
			if json.Valid([]byte(result)) {
				js = json.RawMessage(result)
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(js)
			}
			fmt.Fprintln(out, result)
			return nil
		},
	}
	cmd.Flags().StringVar(&queryTarget, "target", "", "query target (defaults to the root broker's name)")
	cmd.Flags().StringVar(&queryString, "query", "", "query string, e.g. federates, global_value, dependencies")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "use the ordered (sequenced) query path instead of the fast path")
	return cmd
}
