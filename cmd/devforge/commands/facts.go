package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/engine"
)

func newFactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Facts collection and management",
		Long: `Collect and inspect facts about managed hosts.

Facts are structured data discovered from each host:
  - os: distribution, major/minor version, kernel
  - security: SELinux mode
  - repos: enabled package repositories

Task conditions evaluate against these facts, so a role can gate a task
on e.g. os_major or os_family. Facts are cached with a TTL and refreshed
on demand.`,
	}

	cmd.AddCommand(newFactsCollectCommand())
	cmd.AddCommand(newFactsShowCommand())

	return cmd
}

func newFactsCollectCommand() *cobra.Command {
	var (
		selector string
		targets  []string
		refresh  bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect facts from hosts",
		Long: `Connect to hosts and gather facts.

Cached facts within their TTL are reused unless --refresh is given.`,
		Example: `  # Collect facts from all registered hosts
  devforge facts collect

  # Collect from specific hosts
  devforge facts collect --target ci1 --target ci2

  # Collect from hosts by label, bypassing the cache
  devforge facts collect --selector 'env=ci' --refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := engine.NewHostRegistry(store)
			hosts, err := resolveTargets(ctx, registry, selector, targets)
			if err != nil {
				return err
			}

			collector := engine.NewFactsCollector(store, tel.Logger)

			for _, host := range hosts {
				conn, err := connectHost(ctx, host)
				if err != nil {
					return err
				}

				facts, err := collector.Collect(ctx, conn, host.Name, refresh)
				conn.Close()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: collected %d facts\n", host.Name, len(facts))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&selector, "selector", "", "host selector (label query or \"all\")")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "specific target hosts")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "force refresh cached facts")

	return cmd
}

func newFactsShowCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show cached facts for a host",
		Long: `Display the cached facts for a host without connecting to it.

With --json the complete fact map is printed as one JSON object,
otherwise facts are listed one per line.`,
		Example: `  # Show facts for a host
  devforge facts show --target ci1

  # Full JSON payload
  devforge facts show --target ci1 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			collector := engine.NewFactsCollector(store, tel.Logger)
			facts, err := collector.Facts(ctx, target)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(facts, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			keys := make([]string, 0, len(facts))
			for key := range facts {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, facts[key])
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target host")
	cmd.MarkFlagRequired("target")

	return cmd
}
