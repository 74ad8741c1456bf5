package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/engine"
)

func newHostsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage the host inventory",
		Long: `Manage hosts in the inventory.

Hosts registered here are the targets for apply, bootstrap, and facts
commands. An inventory file passed to apply registers its hosts
automatically; this command manages them directly.`,
	}

	cmd.AddCommand(newHostsListCommand())
	cmd.AddCommand(newHostsAddCommand())
	cmd.AddCommand(newHostsRemoveCommand())

	return cmd
}

func newHostsListCommand() *cobra.Command {
	var selector string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered hosts",
		Example: `  # List every host
  devforge hosts list

  # List hosts by label
  devforge hosts list --selector 'env=ci'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			hosts, err := engine.NewHostRegistry(store).SelectHosts(ctx, selector)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(hosts, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tPORT\tUSER\tLABELS\tROLES")
			for _, host := range hosts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					host.Name, host.Address, host.Port, host.User,
					formatLabels(host.Labels), strings.Join(host.Roles, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&selector, "selector", "", "host selector (label query or \"all\")")

	return cmd
}

func newHostsAddCommand() *cobra.Command {
	var (
		address   string
		port      int
		user      string
		keyPath   string
		labels    map[string]string
		hostRoles []string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a host",
		Long: `Register a host, keyed by name. Adding an existing name replaces it.

The address "local" runs commands in-process instead of over SSH.`,
		Example: `  # Register an SSH host
  devforge hosts add ci1 --address 10.0.0.12 --user admin --label env=ci

  # Register the local machine
  devforge hosts add workstation --address local`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			host := &engine.Host{
				Name:    args[0],
				Address: address,
				Port:    port,
				User:    user,
				KeyPath: keyPath,
				Labels:  labels,
				Roles:   hostRoles,
			}
			if err := engine.NewHostRegistry(store).AddHost(ctx, host); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "host %s registered\n", host.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "host address, or \"local\"")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVarP(&user, "user", "u", "", "SSH user")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key path")
	cmd.Flags().StringToStringVarP(&labels, "label", "l", nil, "labels as key=value")
	cmd.Flags().StringSliceVar(&hostRoles, "role", nil, "roles this host carries")
	cmd.MarkFlagRequired("address")

	return cmd
}

func newHostsRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a host and its cached facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := engine.NewHostRegistry(store).DeleteHost(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "host %s removed\n", args[0])
			return nil
		},
	}

	return cmd
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(labels))
	for key, value := range labels {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
