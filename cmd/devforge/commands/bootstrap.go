package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/config"
	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/policy"
	"github.com/devforge/devforge/pkg/roles"
)

func newBootstrapCommand() *cobra.Command {
	var (
		selector    string
		targets     []string
		packages    []string
		certURL     string
		certCreates string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Install the minimal toolchain on hosts",
		Long: `Run the bootstrap role against registered hosts.

Bootstrap installs the minimal python toolchain every other role depends
on, optionally installing a CA certificate package first. It is safe to
run repeatedly; hosts that already have the packages report "ok".`,
		Example: `  # Bootstrap every registered host
  devforge bootstrap

  # Bootstrap specific hosts
  devforge bootstrap --target ci1 --target ci2

  # Bootstrap hosts by label, with an internal CA package
  devforge bootstrap --selector 'env=ci' \
    --cert-url http://ca.example.com/ca-certs.rpm \
    --cert-creates /etc/pki/ca-trust/source/anchors/internal-ca.pem`,
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

			vars := map[string]any{}
			if len(packages) > 0 {
				vars["packages"] = packages
			}
			if certURL != "" {
				vars["cert_url"] = certURL
			}
			if certCreates != "" {
				vars["cert_creates"] = certCreates
			}

			role, err := roles.NewRegistry().Build("bootstrap", vars)
			if err != nil {
				return err
			}

			policyEngine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}

			runner := engine.NewRunner(
				engine.WithStore(store),
				engine.WithTelemetry(tel),
				engine.WithEvaluator(config.NewConditionEvaluator(0)),
			)
			collector := engine.NewFactsCollector(store, tel.Logger)

			for _, host := range hosts {
				if err := checkRolePolicy(cmd, policyEngine, role, host.Name); err != nil {
					return err
				}

				conn, err := connectHost(ctx, host)
				if err != nil {
					return err
				}

				facts, err := collector.Collect(ctx, conn, host.Name, false)
				if err != nil {
					conn.Close()
					return err
				}

				report, runErr := runner.RunRole(ctx, conn, host.Name, role, facts)
				conn.Close()
				printReport(cmd, report)
				if runErr != nil {
					return runErr
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&selector, "selector", "", "host selector (label query or \"all\")")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "specific target hosts")
	cmd.Flags().StringSliceVar(&packages, "package", nil, "override the bootstrap package list")
	cmd.Flags().StringVar(&certURL, "cert-url", "", "CA certificate package URL to install first")
	cmd.Flags().StringVar(&certCreates, "cert-creates", "", "path whose existence marks the certificate installed")

	return cmd
}

// resolveTargets turns explicit targets or a selector into hosts.
// Explicit targets win; with neither, every registered host is selected.
func resolveTargets(ctx context.Context, registry *engine.HostRegistry, selector string, targets []string) ([]*engine.Host, error) {
	if len(targets) > 0 {
		hosts := make([]*engine.Host, 0, len(targets))
		for _, name := range targets {
			host, err := registry.GetHost(ctx, name)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, host)
		}
		return hosts, nil
	}

	hosts, err := registry.SelectHosts(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, engine.NewValidationError("no hosts matched", nil).
			WithCode(engine.ErrCodeNotFound)
	}
	return hosts, nil
}
