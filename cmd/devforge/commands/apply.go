package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/config"
	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/policy"
	"github.com/devforge/devforge/pkg/roles"
)

func newApplyCommand() *cobra.Command {
	var (
		inventoryPath string
		playbookPath  string
		policyPaths   []string
		refreshFacts  bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a playbook to the inventory",
		Long: `Apply a playbook to the hosts in an inventory.

Each play selects hosts by label and applies its roles in order. Tasks
are idempotent: a host already in the desired state reports "ok" and
nothing runs. Handlers fire once after a role's task list; the first
failing task aborts the remaining tasks and any pending handlers, and
later roles are not attempted on that host.

Every role plan is checked against the policy engine before anything
touches a host. A policy violation blocks the whole apply.`,
		Example: `  # Apply the CI playbook
  devforge apply --inventory hosts.yaml --playbook ci.yaml

  # Load extra rego policies before applying
  devforge apply -i hosts.yaml -p ci.yaml --policy ./policies

  # Show what would run without connecting anywhere
  devforge apply -i hosts.yaml -p ci.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)

			parser := config.NewParser()
			inventory, err := parser.LoadInventory(inventoryPath)
			if err != nil {
				return err
			}
			parsed, err := parser.LoadPlaybook(playbookPath)
			if err != nil {
				return err
			}
			if reportParseErrors(parsed.Errors) {
				return engine.NewValidationError("playbook validation failed", nil)
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := engine.NewHostRegistry(store)
			for _, host := range inventory.ToHosts() {
				if err := registry.AddHost(ctx, host); err != nil {
					return err
				}
			}

			roleRegistry := roles.NewRegistry()
			policyEngine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			if len(policyPaths) > 0 {
				if err := policyEngine.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
			}

			runner := engine.NewRunner(
				engine.WithStore(store),
				engine.WithTelemetry(tel),
				engine.WithEvaluator(config.NewConditionEvaluator(0)),
			)
			collector := engine.NewFactsCollector(store, tel.Logger)

			for _, play := range parsed.Playbook.Plays {
				hosts, err := registry.SelectHosts(ctx, play.Hosts)
				if err != nil {
					return err
				}
				if len(hosts) == 0 {
					log.Warn().Str("play", play.Name).Str("hosts", play.Hosts).
						Msg("Play selects no hosts, skipping")
					continue
				}

				// Roles are built once per play; vars do not vary by host.
				built := make([]*engine.Role, 0, len(play.Roles))
				for _, invocation := range play.Roles {
					role, err := roleRegistry.Build(invocation.Role, invocation.Vars)
					if err != nil {
						return err
					}
					built = append(built, role)
				}

				for _, host := range hosts {
					for _, role := range built {
						if err := checkRolePolicy(cmd, policyEngine, role, host.Name); err != nil {
							return err
						}
					}

					if dryRun {
						printPlan(cmd, play.Name, host.Name, built)
						continue
					}

					conn, err := connectHost(ctx, host)
					if err != nil {
						return err
					}

					facts, err := collector.Collect(ctx, conn, host.Name, refreshFacts)
					if err != nil {
						conn.Close()
						return err
					}

					for _, role := range built {
						report, runErr := runner.RunRole(ctx, conn, host.Name, role, facts)
						printReport(cmd, report)
						if runErr != nil {
							conn.Close()
							return runErr
						}
					}

					conn.Close()
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file (YAML or CUE)")
	cmd.Flags().StringVarP(&playbookPath, "playbook", "p", "", "playbook file (YAML or CUE)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "extra policy files or directories")
	cmd.Flags().BoolVar(&refreshFacts, "refresh-facts", false, "ignore cached facts")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate policies and print the plan without connecting")
	cmd.MarkFlagRequired("inventory")
	cmd.MarkFlagRequired("playbook")

	return cmd
}

// reportParseErrors prints validation errors and reports whether any
// were actual errors rather than warnings.
func reportParseErrors(errs []config.ValidationError) bool {
	failed := false
	for _, ve := range errs {
		event := log.Warn()
		if ve.Severity == "error" {
			event = log.Error()
			failed = true
		}
		event.Str("file", ve.File).Int("line", ve.Line).Msg(ve.Message)
	}
	return failed
}

// checkRolePolicy evaluates a role plan against the policy engine,
// printing warnings and turning violations into a blocking error.
func checkRolePolicy(cmd *cobra.Command, policyEngine *policy.Engine, role *engine.Role, host string) error {
	result, err := policyEngine.EvaluateRole(cmd.Context(), role, host)
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		log.Warn().Str("policy", warning.Policy).Str("subject", warning.Subject).
			Msg(warning.Message)
	}

	if !result.Allowed {
		for _, violation := range result.Violations {
			log.Error().Str("policy", violation.Policy).Str("subject", violation.Subject).
				Msg(violation.Message)
		}
		return engine.NewPermanentError(
			fmt.Sprintf("policy denied role %s on host %s", role.Name, host), nil).
			WithCode(engine.ErrCodePolicyDenied)
	}

	return nil
}

func printPlan(cmd *cobra.Command, play, host string, built []*engine.Role) {
	for _, role := range built {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s would apply role %s (%d tasks, %d handlers)\n",
			play, host, role.Name, len(role.Tasks), len(role.Handlers))
	}
}

// printReport writes a per-role summary line, or the full report as JSON
// with --json.
func printReport(cmd *cobra.Command, report *engine.RunReport) {
	if report == nil {
		return
	}

	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return
	}

	var ok, changed, skipped, failed int
	for _, outcome := range append(report.Outcomes, report.Handlers...) {
		switch outcome.Status {
		case engine.TaskStatusChanged:
			changed++
		case engine.TaskStatusSkipped:
			skipped++
		case engine.TaskStatusFailed:
			failed++
		default:
			ok++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: role %s %s (ok=%d changed=%d skipped=%d failed=%d) in %s\n",
		report.Host, report.Role, report.Status, ok, changed, skipped, failed,
		report.Duration.Round(time.Millisecond))

	if report.Error != nil {
		fmt.Fprintf(os.Stderr, "  error: %v\n", report.Error)
	}
}
