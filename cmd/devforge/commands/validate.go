package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/config"
	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/policy"
	"github.com/devforge/devforge/pkg/roles"
)

func newValidateCommand() *cobra.Command {
	var (
		inventoryPath string
		playbookPath  string
		policyPaths   []string
		watch         bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate playbooks, inventories, and policies",
		Long: `Validate configuration without touching any host.

Playbooks and inventories are checked against their schemas, every role
invocation is built with its vars (catching bad or missing variables),
and rego policies are compiled. With --watch, policy files are
recompiled whenever they change on disk.`,
		Example: `  # Validate a playbook and inventory
  devforge validate -i hosts.yaml -p ci.yaml

  # Validate and keep recompiling policies on change
  devforge validate --policy ./policies --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			failed := false

			parser := config.NewParser()

			if inventoryPath != "" {
				if _, err := parser.LoadInventory(inventoryPath); err != nil {
					log.Error().Err(err).Str("file", inventoryPath).Msg("Inventory invalid")
					failed = true
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", inventoryPath)
				}
			}

			if playbookPath != "" {
				parsed, err := parser.LoadPlaybook(playbookPath)
				switch {
				case err != nil:
					log.Error().Err(err).Str("file", playbookPath).Msg("Playbook invalid")
					failed = true
				case reportParseErrors(parsed.Errors):
					failed = true
				default:
					if !validateRoleVars(cmd, parsed) {
						failed = true
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", playbookPath)
					}
				}
			}

			policyEngine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			if len(policyPaths) > 0 {
				if err := policyEngine.LoadPolicies(ctx, policyPaths); err != nil {
					log.Error().Err(err).Msg("Policy compilation failed")
					failed = true
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "policies: %d compiled\n",
						len(policyEngine.ListPolicies()))
				}
			}

			if failed {
				return engine.NewValidationError("validation failed", nil)
			}

			if !watch {
				return nil
			}
			if len(policyPaths) == 0 {
				return engine.NewValidationError("--watch requires --policy paths", nil)
			}

			loader := policy.NewLoader(log.Logger)
			err = loader.Watch(ctx, policyPaths, func(policies []policy.Policy) error {
				if err := policyEngine.ReplacePolicies(policies); err != nil {
					log.Error().Err(err).Msg("Policy recompile failed")
					return err
				}
				log.Info().Int("policies", len(policyEngine.ListPolicies())).
					Msg("Policies recompiled")
				return nil
			})
			if err != nil {
				return err
			}
			defer loader.StopWatching()

			log.Info().Strs("paths", policyPaths).Msg("Watching policy paths")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", "", "inventory file (YAML or CUE)")
	cmd.Flags().StringVarP(&playbookPath, "playbook", "p", "", "playbook file (YAML or CUE)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "policy files or directories")
	cmd.Flags().BoolVar(&watch, "watch", false, "recompile policies when files change")

	return cmd
}

// validateRoleVars builds every role invocation in the playbook so bad
// vars fail here instead of mid-apply.
func validateRoleVars(cmd *cobra.Command, parsed *config.ParsedPlaybook) bool {
	registry := roles.NewRegistry()
	ok := true

	for _, play := range parsed.Playbook.Plays {
		for _, invocation := range play.Roles {
			if _, err := registry.Build(invocation.Role, invocation.Vars); err != nil {
				log.Error().Err(err).
					Str("play", play.Name).
					Str("role", invocation.Role).
					Msg("Role vars invalid")
				ok = false
			}
		}
	}

	return ok
}
