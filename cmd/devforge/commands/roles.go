package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/roles"
)

func newRolesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List the available roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range roles.NewRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	return cmd
}
