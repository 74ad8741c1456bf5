package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/policy"
	"github.com/devforge/devforge/pkg/releng"
)

func newArchiveCommand() *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "archive <working_dir> <dest_path> <project_name> <archive_prefix> <git_url> <treeish>",
		Short: "Build a release archive from a git treeish",
		Long: `Build a gzipped release tarball from a git repository.

The repository is cloned into the working directory (replacing any
leftover clone of the same project), the treeish is checked out, and a
tarball is written to the destination with every path rooted at the
archive prefix. The resolved commit hash is the only stdout output, so
callers can capture it for build traceability.

A failing step aborts the build and exits non-zero; a bad treeish
leaves no file at the destination.`,
		Example: `  # Archive the v1.0 tag
  devforge archive /tmp/build /srv/releases/foo-1.0.tar.gz foo foo-1.0 \
    https://git.example.com/foo.git v1.0

  # Capture the commit hash
  HASH=$(devforge archive /tmp/build out.tar.gz foo foo-1.0 ./repo main)`,
		Args: cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req := &releng.ArchiveRequest{
				WorkingDir: args[0],
				DestPath:   args[1],
				Project:    args[2],
				Prefix:     args[3],
				GitURL:     args[4],
				Treeish:    args[5],
			}

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)

			policyEngine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			result, err := policyEngine.EvaluateArchive(ctx, &policy.ArchiveInput{
				WorkingDir: req.WorkingDir,
				DestPath:   req.DestPath,
				Project:    req.Project,
				Prefix:     req.Prefix,
				GitURL:     req.GitURL,
				Treeish:    req.Treeish,
			})
			if err != nil {
				return err
			}
			if !result.Allowed {
				for _, violation := range result.Violations {
					log.Error().Str("policy", violation.Policy).Msg(violation.Message)
				}
				return engine.NewPermanentError(
					fmt.Sprintf("policy denied archive build for %s", req.Project), nil).
					WithCode(engine.ErrCodePolicyDenied)
			}

			opts := []releng.ArchiverOption{releng.WithTelemetry(tel)}
			if !noHistory {
				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, releng.WithStore(store))
			}

			// The archiver prints the commit hash to stdout itself.
			_, err = releng.NewArchiver(opts...).Build(ctx, req)
			return err
		},
	}

	cmd.Flags().BoolVar(&noHistory, "no-history", false, "skip recording the build in the state database")

	return cmd
}
