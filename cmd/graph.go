package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/graph"
)

// newGraphCmd creates the 'graph' subcommand: it derives the interaction
// graph for a stored search and exports it as artifacts.
func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <search-id>",
		Short: "Build and export the interaction graph for a search",
		Long: `Reads the stored result set for the given search id, assembles the
directed owner->commenter / commenter->replier graph from the corpus,
and exports the edge list and label map under a fresh network id.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			g, err := appInstance.Builder.Build(cmd.Context(), args[0])
			if err != nil {
				return describeCrawlFailure(err)
			}
			id, err := graph.Export(cmd.Context(), appInstance.Artifacts, g)
			if err != nil {
				return err
			}
			appInstance.Logger.Info("graph exported",
				zap.String("network_id", id),
				zap.Int("nodes", len(g.Nodes())),
				zap.Int("edges", len(g.Edges)),
			)

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
