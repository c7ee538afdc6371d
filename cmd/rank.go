package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiencegraph/influence-crawler/internal/graph"
	"github.com/audiencegraph/influence-crawler/internal/ranking"
)

// newRankCmd creates the 'rank' subcommand: it scores a previously exported
// graph with the chosen algorithm and stores the result.
func newRankCmd() *cobra.Command {
	var (
		algorithm string
		top       int
	)

	cmd := &cobra.Command{
		Use:   "rank <network-id>",
		Short: "Rank the nodes of an exported graph",
		Long: "Loads an exported graph by network id, ranks its nodes with the chosen\n" +
			"centrality algorithm and stores the result next to the graph artifacts.\n\n" +
			"Supported algorithms: " + strings.Join(ranking.Algorithms(), ", ") + ".",
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			g, err := graph.Load(cmd.Context(), appInstance.Artifacts, args[0])
			if err != nil {
				return describeCrawlFailure(err)
			}
			result, err := appInstance.Engine.Run(cmd.Context(), g, algorithm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s:\n", result.Algorithm)
			for i, entry := range result.Entries {
				if i >= top {
					break
				}
				fmt.Fprintf(out, "\t%d. %s (%g)\n", i+1, g.Label(entry.NodeID), entry.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", ranking.AlgorithmVoteRank, "ranking algorithm")
	cmd.Flags().IntVar(&top, "top", 5, "number of top nodes to print")

	return cmd
}
