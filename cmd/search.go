package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/audiencegraph/influence-crawler/internal/crawl"
)

// newSearchCmd creates the 'search' subcommand: it runs a paginated search
// and harvests the results into the corpus.
func newSearchCmd() *cobra.Command {
	var (
		keyword string
		order   string
		types   []string
		max     int
		mode    string
		radius  string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the content API and harvest the results",
		Long: `Runs a paginated search for the given keyword, persists the result set,
and fans out into channel, playlist, video and comment enrichment.
An identical repeated search is served from the corpus without API calls.
Pages beyond the result budget are left behind as resume tokens.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			q := crawl.SearchQuery{
				Keyword:        keyword,
				Order:          order,
				MaxResults:     max,
				Mode:           crawl.SearchMode(mode),
				LocationRadius: radius,
			}
			for _, t := range types {
				q.ContentTypes = append(q.ContentTypes, crawl.ResultKind(t))
			}

			set, err := appInstance.Scheduler.Search(cmd.Context(), q)
			if err != nil {
				return describeCrawlFailure(err)
			}
			appInstance.Logger.Info("search finished",
				zap.String("search_id", set.ID),
				zap.Int("items", len(set.Items)),
			)

			if err := appInstance.Scheduler.HarvestResults(cmd.Context(), set); err != nil {
				return describeCrawlFailure(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), set.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyword, "keyword", "", "search keyword (required)")
	cmd.Flags().StringVar(&order, "order", "relevance", "result order")
	cmd.Flags().StringSliceVar(&types, "types", nil, "content types (video,channel,playlist)")
	cmd.Flags().IntVar(&max, "max", 50, "desired result count")
	cmd.Flags().StringVar(&mode, "mode", string(crawl.ModeKeyword), "search mode (keyword or location)")
	cmd.Flags().StringVar(&radius, "radius", "", "location radius for location mode")
	_ = cmd.MarkFlagRequired("keyword")

	return cmd
}

// describeCrawlFailure maps the error taxonomy onto the user-facing
// messages the display layer shows.
func describeCrawlFailure(err error) error {
	switch {
	case crawl.IsQuotaExceeded(err):
		return fmt.Errorf("api quota exceeded, try again tomorrow: %w", err)
	case isInvalidRequest(err):
		return fmt.Errorf("invalid search parameters: %w", err)
	default:
		return err
	}
}

func isInvalidRequest(err error) bool {
	return errors.Is(err, crawl.ErrInvalidRequest)
}
