package cmd

import (
	"github.com/spf13/cobra"
)

// newResumeCmd creates the 'resume' subcommand: it consumes outstanding
// pagination tokens left behind by earlier crawls.
func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Process outstanding resume tokens",
		Long: `Re-issues one page per stored pagination token. Each page is durably
stored before its token is deleted, so an interrupted run can simply be
re-invoked. A quota failure stops the pass; remaining tokens are kept.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Scheduler.ProcessOutstandingTokens(cmd.Context()); err != nil {
				return describeCrawlFailure(err)
			}
			return nil
		},
	}
}
