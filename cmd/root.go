// Package cmd defines the CLI commands for the influencerctl executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiencegraph/influence-crawler/internal/app"
	"github.com/audiencegraph/influence-crawler/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates and configures the root command. The application
// container is built after flags are parsed and injected into the command
// context for subcommands to use.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "influencerctl",
		Short: "Crawl a social-video platform and rank influential actors",
		Long: `influencerctl drives the influence discovery pipeline: it crawls search
results into a persisted corpus, resumes interrupted crawls from stored
pagination tokens, derives directed interaction graphs from the corpus,
and ranks graph nodes with a selectable centrality algorithm.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newRankCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().Execute()
}
