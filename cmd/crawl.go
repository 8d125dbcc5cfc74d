package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a crawl from the command line",
	}
	cmd.AddCommand(newCrawlOneCmd())
	cmd.AddCommand(newCrawlBatchCmd())
	cmd.AddCommand(newCrawlDeepCmd())
	return cmd
}

func newCrawlOneCmd() *cobra.Command {
	var websiteID string

	cmd := &cobra.Command{
		Use:   "one <url>",
		Short: "Crawl a single URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, runErr := rt.runner.CrawlOne(cmd.Context(), args[0])
			if websiteID != "" {
				if err := rt.runner.PersistResult(cmd.Context(), websiteID, result, runErr); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&websiteID, "website-id", "", "website record to reconcile the result into")
	return cmd
}

func newCrawlBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <url>...",
		Short: "Crawl several URLs independently and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			res := rt.runner.CrawlBatch(cmd.Context(), args)
			if err := printJSON(res); err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d URLs failed", len(res.Failed), len(args))
			}
			return nil
		},
	}
}

func newCrawlDeepCmd() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "deep <url>",
		Short: "Traverse a site breadth-first from a seed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.runner.DeepCrawl(cmd.Context(), args[0], maxDepth)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "traversal depth bound (negative uses the configured default)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
