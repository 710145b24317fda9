package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/marketplace"
	"github.com/soyeahso/bazaar/internal/tabs"
)

func newBrowseCmd() *cobra.Command {
	var (
		tab     string
		sub     string
		filters catalog.Filters
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List a marketplace tab",
		Long: "Browse loads the listing shown by a marketplace tab: agents, repository " +
			"(with --sub workflows or agents) or workflows-of-workflows.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := tabs.ParseView(tab, sub)
			if err != nil {
				return err
			}
			switch filters.SortBy {
			case catalog.SortPopular, catalog.SortRecent, catalog.SortAlphabetical:
			default:
				return fmt.Errorf("unknown sort %q", filters.SortBy)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if u := a.user(); u.ID != "" {
				filters.User = &u
			}

			market := a.orchestrator(ctx, nil)
			market.SetFilters(filters)
			market.SetView(ctx, view)
			market.Wait()

			snap := market.Snapshot()
			printSnapshot(cmd, snap)
			if msg, ok := snap.Errors[string(tabs.Select(view.Tab, view.Sub))]; ok {
				return fmt.Errorf("loading %s: %s", view, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tab, "tab", string(tabs.Agents), "tab to list (agents, repository, workflows-of-workflows)")
	cmd.Flags().StringVar(&sub, "sub", string(tabs.SubWorkflows), "repository sub-tab (workflows, agents)")
	cmd.Flags().StringVar(&filters.Category, "category", "", "only show this category")
	cmd.Flags().StringVar(&filters.Search, "search", "", "match name, description or tags")
	cmd.Flags().StringVar(&filters.SortBy, "sort", catalog.SortPopular, "sort order (popular, recent, alphabetical)")

	return cmd
}

// printSnapshot prints the listing the snapshot's view selects.
func printSnapshot(cmd *cobra.Command, snap marketplace.Snapshot) {
	out := cmd.OutOrStdout()
	switch tabs.Select(snap.View.Tab, snap.View.Sub) {
	case tabs.SourceTemplates:
		printListing(out, "Workflows", templateRows(snap.Templates))
	case tabs.SourceRepositoryAgents:
		printListing(out, "Repository agents", agentRows(snap.RepositoryAgents))
	case tabs.SourceWorkflowsOfWorkflows:
		printListing(out, "Workflows of workflows", templateRows(snap.WorkflowsOfWorkflows))
	case tabs.SourceAgents:
		printListing(out, "Agents", agentRows(snap.Agents))
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List template categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cats, err := a.client.ListCategories(ctx)
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}
