package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/domain"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Publish and delete marketplace agents",
	}

	cmd.AddCommand(newAgentsPublishCmd())
	cmd.AddCommand(newAgentsDeleteCmd())
	return cmd
}

func newAgentsPublishCmd() *cobra.Command {
	var (
		agent      domain.AgentTemplate
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an agent under the configured identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				data, err := os.ReadFile(configFile)
				if err != nil {
					return err
				}
				if !json.Valid(data) {
					return fmt.Errorf("%s does not contain valid JSON", configFile)
				}
				agent.AgentConfig = json.RawMessage(data)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			published, err := a.catalog.PublishAgent(ctx, agent, a.user())
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "published %s as %s", published.Name, published.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent.Name, "name", "", "agent name (required)")
	cmd.Flags().StringVar(&agent.Label, "label", "", "display label (defaults to the name)")
	cmd.Flags().StringVar(&agent.Description, "description", "", "agent description")
	cmd.Flags().StringVar(&agent.Category, "category", "automation", "agent category")
	cmd.Flags().StringSliceVar(&agent.Tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&agent.Difficulty, "difficulty", "intermediate", "difficulty level")
	cmd.Flags().StringVar(&agent.EstimatedTime, "estimated-time", "5 min", "estimated setup time")
	cmd.Flags().StringVar(&configFile, "config-file", "", "JSON file with the agent configuration")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newAgentsDeleteCmd() *cobra.Command {
	var repository bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete agents you published",
		Long: "Delete removes the given agents from the published collection. Official " +
			"agents and agents published by someone else are kept. With --repository the " +
			"ids are removed from the repository collection instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if repository {
				n, err := a.catalog.DeleteRepositoryAgents(ctx, args)
				if err != nil {
					return err
				}
				success(out, "deleted %d repository agent(s)", n)
				return nil
			}

			user := a.user()
			plan, err := a.catalog.DeleteAgents(ctx, args, &user)
			if errors.Is(err, catalog.ErrNothingToDelete) {
				warning(out, "%s", plan.Reason())
				return err
			}
			if err != nil {
				return err
			}

			success(out, "deleted %d agent(s)", len(plan.Owned))
			if plan.Partial() {
				warning(out, "%d selected agent(s) belong to someone else and were kept", len(plan.NotOwned))
			}
			if len(plan.Official) > 0 {
				warning(out, "%d official agent(s) cannot be deleted", len(plan.Official))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repository, "repository", false, "delete from the repository collection")
	return cmd
}
