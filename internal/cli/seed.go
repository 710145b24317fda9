package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/bazaar/internal/seeding"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Extract agents from official workflows into the published agents",
		Long: "Seed lists the official workflow templates, materializes each one and adds " +
			"every agent node it contains to the published agents collection. Agents " +
			"already present are skipped, so the command can be rerun safely.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.seeder(ctx).Run(ctx)
			printSeedReport(cmd, rep)
			return rep.Err
		},
	}
	return cmd
}

func printSeedReport(cmd *cobra.Command, rep seeding.Report) {
	out := cmd.OutOrStdout()
	switch rep.Status {
	case seeding.StatusSeeded:
		success(out, "seeded %d agent(s) from %d official workflow(s)", len(rep.Added), rep.Workflows)
		for _, id := range rep.Added {
			faint.Fprintf(out, "    + %s\n", id)
		}
		if len(rep.Skipped) > 0 {
			faint.Fprintf(out, "  %d already present\n", len(rep.Skipped))
		}
	case seeding.StatusNothingToSeed:
		success(out, "no official workflows to seed from")
	case seeding.StatusAlreadySeeded:
		success(out, "official agents already seeded")
	default:
		warning(out, "seeding %s", rep.Status)
	}
	for _, id := range rep.FailedWorkflows {
		warning(out, "workflow %s could not be materialized", id)
	}
}
