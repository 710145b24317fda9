package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/gateway"
	"github.com/soyeahso/bazaar/internal/hooks"
	"github.com/soyeahso/bazaar/internal/marketplace"
	"github.com/soyeahso/bazaar/internal/seeding"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the bazaar gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					a.log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			a.hooks.On(hooks.EventFetchError, "log", func(_ context.Context, p hooks.Payload) error {
				a.log.Warn().Interface("source", p.Data["source"]).Interface("error", p.Data["error"]).Msg("marketplace fetch failed")
				return nil
			})

			// The orchestrator publishes into the server, which is built after it.
			var srv *gateway.Server
			market := a.orchestrator(ctx, func(snap marketplace.Snapshot) {
				if srv != nil {
					srv.PublishSnapshot(snap)
				}
			})

			srv = gateway.New(cfg, a.log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(a.hooks),
				gateway.WithMarketplace(market),
				gateway.WithCatalog(a.catalog),
				gateway.WithSeeder(a.seeder(ctx)),
				gateway.WithCategories(a.client),
			)

			if seed || cfg.Seeding.OnStart {
				a.hooks.On(hooks.EventGatewayStart, "seed", func(context.Context, hooks.Payload) error {
					go func() {
						rep, err := srv.RunSeeder()
						if err != nil {
							a.log.Error().Err(err).Msg("startup seeding")
							return
						}
						logSeedReport(a, rep)
					}()
					return nil
				})
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed official agents once the gateway is listening")

	return cmd
}

func logSeedReport(a *app, rep seeding.Report) {
	ev := a.log.Info()
	if rep.Err != nil {
		ev = a.log.Error().Err(rep.Err)
	}
	ev.Str("status", string(rep.Status)).
		Int("workflows", rep.Workflows).
		Int("added", len(rep.Added)).
		Int("skipped", len(rep.Skipped)).
		Int("failed", len(rep.FailedWorkflows)).
		Msg("seeding finished")
}
