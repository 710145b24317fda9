package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/store"
	"github.com/soyeahso/bazaar/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bazaar status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Current()
			fmt.Fprintf(out, "bazaar %s (commit %s, %s)\n\n", b.Version, b.Commit, b.Go)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "API:     %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.HTTPTimeout())

			backend := cfg.Store.Backend
			switch backend {
			case "redis":
				fmt.Fprintf(out, "Store:   redis addr=%s db=%d namespace=%s\n", cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.Namespace)
			case "memory":
				fmt.Fprintln(out, "Store:   memory")
			default:
				fmt.Fprintf(out, "Store:   sqlite path=%s\n", paths.StorePath(cfg.Store))
			}

			fmt.Fprintf(out, "Fetch:   timeout=%s concurrency=%d\n", cfg.Fetch.FetchTimeout(), cfg.Fetch.ClassifyConcurrency)
			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
			if cfg.Identity.UserID != "" {
				fmt.Fprintf(out, "User:    %s\n", cfg.Identity.UserID)
			} else {
				fmt.Fprintln(out, "User:    (not configured, publishing and deletion are unavailable)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintln(out)
				warning(out, "validation issues (%d):", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return nil
			}

			printStoreStatus(cmd, cfg)
			return nil
		},
	}

	return cmd
}

// printStoreStatus reports the seeding flag and collection sizes. Store
// errors are printed, not returned.
func printStoreStatus(cmd *cobra.Command, cfg config.Config) {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	kv, err := store.OpenKV(ctx, cfg.Store, paths.StorePath(cfg.Store), nil)
	if err != nil {
		fmt.Fprintf(out, "Store:   unavailable: %v\n", err)
		return
	}
	defer kv.Close()

	flag, err := kv.Get(ctx, cfg.Store.SeededFlagKey)
	switch {
	case store.IsNotFound(err):
		fmt.Fprintln(out, "Seeded:  no")
	case err != nil:
		fmt.Fprintf(out, "Seeded:  unknown (%v)\n", err)
	default:
		fmt.Fprintf(out, "Seeded:  %s\n", flag)
	}

	var counts []string
	for _, key := range []string{cfg.Store.AgentsKey, cfg.Store.RepositoryKey} {
		agents, err := store.LoadAgents(ctx, kv, key)
		if err != nil {
			counts = append(counts, fmt.Sprintf("%s=error", key))
			continue
		}
		counts = append(counts, fmt.Sprintf("%s=%d", key, len(agents)))
	}
	fmt.Fprintf(out, "Agents:  %s\n", strings.Join(counts, " "))
}
