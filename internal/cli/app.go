package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/bazaar/internal/api"
	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/hooks"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/marketplace"
	"github.com/soyeahso/bazaar/internal/seeding"
	"github.com/soyeahso/bazaar/internal/store"
	"github.com/soyeahso/bazaar/internal/tabs"
)

// app holds the components every marketplace command needs.
type app struct {
	cfg     config.Config
	log     *logging.Logger
	kv      store.KV
	client  *api.Client
	catalog *catalog.Service
	hooks   *hooks.Manager
}

// openApp loads and validates config, opens the store and builds the
// catalog. Callers must Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}

	appLog := log
	if logLevel == "" {
		appLog = logging.NewStyled(cfg.Logging.ConsoleStyle, cfg.Logging.Level)
	}

	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	kv, err := store.OpenKV(ctx, cfg.Store, paths.StorePath(cfg.Store), appLog)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.HTTPTimeout())
	svc := catalog.NewService(client, kv, catalog.Options{
		AgentsKey:     cfg.Store.AgentsKey,
		RepositoryKey: cfg.Store.RepositoryKey,
		Concurrency:   cfg.Fetch.ClassifyConcurrency,
		Log:           appLog,
	})

	return &app{
		cfg:     cfg,
		log:     appLog,
		kv:      kv,
		client:  client,
		catalog: svc,
		hooks:   hooks.NewManager(appLog),
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.kv.Close()
}

// user is the configured local identity.
func (a *app) user() domain.User {
	return domain.User{
		ID:       a.cfg.Identity.UserID,
		Username: a.cfg.Identity.Username,
		Email:    a.cfg.Identity.Email,
	}
}

// orchestrator builds a marketplace orchestrator over the catalog with
// fetch errors bridged to hooks.
func (a *app) orchestrator(ctx context.Context, onChange func(marketplace.Snapshot)) *marketplace.Orchestrator {
	onError := a.hooks.FetchErrorObserver(ctx)
	return marketplace.New(a.catalog, marketplace.Options{
		Timeout:  a.cfg.Fetch.FetchTimeout(),
		OnChange: onChange,
		OnError: func(source tabs.Source, err error) {
			onError(string(source), err)
		},
		Log: a.log,
	})
}

// seeder builds the official-agent seeder with its completion bridged to hooks.
func (a *app) seeder(ctx context.Context) *seeding.Seeder {
	return seeding.New(a.client, a.kv, seeding.Options{
		AgentsKey:      a.cfg.Store.AgentsKey,
		FlagKey:        a.cfg.Store.SeededFlagKey,
		OnAgentsSeeded: a.hooks.AgentsSeededObserver(ctx),
		Log:            a.log,
	})
}
