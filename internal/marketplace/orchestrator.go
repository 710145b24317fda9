// Package marketplace composes the catalog sources into one read model
// driven by the active tab.
package marketplace

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/fetch"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/statesync"
	"github.com/soyeahso/bazaar/internal/tabs"
)

// Sources is the set of listings the orchestrator drives.
type Sources interface {
	Templates(ctx context.Context, f catalog.Filters) ([]domain.Template, error)
	WorkflowsOfWorkflows(ctx context.Context, f catalog.Filters) ([]domain.Template, error)
	Agents(ctx context.Context, f catalog.Filters) ([]domain.AgentTemplate, error)
	RepositoryAgents(ctx context.Context, f catalog.Filters) ([]domain.AgentTemplate, error)
}

// Snapshot is the read model handed to UI surfaces. Templates is null
// until a templates fetch has produced a value.
type Snapshot struct {
	View                 tabs.View              `json:"view"`
	Filters              catalog.Filters        `json:"filters"`
	Templates            []domain.Template      `json:"templates"`
	WorkflowsOfWorkflows []domain.Template      `json:"workflows_of_workflows"`
	Agents               []domain.AgentTemplate `json:"agents"`
	RepositoryAgents     []domain.AgentTemplate `json:"repository_agents"`
	Loading              bool                   `json:"loading"`
	Errors               map[string]string      `json:"errors,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	// Timeout bounds each source fetch; zero selects fetch.DefaultTimeout.
	Timeout time.Duration
	// OnError observes every fetch failure with its source name.
	OnError func(source tabs.Source, err error)
	// OnChange observes every published snapshot.
	OnChange func(Snapshot)
	Log      *logging.Logger
}

type refetcher interface {
	Refetch(ctx context.Context)
	Loading() bool
	Err() error
}

// Orchestrator owns one fetch.Resource per source and publishes their
// results into display slots.
type Orchestrator struct {
	log      *logging.Logger
	onChange func(Snapshot)

	templates        *fetch.Resource[[]domain.Template]
	wow              *fetch.Resource[[]domain.Template]
	agents           *fetch.Resource[[]domain.AgentTemplate]
	repositoryAgents *fetch.Resource[[]domain.AgentTemplate]

	templatesSync        *statesync.WithDefault[[]domain.Template]
	wowSync              *statesync.Conditional[[]domain.Template]
	agentsSync           *statesync.Conditional[[]domain.AgentTemplate]
	repositoryAgentsSync *statesync.Conditional[[]domain.AgentTemplate]

	mu       sync.Mutex
	filters  catalog.Filters
	view     tabs.View
	viewSeen bool
	display  display

	wg sync.WaitGroup
}

type display struct {
	templates        []domain.Template
	wow              []domain.Template
	agents           []domain.AgentTemplate
	repositoryAgents []domain.AgentTemplate
}

// New creates an Orchestrator. Nothing is fetched until SetView or one of
// the Fetch methods is called.
func New(src Sources, opts Options) *Orchestrator {
	o := &Orchestrator{
		log:      logging.OrNop(opts.Log).Sub("marketplace"),
		onChange: opts.OnChange,
		display: display{
			wow:              []domain.Template{},
			agents:           []domain.AgentTemplate{},
			repositoryAgents: []domain.AgentTemplate{},
		},
	}

	resourceOpts := func(source tabs.Source) fetch.Options {
		return fetch.Options{
			Timeout:  opts.Timeout,
			Log:      opts.Log,
			OnChange: o.publish,
			OnError: func(err error) {
				if opts.OnError != nil {
					opts.OnError(source, err)
				}
			},
		}
	}

	o.templates = fetch.New(string(tabs.SourceTemplates), func(ctx context.Context) ([]domain.Template, error) {
		return src.Templates(ctx, o.Filters())
	}, nil, resourceOpts(tabs.SourceTemplates))
	o.wow = fetch.New(string(tabs.SourceWorkflowsOfWorkflows), func(ctx context.Context) ([]domain.Template, error) {
		return src.WorkflowsOfWorkflows(ctx, o.Filters())
	}, nil, resourceOpts(tabs.SourceWorkflowsOfWorkflows))
	o.agents = fetch.New(string(tabs.SourceAgents), func(ctx context.Context) ([]domain.AgentTemplate, error) {
		return src.Agents(ctx, o.Filters())
	}, nil, resourceOpts(tabs.SourceAgents))
	o.repositoryAgents = fetch.New(string(tabs.SourceRepositoryAgents), func(ctx context.Context) ([]domain.AgentTemplate, error) {
		return src.RepositoryAgents(ctx, o.Filters())
	}, nil, resourceOpts(tabs.SourceRepositoryAgents))

	o.templatesSync = statesync.NewWithDefault(o.setTemplates, nil)
	o.wowSync = statesync.NewConditional(o.setWorkflowsOfWorkflows, statesync.NotNil[[]domain.Template])
	o.agentsSync = statesync.NewConditional(o.setAgents, statesync.NotNil[[]domain.AgentTemplate])
	o.repositoryAgentsSync = statesync.NewConditional(o.setRepositoryAgents, statesync.NotNil[[]domain.AgentTemplate])

	return o
}

// SetFilters replaces the filters used by the next fetch. It never
// triggers a fetch by itself.
func (o *Orchestrator) SetFilters(f catalog.Filters) {
	o.mu.Lock()
	o.filters = f
	o.mu.Unlock()
	o.notify()
}

// Filters returns the current filters.
func (o *Orchestrator) Filters() catalog.Filters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filters
}

// SetView records the active tab and sub-tab. When the view differs from
// the last one seen, exactly one source, picked by tabs.Select, is
// refetched in the background using ctx. It reports whether a refetch
// was started.
func (o *Orchestrator) SetView(ctx context.Context, v tabs.View) bool {
	o.mu.Lock()
	if o.viewSeen && o.view == v {
		o.mu.Unlock()
		return false
	}
	o.view = v
	o.viewSeen = true
	o.mu.Unlock()

	source := tabs.Select(v.Tab, v.Sub)
	res := o.resource(source)
	if res == nil {
		o.log.Debug().Str("view", v.String()).Msg("view selects no source")
		o.notify()
		return false
	}

	o.log.Debug().Str("view", v.String()).Str("source", string(source)).Msg("view changed, refetching")
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res.Refetch(ctx)
	}()
	return true
}

// View returns the last view set.
func (o *Orchestrator) View() tabs.View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// Wait blocks until every view-triggered refetch has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) resource(s tabs.Source) refetcher {
	switch s {
	case tabs.SourceTemplates:
		return o.templates
	case tabs.SourceRepositoryAgents:
		return o.repositoryAgents
	case tabs.SourceWorkflowsOfWorkflows:
		return o.wow
	case tabs.SourceAgents:
		return o.agents
	default:
		return nil
	}
}

// FetchTemplates refetches templates and waits for the result.
func (o *Orchestrator) FetchTemplates(ctx context.Context) error {
	o.templates.Refetch(ctx)
	return o.templates.Err()
}

// FetchWorkflowsOfWorkflows refetches composite workflows and waits for the result.
func (o *Orchestrator) FetchWorkflowsOfWorkflows(ctx context.Context) error {
	o.wow.Refetch(ctx)
	return o.wow.Err()
}

// FetchAgents refetches published agents and waits for the result.
func (o *Orchestrator) FetchAgents(ctx context.Context) error {
	o.agents.Refetch(ctx)
	return o.agents.Err()
}

// FetchRepositoryAgents refetches repository agents and waits for the result.
func (o *Orchestrator) FetchRepositoryAgents(ctx context.Context) error {
	o.repositoryAgents.Refetch(ctx)
	return o.repositoryAgents.Err()
}

// SetTemplates overwrites the displayed templates.
func (o *Orchestrator) SetTemplates(v []domain.Template) {
	o.setTemplates(v)
	o.notify()
}

// SetWorkflowsOfWorkflows overwrites the displayed composite workflows.
func (o *Orchestrator) SetWorkflowsOfWorkflows(v []domain.Template) {
	o.setWorkflowsOfWorkflows(v)
	o.notify()
}

// SetAgents overwrites the displayed agents.
func (o *Orchestrator) SetAgents(v []domain.AgentTemplate) {
	o.setAgents(v)
	o.notify()
}

// SetRepositoryAgents overwrites the displayed repository agents.
func (o *Orchestrator) SetRepositoryAgents(v []domain.AgentTemplate) {
	o.setRepositoryAgents(v)
	o.notify()
}

func (o *Orchestrator) setTemplates(v []domain.Template) {
	o.mu.Lock()
	o.display.templates = v
	o.mu.Unlock()
}

func (o *Orchestrator) setWorkflowsOfWorkflows(v []domain.Template) {
	o.mu.Lock()
	o.display.wow = v
	o.mu.Unlock()
}

func (o *Orchestrator) setAgents(v []domain.AgentTemplate) {
	o.mu.Lock()
	o.display.agents = v
	o.mu.Unlock()
}

func (o *Orchestrator) setRepositoryAgents(v []domain.AgentTemplate) {
	o.mu.Lock()
	o.display.repositoryAgents = v
	o.mu.Unlock()
}

// publish copies freshly fetched data into the display slots and notifies.
func (o *Orchestrator) publish() {
	templates, v := o.templates.Current()
	o.templatesSync.Observe(v, templates)
	wow, v := o.wow.Current()
	o.wowSync.Observe(v, wow)
	agents, v := o.agents.Current()
	o.agentsSync.Observe(v, agents)
	repositoryAgents, v := o.repositoryAgents.Current()
	o.repositoryAgentsSync.Observe(v, repositoryAgents)
	o.notify()
}

func (o *Orchestrator) notify() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.Snapshot())
}

// Snapshot returns the current read model. Loading reflects only the
// source selected by the current view.
func (o *Orchestrator) Snapshot() Snapshot {
	flags := tabs.LoadingFlags{
		Templates:            o.templates.Loading(),
		RepositoryAgents:     o.repositoryAgents.Loading(),
		WorkflowsOfWorkflows: o.wow.Loading(),
		Agents:               o.agents.Loading(),
	}

	errs := map[string]string{}
	for _, s := range []tabs.Source{
		tabs.SourceTemplates, tabs.SourceRepositoryAgents, tabs.SourceWorkflowsOfWorkflows, tabs.SourceAgents,
	} {
		if err := o.resource(s).Err(); err != nil {
			errs[string(s)] = err.Error()
		}
	}
	if len(errs) == 0 {
		errs = nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		View:                 o.view,
		Filters:              o.filters,
		Templates:            o.display.templates,
		WorkflowsOfWorkflows: o.display.wow,
		Agents:               o.display.agents,
		RepositoryAgents:     o.display.repositoryAgents,
		Loading:              tabs.CalculateLoadingState(o.view.Tab, o.view.Sub, flags),
		Errors:               errs,
	}
}
