package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/bazaar/internal/api"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/store"
)

// TemplateAPI is the subset of the templates API the catalog needs.
type TemplateAPI interface {
	ListTemplates(ctx context.Context, q api.ListQuery) ([]domain.Template, error)
	UseTemplate(ctx context.Context, id string) (*domain.WorkflowDetail, error)
}

// Options configures a Service.
type Options struct {
	AgentsKey     string
	RepositoryKey string
	// Concurrency bounds simultaneous /use calls while classifying.
	Concurrency int
	Log         *logging.Logger
	Now         func() time.Time
}

// Service implements the four marketplace sources.
type Service struct {
	api           TemplateAPI
	kv            store.KV
	agentsKey     string
	repositoryKey string
	concurrency   int
	log           *logging.Logger
	now           func() time.Time
}

// NewService creates a catalog service over the templates API and store.
func NewService(client TemplateAPI, kv store.KV, opts Options) *Service {
	s := &Service{
		api:           client,
		kv:            kv,
		agentsKey:     opts.AgentsKey,
		repositoryKey: opts.RepositoryKey,
		concurrency:   opts.Concurrency,
		log:           logging.OrNop(opts.Log).Sub("catalog"),
		now:           opts.Now,
	}
	if s.agentsKey == "" {
		s.agentsKey = store.KeyPublishedAgents
	}
	if s.repositoryKey == "" {
		s.repositoryKey = store.KeyRepositoryAgents
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) listTemplates(ctx context.Context, f Filters) ([]domain.Template, error) {
	return s.api.ListTemplates(ctx, api.ListQuery{
		Category: f.Category,
		Search:   f.Search,
		SortBy:   f.SortBy,
	})
}

// Templates lists repository workflows.
func (s *Service) Templates(ctx context.Context, f Filters) ([]domain.Template, error) {
	templates, err := s.listTemplates(ctx, f)
	if err != nil {
		return nil, err
	}
	return Apply(templates, f, false), nil
}

// WorkflowsOfWorkflows lists templates whose workflows compose other
// workflows. Each candidate is materialized through /use; a candidate that
// fails to materialize is logged and left out.
func (s *Service) WorkflowsOfWorkflows(ctx context.Context, f Filters) ([]domain.Template, error) {
	templates, err := s.listTemplates(ctx, f)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, len(templates))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range templates {
		g.Go(func() error {
			ok, err := s.classify(ctx, t)
			if err != nil {
				s.log.Error().Err(err).Str("template", t.ID).Msg("failed to check workflow")
				return nil
			}
			keep[i] = ok
			return nil
		})
	}
	g.Wait()

	composite := make([]domain.Template, 0, len(templates))
	for i, t := range templates {
		if keep[i] {
			composite = append(composite, t)
		}
	}
	return Apply(composite, f, false), nil
}

var (
	compositePhrases = []string{"workflow of workflows", "composite workflow", "nested workflow"}
	compositeTags    = []string{"workflow-of-workflows", "composite", "nested"}
)

func (s *Service) classify(ctx context.Context, t domain.Template) (bool, error) {
	detail, err := s.api.UseTemplate(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return IsWorkflowOfWorkflows(t, detail.Nodes.Normalize()), nil
}

// IsWorkflowOfWorkflows reports whether t, materialized as nodes, composes
// other workflows. Matching is case-insensitive.
func IsWorkflowOfWorkflows(t domain.Template, nodes []domain.WorkflowNode) bool {
	tags := make([]string, len(t.Tags))
	for i, tag := range t.Tags {
		tags[i] = strings.ToLower(tag)
	}
	tagContains := func(sub string) bool {
		for _, tag := range tags {
			if strings.Contains(tag, sub) {
				return true
			}
		}
		return false
	}

	for _, n := range nodes {
		if n.WorkflowID != "" {
			return true
		}
		if strings.Contains(strings.ToLower(n.Name), "workflow") ||
			strings.Contains(strings.ToLower(n.Description), "workflow") {
			return true
		}
		if tagContains("workflow") {
			return true
		}
	}

	desc := strings.ToLower(t.Description)
	for _, phrase := range compositePhrases {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	for _, sub := range compositeTags {
		if tagContains(sub) {
			return true
		}
	}
	return false
}

// Agents lists published agents, official ones first. When f.User is set,
// agents without an author are attributed to that user and the collection
// is written back before filtering.
func (s *Service) Agents(ctx context.Context, f Filters) ([]domain.AgentTemplate, error) {
	agents, err := s.loadCollection(ctx, s.agentsKey)
	if err != nil {
		return nil, err
	}

	if f.User != nil && f.User.ID != "" {
		if n := backfillAuthors(agents, *f.User); n > 0 {
			if err := store.SaveAgents(ctx, s.kv, s.agentsKey, agents); err != nil {
				return nil, fmt.Errorf("saving backfilled authors: %w", err)
			}
			s.log.Info().Int("count", n).Str("user", f.User.ID).Msg("backfilled agent authors")
		}
	}

	return Apply(listed(agents), f, true), nil
}

// RepositoryAgents lists agents stored in the repository collection.
func (s *Service) RepositoryAgents(ctx context.Context, f Filters) ([]domain.AgentTemplate, error) {
	agents, err := s.loadCollection(ctx, s.repositoryKey)
	if err != nil {
		return nil, err
	}
	return Apply(listed(agents), f, false), nil
}

// listed drops stored elements that are not agent objects.
func listed(agents []domain.AgentTemplate) []domain.AgentTemplate {
	out := make([]domain.AgentTemplate, 0, len(agents))
	for _, a := range agents {
		if !a.Opaque() {
			out = append(out, a)
		}
	}
	return out
}

// loadCollection reads an agent collection, treating malformed JSON as empty.
func (s *Service) loadCollection(ctx context.Context, key string) ([]domain.AgentTemplate, error) {
	agents, err := store.LoadAgents(ctx, s.kv, key)
	if errors.Is(err, store.ErrMalformed) {
		s.log.Error().Err(err).Str("key", key).Msg("stored collection is malformed, using empty list")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return agents, nil
}

func backfillAuthors(agents []domain.AgentTemplate, user domain.User) int {
	n := 0
	for i := range agents {
		if agents[i].HasAuthor() || agents[i].Opaque() {
			continue
		}
		agents[i].AuthorID = domain.Ptr(user.ID)
		agents[i].AuthorName = user.DisplayName()
		n++
	}
	return n
}
