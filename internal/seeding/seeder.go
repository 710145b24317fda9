// Package seeding turns the agent nodes of official workflows into
// official published agents, once per store.
package seeding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/soyeahso/bazaar/internal/api"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/store"
)

// Defaults applied to seeded agents when the workflow leaves a field empty.
const (
	DefaultName          = "Agent"
	DefaultCategory      = "automation"
	DefaultDifficulty    = "intermediate"
	DefaultEstimatedTime = "5 min"
	DefaultAuthorName    = "System"
	OfficialTag          = "official"
)

// Status describes how a Run ended.
type Status string

const (
	// StatusAlreadySeeded means the flag was set and nothing ran.
	StatusAlreadySeeded Status = "already_seeded"
	// StatusDiscoveryFailed means the listing could not be fetched. The
	// flag is left unset so the next run retries.
	StatusDiscoveryFailed Status = "discovery_failed"
	// StatusNothingToSeed means no official workflows were listed.
	StatusNothingToSeed Status = "nothing_to_seed"
	StatusSeeded        Status = "seeded"
	// StatusFailed means an error escaped after discovery.
	StatusFailed Status = "failed"
)

// Report summarizes one Run.
type Report struct {
	Status          Status   `json:"status"`
	Workflows       int      `json:"workflows"`
	Added           []string `json:"added"`
	Skipped         []string `json:"skipped,omitempty"`
	FailedWorkflows []string `json:"failed_workflows,omitempty"`
	Err             error    `json:"-"`
}

// API is the subset of the templates API the seeder calls.
type API interface {
	ListTemplates(ctx context.Context, q api.ListQuery) ([]domain.Template, error)
	UseTemplate(ctx context.Context, id string) (*domain.WorkflowDetail, error)
}

// Options configures a Seeder.
type Options struct {
	AgentsKey string
	FlagKey   string
	// OnAgentsSeeded is called after newly seeded agents are committed.
	OnAgentsSeeded func()
	Log            *logging.Logger
	Now            func() time.Time
}

// Seeder runs the official-agent seeding pipeline. It assumes it is the
// only writer of the agents collection while it runs.
type Seeder struct {
	api       API
	kv        store.KV
	agentsKey string
	flagKey   string
	onSeeded  func()
	log       *logging.Logger
	now       func() time.Time
}

// New creates a Seeder.
func New(client API, kv store.KV, opts Options) *Seeder {
	s := &Seeder{
		api:       client,
		kv:        kv,
		agentsKey: opts.AgentsKey,
		flagKey:   opts.FlagKey,
		onSeeded:  opts.OnAgentsSeeded,
		log:       logging.OrNop(opts.Log).Sub("seeding"),
		now:       opts.Now,
	}
	if s.agentsKey == "" {
		s.agentsKey = store.KeyPublishedAgents
	}
	if s.flagKey == "" {
		s.flagKey = store.KeySeeded
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run executes the pipeline once. Failures are logged; only a failure
// that prevents the flag from being set is reported through Report.Err.
func (s *Seeder) Run(ctx context.Context) (rep Report) {
	rep.Added = []string{}

	// The flag is cleared before it is read, so every run re-seeds.
	// Duplicates are still prevented by the deterministic agent ids.
	if err := s.kv.Remove(ctx, s.flagKey); err != nil {
		s.log.Error().Err(err).Msg("failed to remove seeded key")
	}
	if s.seeded(ctx) {
		s.log.Debug().Msg("official agents already seeded, skipping")
		rep.Status = StatusAlreadySeeded
		return rep
	}

	s.log.Debug().Msg("starting to seed official agents")
	defer func() {
		if p := recover(); p != nil {
			rep.Status = StatusFailed
			rep.Err = fmt.Errorf("seeding panicked: %v", p)
			s.log.Error().Err(rep.Err).Msg("failed to seed official agents")
		}
	}()

	workflows, err := s.api.ListTemplates(ctx, api.ListQuery{SortBy: "popular"})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch templates")
		rep.Status = StatusDiscoveryFailed
		rep.Err = fmt.Errorf("listing templates: %w", err)
		return rep
	}
	official := make([]domain.Template, 0, len(workflows))
	for _, w := range workflows {
		if w.IsOfficial {
			official = append(official, w)
		}
	}
	rep.Workflows = len(official)
	s.log.Debug().Int("fetched", len(workflows)).Int("official", len(official)).Msg("fetched workflows")

	if len(official) == 0 {
		s.log.Debug().Msg("no official workflows found, marking as seeded")
		if err := s.markSeeded(ctx); err != nil {
			rep.Status = StatusFailed
			rep.Err = err
			return rep
		}
		rep.Status = StatusNothingToSeed
		return rep
	}

	var toAdd []domain.AgentTemplate
	for _, w := range official {
		agents, skipped, err := s.extract(ctx, w, toAdd)
		if err != nil {
			s.log.Error().Err(err).Str("workflow", w.ID).Msg("failed to fetch workflow")
			rep.FailedWorkflows = append(rep.FailedWorkflows, w.ID)
			continue
		}
		toAdd = append(toAdd, agents...)
		rep.Skipped = append(rep.Skipped, skipped...)
	}

	if len(toAdd) > 0 {
		total, err := s.commit(ctx, toAdd)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to seed official agents")
			rep.Status = StatusFailed
			rep.Err = err
			return rep
		}
		for _, a := range toAdd {
			rep.Added = append(rep.Added, a.ID)
		}
		s.log.Info().Int("added", len(toAdd)).Int("total", total).Msg("seeded official agents from workflows")
		if s.onSeeded != nil {
			s.onSeeded()
		}
	} else {
		s.log.Debug().Msg("no agents to add")
	}

	if err := s.markSeeded(ctx); err != nil {
		rep.Status = StatusFailed
		rep.Err = err
		return rep
	}
	s.log.Debug().Msg("seeding complete")
	rep.Status = StatusSeeded
	return rep
}

// seeded re-reads the flag. A read failure counts as unseeded.
func (s *Seeder) seeded(ctx context.Context) bool {
	v, err := s.kv.Get(ctx, s.flagKey)
	if err != nil {
		if !store.IsNotFound(err) {
			s.log.Error().Err(err).Msg("failed to check seeded key")
		}
		return false
	}
	return v != ""
}

func (s *Seeder) markSeeded(ctx context.Context) error {
	if err := s.kv.Set(ctx, s.flagKey, "true"); err != nil {
		s.log.Error().Err(err).Msg("failed to mark official agents as seeded")
		return fmt.Errorf("marking seeded: %w", err)
	}
	return nil
}

// extract materializes one workflow and builds an agent for every agent
// node whose id is neither in the collection nor pending. skipped lists the
// ids that were.
func (s *Seeder) extract(ctx context.Context, w domain.Template, pending []domain.AgentTemplate) (agents []domain.AgentTemplate, skipped []string, err error) {
	s.log.Debug().Str("workflow", w.ID).Str("name", w.Name).Msg("processing workflow")
	detail, err := s.api.UseTemplate(ctx, w.ID)
	if err != nil {
		return nil, nil, err
	}
	if detail == nil || detail.Nodes == nil {
		s.log.Debug().Str("workflow", w.ID).Msg("workflow has no nodes array")
		return nil, nil, nil
	}

	nodes := detail.Nodes.Normalize()
	for _, node := range nodes {
		if !node.IsAgent() {
			continue
		}
		nodeID := node.ID
		if nodeID == "" {
			nodeID = fmt.Sprintf("node_%d", s.now().UnixMilli())
		}
		agentID := AgentID(w.ID, nodeID)

		existing := s.load(ctx)
		if containsID(existing, agentID) {
			s.log.Debug().Str("agent", agentID).Msg("agent already exists, skipping")
			skipped = append(skipped, agentID)
			continue
		}
		if containsID(pending, agentID) || containsID(agents, agentID) {
			s.log.Warn().Str("agent", agentID).Str("workflow", w.ID).Msg("duplicate agent id in this run, skipping node")
			skipped = append(skipped, agentID)
			continue
		}

		s.log.Debug().Str("agent", agentID).Str("node", nodeID).Msg("creating official agent")
		agents = append(agents, s.build(w, node, agentID))
	}
	s.log.Debug().Str("workflow", w.ID).Int("nodes", len(nodes)).Int("agents", len(agents)).Msg("extracted agent nodes")
	return agents, skipped, nil
}

// load reads the agents collection. Malformed data is logged and read
// as empty.
func (s *Seeder) load(ctx context.Context) []domain.AgentTemplate {
	agents, err := store.LoadAgents(ctx, s.kv, s.agentsKey)
	if err != nil {
		if errors.Is(err, store.ErrMalformed) {
			s.log.Warn().Err(err).Msg("stored agents are malformed, treating as empty")
		} else {
			s.log.Error().Err(err).Msg("failed to read stored agents")
		}
		return nil
	}
	return agents
}

// commit appends agents to a fresh read of the collection in a single write.
func (s *Seeder) commit(ctx context.Context, agents []domain.AgentTemplate) (int, error) {
	existing := s.load(ctx)
	all := append(existing, agents...)
	if err := store.SaveAgents(ctx, s.kv, s.agentsKey, all); err != nil {
		return 0, fmt.Errorf("saving seeded agents: %w", err)
	}
	return len(all), nil
}

func (s *Seeder) build(w domain.Template, node domain.WorkflowNode, id string) domain.AgentTemplate {
	name := firstNonEmpty(node.Name, node.Label, DefaultName)
	publishedAt := w.CreatedAt
	if publishedAt == "" {
		publishedAt = domain.FormatTimestamp(s.now())
	}
	var authorID *string
	if w.AuthorID != nil && *w.AuthorID != "" {
		authorID = domain.Ptr(*w.AuthorID)
	}
	authorName := DefaultAuthorName
	if w.AuthorName != nil && *w.AuthorName != "" {
		authorName = *w.AuthorName
	}

	return domain.AgentTemplate{
		ID:            id,
		Name:          name,
		Label:         name,
		Description:   firstNonEmpty(node.Description, "Agent from "+w.Name),
		Category:      firstNonEmpty(w.Category, DefaultCategory),
		Tags:          Tags(w),
		Difficulty:    firstNonEmpty(w.Difficulty, DefaultDifficulty),
		EstimatedTime: firstNonEmpty(w.EstimatedTime, DefaultEstimatedTime),
		AgentConfig:   node.AgentConfig,
		PublishedAt:   publishedAt,
		AuthorID:      authorID,
		AuthorName:    domain.Ptr(authorName),
		IsOfficial:    domain.Ptr(true),
	}
}

// AgentID is the deterministic id of the agent seeded from a workflow node.
func AgentID(workflowID, nodeID string) string {
	return "official_" + workflowID + "_" + nodeID
}

// Tags returns the workflow tags followed by "official" and the workflow
// name slug, without repeats.
func Tags(w domain.Template) []string {
	tags := make([]string, 0, len(w.Tags)+2)
	seen := make(map[string]bool, len(w.Tags)+2)
	for _, t := range append(append([]string{}, w.Tags...), OfficialTag, Slug(w.Name)) {
		if seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// Slug lower-cases s and replaces every run of whitespace with a hyphen.
func Slug(s string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func containsID(agents []domain.AgentTemplate, id string) bool {
	for _, a := range agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
