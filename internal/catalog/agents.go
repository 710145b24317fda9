package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/store"
)

// ErrNothingToDelete is returned when none of the selected agents may be
// deleted by the caller.
var ErrNothingToDelete = errors.New("no deletable agents selected")

// DeletionPlan partitions a selection of published agents.
type DeletionPlan struct {
	// Official agents are never deletable.
	Official []domain.AgentTemplate
	// Owned agents carry the caller's author_id.
	Owned []domain.AgentTemplate
	// NotOwned agents are either someone else's or have no author.
	NotOwned []domain.AgentTemplate
	// WithAuthor counts non-official selections that carry any author_id.
	WithAuthor int
}

// Deletable returns the number of selected non-official agents.
func (p DeletionPlan) Deletable() int {
	return len(p.Owned) + len(p.NotOwned)
}

// Partial reports whether only some of the non-official selection is owned.
func (p DeletionPlan) Partial() bool {
	return len(p.Owned) > 0 && len(p.Owned) < p.Deletable()
}

// OwnedIDs returns the ids that will be removed.
func (p DeletionPlan) OwnedIDs() []string {
	ids := make([]string, len(p.Owned))
	for i, a := range p.Owned {
		ids[i] = a.ID
	}
	return ids
}

// Reason explains why nothing can be deleted. Empty when Owned is non-empty.
func (p DeletionPlan) Reason() string {
	if len(p.Owned) > 0 {
		return ""
	}
	if p.Deletable() == 0 {
		if len(p.Official) > 0 {
			return fmt.Sprintf("cannot delete %d official agent(s)", len(p.Official))
		}
		return "no agents selected"
	}
	var b strings.Builder
	if p.WithAuthor == 0 {
		b.WriteString("selected agents were published before author tracking was added")
		if len(p.Official) > 0 {
			b.WriteString(" or are official")
		}
		b.WriteString("; republish them to enable deletion")
		return b.String()
	}
	b.WriteString("you can only delete agents that you published")
	if len(p.Official) > 0 {
		b.WriteString(" (official agents cannot be deleted)")
	}
	fmt.Fprintf(&b, ": %d selected, %d have author info, none match your user id", p.Deletable(), p.WithAuthor)
	return b.String()
}

// PlanDeletion decides which of the selected ids user may delete.
func PlanDeletion(agents []domain.AgentTemplate, ids []string, user *domain.User) DeletionPlan {
	var plan DeletionPlan
	for _, a := range agents {
		if !slices.Contains(ids, a.ID) {
			continue
		}
		if a.Official() {
			plan.Official = append(plan.Official, a)
			continue
		}
		if a.HasAuthor() {
			plan.WithAuthor++
		}
		if user != nil && user.ID != "" && a.HasAuthor() && *a.AuthorID == user.ID {
			plan.Owned = append(plan.Owned, a)
		} else {
			plan.NotOwned = append(plan.NotOwned, a)
		}
	}
	return plan
}

// DeleteAgents removes the selected published agents the user owns and
// rewrites the collection. The plan is returned even on ErrNothingToDelete.
func (s *Service) DeleteAgents(ctx context.Context, ids []string, user *domain.User) (DeletionPlan, error) {
	agents, err := s.loadCollection(ctx, s.agentsKey)
	if err != nil {
		return DeletionPlan{}, err
	}

	plan := PlanDeletion(agents, ids, user)
	if len(plan.Owned) == 0 {
		return plan, fmt.Errorf("%w: %s", ErrNothingToDelete, plan.Reason())
	}

	if err := store.SaveAgents(ctx, s.kv, s.agentsKey, without(agents, plan.OwnedIDs())); err != nil {
		return plan, fmt.Errorf("saving %s: %w", s.agentsKey, err)
	}
	s.log.Info().Int("deleted", len(plan.Owned)).Int("skipped", len(plan.NotOwned)+len(plan.Official)).Msg("agents deleted")
	return plan, nil
}

// DeleteRepositoryAgents removes ids from the repository collection and
// returns how many were present.
func (s *Service) DeleteRepositoryAgents(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	agents, err := s.loadCollection(ctx, s.repositoryKey)
	if err != nil {
		return 0, err
	}
	kept := without(agents, ids)
	removed := len(agents) - len(kept)
	if err := store.SaveAgents(ctx, s.kv, s.repositoryKey, kept); err != nil {
		return 0, fmt.Errorf("saving %s: %w", s.repositoryKey, err)
	}
	s.log.Info().Int("deleted", removed).Msg("repository agents deleted")
	return removed, nil
}

func without(agents []domain.AgentTemplate, ids []string) []domain.AgentTemplate {
	kept := make([]domain.AgentTemplate, 0, len(agents))
	for _, a := range agents {
		if !slices.Contains(ids, a.ID) {
			kept = append(kept, a)
		}
	}
	return kept
}

// PublishAgent appends agent to the published collection under a fresh id,
// attributed to user and stamped with the current time.
func (s *Service) PublishAgent(ctx context.Context, agent domain.AgentTemplate, user domain.User) (domain.AgentTemplate, error) {
	if strings.TrimSpace(agent.Name) == "" {
		return domain.AgentTemplate{}, errors.New("agent name is required")
	}
	if user.ID == "" {
		return domain.AgentTemplate{}, errors.New("publishing requires a user id")
	}

	agent.ID = "agent_" + uuid.NewString()
	if agent.Label == "" {
		agent.Label = agent.Name
	}
	if agent.Tags == nil {
		agent.Tags = []string{}
	}
	agent.PublishedAt = domain.FormatTimestamp(s.now())
	agent.AuthorID = domain.Ptr(user.ID)
	agent.AuthorName = user.DisplayName()
	agent.IsOfficial = domain.Ptr(false)

	agents, err := s.loadCollection(ctx, s.agentsKey)
	if err != nil {
		return domain.AgentTemplate{}, err
	}
	agents = append(agents, agent)
	if err := store.SaveAgents(ctx, s.kv, s.agentsKey, agents); err != nil {
		return domain.AgentTemplate{}, fmt.Errorf("saving %s: %w", s.agentsKey, err)
	}

	s.log.Info().Str("id", agent.ID).Str("name", agent.Name).Msg("agent published")
	return agent, nil
}
