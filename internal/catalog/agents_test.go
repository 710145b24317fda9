package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/store"
)

func deletionFixture() []domain.AgentTemplate {
	return []domain.AgentTemplate{
		{ID: "official", Name: "Official", IsOfficial: domain.Ptr(true)},
		{ID: "mine", Name: "Mine", AuthorID: domain.Ptr("u-1")},
		{ID: "theirs", Name: "Theirs", AuthorID: domain.Ptr("u-2")},
		{ID: "legacy", Name: "Legacy"},
	}
}

func TestPlanDeletion(t *testing.T) {
	user := &domain.User{ID: "u-1"}
	plan := PlanDeletion(deletionFixture(), []string{"official", "mine", "theirs", "legacy"}, user)

	assert.Len(t, plan.Official, 1)
	assert.Equal(t, []string{"mine"}, plan.OwnedIDs())
	assert.Len(t, plan.NotOwned, 2)
	assert.Equal(t, 2, plan.WithAuthor)
	assert.Equal(t, 3, plan.Deletable())
	assert.True(t, plan.Partial())
	assert.Empty(t, plan.Reason())
}

func TestPlanDeletion_Reasons(t *testing.T) {
	agents := deletionFixture()

	onlyOfficial := PlanDeletion(agents, []string{"official"}, &domain.User{ID: "u-1"})
	assert.Contains(t, onlyOfficial.Reason(), "official")

	legacy := PlanDeletion(agents, []string{"legacy"}, &domain.User{ID: "u-1"})
	assert.Contains(t, legacy.Reason(), "before author tracking")

	legacyAndOfficial := PlanDeletion(agents, []string{"legacy", "official"}, &domain.User{ID: "u-1"})
	assert.Contains(t, legacyAndOfficial.Reason(), "or are official")

	notMine := PlanDeletion(agents, []string{"theirs"}, &domain.User{ID: "u-1"})
	assert.Contains(t, notMine.Reason(), "1 selected, 1 have author info")

	noUser := PlanDeletion(agents, []string{"mine"}, nil)
	assert.Empty(t, noUser.Owned)

	assert.Equal(t, "no agents selected", PlanDeletion(agents, nil, nil).Reason())
}

func TestDeleteAgents(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	seedAgents(t, kv, store.KeyPublishedAgents, deletionFixture())
	s := newService(t, &fakeAPI{}, kv)

	plan, err := s.DeleteAgents(ctx, []string{"mine", "theirs", "official"}, &domain.User{ID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, plan.OwnedIDs())

	stored, err := store.LoadAgents(ctx, kv, store.KeyPublishedAgents)
	require.NoError(t, err)
	assert.Equal(t, []string{"Official", "Theirs", "Legacy"}, names(stored))
}

func TestDeleteAgents_NothingOwned(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	seedAgents(t, kv, store.KeyPublishedAgents, deletionFixture())
	s := newService(t, &fakeAPI{}, kv)

	_, err := s.DeleteAgents(ctx, []string{"theirs"}, &domain.User{ID: "u-1"})
	assert.True(t, errors.Is(err, ErrNothingToDelete))

	stored, _ := store.LoadAgents(ctx, kv, store.KeyPublishedAgents)
	assert.Len(t, stored, 4)
}

func TestDeleteRepositoryAgents(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	seedAgents(t, kv, store.KeyRepositoryAgents, []domain.AgentTemplate{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	s := newService(t, &fakeAPI{}, kv)

	n, err := s.DeleteRepositoryAgents(ctx, []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, _ := store.LoadAgents(ctx, kv, store.KeyRepositoryAgents)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].ID)

	n, err = s.DeleteRepositoryAgents(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishAgent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := newService(t, &fakeAPI{}, kv)

	published, err := s.PublishAgent(ctx, domain.AgentTemplate{
		Name:        "Summarizer",
		Category:    "writing",
		AgentConfig: json.RawMessage(`{"model":"small"}`),
		IsOfficial:  domain.Ptr(true),
	}, domain.User{ID: "u-1", Username: "ada"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(published.ID, "agent_"))
	assert.Equal(t, "Summarizer", published.Label)
	assert.Equal(t, "2025-03-01T12:00:00.000Z", published.PublishedAt)
	assert.Equal(t, "u-1", *published.AuthorID)
	assert.Equal(t, "ada", *published.AuthorName)
	assert.False(t, published.Official())
	assert.Equal(t, []string{}, published.Tags)

	stored, err := store.LoadAgents(ctx, kv, store.KeyPublishedAgents)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, published.ID, stored[0].ID)
	assert.JSONEq(t, `{"model":"small"}`, string(stored[0].AgentConfig))
}

func TestPublishAgent_Validation(t *testing.T) {
	s := newService(t, &fakeAPI{}, nil)

	_, err := s.PublishAgent(context.Background(), domain.AgentTemplate{Name: "  "}, domain.User{ID: "u"})
	assert.Error(t, err)

	_, err = s.PublishAgent(context.Background(), domain.AgentTemplate{Name: "x"}, domain.User{})
	assert.Error(t, err)
}
