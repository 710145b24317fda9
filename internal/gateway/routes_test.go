package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/hooks"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/marketplace"
	"github.com/soyeahso/bazaar/internal/seeding"
	"github.com/soyeahso/bazaar/internal/store"
)

func TestIsAllowedConfigPath(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"gateway.port", true},
		{"gateway.bind", true},
		{"gateway.customBindHost", true},
		{"logging", true},
		{"logging.level", true},
		{"fetch.timeoutSeconds", true},
		{"seeding.onStart", true},
		{"gateway.auth", false},
		{"gateway.auth.token", false},
		{"gateway.tls.keyPath", false},
		{"api.token", false},
		{"store.redisPassword", false},
		{"identity.userId", false},
		{"loggingx", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isAllowedConfigPath(tt.path))
		})
	}
}

func decodePayload[T any](t *testing.T, f Frame) T {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error response: %+v", f.Error)
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func TestRPCMarketplaceView(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	out := decodePayload[map[string]any](t, call(t, conn, "v1", "marketplace.view", viewParams{Tab: "repository", Sub: "workflows"}))
	assert.Equal(t, true, out["refetching"])

	f.srv.market.Wait()
	snap := decodePayload[marketplace.Snapshot](t, call(t, conn, "v2", "marketplace.snapshot", nil))
	assert.Len(t, snap.Templates, 2)
	assert.False(t, snap.Loading)

	// Same view again does not refetch.
	out = decodePayload[map[string]any](t, call(t, conn, "v3", "marketplace.view", viewParams{Tab: "repository", Sub: "workflows"}))
	assert.Equal(t, false, out["refetching"])
}

func TestRPCMarketplaceViewInvalid(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	resp := call(t, conn, "v1", "marketplace.view", viewParams{Tab: "settings"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestRPCMarketplaceFilters(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var got []hooks.Payload
	f.hooks.On(hooks.EventFiltersChanged, "test", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	})
	conn := f.connect(t, &ConnectAuth{Token: testToken}, &domain.User{ID: "u-1", Username: "ada"})

	resp := call(t, conn, "f1", "marketplace.filters", map[string]string{"category": "automation", "sort_by": "recent"})
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	filters := f.srv.market.Filters()
	assert.Equal(t, "automation", filters.Category)
	require.NotNil(t, filters.User)
	assert.Equal(t, "u-1", filters.User.ID)
	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "automation", got[0].Data["category"])
	mu.Unlock()

	resp = call(t, conn, "f2", "marketplace.filters", map[string]string{"sort_by": "random"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestRPCMarketplaceRefresh(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	snap := decodePayload[marketplace.Snapshot](t, call(t, conn, "r1", "marketplace.refresh", refreshParams{Source: "templates"}))
	assert.Len(t, snap.Templates, 2)

	resp := call(t, conn, "r2", "marketplace.refresh", refreshParams{Source: "everything"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestRPCTemplateCategories(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	out := decodePayload[map[string][]string](t, call(t, conn, "c1", "templates.categories", nil))
	assert.Equal(t, []string{"automation", "research"}, out["categories"])
}

func TestRPCPublishAndDeleteAgent(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, &domain.User{ID: "u-1", Username: "ada"})

	agent := decodePayload[domain.AgentTemplate](t, call(t, conn, "p1", "agents.publish", publishParams{
		Agent: domain.AgentTemplate{Name: "Researcher", Category: "research"},
	}))
	assert.NotEmpty(t, agent.ID)
	require.NotNil(t, agent.AuthorID)
	assert.Equal(t, "u-1", *agent.AuthorID)
	require.NotNil(t, agent.AuthorName)
	assert.Equal(t, "ada", *agent.AuthorName)

	stored, err := store.LoadAgents(context.Background(), f.kv, store.KeyPublishedAgents)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Len(t, f.srv.market.Snapshot().Agents, 1)

	out := decodePayload[map[string]any](t, call(t, conn, "d1", "agents.delete", deleteParams{IDs: []string{agent.ID}}))
	assert.Equal(t, []any{agent.ID}, out["deleted"])
	assert.Empty(t, f.srv.market.Snapshot().Agents)

	stored, err = store.LoadAgents(context.Background(), f.kv, store.KeyPublishedAgents)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRPCPublishRequiresName(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	resp := call(t, conn, "p1", "agents.publish", publishParams{Agent: domain.AgentTemplate{Name: "  "}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "publish_failed", resp.Error.Code)
}

func TestRPCDeleteOfficialAgentForbidden(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, store.SaveAgents(context.Background(), f.kv, store.KeyPublishedAgents, []domain.AgentTemplate{
		{ID: "official_wf1_n1", Name: "Summarizer", IsOfficial: domain.Ptr(true)},
	}))
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	resp := call(t, conn, "d1", "agents.delete", deleteParams{IDs: []string{"official_wf1_n1"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "forbidden", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "official")
}

func TestRPCDeleteRepositoryAgents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, store.SaveAgents(context.Background(), f.kv, store.KeyRepositoryAgents, []domain.AgentTemplate{
		{ID: "r1", Name: "One"},
		{ID: "r2", Name: "Two"},
	}))
	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	out := decodePayload[map[string]int](t, call(t, conn, "d1", "repositoryAgents.delete", deleteParams{IDs: []string{"r1", "missing"}}))
	assert.Equal(t, 1, out["deleted"])

	stored, err := store.LoadAgents(context.Background(), f.kv, store.KeyRepositoryAgents)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "r2", stored[0].ID)
}

func TestRPCSeedRun(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var events []string
	record := func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		events = append(events, p.Event)
		mu.Unlock()
		return nil
	}
	f.hooks.On(hooks.EventAgentsSeeded, "test", record)
	f.hooks.On(hooks.EventSeedingComplete, "test", record)

	conn := f.connect(t, &ConnectAuth{Token: testToken}, nil)
	observer := f.connect(t, &ConnectAuth{Token: testToken}, nil)

	res := decodePayload[seedResult](t, call(t, conn, "s1", "seed.run", nil))
	assert.Equal(t, seeding.StatusSeeded, res.Status)
	assert.Equal(t, []string{"official_wf1_n1"}, res.Added)
	assert.Empty(t, res.Error)

	// Other clients are told seeding finished.
	observer.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pushed Frame
	for pushed.Event != EventSeedingComplete {
		pushed = Frame{}
		require.NoError(t, observer.ReadJSON(&pushed))
	}

	snap := f.srv.market.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "official_wf1_n1", snap.Agents[0].ID)

	mu.Lock()
	assert.Equal(t, []string{hooks.EventAgentsSeeded, hooks.EventSeedingComplete}, events)
	mu.Unlock()

	// A second run finds the agent already present.
	res = decodePayload[seedResult](t, call(t, conn, "s2", "seed.run", nil))
	assert.Equal(t, seeding.StatusSeeded, res.Status)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"official_wf1_n1"}, res.Skipped)
}

func TestHTTPAPIRequiresAuth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/api/marketplace")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func apiRequest(t *testing.T, f *fixture, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPAPIMarketplace(t *testing.T) {
	f := newFixture(t)

	resp := apiRequest(t, f, http.MethodPost, "/api/marketplace/view", viewParams{Tab: "agents"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.srv.market.Wait()

	resp = apiRequest(t, f, http.MethodGet, "/api/marketplace", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap marketplace.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "agents", string(snap.View.Tab))
	assert.NotNil(t, snap.Agents)

	resp = apiRequest(t, f, http.MethodPost, "/api/marketplace/view", viewParams{Tab: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = apiRequest(t, f, http.MethodPost, "/api/marketplace/filters", map[string]string{"search": "inbox"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inbox", f.srv.market.Filters().Search)

	resp = apiRequest(t, f, http.MethodPost, "/api/marketplace/refresh", refreshParams{Source: "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPAPISeed(t *testing.T) {
	f := newFixture(t)

	resp := apiRequest(t, f, http.MethodPost, "/api/seed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res seedResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, seeding.StatusSeeded, res.Status)
	assert.Equal(t, 1, res.Workflows)

	flag, err := f.kv.Get(context.Background(), store.KeySeeded)
	require.NoError(t, err)
	assert.Equal(t, "true", flag)
}

func TestHTTPAPIUnconfigured(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthModeToken, Token: testToken}
	srv := New(cfg, logging.New(nil, "silent"))
	f := &fixture{srv: srv, ts: httptest.NewServer(srv.Handler())}
	t.Cleanup(f.ts.Close)

	resp := apiRequest(t, f, http.MethodGet, "/api/marketplace", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = apiRequest(t, f, http.MethodPost, "/api/seed", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
