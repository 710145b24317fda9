package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/logging"
	"github.com/soyeahso/bazaar/internal/tabs"
)

type fakeSources struct {
	mu      sync.Mutex
	calls   map[tabs.Source]int
	filters []catalog.Filters
	fail    map[tabs.Source]error
	gates   map[tabs.Source]chan struct{}
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		calls: map[tabs.Source]int{},
		fail:  map[tabs.Source]error{},
		gates: map[tabs.Source]chan struct{}{},
	}
}

func (f *fakeSources) record(s tabs.Source, flt catalog.Filters) error {
	f.mu.Lock()
	f.calls[s]++
	f.filters = append(f.filters, flt)
	gate := f.gates[s]
	err := f.fail[s]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeSources) count(s tabs.Source) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[s]
}

func (f *fakeSources) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeSources) Templates(_ context.Context, flt catalog.Filters) ([]domain.Template, error) {
	if err := f.record(tabs.SourceTemplates, flt); err != nil {
		return nil, err
	}
	return []domain.Template{{ID: "t1", Name: "Template"}}, nil
}

func (f *fakeSources) WorkflowsOfWorkflows(_ context.Context, flt catalog.Filters) ([]domain.Template, error) {
	if err := f.record(tabs.SourceWorkflowsOfWorkflows, flt); err != nil {
		return nil, err
	}
	return []domain.Template{{ID: "w1", Name: "Composite"}}, nil
}

func (f *fakeSources) Agents(_ context.Context, flt catalog.Filters) ([]domain.AgentTemplate, error) {
	if err := f.record(tabs.SourceAgents, flt); err != nil {
		return nil, err
	}
	return []domain.AgentTemplate{{ID: "a1", Name: "Agent"}}, nil
}

func (f *fakeSources) RepositoryAgents(_ context.Context, flt catalog.Filters) ([]domain.AgentTemplate, error) {
	if err := f.record(tabs.SourceRepositoryAgents, flt); err != nil {
		return nil, err
	}
	return []domain.AgentTemplate{{ID: "r1", Name: "Repo agent"}}, nil
}

func newOrchestrator(src Sources, opts Options) *Orchestrator {
	opts.Log = logging.New(nil, "silent")
	return New(src, opts)
}

func TestNew_InitialSnapshot(t *testing.T) {
	o := newOrchestrator(newFakeSources(), Options{})
	snap := o.Snapshot()

	assert.Nil(t, snap.Templates)
	assert.NotNil(t, snap.Agents)
	assert.Empty(t, snap.Agents)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Errors)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"templates":null`)
	assert.Contains(t, string(data), `"agents":[]`)
}

func TestSetView_RefetchesSelectedSourceOnce(t *testing.T) {
	tests := []struct {
		view tabs.View
		want tabs.Source
	}{
		{tabs.View{Tab: tabs.Repository, Sub: tabs.SubWorkflows}, tabs.SourceTemplates},
		{tabs.View{Tab: tabs.Repository, Sub: tabs.SubAgents}, tabs.SourceRepositoryAgents},
		{tabs.View{Tab: tabs.WorkflowsOfWorkflows, Sub: tabs.SubWorkflows}, tabs.SourceWorkflowsOfWorkflows},
		{tabs.View{Tab: tabs.Agents, Sub: tabs.SubWorkflows}, tabs.SourceAgents},
	}

	for _, tt := range tests {
		t.Run(tt.view.String(), func(t *testing.T) {
			src := newFakeSources()
			o := newOrchestrator(src, Options{})

			assert.True(t, o.SetView(context.Background(), tt.view))
			o.Wait()

			assert.Equal(t, 1, src.count(tt.want))
			assert.Equal(t, 1, src.total())
		})
	}
}

func TestSetView_SameViewIsNoop(t *testing.T) {
	src := newFakeSources()
	o := newOrchestrator(src, Options{})
	v := tabs.View{Tab: tabs.Agents, Sub: tabs.SubWorkflows}

	o.SetView(context.Background(), v)
	o.Wait()
	for i := 0; i < 5; i++ {
		assert.False(t, o.SetView(context.Background(), v))
	}
	o.Wait()
	assert.Equal(t, 1, src.total())

	// Switching away and back refetches again.
	o.SetView(context.Background(), tabs.View{Tab: tabs.Repository, Sub: tabs.SubAgents})
	o.SetView(context.Background(), v)
	o.Wait()
	assert.Equal(t, 2, src.count(tabs.SourceAgents))
	assert.Equal(t, 1, src.count(tabs.SourceRepositoryAgents))
}

func TestSetView_SubTabChangeOutsideRepositoryStillCounts(t *testing.T) {
	src := newFakeSources()
	o := newOrchestrator(src, Options{})

	o.SetView(context.Background(), tabs.View{Tab: tabs.Agents, Sub: tabs.SubWorkflows})
	o.SetView(context.Background(), tabs.View{Tab: tabs.Agents, Sub: tabs.SubAgents})
	o.Wait()
	assert.Equal(t, 2, src.count(tabs.SourceAgents))
}

func TestSetFilters_DoesNotRefetch(t *testing.T) {
	src := newFakeSources()
	o := newOrchestrator(src, Options{})

	o.SetView(context.Background(), tabs.View{Tab: tabs.Agents})
	o.Wait()
	o.SetFilters(catalog.Filters{Category: "data", SortBy: "popular"})
	o.SetFilters(catalog.Filters{Category: "ops", SortBy: "recent"})
	o.Wait()
	assert.Equal(t, 1, src.total())

	// The next fetch sees the latest filters.
	require.NoError(t, o.FetchAgents(context.Background()))
	src.mu.Lock()
	last := src.filters[len(src.filters)-1]
	src.mu.Unlock()
	assert.Equal(t, "ops", last.Category)
	assert.Equal(t, "recent", last.SortBy)
}

func TestSnapshot_PublishesFetchedData(t *testing.T) {
	src := newFakeSources()
	o := newOrchestrator(src, Options{})

	o.SetView(context.Background(), tabs.View{Tab: tabs.Repository, Sub: tabs.SubWorkflows})
	o.Wait()

	snap := o.Snapshot()
	require.Len(t, snap.Templates, 1)
	assert.Equal(t, "t1", snap.Templates[0].ID)
	assert.Empty(t, snap.Agents)
	assert.False(t, snap.Loading)
	assert.Equal(t, tabs.Repository, snap.View.Tab)
}

func TestSnapshot_LoadingTracksSelectedSourceOnly(t *testing.T) {
	src := newFakeSources()
	gate := make(chan struct{})
	src.gates[tabs.SourceAgents] = gate
	o := newOrchestrator(src, Options{})

	o.SetView(context.Background(), tabs.View{Tab: tabs.Agents})
	require.Eventually(t, func() bool { return o.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	// Agents are still in flight, but the templates view does not wait on them.
	o.SetView(context.Background(), tabs.View{Tab: tabs.Repository, Sub: tabs.SubWorkflows})
	require.Eventually(t, func() bool { return src.count(tabs.SourceTemplates) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !o.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	assert.True(t, o.agents.Loading())

	close(gate)
	o.Wait()
	assert.False(t, o.agents.Loading())
}

func TestFetchError_KeepsDisplayAndReports(t *testing.T) {
	src := newFakeSources()
	var gotSource tabs.Source
	var gotErr error
	var mu sync.Mutex
	o := newOrchestrator(src, Options{OnError: func(s tabs.Source, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotSource, gotErr = s, err
	}})

	require.NoError(t, o.FetchAgents(context.Background()))
	require.Len(t, o.Snapshot().Agents, 1)

	src.mu.Lock()
	src.fail[tabs.SourceAgents] = errors.New("store offline")
	src.mu.Unlock()

	err := o.FetchAgents(context.Background())
	require.EqualError(t, err, "store offline")

	snap := o.Snapshot()
	assert.Len(t, snap.Agents, 1)
	assert.Equal(t, "store offline", snap.Errors["agents"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, tabs.SourceAgents, gotSource)
	assert.EqualError(t, gotErr, "store offline")
}

func TestSetters_OptimisticMutation(t *testing.T) {
	src := newFakeSources()
	var snaps []Snapshot
	var mu sync.Mutex
	o := newOrchestrator(src, Options{OnChange: func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}})

	require.NoError(t, o.FetchAgents(context.Background()))
	o.SetAgents([]domain.AgentTemplate{})
	assert.Empty(t, o.Snapshot().Agents)

	o.SetTemplates([]domain.Template{{ID: "local"}})
	o.SetWorkflowsOfWorkflows([]domain.Template{{ID: "w"}})
	o.SetRepositoryAgents([]domain.AgentTemplate{{ID: "r"}})

	snap := o.Snapshot()
	assert.Equal(t, "local", snap.Templates[0].ID)
	assert.Equal(t, "w", snap.WorkflowsOfWorkflows[0].ID)
	assert.Equal(t, "r", snap.RepositoryAgents[0].ID)

	// A re-publish without new data must not clobber local edits.
	o.publish()
	assert.Empty(t, o.Snapshot().Agents)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, snaps)
	assert.Equal(t, "r", snaps[len(snaps)-1].RepositoryAgents[0].ID)
}

func TestBlockingFetches(t *testing.T) {
	src := newFakeSources()
	o := newOrchestrator(src, Options{})
	ctx := context.Background()

	require.NoError(t, o.FetchTemplates(ctx))
	require.NoError(t, o.FetchWorkflowsOfWorkflows(ctx))
	require.NoError(t, o.FetchAgents(ctx))
	require.NoError(t, o.FetchRepositoryAgents(ctx))

	snap := o.Snapshot()
	assert.Len(t, snap.Templates, 1)
	assert.Len(t, snap.WorkflowsOfWorkflows, 1)
	assert.Len(t, snap.Agents, 1)
	assert.Len(t, snap.RepositoryAgents, 1)
	assert.Equal(t, 4, src.total())
}
