package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/bazaar/internal/domain"
)

func names[T domain.Listable](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Listing().Name
	}
	return out
}

func TestFilter_Category(t *testing.T) {
	agents := []domain.AgentTemplate{
		{Name: "first", Category: "automation"},
		{Name: "second", Category: "data"},
	}

	got := Filter(agents, "automation", "")
	assert.Equal(t, []string{"first"}, names(got))

	assert.Len(t, Filter(agents, "", ""), 2)
	assert.Empty(t, Filter(agents, "Automation", ""))
}

func TestFilter_Search(t *testing.T) {
	items := []domain.Template{
		{Name: "Email Triage", Description: "sorts mail"},
		{Name: "Reporter", Description: "Builds a weekly REPORT"},
		{Name: "Tagged", Tags: []string{"Slack-Bot"}},
		{Name: "Other"},
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"", []string{"Email Triage", "Reporter", "Tagged", "Other"}},
		{"triage", []string{"Email Triage"}},
		{"weekly report", []string{"Reporter"}},
		{"slack", []string{"Tagged"}},
		{"nothing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Filter(items, "", tt.search)))
		})
	}
}

func TestSort_Alphabetical(t *testing.T) {
	items := []domain.AgentTemplate{{Name: "Zebra"}, {Name: "Alpha"}}
	assert.Equal(t, []string{"Alpha", "Zebra"}, names(Sort(items, SortAlphabetical, false)))
	// Input is not mutated.
	assert.Equal(t, "Zebra", items[0].Name)
}

func TestSort_UnknownFallsBackToName(t *testing.T) {
	items := []domain.Template{{Name: "b"}, {Name: ""}, {Name: "a"}}
	assert.Equal(t, []string{"", "a", "b"}, names(Sort(items, "", false)))
}

func TestSort_CollationIsLocaleAware(t *testing.T) {
	items := []domain.Template{{Name: "beta"}, {Name: "Alpha"}, {Name: "alpha"}}
	got := names(Sort(items, SortAlphabetical, false))
	// Byte order would put both capitals first.
	assert.Equal(t, "beta", got[2])
}

func TestSort_Popular(t *testing.T) {
	items := []domain.AgentTemplate{
		{Name: "older", PublishedAt: "2024-01-01"},
		{Name: "newer", PublishedAt: "2024-01-02"},
	}
	assert.Equal(t, []string{"newer", "older"}, names(Sort(items, SortPopular, false)))
	assert.Equal(t, []string{"newer", "older"}, names(Sort(items, SortRecent, false)))
}

func TestSort_MissingTimestampIsZeroAndStable(t *testing.T) {
	items := []domain.AgentTemplate{
		{Name: "b-none"},
		{Name: "dated", PublishedAt: "2023-06-01T10:00:00Z"},
		{Name: "a-none"},
		{Name: "garbage", PublishedAt: "not a date"},
	}
	assert.Equal(t, []string{"dated", "b-none", "a-none", "garbage"}, names(Sort(items, SortPopular, false)))
}

func TestSort_OfficialFirst(t *testing.T) {
	items := []domain.AgentTemplate{
		{Name: "Alpha"},
		{Name: "Zed", IsOfficial: domain.Ptr(true)},
		{Name: "Beta", IsOfficial: domain.Ptr(false)},
		{Name: "Old official", IsOfficial: domain.Ptr(true), PublishedAt: "2020-01-01"},
	}

	assert.Equal(t, []string{"Old official", "Zed", "Alpha", "Beta"}, names(Sort(items, SortAlphabetical, true)))
	assert.Equal(t, []string{"Old official", "Zed", "Alpha", "Beta"}, names(Sort(items, SortPopular, true)))
	assert.Equal(t, []string{"Alpha", "Beta", "Old official", "Zed"}, names(Sort(items, SortAlphabetical, false)))
}

func TestApply(t *testing.T) {
	items := []domain.Template{
		{Name: "Zeta", Category: "data"},
		{Name: "Alpha", Category: "data"},
		{Name: "Mid", Category: "ops"},
	}
	got := Apply(items, Filters{Category: "data", SortBy: SortAlphabetical}, false)
	assert.Equal(t, []string{"Alpha", "Zeta"}, names(got))
}
