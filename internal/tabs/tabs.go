// Package tabs decides which marketplace source a view needs.
package tabs

import "fmt"

// Tab is a top-level marketplace tab.
type Tab string

const (
	Agents               Tab = "agents"
	Repository           Tab = "repository"
	WorkflowsOfWorkflows Tab = "workflows-of-workflows"
)

// SubTab is a repository sub-tab.
type SubTab string

const (
	SubWorkflows SubTab = "workflows"
	SubAgents    SubTab = "agents"
)

// Source names one of the four catalog sources.
type Source string

const (
	SourceNone                 Source = ""
	SourceTemplates            Source = "templates"
	SourceRepositoryAgents     Source = "repository-agents"
	SourceWorkflowsOfWorkflows Source = "workflows-of-workflows"
	SourceAgents               Source = "agents"
)

// View is an (active tab, repository sub-tab) pair.
type View struct {
	Tab Tab    `json:"tab"`
	Sub SubTab `json:"sub"`
}

func (v View) String() string {
	return fmt.Sprintf("%s/%s", v.Tab, v.Sub)
}

// ShouldLoadTemplates reports whether the repository workflows listing is shown.
func ShouldLoadTemplates(tab Tab, sub SubTab) bool {
	return tab == Repository && sub == SubWorkflows
}

// ShouldLoadRepositoryAgents reports whether the repository agents listing is shown.
func ShouldLoadRepositoryAgents(tab Tab, sub SubTab) bool {
	return tab == Repository && sub == SubAgents
}

// ShouldLoadWorkflowsOfWorkflows reports whether the composite workflows tab is shown.
func ShouldLoadWorkflowsOfWorkflows(tab Tab, _ SubTab) bool {
	return tab == WorkflowsOfWorkflows
}

// ShouldLoadAgents reports whether the published agents tab is shown.
func ShouldLoadAgents(tab Tab, _ SubTab) bool {
	return tab == Agents
}

// precedence is the fixed evaluation order. Earlier entries win when more
// than one predicate holds.
var precedence = []struct {
	source Source
	match  func(Tab, SubTab) bool
}{
	{SourceTemplates, ShouldLoadTemplates},
	{SourceRepositoryAgents, ShouldLoadRepositoryAgents},
	{SourceWorkflowsOfWorkflows, ShouldLoadWorkflowsOfWorkflows},
	{SourceAgents, ShouldLoadAgents},
}

// Select returns the authoritative source for a view, or SourceNone.
func Select(tab Tab, sub SubTab) Source {
	for _, p := range precedence {
		if p.match(tab, sub) {
			return p.source
		}
	}
	return SourceNone
}

// LoadingFlags carries the loading flag of each source.
type LoadingFlags struct {
	Templates            bool
	RepositoryAgents     bool
	WorkflowsOfWorkflows bool
	Agents               bool
}

func (f LoadingFlags) of(s Source) bool {
	switch s {
	case SourceTemplates:
		return f.Templates
	case SourceRepositoryAgents:
		return f.RepositoryAgents
	case SourceWorkflowsOfWorkflows:
		return f.WorkflowsOfWorkflows
	case SourceAgents:
		return f.Agents
	default:
		return false
	}
}

// CalculateLoadingState returns the loading flag of the first source whose
// predicate holds, in precedence order, or false when none does.
func CalculateLoadingState(tab Tab, sub SubTab, flags LoadingFlags) bool {
	return flags.of(Select(tab, sub))
}

// ParseTab validates a wire tab name.
func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case Agents, Repository, WorkflowsOfWorkflows:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tab %q", s)
	}
}

// ParseSubTab validates a wire sub-tab name. Empty selects workflows.
func ParseSubTab(s string) (SubTab, error) {
	switch st := SubTab(s); st {
	case "":
		return SubWorkflows, nil
	case SubWorkflows, SubAgents:
		return st, nil
	default:
		return "", fmt.Errorf("unknown repository sub-tab %q", s)
	}
}

// ParseView validates both halves of a view.
func ParseView(tab, sub string) (View, error) {
	t, err := ParseTab(tab)
	if err != nil {
		return View{}, err
	}
	st, err := ParseSubTab(sub)
	if err != nil {
		return View{}, err
	}
	return View{Tab: t, Sub: st}, nil
}
