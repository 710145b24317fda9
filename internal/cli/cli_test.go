package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/bazaar/internal/domain"
)

func templatesAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /templates/{$}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Template{
			{ID: "wf1", Name: "Inbox Triage", Category: "automation", IsOfficial: true, PublishedAt: "2025-01-02T00:00:00Z"},
			{ID: "wf2", Name: "Lead Scoring", Category: "sales", PublishedAt: "2025-01-01T00:00:00Z"},
		})
	})
	mux.HandleFunc("POST /templates/{id}/use", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "wf1" {
			fmt.Fprint(w, `{"nodes":[]}`)
			return
		}
		fmt.Fprint(w, `{"nodes":[{"id":"n1","type":"agent","data":{"label":"Summarizer","agent_config":{"model":"m"}}}]}`)
	})
	mux.HandleFunc("GET /templates/categories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `["automation","sales"]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// setupConfig writes a config pointing at apiURL with a SQLite store in a
// temp dir and returns its path.
func setupConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BAZAAR_HOME", dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`api:
  baseUrl: %s
store:
  backend: sqlite
  path: %s
identity:
  userId: u-1
  username: ada
`, apiURL, filepath.Join(dir, "bazaar.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedThenBrowseAgents(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	out, err := run(t, cfgPath, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 1 agent(s) from 1 official workflow(s)")
	assert.Contains(t, out, "official_wf1_n1")

	out, err = run(t, cfgPath, "browse", "--tab", "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "Agents (1)")
	assert.Contains(t, out, "Summarizer")

	// Rerunning finds the agent already present.
	out, err = run(t, cfgPath, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 0 agent(s)")
	assert.Contains(t, out, "1 already present")
}

func TestBrowseRepositoryWorkflows(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	out, err := run(t, cfgPath, "browse", "--tab", "repository", "--sub", "workflows", "--category", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflows (1)")
	assert.Contains(t, out, "Lead Scoring")
	assert.NotContains(t, out, "Inbox Triage")
}

func TestBrowseRejectsUnknownTab(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	_, err := run(t, cfgPath, "browse", "--tab", "settings")
	assert.ErrorContains(t, err, "unknown tab")

	_, err = run(t, cfgPath, "browse", "--sort", "random")
	assert.ErrorContains(t, err, "unknown sort")
}

func TestCategories(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	out, err := run(t, cfgPath, "categories")
	require.NoError(t, err)
	assert.Equal(t, "automation\nsales\n", out)
}

func TestAgentsPublishAndDelete(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	out, err := run(t, cfgPath, "agents", "publish", "--name", "Researcher", "--tags", "web,notes")
	require.NoError(t, err)
	assert.Contains(t, out, "published Researcher as agent_")

	out, err = run(t, cfgPath, "browse", "--tab", "agents", "--search", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Agents (1)")
	assert.Contains(t, out, "by ada")

	_, err = run(t, cfgPath, "agents", "delete", "does-not-exist")
	assert.ErrorContains(t, err, "no deletable agents selected")
}

func TestConfigValidate(t *testing.T) {
	cfgPath := setupConfig(t, "not a url")

	out, err := run(t, cfgPath, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "api.baseUrl")
}

func TestConfigSetGet(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	_, err := run(t, cfgPath, "config", "set", "gateway.port", "9000")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	out, err = run(t, cfgPath, "config", "get", "identity")
	require.NoError(t, err)
	assert.Contains(t, out, "username: ada")
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)
	before, err := os.ReadFile(cfgPath)
	require.NoError(t, err)

	_, err = run(t, cfgPath, "config", "set", "gateway.port", "abc")
	assert.ErrorContains(t, err, "invalid config value")

	_, err = run(t, cfgPath, "config", "set", "store.backend", "postgres")
	assert.ErrorContains(t, err, "store.backend")

	_, err = run(t, cfgPath, "config", "set", "nope.x", "1")
	assert.ErrorContains(t, err, "unknown config key: nope")

	after, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestVersionJSON(t *testing.T) {
	cfgPath := setupConfig(t, templatesAPI(t).URL)

	out, err := run(t, cfgPath, "version", "--json")
	require.NoError(t, err)

	var b map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &b))
	assert.NotEmpty(t, b["version"])
	assert.NotEmpty(t, b["go"])
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", 42},
		{"1.5", 1.5},
		{"loopback", "loopback"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestPrintListing(t *testing.T) {
	var buf bytes.Buffer
	printListing(&buf, "Agents", agentRows([]domain.AgentTemplate{
		{ID: "a1", Name: "Writer", Category: "content", AuthorName: domain.Ptr("ada"), Tags: []string{"blog"}},
	}))
	out := buf.String()
	assert.Contains(t, out, "Agents (1)")
	assert.Contains(t, out, "Writer")
	assert.Contains(t, out, "by ada")
	assert.Contains(t, out, "a1  blog")

	buf.Reset()
	printListing(&buf, "Workflows", nil)
	assert.Contains(t, buf.String(), "(none)")
}
