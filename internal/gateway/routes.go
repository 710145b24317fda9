package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/bazaar/internal/catalog"
	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/domain"
	"github.com/soyeahso/bazaar/internal/hooks"
	"github.com/soyeahso/bazaar/internal/seeding"
	"github.com/soyeahso/bazaar/internal/tabs"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"logging",
	"fetch",
	"seeding",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// rpcCallTimeout bounds catalog and seeding work started by a single request.
const rpcCallTimeout = 2 * time.Minute

var (
	errUnavailable = errors.New("marketplace is not configured")
	errInvalid     = errors.New("invalid params")
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	api := func(h http.HandlerFunc) http.HandlerFunc {
		return requireAuth(h, s.auth, s.authLimiter, s.log)
	}
	mux.HandleFunc("GET /api/marketplace", api(s.handleSnapshot))
	mux.HandleFunc("POST /api/marketplace/view", api(s.handleSetView))
	mux.HandleFunc("POST /api/marketplace/filters", api(s.handleSetFilters))
	mux.HandleFunc("POST /api/marketplace/refresh", api(s.handleRefresh))
	mux.HandleFunc("POST /api/seed", api(s.handleSeed))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("marketplace.snapshot", s.rpcSnapshot)
	s.Handle("marketplace.view", s.rpcSetView)
	s.Handle("marketplace.filters", s.rpcSetFilters)
	s.Handle("marketplace.refresh", s.rpcRefresh)
	s.Handle("templates.categories", s.rpcCategories)
	s.Handle("agents.publish", s.rpcPublishAgent)
	s.Handle("agents.delete", s.rpcDeleteAgents)
	s.Handle("repositoryAgents.delete", s.rpcDeleteRepositoryAgents)
	s.Handle("seed.run", s.rpcSeed)
}

// resolveUser picks the identity a connection acts as. A user supplied in
// the connect params wins over the configured identity.
func (s *Server) resolveUser(u *domain.User) domain.User {
	if u != nil && u.ID != "" {
		return *u
	}
	return domain.User{
		ID:       s.cfg.Identity.UserID,
		Username: s.cfg.Identity.Username,
		Email:    s.cfg.Identity.Email,
	}
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// --- marketplace operations shared by HTTP and RPC ---

type viewParams struct {
	Tab string `json:"tab"`
	Sub string `json:"sub,omitempty"`
}

// setView applies a view change. Refetches run under the server lifetime
// context so they outlive the request that triggered them.
func (s *Server) setView(ctx context.Context, p viewParams) (map[string]any, error) {
	if s.market == nil {
		return nil, errUnavailable
	}
	v, err := tabs.ParseView(p.Tab, p.Sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	refetching := s.market.SetView(s.lifetimeContext(), v)
	if refetching {
		s.emit(ctx, hooks.EventViewChanged, map[string]any{
			"tab":    string(v.Tab),
			"sub":    string(v.Sub),
			"source": string(tabs.Select(v.Tab, v.Sub)),
		})
	}
	return map[string]any{"view": v, "refetching": refetching}, nil
}

func (s *Server) setFilters(ctx context.Context, f catalog.Filters, user domain.User) (catalog.Filters, error) {
	if s.market == nil {
		return catalog.Filters{}, errUnavailable
	}
	switch f.SortBy {
	case "", catalog.SortPopular, catalog.SortRecent, catalog.SortAlphabetical:
	default:
		return catalog.Filters{}, fmt.Errorf("%w: unknown sort %q", errInvalid, f.SortBy)
	}
	f.User = nil
	if user.ID != "" {
		f.User = &user
	}
	s.market.SetFilters(f)
	s.emit(ctx, hooks.EventFiltersChanged, map[string]any{
		"category": f.Category,
		"search":   f.Search,
		"sort_by":  f.SortBy,
	})
	return f, nil
}

type refreshParams struct {
	Source string `json:"source"`
}

// refresh refetches one source and waits for it to settle.
func (s *Server) refresh(ctx context.Context, source string) error {
	if s.market == nil {
		return errUnavailable
	}
	switch tabs.Source(source) {
	case tabs.SourceTemplates:
		return s.market.FetchTemplates(ctx)
	case tabs.SourceWorkflowsOfWorkflows:
		return s.market.FetchWorkflowsOfWorkflows(ctx)
	case tabs.SourceAgents:
		return s.market.FetchAgents(ctx)
	case tabs.SourceRepositoryAgents:
		return s.market.FetchRepositoryAgents(ctx)
	default:
		return fmt.Errorf("%w: unknown source %q", errInvalid, source)
	}
}

// runSeeder runs the seeder once, refreshes the agents listing when new
// agents landed and pushes the report to every client.
func (s *Server) runSeeder(ctx context.Context) (seeding.Report, error) {
	if s.seeder == nil {
		return seeding.Report{}, errors.New("seeding is not configured")
	}

	s.seedMu.Lock()
	rep := s.seeder.Run(ctx)
	s.seedMu.Unlock()

	if rep.Status == seeding.StatusSeeded && len(rep.Added) > 0 && s.market != nil {
		if err := s.market.FetchAgents(ctx); err != nil {
			s.log.Warn().Err(err).Msg("refreshing agents after seeding")
		}
	}

	data := map[string]any{
		"status": string(rep.Status),
		"added":  len(rep.Added),
		"failed": len(rep.FailedWorkflows),
	}
	if rep.Err != nil {
		data["error"] = rep.Err.Error()
	}
	s.emit(ctx, hooks.EventSeedingComplete, data)
	s.clients.Broadcast(EventSeedingComplete, newSeedResult(rep), s.eventSeq.Add(1))
	return rep, nil
}

// seedResult is the wire form of a seeding report.
type seedResult struct {
	seeding.Report
	Error string `json:"error,omitempty"`
}

func newSeedResult(rep seeding.Report) seedResult {
	res := seedResult{Report: rep}
	if rep.Err != nil {
		res.Error = rep.Err.Error()
	}
	return res
}

// RunSeeder runs the configured seeder under the server lifetime context.
func (s *Server) RunSeeder() (seeding.Report, error) {
	return s.runSeeder(s.lifetimeContext())
}

// --- HTTP API ---

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.market.Snapshot())
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var p viewParams
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.setView(r.Context(), p)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var f catalog.Filters
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	applied, err := s.setFilters(r.Context(), f, s.resolveUser(nil))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var p refreshParams
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), rpcCallTimeout)
	defer cancel()
	if err := s.refresh(ctx, p.Source); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.market.Snapshot())
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	rep, err := s.runSeeder(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSeedResult(rep))
}

// statusFor maps operation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// --- RPC handlers ---

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.build.Version,
		Clients: s.clients.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	if s.market != nil {
		snap := s.market.Snapshot()
		resp.View = snap.View.String()
		resp.Loading = snap.Loading
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "cannot modify config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	updated, err := config.ApplyValue(s.configRaw, path, p.Value)
	if err == nil {
		s.configRaw = updated
	}
	s.mu.Unlock()
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) rpcSnapshot(rc *RequestContext) {
	if s.market == nil {
		rc.RespondError("unavailable", errUnavailable.Error())
		return
	}
	rc.Respond(s.market.Snapshot())
}

func (s *Server) rpcSetView(rc *RequestContext) {
	var p viewParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	out, err := s.setView(s.lifetimeContext(), p)
	if err != nil {
		rc.RespondError(codeFor(err), err.Error())
		return
	}
	rc.Respond(out)
}

func (s *Server) rpcSetFilters(rc *RequestContext) {
	var f catalog.Filters
	if err := rc.Params(&f); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	applied, err := s.setFilters(s.lifetimeContext(), f, rc.Client.User)
	if err != nil {
		rc.RespondError(codeFor(err), err.Error())
		return
	}
	rc.Respond(applied)
}

func (s *Server) rpcRefresh(rc *RequestContext) {
	var p refreshParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	if err := s.refresh(ctx, p.Source); err != nil {
		rc.RespondError(codeFor(err), err.Error())
		return
	}
	rc.Respond(s.market.Snapshot())
}

func (s *Server) rpcCategories(rc *RequestContext) {
	if s.categories == nil {
		rc.RespondError("unavailable", "categories are not configured")
		return
	}
	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		rc.RespondError("upstream_error", err.Error())
		return
	}
	rc.Respond(map[string]any{"categories": cats})
}

type publishParams struct {
	Agent domain.AgentTemplate `json:"agent"`
}

func (s *Server) rpcPublishAgent(rc *RequestContext) {
	if s.catalog == nil {
		rc.RespondError("unavailable", "catalog is not configured")
		return
	}
	var p publishParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	agent, err := s.catalog.PublishAgent(ctx, p.Agent, rc.Client.User)
	if err != nil {
		rc.RespondError("publish_failed", err.Error())
		return
	}

	if s.market != nil {
		s.market.SetAgents(append(slices.Clone(s.market.Snapshot().Agents), agent))
	}
	s.emit(ctx, hooks.EventAgentPublished, map[string]any{"id": agent.ID, "name": agent.Name})
	rc.Respond(agent)
}

type deleteParams struct {
	IDs []string `json:"ids"`
}

func (s *Server) rpcDeleteAgents(rc *RequestContext) {
	if s.catalog == nil {
		rc.RespondError("unavailable", "catalog is not configured")
		return
	}
	var p deleteParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	user := rc.Client.User
	plan, err := s.catalog.DeleteAgents(ctx, p.IDs, &user)
	if err != nil {
		code := "delete_failed"
		if errors.Is(err, catalog.ErrNothingToDelete) {
			code = "forbidden"
		}
		rc.RespondError(code, err.Error())
		return
	}

	deleted := plan.OwnedIDs()
	if s.market != nil {
		s.market.SetAgents(withoutIDs(s.market.Snapshot().Agents, deleted))
	}
	s.emit(ctx, hooks.EventAgentsDeleted, map[string]any{"collection": "agents", "ids": deleted})
	rc.Respond(map[string]any{
		"deleted": deleted,
		"skipped": len(plan.NotOwned) + len(plan.Official),
		"partial": plan.Partial(),
	})
}

func (s *Server) rpcDeleteRepositoryAgents(rc *RequestContext) {
	if s.catalog == nil {
		rc.RespondError("unavailable", "catalog is not configured")
		return
	}
	var p deleteParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	removed, err := s.catalog.DeleteRepositoryAgents(ctx, p.IDs)
	if err != nil {
		rc.RespondError("delete_failed", err.Error())
		return
	}

	if s.market != nil {
		s.market.SetRepositoryAgents(withoutIDs(s.market.Snapshot().RepositoryAgents, p.IDs))
	}
	s.emit(ctx, hooks.EventAgentsDeleted, map[string]any{"collection": "repository", "ids": p.IDs})
	rc.Respond(map[string]any{"deleted": removed})
}

func (s *Server) rpcSeed(rc *RequestContext) {
	ctx, cancel := context.WithTimeout(s.lifetimeContext(), rpcCallTimeout)
	defer cancel()
	rep, err := s.runSeeder(ctx)
	if err != nil {
		rc.RespondError("unavailable", err.Error())
		return
	}
	rc.Respond(newSeedResult(rep))
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, errUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errInvalid):
		return "invalid_params"
	default:
		return "upstream_error"
	}
}

func withoutIDs(agents []domain.AgentTemplate, ids []string) []domain.AgentTemplate {
	kept := make([]domain.AgentTemplate, 0, len(agents))
	for _, a := range agents {
		if !slices.Contains(ids, a.ID) {
			kept = append(kept, a)
		}
	}
	return kept
}
