// Package waftest provides an in-memory WAF management API for tests. It
// implements the subset of /api/ptaf/v4 that backup and restore use, with
// the same id semantics as a real tenant: every object created gets a fresh
// id, and templates or policies derived from a base share its rule ids.
package waftest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
	"github.com/edvin/wafbackup/internal/ptaf"
)

// Patch is a recorded rule update.
type Patch struct {
	Path string
	Body map[string]any
}

// Application is a recorded POST /config/applications body.
type Application struct {
	Name             string   `json:"name"`
	ProtectionMode   string   `json:"protection_mode"`
	Hosts            []string `json:"hosts"`
	Locations        []string `json:"locations"`
	PolicyTemplateID *string  `json:"policy_template_id"`
	TrafficProfiles  []string `json:"traffic_profiles"`
}

// Tenant is one fake tenant. Seed it with the Add* helpers before serving.
type Tenant struct {
	Username string
	Password string
	Token    string

	mu               sync.Mutex
	actionTypes      []model.NamedItem
	actions          []model.Action
	lists            []model.GlobalList
	listFiles        map[string]string
	vendorTemplates  []model.NamedItem
	userTemplates    []model.UserTemplate
	policies         []model.Policy
	rules            map[string][]*model.RuleDetail
	patches          []Patch
	applications     []Application
	applied          int
	applyBody        string
	applyContentType string
	failPaths        map[string]int

	server *httptest.Server
}

func NewTenant() *Tenant {
	return &Tenant{
		Username:  "admin",
		Password:  "secret",
		Token:     "token-" + uuid.NewString(),
		listFiles: map[string]string{},
		rules:     map[string][]*model.RuleDetail{},
		failPaths: map[string]int{},
	}
}

// Start serves the tenant until the test ends.
func (f *Tenant) Start(t testing.TB) *Tenant {
	t.Helper()
	f.server = httptest.NewServer(f.Router())
	t.Cleanup(f.server.Close)
	return f
}

// Config returns tenant credentials pointing at the running server.
func (f *Tenant) Config() config.Tenant {
	return config.Tenant{Host: f.server.URL, Username: f.Username, Password: f.Password}
}

// Client returns an authenticated client for the running tenant.
func (f *Tenant) Client(t testing.TB) *ptaf.Client {
	t.Helper()
	c := ptaf.NewClient(f.Config().BaseURL(), f.Config(), zerolog.Nop())
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate against fake tenant: %v", err)
	}
	return c
}

// FailPath makes requests to the exact API path (below /api/ptaf/v4) answer
// with status.
func (f *Tenant) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPaths[path] = status
}

func (f *Tenant) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/ptaf/v4", func(r chi.Router) {
		r.Post("/auth/refresh_tokens", f.handleAuth)

		r.Group(func(r chi.Router) {
			r.Use(f.requireToken)
			r.Use(f.injectFailures)

			r.Get("/config/action_types", f.handleListActionTypes)
			r.Get("/config/actions", f.handleListActions)
			r.Post("/config/actions", f.handleCreateAction)

			r.Get("/config/global_lists", f.handleListGlobalLists)
			r.Post("/config/global_lists", f.handleCreateGlobalList)
			r.Post("/config/global_lists/apply", f.handleApplyGlobalLists)
			r.Get("/config/global_lists/{id}/file", f.handleGlobalListFile)

			r.Get("/config/policies/templates/{owner}", f.handleListTemplates)
			r.Post("/config/policies/templates/user", f.handleCreateUserTemplate)
			r.Get("/config/policies/templates/{owner}/{id}", f.handleGetTemplate)
			r.Get("/config/policies/templates/{owner}/{id}/rules", f.handleListRules)
			r.Get("/config/policies/templates/{owner}/{id}/rules/{ruleID}", f.handleGetRule)
			r.Patch("/config/policies/templates/user/{id}/rules/{ruleID}", f.handlePatchRule)

			r.Get("/config/policies", f.handleListPolicies)
			r.Get("/config/policies/{id}", f.handleGetPolicy)
			r.Get("/config/policies/{id}/rules", f.handleListRules)
			r.Get("/config/policies/{id}/rules/{ruleID}", f.handleGetRule)
			r.Patch("/config/policies/{id}/rules/{ruleID}", f.handlePatchRule)

			r.Post("/config/applications", f.handleCreateApplication)
		})
	})
	return r
}

func (f *Tenant) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.Token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *Tenant) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status, ok := f.failPaths[trimAPI(r.URL.Path)]
		f.mu.Unlock()
		if ok {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *Tenant) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Username != f.Username || body.Password != f.Password || body.Fingerprint == "" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": f.Token, "refresh_token": "r"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func writeItems(w http.ResponseWriter, items any) {
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func trimAPI(path string) string {
	return strings.TrimPrefix(path, "/api/ptaf/v4")
}

// MustTree parses a param tree literal, panicking on invalid JSON.
func MustTree(literal string) paramtree.Node {
	var n paramtree.Node
	if err := json.Unmarshal([]byte(literal), &n); err != nil {
		panic(err)
	}
	return n
}
