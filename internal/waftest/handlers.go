package waftest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
)

func (f *Tenant) handleListActionTypes(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeItems(w, f.actionTypes)
}

func (f *Tenant) handleListActions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeItems(w, f.actions)
}

func (f *Tenant) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TypeID *string         `json:"type_id"`
		Name   string          `json:"name"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if body.TypeID == nil || !containsID(f.actionTypes, *body.TypeID) {
		writeError(w, http.StatusBadRequest, "unknown type_id")
		return
	}
	for _, a := range f.actions {
		if a.Name == body.Name {
			writeError(w, http.StatusUnprocessableEntity, "name is not unique")
			return
		}
	}
	a := model.Action{ID: uuid.NewString(), Name: body.Name, TypeID: *body.TypeID, Params: body.Params}
	f.actions = append(f.actions, a)
	writeJSON(w, http.StatusCreated, a)
}

func (f *Tenant) handleListGlobalLists(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeItems(w, f.lists)
}

func (f *Tenant) handleCreateGlobalList(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.FormValue("name")
	typ := r.FormValue("type")

	content := ""
	if typ == model.ListTypeStatic {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "STATIC list needs a file")
			return
		}
		data, _ := io.ReadAll(file)
		file.Close()
		content = string(data)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.lists {
		if l.Name == name {
			writeError(w, http.StatusUnprocessableEntity, "name is not unique")
			return
		}
	}
	l := model.GlobalList{ID: uuid.NewString(), Name: name, Type: typ}
	f.lists = append(f.lists, l)
	f.listFiles[l.ID] = content
	writeJSON(w, http.StatusCreated, l)
}

func (f *Tenant) handleApplyGlobalLists(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	f.applyBody = string(body)
	f.applyContentType = r.Header.Get("Content-Type")
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (f *Tenant) handleGlobalListFile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.listFiles[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(content))
}

func (f *Tenant) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch chi.URLParam(r, "owner") {
	case model.OwnerVendor:
		writeItems(w, f.vendorTemplates)
	case model.OwnerUser:
		items := make([]model.NamedItem, 0, len(f.userTemplates))
		for _, t := range f.userTemplates {
			items = append(items, model.NamedItem{ID: t.ID, Name: t.Name})
		}
		writeItems(w, items)
	default:
		writeError(w, http.StatusNotFound, "unknown owner")
	}
}

func (f *Tenant) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	switch chi.URLParam(r, "owner") {
	case model.OwnerVendor:
		for _, t := range f.vendorTemplates {
			if t.ID == id {
				writeJSON(w, http.StatusOK, t)
				return
			}
		}
	case model.OwnerUser:
		for _, t := range f.userTemplates {
			if t.ID == id {
				writeJSON(w, http.StatusOK, t)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "template not found")
}

func (f *Tenant) handleCreateUserTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string    `json:"name"`
		Templates    []*string `json:"templates"`
		HasUserRules bool      `json:"has_user_rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(body.Templates) != 1 || body.Templates[0] == nil || !containsID(f.vendorTemplates, *body.Templates[0]) {
		writeError(w, http.StatusBadRequest, "templates must reference one vendor template")
		return
	}
	for _, t := range f.userTemplates {
		if t.Name == body.Name {
			writeError(w, http.StatusUnprocessableEntity, "name is not unique")
			return
		}
	}
	t := model.UserTemplate{ID: uuid.NewString(), Name: body.Name, HasUserRules: body.HasUserRules, Templates: []string{*body.Templates[0]}}
	f.userTemplates = append(f.userTemplates, t)
	f.rules[t.ID] = cloneDefaults(f.rules[t.Templates[0]])
	writeJSON(w, http.StatusCreated, t)
}

func (f *Tenant) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]model.NamedItem, 0, len(f.policies))
	for _, p := range f.policies {
		items = append(items, model.NamedItem{ID: p.ID, Name: p.Name})
	}
	writeItems(w, items)
}

func (f *Tenant) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.ID == chi.URLParam(r, "id") {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "policy not found")
}

func (f *Tenant) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var body Application
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applications = append(f.applications, body)
	if body.PolicyTemplateID == nil {
		writeError(w, http.StatusBadRequest, "policy_template_id is required")
		return
	}
	for _, p := range f.policies {
		if p.Name == body.Name {
			writeError(w, http.StatusUnprocessableEntity, "name is not unique")
			return
		}
	}
	var tpl *model.UserTemplate
	for i := range f.userTemplates {
		if f.userTemplates[i].ID == *body.PolicyTemplateID {
			tpl = &f.userTemplates[i]
		}
	}
	if tpl == nil {
		writeError(w, http.StatusBadRequest, "unknown policy_template_id")
		return
	}
	p := model.Policy{ID: uuid.NewString(), Name: body.Name, TemplateID: tpl.ID}
	f.policies = append(f.policies, p)
	f.rules[p.ID] = cloneDefaults(f.rules[tpl.ID])
	writeJSON(w, http.StatusCreated, map[string]string{"id": uuid.NewString(), "policy_id": p.ID})
}

func (f *Tenant) handleListRules(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, ok := f.rules[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}
	items := make([]model.NamedItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, model.NamedItem{ID: rule.ID, Name: rule.Name})
	}
	writeItems(w, items)
}

func (f *Tenant) handleGetRule(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule := f.findRule(chi.URLParam(r, "id"), chi.URLParam(r, "ruleID")); rule != nil {
		writeJSON(w, http.StatusOK, rule)
		return
	}
	writeError(w, http.StatusNotFound, "rule not found")
}

func (f *Tenant) handlePatchRule(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var raw map[string]any
	var body struct {
		Actions   []*string      `json:"actions"`
		Variables paramtree.Node `json:"variables"`
		Enabled   *bool          `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := json.Unmarshal(data, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, Patch{Path: trimAPI(r.URL.Path), Body: raw})

	rule := f.findRule(chi.URLParam(r, "id"), chi.URLParam(r, "ruleID"))
	if rule == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	actions := make([]string, 0, len(body.Actions))
	for _, a := range body.Actions {
		if a == nil || !containsAction(f.actions, *a) {
			writeError(w, http.StatusBadRequest, "unknown action")
			return
		}
		actions = append(actions, *a)
	}
	if body.Enabled != nil {
		rule.Enabled = *body.Enabled
	}
	rule.Actions = actions
	rule.Variables = body.Variables
	rule.HasOverrides = true
	writeJSON(w, http.StatusOK, rule)
}

func (f *Tenant) findRule(containerID, ruleID string) *model.RuleDetail {
	for _, rule := range f.rules[containerID] {
		if rule.ID == ruleID {
			return rule
		}
	}
	return nil
}

func cloneDefaults(rules []*model.RuleDetail) []*model.RuleDetail {
	out := make([]*model.RuleDetail, 0, len(rules))
	for _, r := range rules {
		c := *r
		c.HasOverrides = false
		c.Actions = append([]string(nil), r.Actions...)
		out = append(out, &c)
	}
	return out
}

func containsID(items []model.NamedItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func containsAction(actions []model.Action, id string) bool {
	for _, a := range actions {
		if a.ID == id {
			return true
		}
	}
	return false
}
