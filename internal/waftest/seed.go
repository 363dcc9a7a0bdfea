package waftest

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
)

// VendorRule builds an untouched vendor rule for AddVendorTemplate.
func VendorRule(name string, variables paramtree.Node) model.RuleDetail {
	return model.RuleDetail{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   true,
		IsSystem:  true,
		Actions:   []string{},
		Variables: variables,
	}
}

func (f *Tenant) AddActionType(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.actionTypes = append(f.actionTypes, model.NamedItem{ID: id, Name: name})
	return id
}

func (f *Tenant) AddAction(name, typeID string, isSystem bool, params string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.actions = append(f.actions, model.Action{
		ID: id, Name: name, TypeID: typeID, IsSystem: isSystem, Params: json.RawMessage(params),
	})
	return id
}

// AddGlobalList adds a list. content is served as the list file and only
// matters for STATIC lists.
func (f *Tenant) AddGlobalList(name, listType, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.lists = append(f.lists, model.GlobalList{ID: id, Name: name, Type: listType})
	f.listFiles[id] = content
	return id
}

func (f *Tenant) AddVendorTemplate(name string, rules ...model.RuleDetail) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.vendorTemplates = append(f.vendorTemplates, model.NamedItem{ID: id, Name: name})
	stored := make([]*model.RuleDetail, 0, len(rules))
	for i := range rules {
		r := rules[i]
		stored = append(stored, &r)
	}
	f.rules[id] = stored
	return id
}

// AddUserTemplate derives a user template from a vendor template. Its rules
// share the vendor rule ids.
func (f *Tenant) AddUserTemplate(name, vendorID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.userTemplates = append(f.userTemplates, model.UserTemplate{
		ID: id, Name: name, HasUserRules: true, Templates: []string{vendorID},
	})
	f.rules[id] = cloneDefaults(f.rules[vendorID])
	return id
}

// AddPolicy derives a policy from a user template.
func (f *Tenant) AddPolicy(name, templateID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.policies = append(f.policies, model.Policy{ID: id, Name: name, TemplateID: templateID})
	f.rules[id] = cloneDefaults(f.rules[templateID])
	return id
}

// OverrideRule changes a rule of a template or policy the way the console does.
func (f *Tenant) OverrideRule(containerID, ruleName string, enabled bool, actionIDs []string, variables paramtree.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules[containerID] {
		if r.Name == ruleName {
			r.Enabled = enabled
			r.Actions = append([]string{}, actionIDs...)
			r.Variables = variables
			r.HasOverrides = true
			return
		}
	}
	panic("waftest: no rule " + ruleName + " in " + containerID)
}

// AddUserRule adds a rule authored by the user. It is never an override.
func (f *Tenant) AddUserRule(containerID, ruleName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[containerID] = append(f.rules[containerID], &model.RuleDetail{
		ID: uuid.NewString(), Name: ruleName, Enabled: true, HasOverrides: true, Actions: []string{},
	})
}

// Rule returns a copy of the named rule of a container.
func (f *Tenant) Rule(containerID, ruleName string) (model.RuleDetail, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules[containerID] {
		if r.Name == ruleName {
			return *r, true
		}
	}
	return model.RuleDetail{}, false
}

func (f *Tenant) UserTemplate(name string) (model.UserTemplate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.userTemplates {
		if t.Name == name {
			return t, true
		}
	}
	return model.UserTemplate{}, false
}

func (f *Tenant) Policy(name string) (model.Policy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.Name == name {
			return p, true
		}
	}
	return model.Policy{}, false
}

func (f *Tenant) Action(name string) (model.Action, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a.Name == name {
			return a, true
		}
	}
	return model.Action{}, false
}

// Actions returns every action, system ones included.
func (f *Tenant) Actions() []model.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Action(nil), f.actions...)
}

func (f *Tenant) GlobalList(name string) (model.GlobalList, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.lists {
		if l.Name == name {
			return l, true
		}
	}
	return model.GlobalList{}, false
}

func (f *Tenant) GlobalLists() []model.GlobalList {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GlobalList(nil), f.lists...)
}

// ListFile returns the stored file content of a list.
func (f *Tenant) ListFile(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listFiles[id]
}

func (f *Tenant) Patches() []Patch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Patch(nil), f.patches...)
}

func (f *Tenant) Applications() []Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Application(nil), f.applications...)
}

// ApplyRequest returns the body and content type of the last apply call.
func (f *Tenant) ApplyRequest() (body, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyBody, f.applyContentType
}

// Applied returns how often global lists were applied.
func (f *Tenant) Applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}
